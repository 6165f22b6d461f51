package tokenizer

import (
	"fmt"
	"strings"
)

const (
	// EOS is the end-of-sequence id that follows the 256 byte ids.
	EOS = 256
	// ByteVocab is the vocabulary size of Bytes.
	ByteVocab = 257
)

// Bytes maps each UTF-8 byte to its own id. Decoding drops special ids and
// replaces invalid byte sequences with U+FFFD, so any id stream renders.
type Bytes struct{}

func (Bytes) Encode(text string) ([]int, error) {
	ids := make([]int, len(text))
	for i := 0; i < len(text); i++ {
		ids[i] = int(text[i])
	}
	return ids, nil
}

func (Bytes) Decode(ids []int) (string, error) {
	buf := make([]byte, 0, len(ids))
	for _, id := range ids {
		switch {
		case id >= 0 && id < 256:
			buf = append(buf, byte(id))
		case id == EOS:
		default:
			return "", fmt.Errorf("tokenizer: id %d outside vocabulary of %d", id, ByteVocab)
		}
	}
	return strings.ToValidUTF8(string(buf), "�"), nil
}

// VocabSize returns ByteVocab.
func (Bytes) VocabSize() int { return ByteVocab }
