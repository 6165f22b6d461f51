package harness

import (
	"fmt"
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"

	"github.com/samcharles93/quantserve/internal/inference"
)

const bytesPerMB = 1024 * 1024

func WriteMetadata(w io.Writer, meta *Metadata) {
	fmt.Fprintln(w, "Model metadata")
	table := newTable(w, []string{"VARIANT", "NAME", "DTYPE", "QUANTIZED", "SIZE (MB)"})
	if meta.Quantized != nil {
		table.Append(metadataRow("quantized", meta.Quantized))
	}
	if meta.Baseline != nil {
		table.Append(metadataRow("baseline", meta.Baseline))
	}
	table.Render()

	if q := meta.Quantization; q != nil && q.SizeReductionPercent != nil {
		fmt.Fprintf(w, "Size reduction: %.1f%%\n", *q.SizeReductionPercent)
	}
}

func metadataRow(variant string, m *inference.Metadata) []string {
	return []string{variant, m.Name, m.DType, strconv.FormatBool(m.Quantized), fmt.Sprintf("%.2f", float64(m.SizeBytes)/bytesPerMB)}
}

func WriteSpeedReport(w io.Writer, r SpeedReport) {
	table := newTable(w, []string{"PROMPT", "RUNS", "ERRORS", "AVG LATENCY (MS)", "AVG TOKENS/S"})
	for _, p := range r.Prompts {
		table.Append([]string{
			p.Prompt,
			strconv.Itoa(len(p.Runs)),
			strconv.Itoa(len(p.Errors)),
			fmt.Sprintf("%.1f", p.AvgLatencyMS),
			fmt.Sprintf("%.2f", p.AvgTPS),
		})
	}
	table.Render()

	if r.TotalRuns == 0 {
		fmt.Fprintln(w, "No successful runs.")
		return
	}
	fmt.Fprintf(w, "Runs: %d\n", r.TotalRuns)
	fmt.Fprintf(w, "Latency: %.1f ± %.1f ms (min %.1f, max %.1f)\n", r.MeanLatencyMS, r.StdLatencyMS, r.MinLatencyMS, r.MaxLatencyMS)
	fmt.Fprintf(w, "Throughput: %.2f ± %.2f tokens/s\n", r.MeanTPS, r.StdTPS)
}

func WriteQuality(w io.Writer, results []QualityResult) {
	for i, q := range results {
		fmt.Fprintf(w, "[%d] %s\n", i+1, q.Prompt)
		if !q.Result.OK() {
			fmt.Fprintf(w, "    error: %s\n", q.Result.Error)
			continue
		}
		fmt.Fprintf(w, "    -> %s\n", q.Result.Completion)
		fmt.Fprintf(w, "    (%d tokens, %d ms)\n", q.Result.TokensGenerated, q.Result.TotalTimeMS)
	}
}

func newTable(w io.Writer, header []string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	table.SetAutoWrapText(false)
	return table
}
