package api

import (
	"context"
	"fmt"
	"sync"

	"github.com/samcharles93/quantserve/internal/inference"
)

// EngineProvider hands out the loaded model registry.
type EngineProvider interface {
	Registry() (*inference.Registry, error)
}

// StaticProvider serves a registry that is already loaded.
type StaticProvider struct {
	reg *inference.Registry
}

func NewStaticProvider(reg *inference.Registry) StaticProvider {
	return StaticProvider{reg: reg}
}

func (p StaticProvider) Registry() (*inference.Registry, error) {
	if p.reg == nil {
		return nil, ErrModelLoading
	}
	return p.reg, nil
}

// LoadingProvider loads models in the background so the server can accept
// connections immediately. Until loading finishes Registry returns
// ErrModelLoading.
type LoadingProvider struct {
	loader inference.Loader

	mu   sync.RWMutex
	reg  *inference.Registry
	err  error
	done chan struct{}
	once sync.Once
}

func NewLoadingProvider(loader inference.Loader) *LoadingProvider {
	return &LoadingProvider{
		loader: loader,
		done:   make(chan struct{}),
	}
}

// Start begins loading. Later calls are no-ops.
func (p *LoadingProvider) Start(ctx context.Context) {
	p.once.Do(func() {
		go func() {
			defer close(p.done)
			reg, err := p.loader.Load(ctx)
			p.mu.Lock()
			p.reg, p.err = reg, err
			p.mu.Unlock()
		}()
	})
}

// Wait blocks until loading has finished or ctx is done.
func (p *LoadingProvider) Wait(ctx context.Context) error {
	select {
	case <-p.done:
		_, err := p.Registry()
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *LoadingProvider) Registry() (*inference.Registry, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.err != nil {
		return nil, fmt.Errorf("load models: %w", p.err)
	}
	if p.reg == nil {
		return nil, ErrModelLoading
	}
	return p.reg, nil
}

func (p *LoadingProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.reg == nil {
		return nil
	}
	return p.reg.Close()
}
