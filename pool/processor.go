// File: pool/processor.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package pool

import (
	"sync/atomic"

	"github.com/momentics/lvreactor/api"
)

// Resetter is implemented by processors that clear their state before reuse.
type Resetter interface {
	Reset()
}

// ProcessorPool is a pooling api.ProcessorFactory.
type ProcessorPool struct {
	pool *typedPool[api.Processor]

	created   atomic.Int64
	reclaimed atomic.Int64
}

var _ api.ProcessorFactory = (*ProcessorPool)(nil)

// NewProcessorPool pools instances produced by newFn.
func NewProcessorPool(newFn func() api.Processor) *ProcessorPool {
	p := &ProcessorPool{}
	p.pool = newTypedPool(func() api.Processor {
		p.created.Add(1)
		return newFn()
	})
	return p
}

func (p *ProcessorPool) NewProcessor() api.Processor { return p.pool.get() }

func (p *ProcessorPool) SupportsPooling() bool { return true }

// Reclaim resets proc when it implements Resetter and returns it to the pool.
func (p *ProcessorPool) Reclaim(proc api.Processor) {
	if proc == nil {
		return
	}
	if r, ok := proc.(Resetter); ok {
		r.Reset()
	}
	p.reclaimed.Add(1)
	p.pool.put(proc)
}

// Created returns how many instances were constructed.
func (p *ProcessorPool) Created() int64 { return p.created.Load() }

// Reclaimed returns how many instances were handed back.
func (p *ProcessorPool) Reclaimed() int64 { return p.reclaimed.Load() }

// Factory is a non-pooling api.ProcessorFactory.
type Factory struct {
	newFn func() api.Processor
}

var _ api.ProcessorFactory = Factory{}

// NewFactory calls newFn for every request that needs a processor.
func NewFactory(newFn func() api.Processor) Factory { return Factory{newFn: newFn} }

// Shared serves every request with the same stateless processor.
func Shared(p api.Processor) Factory {
	return Factory{newFn: func() api.Processor { return p }}
}

func (f Factory) NewProcessor() api.Processor { return f.newFn() }
func (f Factory) SupportsPooling() bool       { return false }
func (f Factory) Reclaim(api.Processor)       {}
