// File: adapters/middleware.go
// Package adapters
// Author: momentics <momentics@gmail.com>
//
// Processor middleware and a factory wrapper that applies it to every
// processor the reactor obtains.

package adapters

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/momentics/lvreactor/api"
)

// Middleware decorates a Processor.
type Middleware func(api.Processor) api.Processor

// Chain applies mws to p; the first middleware is the outermost.
func Chain(p api.Processor, mws ...Middleware) api.Processor {
	for i := len(mws) - 1; i >= 0; i-- {
		p = mws[i](p)
	}
	return p
}

// chained remembers the undecorated processor so pooling factories get
// back what they handed out.
type chained struct {
	api.Processor
	base api.Processor
}

// WrappedFactory applies middleware to processors of an inner factory.
type WrappedFactory struct {
	inner api.ProcessorFactory
	mws   []Middleware
}

var _ api.ProcessorFactory = (*WrappedFactory)(nil)

// Wrap returns a factory whose processors are decorated with mws.
func Wrap(inner api.ProcessorFactory, mws ...Middleware) *WrappedFactory {
	return &WrappedFactory{inner: inner, mws: mws}
}

func (w *WrappedFactory) NewProcessor() api.Processor {
	base := w.inner.NewProcessor()
	return &chained{Processor: Chain(base, w.mws...), base: base}
}

func (w *WrappedFactory) SupportsPooling() bool { return w.inner.SupportsPooling() }

func (w *WrappedFactory) Reclaim(p api.Processor) {
	if c, ok := p.(*chained); ok {
		p = c.base
	}
	w.inner.Reclaim(p)
}

// Logging logs every request at debug level and failures at warn level.
func Logging(log *slog.Logger) Middleware {
	return func(next api.Processor) api.Processor {
		return api.ProcessorFunc(func(cc *api.ClientContext) error {
			start := time.Now()
			err := next.Process(cc)
			if err != nil {
				log.Warn("request failed", "request_bytes", len(cc.Request()),
					"fault", fmt.Sprintf("%T", err), "error", err)
				return err
			}
			log.Debug("request served", "request_bytes", len(cc.Request()),
				"reply_bytes", len(cc.Reply()), "elapsed", time.Since(start))
			return nil
		})
	}
}

// Recovery turns a processor panic into an error reply.
func Recovery(next api.Processor) api.Processor {
	return api.ProcessorFunc(func(cc *api.ClientContext) (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("processor panic: %v", r)
			}
		}()
		return next.Process(cc)
	})
}

// MaxRequest rejects requests longer than n bytes with ErrInvalidArgument.
func MaxRequest(n int) Middleware {
	return func(next api.Processor) api.Processor {
		return api.ProcessorFunc(func(cc *api.ClientContext) error {
			if len(cc.Request()) > n {
				return fmt.Errorf("%w: request of %d bytes exceeds %d", api.ErrInvalidArgument, len(cc.Request()), n)
			}
			return next.Process(cc)
		})
	}
}
