package adapters

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/lvreactor/api"
	"github.com/momentics/lvreactor/fake"
)

func call(p api.Processor, req string) (string, error) {
	cc := api.NewClientContext(nil)
	cc.Begin([]byte(req))
	err := p.Process(cc)
	return string(cc.Reply()), err
}

func TestChainOrder(t *testing.T) {
	var order []string
	mark := func(name string) Middleware {
		return func(next api.Processor) api.Processor {
			return api.ProcessorFunc(func(cc *api.ClientContext) error {
				order = append(order, name)
				return next.Process(cc)
			})
		}
	}
	p := Chain(fake.Echo{}, mark("outer"), mark("inner"))
	reply, err := call(p, "x")
	require.NoError(t, err)
	assert.Equal(t, "x", reply)
	assert.Equal(t, []string{"outer", "inner"}, order)
}

func TestRecovery(t *testing.T) {
	_, err := call(Recovery(fake.Panicking{}), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "processor exploded")
}

func TestMaxRequest(t *testing.T) {
	p := MaxRequest(3)(fake.Echo{})
	_, err := call(p, "abcd")
	assert.ErrorIs(t, err, api.ErrInvalidArgument)
	reply, err := call(p, "abc")
	require.NoError(t, err)
	assert.Equal(t, "abc", reply)
}

func TestLogging(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	_, err := call(Logging(log)(fake.Echo{}), "hello")
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "request served")
	assert.Contains(t, buf.String(), "request_bytes=5")

	buf.Reset()
	_, err = call(Logging(log)(fake.Validating{}), "")
	require.Error(t, err)
	assert.Contains(t, buf.String(), "request failed")
	assert.Contains(t, buf.String(), "MalformedRequestError")
}

func TestWrappedFactoryReclaimsBase(t *testing.T) {
	inner := &fake.TrackingFactory{New: func() api.Processor { return &fake.Counter{} }}
	w := Wrap(inner, Recovery)
	assert.True(t, w.SupportsPooling())

	p := w.NewProcessor()
	reply, err := call(p, "x")
	require.NoError(t, err)
	assert.Equal(t, "1", reply)

	w.Reclaim(p)
	assert.Equal(t, int64(1), inner.Created.Load())
	assert.Equal(t, int64(1), inner.Reclaimed.Load())
}
