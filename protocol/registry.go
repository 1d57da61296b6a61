// File: protocol/registry.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Named codec registry so the codec can be chosen from configuration.

package protocol

import (
	"fmt"
	"sort"
	"sync"

	"github.com/momentics/lvreactor/api"
)

// DefaultCodec is the name of the LV codec.
const DefaultCodec = "lv"

// Constructor builds a server codec with the given options.
type Constructor func(opts ...Option) api.ServerCodec

var registry = struct {
	sync.RWMutex
	m map[string]Constructor
}{m: map[string]Constructor{
	DefaultCodec: func(opts ...Option) api.ServerCodec { return NewServerCodec(opts...) },
}}

// Register adds or replaces a named codec.
func Register(name string, ctor Constructor) {
	registry.Lock()
	registry.m[name] = ctor
	registry.Unlock()
}

// NewFactory resolves name into a factory producing one codec per connection.
func NewFactory(name string, opts ...Option) (api.CodecFactory, error) {
	registry.RLock()
	ctor, ok := registry.m[name]
	registry.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: codec %q (known: %v)", api.ErrNotSupported, name, Names())
	}
	return api.CodecFactoryFunc(func() api.ServerCodec { return ctor(opts...) }), nil
}

// Names lists registered codecs.
func Names() []string {
	registry.RLock()
	defer registry.RUnlock()
	names := make([]string, 0, len(registry.m))
	for n := range registry.m {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
