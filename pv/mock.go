package pv

import (
	"context"
	"fmt"
	"sync"
)

// PutRecord is one write seen by a MockNetwork
type PutRecord struct {
	Name  string
	Value Value
}

// Hook is called after a put to the PV it is registered on, with the network
// lock released so it may Get and Put freely
type Hook func(ctx context.Context, n *MockNetwork, name string, v Value)

// MockNetwork is an in-memory Network.  Reading a PV that was never seeded
// or written returns ErrNotConnected unless Permissive is set, in which case
// it reads as zero.
type MockNetwork struct {
	Permissive bool

	mu      sync.Mutex
	values  map[string]Value
	hooks   map[string][]Hook
	history []PutRecord
}

// NewMockNetwork returns an empty MockNetwork
func NewMockNetwork() *MockNetwork {
	return &MockNetwork{
		values: make(map[string]Value),
		hooks:  make(map[string][]Hook),
	}
}

// Seed sets a PV without triggering hooks or being recorded
func (n *MockNetwork) Seed(name string, v Value) {
	n.mu.Lock()
	n.values[name] = v
	n.mu.Unlock()
}

// SeedFloat is Seed for a scalar
func (n *MockNetwork) SeedFloat(name string, f float64) { n.Seed(name, FloatValue(f)) }

// SeedString is Seed for a string
func (n *MockNetwork) SeedString(name, s string) { n.Seed(name, StringValue(s)) }

// OnPut registers a hook run after every put to name
func (n *MockNetwork) OnPut(name string, h Hook) {
	n.mu.Lock()
	n.hooks[name] = append(n.hooks[name], h)
	n.mu.Unlock()
}

// Get implements Network
func (n *MockNetwork) Get(ctx context.Context, name string) (Value, error) {
	if err := ctx.Err(); err != nil {
		return Value{}, err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	v, ok := n.values[name]
	if !ok {
		if n.Permissive {
			return FloatValue(0), nil
		}
		return Value{}, fmt.Errorf("%w: %s", ErrNotConnected, name)
	}
	return v, nil
}

// Put implements Network
func (n *MockNetwork) Put(ctx context.Context, name string, v Value) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	n.mu.Lock()
	n.values[name] = v
	n.history = append(n.history, PutRecord{Name: name, Value: v})
	hooks := append([]Hook(nil), n.hooks[name]...)
	n.mu.Unlock()
	for _, h := range hooks {
		h(ctx, n, name, v)
	}
	return nil
}

// History returns every put seen so far, oldest first
func (n *MockNetwork) History() []PutRecord {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]PutRecord(nil), n.history...)
}

// PutsTo returns the values written to one PV, oldest first
func (n *MockNetwork) PutsTo(name string) []Value {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []Value
	for _, r := range n.history {
		if r.Name == name {
			out = append(out, r.Value)
		}
	}
	return out
}

// Has reports whether name holds a value
func (n *MockNetwork) Has(name string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	_, ok := n.values[name]
	return ok
}

// Len returns the number of PVs that hold a value
func (n *MockNetwork) Len() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.values)
}

// Follow makes dst take the value of every put to src, the way a readback
// follows its setpoint
func (n *MockNetwork) Follow(src, dst string) {
	n.OnPut(src, func(ctx context.Context, n *MockNetwork, _ string, v Value) {
		n.Seed(dst, v)
	})
}
