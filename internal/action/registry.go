package action

import (
	"fmt"
	"sort"
	"sync"

	"golang.org/x/text/unicode/norm"

	"github.com/gyaneshwarpardhi/cardflow/internal/graph"
)

// Registry maps define names to node definitions. Names are compared in
// Unicode NFC, so decks authored on different platforms resolve the same.
// It is safe for concurrent reads; Register should only be called at startup.
type Registry struct {
	mu   sync.RWMutex
	defs map[string]Definition
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{defs: make(map[string]Definition)}
}

// Builtin returns a registry holding every Kind under its canonical name.
func Builtin() *Registry {
	r := NewRegistry()
	for k := KindEntry; k <= KindLog; k++ {
		r.Register(Definition{Name: k.String(), Kind: k})
	}
	return r
}

// Register adds a definition. Panics on duplicate name to surface misconfiguration early.
func (r *Registry) Register(d Definition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := norm.NFC.String(d.Name)
	if _, exists := r.defs[key]; exists {
		panic(fmt.Sprintf("action registry: duplicate define %q", d.Name))
	}
	if _, ok := kindNames[d.Kind]; !ok {
		panic(fmt.Sprintf("action registry: define %q has unknown kind %d", d.Name, d.Kind))
	}
	d.Name = key
	r.defs[key] = d
}

// Alias registers name as another define for an existing kind.
func (r *Registry) Alias(name string, kind Kind) {
	r.Register(Definition{Name: name, Kind: kind})
}

// Lookup returns the definition for a define name.
func (r *Registry) Lookup(name string) (Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.defs[norm.NFC.String(name)]
	return d, ok
}

// Define implements graph.Definer.
func (r *Registry) Define(n *graph.Node) error {
	d, ok := r.Lookup(n.Define())
	if !ok {
		return fmt.Errorf("%w: %q", graph.ErrUnknownDefine, n.Define())
	}
	n.SetPorts(d.Ports(n))
	return nil
}

// Names returns all registered define names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.defs))
	for k := range r.defs {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
