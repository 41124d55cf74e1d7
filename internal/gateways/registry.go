package gateways

import (
	"fmt"

	"github.com/samber/lo"
)

// Registry maps provider names to adapter instances. The reconciliation
// engine resolves adapters through it instead of knowing any gateway
// directly.
type Registry struct {
	adapters map[string]Adapter
	order    []string
}

func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[string]Adapter, len(adapters))}
	for _, a := range adapters {
		r.adapters[a.Name()] = a
		r.order = append(r.order, a.Name())
	}
	return r
}

// Get returns the adapter for name. Disabled gateways resolve but refuse
// operations themselves, so callers can still finish reconciling payments
// created before a gateway was switched off.
func (r *Registry) Get(name string) (Adapter, error) {
	a, ok := r.adapters[name]
	if !ok {
		return nil, fmt.Errorf("unknown payment provider %q: %w", name, ErrNotConfigured)
	}
	return a, nil
}

// All returns every registered adapter in registration order, including
// disabled ones. The webhook server routes by this list so callbacks for a
// switched-off gateway still reach reconciliation.
func (r *Registry) All() []Adapter {
	out := make([]Adapter, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.adapters[name])
	}
	return out
}

// Enabled returns adapters available for new payments, in registration order.
func (r *Registry) Enabled() []Adapter {
	return lo.FilterMap(r.order, func(name string, _ int) (Adapter, bool) {
		a := r.adapters[name]
		return a, a.Enabled()
	})
}
