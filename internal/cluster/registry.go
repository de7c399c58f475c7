package cluster

import (
	"sort"

	lfcaerrors "github.com/rohankatakam/lfca/internal/errors"
)

// Algorithm is the contract every clustering algorithm implements. Each one
// is a tagged variant with its own parameter set; dispatch is by name.
type Algorithm interface {
	Name() string
	Run(g *Graph, params Params) (*Result, error)
}

// The registry is the only process-wide state: populated by package init
// functions, immutable afterwards.
var registry = make(map[string]Algorithm)

func register(a Algorithm) {
	registry[a.Name()] = a
}

// Get returns the algorithm registered under name. Unknown names are a
// configuration error.
func Get(name string) (Algorithm, error) {
	a, ok := registry[name]
	if !ok {
		return nil, lfcaerrors.ConfigErrorf("unknown clustering algorithm: %q (available: %v)", name, Names())
	}
	return a, nil
}

// Names lists the registered algorithm names, sorted.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
