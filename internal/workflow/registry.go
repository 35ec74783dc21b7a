package workflow

import (
	"fmt"
	"sort"
	"sync"
)

// Definition builds a workflow. Definitions are invoked lazily so the
// command line and configuration are known when the stages are built.
type Definition func() Workflow

var (
	mu          sync.RWMutex
	definitions = make(map[string]Definition)
	algorithms  = make(map[string]Algorithm)
)

/**
 * Register a named workflow definition
 * @param {string} name - Name used with --workflow
 * @param {Definition} def - Builder of the stage list
 * @description
 * - Panics when the name is registered twice, registration happens in init()
 */
func Register(name string, def Definition) {
	mu.Lock()
	defer mu.Unlock()
	if _, exists := definitions[name]; exists {
		panic(fmt.Sprintf("workflow %s registered twice", name))
	}
	definitions[name] = def
}

// Lookup builds the workflow registered under name.
func Lookup(name string) (Workflow, error) {
	mu.RLock()
	def, ok := definitions[name]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("workflow %s is not registered", name)
	}
	return def(), nil
}

// Names returns the registered workflow names in sorted order.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(definitions))
	for name := range definitions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RegisterAlgorithm makes an algorithm available to YAML workflow files.
func RegisterAlgorithm(name string, alg Algorithm) {
	mu.Lock()
	defer mu.Unlock()
	algorithms[name] = alg
}

// LookupAlgorithm returns the algorithm registered under name.
func LookupAlgorithm(name string) (Algorithm, bool) {
	mu.RLock()
	defer mu.RUnlock()
	alg, ok := algorithms[name]
	return alg, ok
}
