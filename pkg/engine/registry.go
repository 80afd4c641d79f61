package engine

import (
	"fmt"
	"sync"
)

// Factory constructs an Engine from construction parameters. Parameters are
// implementation-specific (model paths, API keys, beam size, …); callers
// pass them via the concrete Config types in each backend's file and only
// go through Factory when selecting an engine dynamically by ID (e.g. from
// the diagnostic CLI's --engine flag).
type Factory func(params map[string]string) (Engine, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
	infos      = map[string]ModelInfo{}
)

// Register adds an engine family under id. Called from each backend's
// init() the way this toolkit's provider packages self-register.
func Register(id string, info ModelInfo, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[id] = factory
	infos[id] = info
}

// New constructs the engine registered under id. device (default "auto") is
// passed through in params["device"]; none of the built-in factories reads
// it, so no built-in engine selects a GPU or CPU execution provider from it.
func New(id string, device string, params map[string]string) (Engine, error) {
	registryMu.RLock()
	factory, ok := registry[id]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEngine, id)
	}

	if params == nil {
		params = map[string]string{}
	}
	if device == "" {
		device = "auto"
	}
	params["device"] = device

	return factory(params)
}

// List returns ModelInfo for every registered engine id.
func List() []ModelInfo {
	registryMu.RLock()
	defer registryMu.RUnlock()

	out := make([]ModelInfo, 0, len(infos))
	for _, info := range infos {
		out = append(out, info)
	}
	return out
}
