package ffi

import (
	"github.com/ebitengine/purego"

	"github.com/go-loom/loom/pkg/errors"
)

// Loader caches loaded shared libraries and resolved symbols. Library names
// may be comma-separated to try multiple sonames, oldest ABI last, so one
// binding set can span toolkit point releases.
type Loader struct {
	libraries map[string]uintptr
	symbols   map[symbolKey]uintptr
}

type symbolKey struct {
	library string
	symbol  string
}

// NewLoader creates an empty loader.
func NewLoader() *Loader {
	return &Loader{
		libraries: make(map[string]uintptr),
		symbols:   make(map[symbolKey]uintptr),
	}
}

// Library returns the handle for name, loading it on first use. Loaded
// libraries stay loaded for the life of the process; unloading a toolkit
// with live widgets is never safe.
func (l *Loader) Library(name string) (uintptr, error) {
	if handle, ok := l.libraries[name]; ok {
		return handle, nil
	}

	var lastErr error
	for _, candidate := range splitNames(name) {
		handle, err := purego.Dlopen(candidate, purego.RTLD_NOW|purego.RTLD_GLOBAL)
		if err != nil {
			lastErr = err
			continue
		}
		l.libraries[name] = handle
		return handle, nil
	}
	return 0, &errors.SymbolError{Library: name, Err: lastErr}
}

// Symbol resolves an exported function, caching the address.
func (l *Loader) Symbol(library, symbol string) (uintptr, error) {
	key := symbolKey{library, symbol}
	if addr, ok := l.symbols[key]; ok {
		return addr, nil
	}

	handle, err := l.Library(library)
	if err != nil {
		return 0, err
	}
	addr, err := purego.Dlsym(handle, symbol)
	if err != nil {
		return 0, &errors.SymbolError{Library: library, Symbol: symbol, Err: err}
	}
	l.symbols[key] = addr
	return addr, nil
}

func splitNames(name string) []string {
	var names []string
	start := 0
	for i := 0; i <= len(name); i++ {
		if i == len(name) || name[i] == ',' {
			if i > start {
				names = append(names, name[start:i])
			}
			start = i + 1
		}
	}
	return names
}
