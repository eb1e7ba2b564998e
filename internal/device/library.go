package device

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/iancoleman/strcase"
)

// ErrFunctionNotFound is returned when a library has no source for a function.
var ErrFunctionNotFound = errors.New("device: compute function not found")

// sourceExt is the file extension of compute function sources in a custom library.
const sourceExt = ".wgsl"

// FunctionName returns the compute function name for an operator type tag,
// e.g. "conv_add_batchnorm_relu" -> "convAddBatchnormRelu".
func FunctionName(opType string) string {
	return strcase.ToLowerCamel(opType)
}

// Library serves WGSL compute function sources.
type Library struct {
	dir string

	mu      sync.RWMutex
	sources map[string]string
}

// OpenLibrary opens the library selected by ic.
func OpenLibrary(ic InitContext) (*Library, error) {
	if err := ic.Validate(); err != nil {
		return nil, err
	}
	if ic.CodeLoadMode == LoadDefault {
		return &Library{sources: builtinSources()}, nil
	}
	info, err := os.Stat(ic.CustomPath)
	if err != nil {
		return nil, fmt.Errorf("device: opening code library: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("device: code library %q is not a directory", ic.CustomPath)
	}
	return &Library{dir: ic.CustomPath, sources: make(map[string]string)}, nil
}

// Builtin reports whether the library serves the compiled-in sources.
func (l *Library) Builtin() bool {
	return l.dir == ""
}

// Source returns the WGSL source of the named function.
func (l *Library) Source(function string) (string, error) {
	l.mu.RLock()
	src, ok := l.sources[function]
	l.mu.RUnlock()
	if ok {
		return src, nil
	}
	if l.Builtin() {
		return "", fmt.Errorf("%w: %s", ErrFunctionNotFound, function)
	}

	//nolint:gosec // G304: the library directory is chosen by the operator of the runtime
	data, err := os.ReadFile(filepath.Join(l.dir, function+sourceExt))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: %s in %s", ErrFunctionNotFound, function, l.dir)
		}
		return "", fmt.Errorf("device: reading %s: %w", function, err)
	}

	l.mu.Lock()
	l.sources[function] = string(data)
	l.mu.Unlock()
	return string(data), nil
}

// Functions lists the functions the library can serve.
func (l *Library) Functions() ([]string, error) {
	if l.Builtin() {
		names := make([]string, 0, len(l.sources))
		for name := range l.sources {
			names = append(names, name)
		}
		sort.Strings(names)
		return names, nil
	}
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, fmt.Errorf("device: listing code library: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != sourceExt {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), sourceExt))
	}
	sort.Strings(names)
	return names, nil
}

// Libraries caches one opened Library per InitContext. Devices embed it so
// every kernel built with the same context shares a library.
type Libraries struct {
	mu   sync.Mutex
	libs map[InitContext]*Library
}

// Get returns the library for ic, opening it on first use.
func (ls *Libraries) Get(ic InitContext) (*Library, error) {
	if ic.CodeLoadMode == LoadDefault {
		ic.CustomPath = ""
	}
	ls.mu.Lock()
	defer ls.mu.Unlock()
	if lib, ok := ls.libs[ic]; ok {
		return lib, nil
	}
	lib, err := OpenLibrary(ic)
	if err != nil {
		return nil, err
	}
	if ls.libs == nil {
		ls.libs = make(map[InitContext]*Library)
	}
	ls.libs[ic] = lib
	return lib, nil
}
