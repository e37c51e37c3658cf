// Package script loads transforms written in Starlark. Each *.star file in
// the transforms directory defines one transform, named after the file:
//
//	# OrderResource.star
//	def transform(record):
//	    out = {"id": record.id, "note": record.note}
//	    if record.loaded("customer"):
//	        out["customer"] = resource("CustomerResource", record.related("customer"))
//	    return out
//
// The builtins resource(name, record) and collection(name, records) nest
// another registered transform's output.
package script

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"

	"github.com/dbsmedya/typeprobe/internal/transform"
)

// EntryPoint is the function every script must define.
const EntryPoint = "transform"

// LoadError is a script that could not be loaded.
type LoadError struct {
	File    string
	Message string
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("transforms/%s: %s", filepath.Base(e.File), e.Message)
}

// Loader scans a directory for *.star transforms.
type Loader struct {
	dir      string
	registry *transform.Registry
}

// NewLoader creates a loader. Loaded scripts resolve resource() names
// against registry.
func NewLoader(dir string, registry *transform.Registry) *Loader {
	return &Loader{dir: dir, registry: registry}
}

// Load reads every script in the directory. A missing directory yields no
// transforms.
func (l *Loader) Load() ([]*Transform, error) {
	info, err := os.Stat(l.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to access transforms directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("transforms path is not a directory: %s", l.dir)
	}

	files, err := filepath.Glob(filepath.Join(l.dir, "*.star"))
	if err != nil {
		return nil, fmt.Errorf("failed to scan transforms directory: %w", err)
	}

	out := make([]*Transform, 0, len(files))
	for _, file := range files {
		src, err := os.ReadFile(file) //nolint:gosec // path comes from Glob within the transforms directory
		if err != nil {
			return nil, &LoadError{File: file, Message: fmt.Sprintf("failed to read file: %v", err)}
		}
		name := strings.TrimSuffix(filepath.Base(file), ".star")
		t, err := Compile(name, file, src, l.registry)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// LoadInto loads every script and registers it.
func (l *Loader) LoadInto(registry *transform.Registry) (int, error) {
	scripts, err := l.Load()
	if err != nil {
		return 0, err
	}
	for _, s := range scripts {
		if err := registry.Register(s); err != nil {
			return 0, &LoadError{File: s.path, Message: err.Error()}
		}
	}
	return len(scripts), nil
}

// Transform is a compiled script.
type Transform struct {
	name     string
	path     string
	fn       starlark.Callable
	registry *transform.Registry
}

// Compile executes src once to obtain its transform function.
func Compile(name, path string, src []byte, registry *transform.Registry) (*Transform, error) {
	thread := &starlark.Thread{
		Name:  "load:" + name,
		Print: func(_ *starlark.Thread, _ string) {},
	}

	globals, err := starlark.ExecFileOptions(&syntax.FileOptions{}, thread, path, src, predeclared())
	if err != nil {
		return nil, &LoadError{File: path, Message: fmt.Sprintf("Starlark execution error: %v", err)}
	}

	fn, ok := globals[EntryPoint].(starlark.Callable)
	if !ok {
		return nil, &LoadError{File: path, Message: fmt.Sprintf("missing %s(record) function", EntryPoint)}
	}
	globals.Freeze()

	return &Transform{name: name, path: path, fn: fn, registry: registry}, nil
}

func (t *Transform) Name() string { return t.name }

// Path returns the script file.
func (t *Transform) Path() string { return t.path }

// Apply calls the script's transform function on rec. Cancelling ctx
// interrupts the script.
func (t *Transform) Apply(ctx context.Context, rec *transform.Record) (interface{}, error) {
	thread := &starlark.Thread{
		Name:  t.name,
		Print: func(_ *starlark.Thread, _ string) {},
	}
	thread.SetLocal(registryLocal, t.registry)

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			thread.Cancel(ctx.Err().Error())
		case <-done:
		}
	}()

	result, err := starlark.Call(thread, t.fn, starlark.Tuple{newRecordValue(rec)}, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", t.name, err)
	}
	return toGo(result)
}
