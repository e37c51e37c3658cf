package writer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dbsmedya/typeprobe/internal/infer"
	"github.com/dbsmedya/typeprobe/internal/synth"
)

func output(t *testing.T) *synth.Output {
	s := synth.New(nil)
	s.Add(&infer.Result{Transform: "OrderResource", TypeName: "Order", Fields: []infer.InferredField{
		{Name: "customer", Type: infer.Ref("Customer")},
	}})
	s.Add(&infer.Result{Transform: "CustomerResource", TypeName: "Customer", Fields: []infer.InferredField{
		{Name: "id", Type: infer.Prim("number")},
	}})
	out, err := s.Synthesize()
	require.NoError(t, err)
	return out
}

func TestWrite(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "generated")
	w := New(dir, false, nil)

	files, err := w.Write(output(t))
	require.NoError(t, err)
	require.Len(t, files, 3)
	assert.Equal(t, filepath.Join(dir, IndexFile), files[2].Path)

	index, err := os.ReadFile(filepath.Join(dir, IndexFile))
	require.NoError(t, err)
	assert.Equal(t, "export * from './Customer';\nexport * from './Order';\n", string(index))

	order, err := os.ReadFile(filepath.Join(dir, "Order.ts"))
	require.NoError(t, err)
	assert.Contains(t, string(order), "import type { Customer } from './Customer';")
}

func TestWrite_RemovesStaleDeclarations(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Removed.ts"), []byte("export interface Removed {}\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("keep"), 0o644))

	_, err := New(dir, false, nil).Write(output(t))
	require.NoError(t, err)

	assert.NoFileExists(t, filepath.Join(dir, "Removed.ts"))
	assert.FileExists(t, filepath.Join(dir, "README.md"))
	assert.FileExists(t, filepath.Join(dir, "Customer.ts"))
}

func TestWrite_DryRun(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "generated")
	w := New(dir, true, nil)
	assert.True(t, w.DryRun())

	files, err := w.Write(output(t))
	require.NoError(t, err)
	assert.Len(t, files, 3)
	assert.NoDirExists(t, dir)
}
