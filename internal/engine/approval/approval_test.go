package approval

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"abigate/internal/core/workspace"
	"abigate/internal/engine/reconcile"
	"abigate/internal/engine/requirements"
	"abigate/internal/engine/symtab"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAllowlist(t *testing.T) {
	input := "\ufeffsym_a,reason,owner\n" +
		"sym_b\n" +
		",orphan column\n" +
		"   ,blank\n" +
		"\n" +
		"sym_c,\"quoted, reason\",x,y\n"
	names, err := ParseAllowlist(strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, []string{"sym_a", "sym_b", "sym_c"}, names)
}

func TestLoadAllowlist_AbsentOrEmpty(t *testing.T) {
	dir := t.TempDir()

	names, err := LoadAllowlist(filepath.Join(dir, "absent.csv"))
	require.NoError(t, err)
	assert.Empty(t, names)

	empty := filepath.Join(dir, "empty.csv")
	require.NoError(t, os.WriteFile(empty, nil, 0o644))
	names, err = LoadAllowlist(empty)
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestWriteAllowlist(t *testing.T) {
	ws, err := workspace.New(t.TempDir(), "")
	require.NoError(t, err)

	require.NoError(t, WriteAllowlist(ws, []string{"sym_a", "sym_b"}))
	raw, err := os.ReadFile(ws.Path(workspace.ApprovalList))
	require.NoError(t, err)
	assert.Equal(t, "sym_a\nsym_b\n", string(raw))

	require.NoError(t, WriteAllowlist(ws, nil))
	raw, err = os.ReadFile(ws.Path(workspace.ApprovalList))
	require.NoError(t, err)
	assert.Empty(t, raw)
}

// fakeInspector serves per-module bindings and records how often it was asked.
type fakeInspector struct {
	mu       sync.Mutex
	modules  map[string][]symtab.SymbolBinding
	failures map[string]error
	calls    int
}

func (f *fakeInspector) InspectSymbolBindings(_ context.Context, modulePath string) ([]symtab.SymbolBinding, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	name := filepath.Base(modulePath)
	if err, ok := f.failures[name]; ok {
		return nil, err
	}
	return f.modules[name], nil
}

func newFakeInspector() *fakeInspector {
	return &fakeInspector{
		modules: map[string][]symtab.SymbolBinding{
			"foo.ko": {
				{Name: "sym_weak", Binding: symtab.BindingWeak},
				{Name: "sym_strong", Binding: symtab.BindingStrong},
			},
			"bar.ko": {
				{Name: "sym_weak", Binding: symtab.BindingWeak},
				{Name: "sym_other_weak", Binding: symtab.BindingWeak},
			},
		},
		failures: map[string]error{"broken.ko": errors.New("nm: file format not recognized")},
	}
}

func TestResolveWeak(t *testing.T) {
	ws, err := workspace.New(t.TempDir(), "")
	require.NoError(t, err)

	pairs := []requirements.SymbolRecord{
		{Name: "sym_strong", Module: "foo.ko"},
		{Name: "sym_weak", Module: "foo.ko"},
		{Name: "sym_weak", Module: "bar.ko"},
		{Name: "sym_other_weak", Module: "bar.ko"},
		{Name: "sym_broken", Module: "broken.ko"},
		{Name: "sym_absent", Module: "missing.ko"},
	}
	inspector := newFakeInspector()
	r := &Resolver{Inspector: inspector, MaxParallel: 4}

	got, err := r.ResolveWeak(context.Background(), ws, pairs)
	require.NoError(t, err)
	assert.Equal(t, []string{"sym_weak", "sym_other_weak"}, got.Symbols)
	assert.Equal(t, []string{"foo.ko", "bar.ko"}, got.Modules)
	assert.Equal(t, 4, inspector.calls, "each module is inspected once")

	again, err := r.ResolveWeak(context.Background(), ws, pairs)
	require.NoError(t, err)
	assert.Equal(t, got, again, "detection must be deterministic for fixed inputs")
}

func TestResolveWeak_InspectsEachModuleOnce(t *testing.T) {
	ws, err := workspace.New(t.TempDir(), "")
	require.NoError(t, err)

	pairs := []requirements.SymbolRecord{
		{Name: "sym_weak", Module: "foo.ko"},
		{Name: "sym_strong", Module: "foo.ko"},
		{Name: "sym_absent", Module: "foo.ko"},
		{Name: "sym_b1", Module: "broken.ko"},
		{Name: "sym_b2", Module: "broken.ko"},
	}
	inspector := newFakeInspector()
	r := &Resolver{Inspector: inspector, MaxParallel: 2}

	got, err := r.ResolveWeak(context.Background(), ws, pairs)
	require.NoError(t, err)
	assert.Equal(t, 2, inspector.calls)
	assert.Equal(t, []string{"sym_weak"}, got.Symbols)
	assert.Equal(t, []string{"foo.ko"}, got.Modules)
}

func TestResolveWeak_CanceledContext(t *testing.T) {
	ws, err := workspace.New(t.TempDir(), "")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := &Resolver{Inspector: symtab.NewNMInspector("nm", nil)}
	pairs := []requirements.SymbolRecord{{Name: "sym", Module: "foo.ko"}}
	require.NoError(t, os.WriteFile(ws.ModulePath("foo.ko"), nil, 0o644))

	_, err = r.ResolveWeak(ctx, ws, pairs)
	require.Error(t, err)
}

func TestSetNamesAndWrite(t *testing.T) {
	ws, err := workspace.New(t.TempDir(), "")
	require.NoError(t, err)

	set := Set{Curated: []string{"sym_a", "sym_b"}, Weak: []string{"sym_b", "sym_c"}}
	assert.Equal(t, []string{"sym_a", "sym_b", "sym_c"}, set.Names())

	path, err := set.Write(ws)
	require.NoError(t, err)
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "sym_a\nsym_b\nsym_c\n", string(raw))
}

// A symbol missing from the allowlist but weak in its own module drops out of the
// missing set once the weak approvals are merged in.
func TestWeakApprovalRemovesMissingSymbol(t *testing.T) {
	ws, err := workspace.New(t.TempDir(), "")
	require.NoError(t, err)

	curated := []string{"sym_strong"}
	required := reconcile.NewLineSet([]string{"sym_strong", "sym_weak"})

	missing := reconcile.Difference(required, reconcile.NewLineSet(curated))
	require.Equal(t, []string{"sym_weak"}, missing)

	r := &Resolver{Inspector: newFakeInspector(), MaxParallel: 2}
	weak, err := r.ResolveWeak(context.Background(), ws, []requirements.SymbolRecord{{Name: "sym_weak", Module: "foo.ko"}})
	require.NoError(t, err)

	set := Set{Curated: curated, Weak: weak.Symbols}
	assert.Empty(t, reconcile.Difference(required, reconcile.NewLineSet(set.Names())))
}

func TestWeakApprovalsWrite(t *testing.T) {
	ws, err := workspace.New(t.TempDir(), "")
	require.NoError(t, err)

	w := WeakApprovals{Symbols: []string{"sym_weak"}, Modules: []string{"foo.ko"}}
	require.NoError(t, w.Write(ws))

	raw, err := os.ReadFile(ws.Path(workspace.WeakApprovalList))
	require.NoError(t, err)
	assert.Equal(t, "sym_weak\n", string(raw))
	raw, err = os.ReadFile(ws.Path(workspace.WeakApprovalModules))
	require.NoError(t, err)
	assert.Equal(t, "foo.ko\n", string(raw))
}
