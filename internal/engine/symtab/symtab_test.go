package symtab

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	coreerrors "abigate/internal/core/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const nmFixture = `0000000000000000 T init_module
0000000000000010 W weak_helper
0000000000000020 t local_fn
                 U printk
                 w __weak_undef
garbage
0000000000000030 TT bad_flag
`

func TestParseNM(t *testing.T) {
	got := ParseNM([]byte(nmFixture))
	want := []SymbolBinding{
		{Name: "init_module", Binding: BindingStrong, Flag: "T"},
		{Name: "weak_helper", Binding: BindingWeak, Flag: "W"},
		{Name: "local_fn", Binding: BindingStrong, Flag: "t"},
		{Name: "printk", Binding: BindingStrong, Flag: "U"},
		{Name: "__weak_undef", Binding: BindingWeak, Flag: "w"},
	}
	assert.Equal(t, want, got)
}

func TestBindingString(t *testing.T) {
	assert.Equal(t, "WEAK", BindingWeak.String())
	assert.Equal(t, "STRONG", BindingStrong.String())
	assert.Equal(t, "UNKNOWN", BindingUnknown.String())
}

type stubInspector struct {
	bindings []SymbolBinding
	err      error
}

func (s stubInspector) InspectSymbolBindings(context.Context, string) ([]SymbolBinding, error) {
	return s.bindings, s.err
}

func TestIsWeak(t *testing.T) {
	ctx := context.Background()
	inspector := stubInspector{bindings: ParseNM([]byte(nmFixture))}

	weak, err := IsWeak(ctx, inspector, "foo.ko", "weak_helper")
	require.NoError(t, err)
	assert.True(t, weak)

	weak, err = IsWeak(ctx, inspector, "foo.ko", "init_module")
	require.NoError(t, err)
	assert.False(t, weak)

	weak, err = IsWeak(ctx, inspector, "foo.ko", "absent")
	require.NoError(t, err)
	assert.False(t, weak)

	_, err = IsWeak(ctx, stubInspector{err: errors.New("boom")}, "foo.ko", "weak_helper")
	require.Error(t, err)
}

func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts are not supported on windows")
	}
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
	return path
}

func TestNMInspector(t *testing.T) {
	dir := t.TempDir()
	module := filepath.Join(dir, "foo.ko")
	require.NoError(t, os.WriteFile(module, []byte("not really elf"), 0o644))

	tool := writeScript(t, dir, "fake-nm", "echo '0000000000000010 W weak_helper'\necho '                 U printk'\n")
	inspector := NewNMInspector(tool, nil)

	weak, err := IsWeak(context.Background(), inspector, module, "weak_helper")
	require.NoError(t, err)
	assert.True(t, weak)
}

func TestNMInspector_ToolFailure(t *testing.T) {
	dir := t.TempDir()
	module := filepath.Join(dir, "foo.ko")
	require.NoError(t, os.WriteFile(module, nil, 0o644))

	tool := writeScript(t, dir, "broken-nm", "echo 'file format not recognized' >&2\nexit 1\n")
	_, err := NewNMInspector(tool, nil).InspectSymbolBindings(context.Background(), module)
	require.Error(t, err)
	assert.True(t, coreerrors.IsCode(err, coreerrors.CodeToolFailure))
	assert.Contains(t, err.Error(), "file format not recognized")
}

func TestNMInspector_MissingBinary(t *testing.T) {
	_, err := NewNMInspector("", nil).InspectSymbolBindings(context.Background(), filepath.Join(t.TempDir(), "absent.ko"))
	require.Error(t, err)
	assert.True(t, coreerrors.IsCode(err, coreerrors.CodeNotFound))
}

func TestNMInspector_ToolAbsent(t *testing.T) {
	module := filepath.Join(t.TempDir(), "foo.ko")
	require.NoError(t, os.WriteFile(module, nil, 0o644))

	_, err := NewNMInspector(filepath.Join(t.TempDir(), "no-such-nm"), nil).InspectSymbolBindings(context.Background(), module)
	require.Error(t, err)
	assert.True(t, coreerrors.IsCode(err, coreerrors.CodeToolFailure))
}

func TestELFInspector_NotELF(t *testing.T) {
	module := filepath.Join(t.TempDir(), "foo.ko")
	require.NoError(t, os.WriteFile(module, []byte("plain text"), 0o644))

	_, err := ELFInspector{}.InspectSymbolBindings(context.Background(), module)
	require.Error(t, err)
	assert.True(t, coreerrors.IsCode(err, coreerrors.CodeToolFailure))
}

func TestELFInspector_TestBinary(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("test binary is only ELF on linux")
	}
	exe, err := os.Executable()
	require.NoError(t, err)

	bindings, err := ELFInspector{}.InspectSymbolBindings(context.Background(), exe)
	require.NoError(t, err)
	for _, b := range bindings {
		assert.NotEmpty(t, b.Name)
		assert.NotEqual(t, BindingUnknown, b.Binding)
	}
}
