package gate

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"abigate/internal/core/errors"
	"abigate/internal/core/workspace"
	"abigate/internal/engine/modversions"
	"abigate/internal/engine/requirements"
	"abigate/internal/engine/symtab"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	ws  workspace.Context
	out *bytes.Buffer
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	root := t.TempDir()
	ws, err := workspace.New(filepath.Join(root, "out"), filepath.Join(root, "logs"))
	require.NoError(t, err)
	require.NoError(t, ws.Reset())
	return fixture{ws: ws, out: &bytes.Buffer{}}
}

func (f fixture) write(t *testing.T, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(f.ws.Path(name), []byte(content), 0o644))
}

// passingInputs writes a consistent set of inputs that clears every stage.
func (f fixture) passingInputs(t *testing.T) {
	f.write(t, workspace.RequiredFull, "Symbol sym_a required by foo.ko\n")
	f.write(t, workspace.ApprovalCSV, "sym_a,reason\n")
	f.write(t, workspace.RecoveryManifest, "other.ko\n")
	f.write(t, workspace.ModVersionsFull, "0x00000001\tfoo\n")
	f.write(t, workspace.GKISymvers, "0x00000001\tfoo\tvmlinux\tEXPORT_SYMBOL_GPL\n")
	f.write(t, workspace.OKISymvers, "0x00000001\tfoo\tvmlinux\tEXPORT_SYMBOL_GPL\n")
	f.write(t, "foo.ko", "binary")
	f.write(t, "vmlinux", "binary")
}

func (f fixture) controller(opts Options) *Controller {
	opts.Workspace = f.ws
	opts.Out = f.out
	if opts.DiagnosticsExclude == nil {
		opts.DiagnosticsExclude = []string{"*.ko", "vmlinux"}
	}
	return NewController(opts)
}

func readArtifact(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func stagesOf(report Report) []Stage {
	out := make([]Stage, 0, len(report.Outcomes))
	for _, o := range report.Outcomes {
		out = append(out, o.Stage)
	}
	return out
}

func TestRun_AllStagesPass(t *testing.T) {
	f := newFixture(t)
	f.passingInputs(t)

	report, err := f.controller(Options{CopyOnSuccess: true, DetectRenames: true}).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StatusPass, report.Status)
	assert.Equal(t, StageDone, report.FinalStage)
	assert.Equal(t, Stages, stagesOf(report))
	assert.Equal(t, 1, report.Counts.RequiredSymbols)
	assert.Equal(t, f.ws.LogDir, report.Diagnostics)

	// Diagnostics are preserved on success too, without binaries.
	assert.FileExists(t, filepath.Join(f.ws.LogDir, workspace.GKIVersionReport))
	assert.NoFileExists(t, filepath.Join(f.ws.LogDir, "foo.ko"))
	assert.NoFileExists(t, filepath.Join(f.ws.LogDir, "vmlinux"))
	assert.Empty(t, f.out.String())
}

func TestRun_SuccessWithoutDiagnosticsCopy(t *testing.T) {
	f := newFixture(t)
	f.passingInputs(t)

	report, err := f.controller(Options{}).Run(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Passed())
	assert.Empty(t, report.Diagnostics)
	assert.NoDirExists(t, f.ws.LogDir)
}

func TestRun_MissingSymbolFails(t *testing.T) {
	f := newFixture(t)
	f.passingInputs(t)
	f.write(t, workspace.RequiredFull, "Symbol sym_a required by foo.ko\nSymbol sym_b required by foo.ko\n")

	report, err := f.controller(Options{}).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StatusFail, report.Status)
	assert.Equal(t, StageRequiredCoverage, report.FinalStage)
	assert.Equal(t, 1, report.Counts.MissingSymbols)
	assert.Equal(t, "sym_b\n", readArtifact(t, f.ws.Path(workspace.MissingAfterApproval)))

	// Offending path and content are printed, diagnostics copied, later stages skipped.
	assert.Contains(t, f.out.String(), f.ws.Path(workspace.MissingAfterApproval))
	assert.Contains(t, f.out.String(), "sym_b")
	assert.FileExists(t, filepath.Join(f.ws.LogDir, workspace.MissingAfterApproval))
	assert.NotContains(t, stagesOf(report), StageModuleCoverage)
}

func TestRun_CoveredSymbolsProceedToModuleCoverage(t *testing.T) {
	f := newFixture(t)
	f.passingInputs(t)
	f.write(t, workspace.RecoveryManifest, "foo.ko\nother.ko\n")

	report, err := f.controller(Options{}).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StageModuleCoverage, report.FinalStage)
	assert.Equal(t, StatusFail, report.Status)
	assert.Equal(t, 0, report.Counts.MissingSymbols)
	assert.Equal(t, 1, report.Counts.ModuleConflicts)
	assert.Equal(t, "foo.ko\n", readArtifact(t, f.ws.Path(workspace.ModuleCoverage)))
}

func TestRun_AbsentManifestCountsAsEmpty(t *testing.T) {
	f := newFixture(t)
	f.passingInputs(t)
	require.NoError(t, os.Remove(f.ws.Path(workspace.RecoveryManifest)))

	report, err := f.controller(Options{}).Run(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Passed())
}

func TestRun_GKIChecksumDriftFails(t *testing.T) {
	f := newFixture(t)
	f.passingInputs(t)
	f.write(t, workspace.ModVersionsFull, "0x00000002\tfoo\n")

	report, err := f.controller(Options{}).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StageVersionGKI, report.FinalStage)
	assert.Equal(t, 1, report.Counts.GKIMismatches)
	assert.NotContains(t, stagesOf(report), StageVersionOKI)

	content := readArtifact(t, f.ws.Path(workspace.GKIVersionReport))
	assert.Contains(t, content, "0x00000002 foo")
	assert.Contains(t, content, "0x00000001 foo")
	assert.FileExists(t, filepath.Join(f.ws.LogDir, workspace.GKIVersionReport))
}

func TestRun_OKIDriftCheckedIndependently(t *testing.T) {
	f := newFixture(t)
	f.passingInputs(t)
	f.write(t, workspace.OKISymvers, "0x00000009\tfoo\tvmlinux\tEXPORT_SYMBOL\n")

	report, err := f.controller(Options{}).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StageVersionOKI, report.FinalStage)
	assert.Equal(t, 0, report.Counts.GKIMismatches)
	assert.Equal(t, 1, report.Counts.OKIMismatches)
}

type staticInspector map[string][]symtab.SymbolBinding

func (s staticInspector) InspectSymbolBindings(_ context.Context, modulePath string) ([]symtab.SymbolBinding, error) {
	return s[filepath.Base(modulePath)], nil
}

func TestRun_WeakSymbolIsApproved(t *testing.T) {
	f := newFixture(t)
	f.passingInputs(t)
	f.write(t, workspace.RequiredFull, "Symbol sym_a required by foo.ko\nSymbol sym_w required by foo.ko\n")

	inspector := staticInspector{"foo.ko": {{Name: "sym_w", Binding: symtab.BindingWeak}}}
	report, err := f.controller(Options{Inspector: inspector}).Run(context.Background())
	require.NoError(t, err)

	assert.True(t, report.Passed(), report.Reason)
	assert.Equal(t, 1, report.Counts.WeakApproved)
	assert.Equal(t, "sym_w\n", readArtifact(t, f.ws.Path(workspace.WeakApprovalList)))
	assert.Equal(t, "foo.ko\n", readArtifact(t, f.ws.Path(workspace.WeakApprovalModules)))
	assert.Equal(t, "sym_a\nsym_w\n", readArtifact(t, f.ws.Path(workspace.FullApprovalList)))
	assert.Empty(t, readArtifact(t, f.ws.Path(workspace.MissingAfterApproval)))
}

func TestRun_StrongSymbolStaysMissing(t *testing.T) {
	f := newFixture(t)
	f.passingInputs(t)
	f.write(t, workspace.RequiredFull, "Symbol sym_s required by foo.ko\n")
	f.write(t, workspace.ApprovalCSV, "")

	inspector := staticInspector{"foo.ko": {{Name: "sym_s", Binding: symtab.BindingStrong}}}
	report, err := f.controller(Options{Inspector: inspector}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StageRequiredCoverage, report.FinalStage)
	assert.Equal(t, 0, report.Counts.WeakApproved)
}

func TestRun_MissingReportIsFatal(t *testing.T) {
	f := newFixture(t)
	f.passingInputs(t)
	require.NoError(t, os.Remove(f.ws.Path(workspace.RequiredFull)))

	report, err := f.controller(Options{CopyOnSuccess: true}).Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeNotFound))
	assert.Equal(t, StatusError, report.Status)
	assert.Equal(t, StageExtract, report.FinalStage)
	// No diagnostics copy on fatal errors.
	assert.NoDirExists(t, f.ws.LogDir)
}

func TestRun_MissingBaselineIsFatal(t *testing.T) {
	f := newFixture(t)
	f.passingInputs(t)
	require.NoError(t, os.Remove(f.ws.Path(workspace.OKISymvers)))

	report, err := f.controller(Options{}).Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeNotFound))
	assert.Equal(t, StageVersionOKI, report.FinalStage)
	assert.Len(t, report.Outcomes, 5)
}

type reportExtractor struct{ lines []string }

func (r reportExtractor) Run(_ context.Context, ws workspace.Context) (int, error) {
	content := strings.Join(r.lines, "\n") + "\n"
	return len(r.lines), os.WriteFile(ws.Path(workspace.RequiredFull), []byte(content), 0o644)
}

type mapDumper map[string][]modversions.CrcEntry

func (m mapDumper) DumpVersions(_ context.Context, modulePath string) ([]modversions.CrcEntry, error) {
	return m[filepath.Base(modulePath)], nil
}

func TestRun_UsesExtractorAndDumper(t *testing.T) {
	f := newFixture(t)
	f.passingInputs(t)
	require.NoError(t, os.Remove(f.ws.Path(workspace.RequiredFull)))
	require.NoError(t, os.Remove(f.ws.Path(workspace.ModVersionsFull)))

	extractor := reportExtractor{lines: []string{"Symbol sym_a required by foo.ko"}}
	dumper := mapDumper{"foo.ko": {{Checksum: "0x00000001", Symbol: "foo"}}}
	report, err := f.controller(Options{Extractor: extractor, Dumper: dumper}).Run(context.Background())
	require.NoError(t, err)

	assert.True(t, report.Passed(), report.Reason)
	assert.Equal(t, 1, report.Counts.StagedModules)
	assert.Equal(t, "0x00000001\tfoo\n", readArtifact(t, f.ws.Path(workspace.ModVersionsFull)))
}

type failingDumper struct{}

func (failingDumper) DumpVersions(_ context.Context, modulePath string) ([]modversions.CrcEntry, error) {
	return nil, errors.New(errors.CodeToolFailure, "modprobe not found")
}

func TestRun_DumpFailureIsFatal(t *testing.T) {
	f := newFixture(t)
	f.passingInputs(t)
	f.write(t, workspace.GKISymvers, "0x0000000f\tfoo\tvmlinux\tEXPORT_SYMBOL_GPL\n")

	report, err := f.controller(Options{Dumper: failingDumper{}}).Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeToolFailure))
	assert.Equal(t, StatusError, report.Status)
	assert.Equal(t, StageVersionGKI, report.FinalStage)
	assert.Empty(t, report.Diagnostics)
}

func TestRun_ModprobeMissingIsFatal(t *testing.T) {
	f := newFixture(t)
	f.passingInputs(t)

	dumper := modversions.NewModprobeDumper(filepath.Join(t.TempDir(), "modprobe"), nil)
	report, err := f.controller(Options{Dumper: dumper}).Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, StatusError, report.Status)
	assert.NotEqual(t, StageDone, report.FinalStage)
}

func TestRun_ExtractorMissingIsFatal(t *testing.T) {
	f := newFixture(t)
	f.passingInputs(t)
	require.NoError(t, os.Remove(f.ws.Path(workspace.RequiredFull)))

	extractor := requirements.ExtractSymbolsTool{Tool: filepath.Join(t.TempDir(), "extract_symbols")}
	report, err := f.controller(Options{Extractor: extractor}).Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeToolFailure))
	assert.Equal(t, StatusError, report.Status)
	assert.Equal(t, StageExtract, report.FinalStage)
	assert.Zero(t, report.Counts.RequiredSymbols)
}

func TestReportElapsed(t *testing.T) {
	var r Report
	assert.Zero(t, r.Elapsed())
}
