package ports

import (
	"abigate/internal/core/workspace"
	"abigate/internal/data/history"
	"abigate/internal/engine/modversions"
	"abigate/internal/engine/symtab"
	"context"
	"time"
)

// SymbolInspector reports the binding of every symbol in a module binary.
type SymbolInspector = symtab.Inspector

// VersionDumper lists the (checksum, symbol) records compiled into a module.
type VersionDumper = modversions.Dumper

// SymbolExtractor produces the raw requirement report inside the workspace and returns
// the number of report lines it captured.
type SymbolExtractor interface {
	Run(ctx context.Context, ws workspace.Context) (int, error)
}

// HistoryStore abstracts run-ledger persistence. It only records outcomes.
type HistoryStore interface {
	SaveRun(ctx context.Context, run history.Run) error
	LoadRuns(ctx context.Context, since time.Time, limit int) ([]history.Run, error)
}
