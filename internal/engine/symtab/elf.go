package symtab

import (
	"context"
	"debug/elf"
	stderrors "errors"

	"abigate/internal/core/errors"
)

// ELFInspector reads the symbol table in-process, without an external nm.
type ELFInspector struct{}

func (ELFInspector) InspectSymbolBindings(ctx context.Context, modulePath string) ([]SymbolBinding, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := elf.Open(modulePath)
	if err != nil {
		return nil, errors.AddContext(errors.Wrap(err, errors.CodeToolFailure, "open module as ELF"), errors.CtxModule, modulePath)
	}
	defer func() { _ = f.Close() }()

	syms, err := f.Symbols()
	if err != nil {
		if stderrors.Is(err, elf.ErrNoSymbols) {
			return []SymbolBinding{}, nil
		}
		return nil, errors.AddContext(errors.Wrap(err, errors.CodeToolFailure, "read ELF symbol table"), errors.CtxModule, modulePath)
	}

	bindings := make([]SymbolBinding, 0, len(syms))
	for _, s := range syms {
		if s.Name == "" {
			continue
		}
		b := BindingStrong
		if elf.ST_BIND(s.Info) == elf.STB_WEAK {
			b = BindingWeak
		}
		bindings = append(bindings, SymbolBinding{Name: s.Name, Binding: b})
	}
	return bindings, nil
}
