// Package symtab classifies the symbols of a compiled kernel module by binding strength.
package symtab

import (
	"bufio"
	"bytes"
	"context"
	"log/slog"
	"strings"
)

// Binding is the link strength of a symbol as observed inside one module.
type Binding int

const (
	BindingUnknown Binding = iota
	BindingStrong
	BindingWeak
)

func (b Binding) String() string {
	switch b {
	case BindingStrong:
		return "STRONG"
	case BindingWeak:
		return "WEAK"
	default:
		return "UNKNOWN"
	}
}

// SymbolBinding is one symbol table row.
type SymbolBinding struct {
	Name    string
	Binding Binding
	// Flag is the raw type character reported by the inspection tool, if any.
	Flag string
}

// Inspector lists the symbols of a module binary with their binding.
type Inspector interface {
	InspectSymbolBindings(ctx context.Context, modulePath string) ([]SymbolBinding, error)
}

// IsWeak reports whether any row for symbol inside the module at modulePath is bound weak.
func IsWeak(ctx context.Context, inspector Inspector, modulePath, symbol string) (bool, error) {
	bindings, err := inspector.InspectSymbolBindings(ctx, modulePath)
	if err != nil {
		return false, err
	}
	_, ok := WeakNames(bindings)[symbol]
	return ok, nil
}

// WeakNames returns the names with at least one weak row.
func WeakNames(bindings []SymbolBinding) map[string]struct{} {
	out := make(map[string]struct{})
	for _, b := range bindings {
		if b.Binding == BindingWeak {
			out[b.Name] = struct{}{}
		}
	}
	return out
}

// ParseNM parses nm output. Defined symbols come as "addr flag name", undefined ones
// as "flag name". Rows with any other shape are skipped.
func ParseNM(out []byte) []SymbolBinding {
	bindings := make([]SymbolBinding, 0)
	scanner := bufio.NewScanner(bytes.NewReader(out))
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		var flag, name string
		switch len(fields) {
		case 3:
			flag, name = fields[1], fields[2]
		case 2:
			flag, name = fields[0], fields[1]
		default:
			if len(fields) > 0 {
				slog.Debug("skipping nm row with unexpected shape", "row", scanner.Text())
			}
			continue
		}
		if len(flag) != 1 {
			continue
		}
		bindings = append(bindings, SymbolBinding{Name: name, Binding: bindingForFlag(flag), Flag: flag})
	}
	return bindings
}

func bindingForFlag(flag string) Binding {
	switch flag {
	case "W", "w", "V", "v":
		return BindingWeak
	default:
		return BindingStrong
	}
}
