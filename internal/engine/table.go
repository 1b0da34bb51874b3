package engine

import (
	"fmt"
	"maps"
	"slices"
)

// Table maps engine names to implementations. A harness owns its table;
// nothing registers itself globally.
type Table struct {
	engines map[string]IOEngine
}

// NewTable returns a table holding engines. It panics on duplicate names.
func NewTable(engines ...IOEngine) *Table {
	t := &Table{engines: make(map[string]IOEngine, len(engines))}
	for _, e := range engines {
		if err := t.Add(e); err != nil {
			panic(err)
		}
	}
	return t
}

// DefaultTable holds the blkcopy and split engines.
func DefaultTable() *Table {
	return NewTable(New(), NewSplit())
}

// Add inserts e, refusing to replace an existing name.
func (t *Table) Add(e IOEngine) error {
	if _, ok := t.engines[e.Name()]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicate, e.Name())
	}
	t.engines[e.Name()] = e
	return nil
}

// Lookup returns the engine registered under name.
//
//nolint:ireturn // table lookup returns the interface by design
func (t *Table) Lookup(name string) (IOEngine, error) {
	e, ok := t.engines[name]
	if !ok {
		return nil, fmt.Errorf("%w %q (have %v)", ErrUnknownEngine, name, t.Names())
	}
	return e, nil
}

// Names returns the engine names in sorted order.
func (t *Table) Names() []string {
	return slices.Sorted(maps.Keys(t.engines))
}
