package sink

import (
	"context"
	"slices"
	"sync"
)

// MemoryTable is a Table held in memory, used for dry runs.
type MemoryTable struct {
	mutex sync.Mutex
	rows  [][]string
	// Fail, when set, makes every write return it.
	Fail error
}

func NewMemoryTable(rows ...[]string) *MemoryTable {
	return &MemoryTable{rows: rows}
}

func (t *MemoryTable) ReadAll(context.Context) ([][]string, error) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return t.snapshot(), nil
}

func (t *MemoryTable) snapshot() [][]string {
	out := make([][]string, len(t.rows))
	for i, row := range t.rows {
		out[i] = slices.Clone(row)
	}
	return out
}

func (t *MemoryTable) Rows() [][]string {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return t.snapshot()
}

func (t *MemoryTable) Append(_ context.Context, rows [][]string) error {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	if t.Fail != nil {
		return t.Fail
	}
	for _, row := range rows {
		t.rows = append(t.rows, slices.Clone(row))
	}
	return nil
}

func (t *MemoryTable) Update(_ context.Context, cells []Cell) error {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	if t.Fail != nil {
		return t.Fail
	}
	for _, cell := range cells {
		for len(t.rows) <= cell.Row {
			t.rows = append(t.rows, nil)
		}
		for len(t.rows[cell.Row]) <= cell.Column {
			t.rows[cell.Row] = append(t.rows[cell.Row], "")
		}
		t.rows[cell.Row][cell.Column] = cell.Value
	}
	return nil
}
