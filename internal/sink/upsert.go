package sink

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"catalogsync-backend/internal/catalog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("catalogsync.internal.sink")

// Cell is a single value to write, Row and Column are zero based and Row 0
// is the header.
type Cell struct {
	Row    int
	Column int
	Value  string
}

// Table is the storage a sink writes into.
type Table interface {
	// ReadAll returns every row including the header, rows may be shorter
	// than the header.
	ReadAll(ctx context.Context) ([][]string, error)
	// Append adds rows after the last non-empty row.
	Append(ctx context.Context, rows [][]string) error
	// Update writes every cell or none of them.
	Update(ctx context.Context, cells []Cell) error
}

// Upserter keys rows by PRODUCT_ID: a new key is appended, an existing key
// only has its changed cells rewritten. It assumes it is the table's only
// writer for as long as it lives.
type Upserter struct {
	table       Table
	categoryURL string

	mutex  sync.Mutex
	loaded bool
	rows   [][]string
	index  map[string]int
}

func NewUpserter(table Table, categoryURL string) *Upserter {
	return &Upserter{table: table, categoryURL: categoryURL}
}

func (u *Upserter) load(ctx context.Context) error {
	if u.loaded {
		return nil
	}

	rows, err := u.table.ReadAll(ctx)
	if err != nil {
		return fmt.Errorf("read table: %w", err)
	}

	if len(rows) == 0 {
		err = u.table.Append(ctx, [][]string{Columns})
		if err != nil {
			return fmt.Errorf("write header: %w", err)
		}
		rows = [][]string{slices.Clone(Columns)}
	} else if !slices.Equal(rows[0], Columns) {
		var cells []Cell
		for i, column := range Columns {
			cells = append(cells, Cell{Row: 0, Column: i, Value: column})
		}
		err = u.table.Update(ctx, cells)
		if err != nil {
			return fmt.Errorf("repair header: %w", err)
		}
		rows[0] = slices.Clone(Columns)
	}

	u.rows = rows
	u.index = map[string]int{}
	for i := 1; i < len(rows); i++ {
		if productIDIndex < len(rows[i]) && rows[i][productIDIndex] != "" {
			u.index[rows[i][productIDIndex]] = i
		}
	}
	u.loaded = true
	return nil
}

// changedCells lists the cells of row that differ from existing, a row whose
// only change is its timestamp has no changes.
func changedCells(rowIndex int, existing, row []string) []Cell {
	var cells []Cell
	for i, value := range row {
		current := ""
		if i < len(existing) {
			current = existing[i]
		}
		if current != value && i != timestampIndex {
			cells = append(cells, Cell{Row: rowIndex, Column: i, Value: value})
		}
	}
	if len(cells) == 0 {
		return nil
	}
	return append(cells, Cell{Row: rowIndex, Column: timestampIndex, Value: row[timestampIndex]})
}

func (u *Upserter) Upsert(ctx context.Context, record catalog.FinalRecord) error {
	ctx, span := tracer.Start(ctx, "Upsert")
	defer span.End()
	span.SetAttributes(attribute.String("product_id", record.Key.ID))

	err := u.upsert(ctx, record)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to upsert row")
	}
	return err
}

func (u *Upserter) upsert(ctx context.Context, record catalog.FinalRecord) error {
	u.mutex.Lock()
	defer u.mutex.Unlock()

	err := u.load(ctx)
	if err != nil {
		return err
	}

	row := Row(record, u.categoryURL)
	rowIndex, exists := u.index[record.Key.ID]
	if !exists {
		err = u.table.Append(ctx, [][]string{row})
		if err != nil {
			return err
		}
		u.rows = append(u.rows, row)
		u.index[record.Key.ID] = len(u.rows) - 1
		return nil
	}

	cells := changedCells(rowIndex, u.rows[rowIndex], row)
	if len(cells) == 0 {
		return nil
	}
	err = u.table.Update(ctx, cells)
	if err != nil {
		return err
	}
	u.rows[rowIndex] = row
	return nil
}

// Reset drops what the upserter knows about the table, the next write
// reads it again.
func (u *Upserter) Reset() {
	u.mutex.Lock()
	defer u.mutex.Unlock()
	u.loaded = false
	u.rows = nil
	u.index = nil
}
