// Package xlsx keeps the product table in a local excel workbook.
package xlsx

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"catalogsync-backend/internal/sink"

	"github.com/mazen160/go-random"
	"github.com/xuri/excelize/v2"
)

const DefaultSheet = "Products"

// Table is a sink.Table stored in a workbook. Every write rewrites the file
// through a temporary copy, so a failed write leaves the previous file as is.
type Table struct {
	path  string
	sheet string
	mutex sync.Mutex
}

func NewTable(path, sheet string) *Table {
	if sheet == "" {
		sheet = DefaultSheet
	}
	return &Table{path: path, sheet: sheet}
}

func (t *Table) open() (*excelize.File, error) {
	f, err := excelize.OpenFile(t.path)
	if errors.Is(err, os.ErrNotExist) {
		f = excelize.NewFile()
		err = f.SetSheetName("Sheet1", t.sheet)
		if err != nil {
			f.Close()
			return nil, err
		}
		return f, nil
	}
	if err != nil {
		return nil, err
	}

	index, err := f.GetSheetIndex(t.sheet)
	if err != nil {
		f.Close()
		return nil, err
	}
	if index < 0 {
		_, err = f.NewSheet(t.sheet)
		if err != nil {
			f.Close()
			return nil, err
		}
	}
	return f, nil
}

func (t *Table) save(f *excelize.File) error {
	err := os.MkdirAll(filepath.Dir(t.path), 0755)
	if err != nil {
		return err
	}
	// two processes writing the same workbook must not share a temp file
	suffix, err := random.String(8)
	if err != nil {
		return err
	}
	tmp := fmt.Sprintf("%s.%s.tmp.xlsx", t.path, suffix)
	err = f.SaveAs(tmp)
	if err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, t.path)
}

// formulas are stored as formulas and read back with their leading "="
func (t *Table) setCell(f *excelize.File, row, column int, value string) error {
	cell, err := excelize.CoordinatesToCellName(column+1, row+1)
	if err != nil {
		return err
	}
	if strings.HasPrefix(value, "=") {
		return f.SetCellFormula(t.sheet, cell, strings.TrimPrefix(value, "="))
	}
	return f.SetCellStr(t.sheet, cell, value)
}

func (t *Table) ReadAll(ctx context.Context) ([][]string, error) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	f, err := t.open()
	if err != nil {
		return nil, err
	}
	defer f.Close()

	rows, err := f.GetRows(t.sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, err
	}
	width := 0
	if len(rows) > 0 {
		width = len(rows[0])
	}
	for r := range rows {
		for c := 0; c < width; c++ {
			if c < len(rows[r]) && rows[r][c] != "" {
				continue
			}
			cell, err := excelize.CoordinatesToCellName(c+1, r+1)
			if err != nil {
				return nil, err
			}
			formula, err := f.GetCellFormula(t.sheet, cell)
			if err != nil {
				return nil, err
			}
			if formula == "" {
				continue
			}
			for len(rows[r]) <= c {
				rows[r] = append(rows[r], "")
			}
			rows[r][c] = "=" + formula
		}
	}
	return rows, nil
}

func (t *Table) Append(ctx context.Context, rows [][]string) error {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	f, err := t.open()
	if err != nil {
		return err
	}
	defer f.Close()

	existing, err := f.GetRows(t.sheet)
	if err != nil {
		return err
	}
	next := len(existing)
	for i, row := range rows {
		for c, value := range row {
			err = t.setCell(f, next+i, c, value)
			if err != nil {
				return fmt.Errorf("append row %d: %w", next+i+1, err)
			}
		}
	}
	return t.save(f)
}

func (t *Table) Update(ctx context.Context, cells []sink.Cell) error {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	f, err := t.open()
	if err != nil {
		return err
	}
	defer f.Close()

	for _, cell := range cells {
		err = t.setCell(f, cell.Row, cell.Column, cell.Value)
		if err != nil {
			return err
		}
	}
	return t.save(f)
}
