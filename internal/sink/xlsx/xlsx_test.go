package xlsx

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"catalogsync-backend/internal/catalog"
	"catalogsync-backend/internal/sink"

	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestTable(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "out", "products.xlsx")
	table := NewTable(path, "")

	rows, err := table.ReadAll(ctx)
	require.NoError(t, err)
	require.Empty(t, rows)

	require.NoError(t, table.Append(ctx, [][]string{{"A", "B", "C"}}))
	require.NoError(t, table.Append(ctx, [][]string{{"1", `=IMAGE("https://iili.io/a.jpg")`, "x"}, {"2", "", "y"}}))
	require.NoError(t, table.Update(ctx, []sink.Cell{{Row: 2, Column: 2, Value: "z"}}))

	rows, err = table.ReadAll(ctx)
	require.NoError(t, err)
	require.Equal(t, [][]string{
		{"A", "B", "C"},
		{"1", `=IMAGE("https://iili.io/a.jpg")`, "x"},
		{"2", "", "z"},
	}, rows)

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()
	require.Equal(t, []string{DefaultSheet}, f.GetSheetList())
}

func TestUpserterOverWorkbook(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "products.xlsx")
	at := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	record := catalog.FinalRecord{
		Product: catalog.Product{
			Record: catalog.NormalizedRecord{
				Title:         "Коньяк",
				PriceValue:    catalog.Ptr(100.0),
				PriceCurrency: "RUB",
				SourceURL:     "https://winediscovery.ru/katalog/tovar/1/",
			},
			Key: catalog.ProductKey{ID: "SKU-1"},
		},
		Image:     &catalog.ImageCacheEntry{SHA256: "abc", DirectURL: "https://iili.io/a.jpg"},
		Timestamp: at,
	}

	require.NoError(t, sink.NewUpserter(NewTable(path, "Sheet"), "https://winediscovery.ru/").Upsert(ctx, record))

	// a new upserter reads what the previous one wrote
	record.Record.PriceValue = catalog.Ptr(120.0)
	require.NoError(t, sink.NewUpserter(NewTable(path, "Sheet"), "https://winediscovery.ru/").Upsert(ctx, record))

	rows, err := NewTable(path, "Sheet").ReadAll(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, sink.Columns, rows[0])
	require.Equal(t, "SKU-1", rows[1][4])
	require.Equal(t, "120", rows[1][6])
	require.Contains(t, rows[1], `=IMAGE("https://iili.io/a.jpg")`)
}
