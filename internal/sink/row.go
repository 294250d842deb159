// Package sink writes finished product rows into a spreadsheet-like table,
// one row per product key.
package sink

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"catalogsync-backend/internal/catalog"
)

const (
	ColumnTimestamp = "TIMESTAMP_UTC"
	ColumnProductID = "PRODUCT_ID"
)

// Columns is the header every table is kept in, rows are written in the same
// order.
var Columns = []string{
	ColumnTimestamp,
	"SOURCE_CATEGORY_URL",
	"PAGE_NUM",
	"PRODUCT_URL",
	ColumnProductID,
	"TITLE",
	"PRICE_VALUE",
	"PRICE_CURRENCY",
	"COUNTRY",
	"VOLUME_L",
	"ABV_PERCENT",
	"AGE_YEARS",
	"BRAND",
	"PRODUCER",
	"SKU",
	"TASTING_NOTES",
	"GASTRONOMY",
	"GRAPES_JSON",
	"MATURATION",
	"AWARDS",
	"GIFT_PACKAGING",
	"BREADCRUMBS",
	"IMAGE_ORIGINAL_URL",
	"IMAGE_DIRECT_URL",
	"IMAGE_VIEWER_URL",
	"IMAGE_THUMB_URL",
	"IMAGE_SHA256",
	"IMAGE_CELL",
	"STATUS",
	"ERROR_MSG",
	"AVAILABILITY",
	"VINTAGE_YEAR",
}

func columnIndex(name string) int {
	for i, column := range Columns {
		if column == name {
			return i
		}
	}
	panic(fmt.Sprintf("unknown column %s", name))
}

var (
	timestampIndex = columnIndex(ColumnTimestamp)
	productIDIndex = columnIndex(ColumnProductID)
)

// FormatNumber renders at most two decimals and trims trailing zeros.
func FormatNumber(value *float64) string {
	if value == nil {
		return ""
	}
	out := strconv.FormatFloat(*value, 'f', 2, 64)
	out = strings.TrimRight(out, "0")
	return strings.TrimSuffix(out, ".")
}

func formatInt(value *int) string {
	if value == nil {
		return ""
	}
	return strconv.Itoa(*value)
}

func str(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}

// Row renders a product in Columns order.
func Row(record catalog.FinalRecord, categoryURL string) []string {
	r := record.Record

	grapes := r.Grapes
	if grapes == nil {
		grapes = []string{}
	}
	grapesJSON, _ := json.Marshal(grapes)

	var image catalog.ImageCacheEntry
	if record.Image != nil {
		image = *record.Image
	}
	imageCell := ""
	if image.DirectURL != "" {
		imageCell = fmt.Sprintf(`=IMAGE("%s")`, image.DirectURL)
	}

	availability := ""
	if b := r.Availability.Bool(); b != nil {
		availability = strconv.FormatBool(*b)
	}

	status := record.Status
	if status == "" {
		status = catalog.RowStatusOK
	}

	values := map[string]string{
		ColumnTimestamp:       record.Timestamp.UTC().Format(time.RFC3339),
		"SOURCE_CATEGORY_URL": categoryURL,
		"PAGE_NUM":            strconv.Itoa(r.PageNum),
		"PRODUCT_URL":         r.SourceURL,
		ColumnProductID:       record.Key.ID,
		"TITLE":               r.Title,
		"PRICE_VALUE":         FormatNumber(r.PriceValue),
		"PRICE_CURRENCY":      r.PriceCurrency,
		"COUNTRY":             str(r.Country),
		"VOLUME_L":            FormatNumber(r.VolumeL),
		"ABV_PERCENT":         FormatNumber(r.ABVPercent),
		"AGE_YEARS":           formatInt(r.AgeYears),
		"BRAND":               str(r.Brand),
		"PRODUCER":            str(r.Producer),
		"SKU":                 str(r.SKU),
		"TASTING_NOTES":       str(r.TastingNotes),
		"GASTRONOMY":          str(r.Gastronomy),
		"GRAPES_JSON":         string(grapesJSON),
		"MATURATION":          str(r.Maturation),
		"AWARDS":              str(r.Awards),
		"GIFT_PACKAGING":      str(r.GiftPackaging),
		"BREADCRUMBS":         strings.Join(r.Breadcrumbs, " > "),
		"IMAGE_ORIGINAL_URL":  str(r.ImageOriginalURL),
		"IMAGE_DIRECT_URL":    image.DirectURL,
		"IMAGE_VIEWER_URL":    image.ViewerURL,
		"IMAGE_THUMB_URL":     image.ThumbURL,
		"IMAGE_SHA256":        image.SHA256,
		"IMAGE_CELL":          imageCell,
		"STATUS":              string(status),
		"ERROR_MSG":           record.ErrorMsg,
		"AVAILABILITY":        availability,
		"VINTAGE_YEAR":        formatInt(r.VintageYear),
	}

	row := make([]string, len(Columns))
	for i, column := range Columns {
		row[i] = values[column]
	}
	return row
}

// ColumnName returns the spreadsheet letter name of a zero based column,
// 0 is "A" and 26 is "AA".
func ColumnName(index int) string {
	name := ""
	for index >= 0 {
		name = string(rune('A'+index%26)) + name
		index = index/26 - 1
	}
	return name
}
