// Package catalog holds the product model shared by every stage of a sync
// run: raw extracted fields, the normalized record, its identity and the
// state persisted between runs.
package catalog

import (
	"encoding/json"
	"maps"
	"slices"
	"time"
)

// DefaultCurrency is used when the price text does not name a currency.
const DefaultCurrency = "RUB"

type Field string

const (
	FieldTitle         Field = "title"
	FieldSKU           Field = "sku"
	FieldProductID     Field = "product_id"
	FieldBrand         Field = "brand"
	FieldCountry       Field = "country"
	FieldProducer      Field = "producer"
	FieldPrice         Field = "price"
	FieldVolume        Field = "volume"
	FieldABV           Field = "abv"
	FieldAge           Field = "age"
	FieldAvailability  Field = "availability"
	FieldTastingNotes  Field = "tasting_notes"
	FieldGastronomy    Field = "gastronomy"
	FieldGrapes        Field = "grapes"
	FieldMaturation    Field = "maturation"
	FieldAwards        Field = "awards"
	FieldGiftPackaging Field = "gift_packaging"
	FieldBreadcrumbs   Field = "breadcrumbs"
	FieldImage         Field = "image"
)

// Warning describes a rule that failed in a way worth looking at, a rule
// simply not matching is not a warning.
type Warning struct {
	Rule    string
	Field   Field
	Message string
}

// RawFields is the best-effort, possibly partial output of extracting a
// single page. It is read-only once constructed.
type RawFields struct {
	SourceURL string
	PageNum   int
	Warnings  []Warning

	values map[Field]string
	lists  map[Field][]string
}

// NewRawFields copies values and lists, later changes to either do not
// affect the returned RawFields.
func NewRawFields(sourceURL string, pageNum int, values map[Field]string, lists map[Field][]string, warnings []Warning) RawFields {
	copiedLists := make(map[Field][]string, len(lists))
	for field, list := range lists {
		copiedLists[field] = slices.Clone(list)
	}
	return RawFields{
		SourceURL: sourceURL,
		PageNum:   pageNum,
		Warnings:  slices.Clone(warnings),
		values:    maps.Clone(values),
		lists:     copiedLists,
	}
}

// Value returns the raw text of a field, ok is false when it was not found.
func (r RawFields) Value(field Field) (string, bool) {
	v, ok := r.values[field]
	return v, ok
}

// List returns a copy of a list field, nil when it was not found.
func (r RawFields) List(field Field) []string {
	return slices.Clone(r.lists[field])
}

// Fields lists every field that has a value or a list.
func (r RawFields) Fields() []Field {
	var out []Field
	for field := range r.values {
		out = append(out, field)
	}
	for field := range r.lists {
		if _, dup := r.values[field]; !dup {
			out = append(out, field)
		}
	}
	slices.Sort(out)
	return out
}

type Availability int8

const (
	AvailabilityUnknown Availability = iota
	InStock
	OutOfStock
)

func (a Availability) String() string {
	switch a {
	case InStock:
		return "true"
	case OutOfStock:
		return "false"
	default:
		return "unknown"
	}
}

// Bool returns nil for unknown availability.
func (a Availability) Bool() *bool {
	switch a {
	case InStock:
		return Ptr(true)
	case OutOfStock:
		return Ptr(false)
	default:
		return nil
	}
}

func (a Availability) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.Bool())
}

func (a *Availability) UnmarshalJSON(data []byte) error {
	var value *bool
	if err := json.Unmarshal(data, &value); err != nil {
		return err
	}
	switch {
	case value == nil:
		*a = AvailabilityUnknown
	case *value:
		*a = InStock
	default:
		*a = OutOfStock
	}
	return nil
}

// NormalizedRecord is the typed representation of a product. A nil pointer
// or empty slice means the field is unset.
type NormalizedRecord struct {
	Title            string       `json:"title"`
	SKU              *string      `json:"sku"`
	Country          *string      `json:"country"`
	Brand            *string      `json:"brand"`
	Producer         *string      `json:"producer"`
	PriceValue       *float64     `json:"price_value"`
	PriceCurrency    string       `json:"price_currency"`
	VolumeL          *float64     `json:"volume_l"`
	ABVPercent       *float64     `json:"abv_percent"`
	AgeYears         *int         `json:"age_years"`
	VintageYear      *int         `json:"vintage_year"`
	Availability     Availability `json:"availability"`
	TastingNotes     *string      `json:"tasting_notes"`
	Gastronomy       *string      `json:"gastronomy"`
	Maturation       *string      `json:"maturation"`
	Awards           *string      `json:"awards"`
	GiftPackaging    *string      `json:"gift_packaging"`
	Grapes           []string     `json:"grapes"`
	Breadcrumbs      []string     `json:"breadcrumbs"`
	ImageOriginalURL *string      `json:"image_original_url"`
	SourceURL        string       `json:"source_url"`
	PageNum          int          `json:"page_num"`
}

// ProductKey identifies a product across runs, Derived is set when ID is a
// hash of the source url rather than an extracted sku.
type ProductKey struct {
	ID      string `json:"id"`
	Derived bool   `json:"id_is_derived"`
}

func (k ProductKey) String() string {
	return k.ID
}

// Fingerprint is a hex encoded hash over a normalized record's content.
type Fingerprint string

type ImageCacheEntry struct {
	SHA256    string `json:"sha256"`
	DirectURL string `json:"direct_url"`
	ViewerURL string `json:"viewer_url"`
	ThumbURL  string `json:"thumb_url"`
}

type StateRecord struct {
	Key         ProductKey  `json:"key"`
	Fingerprint Fingerprint `json:"fingerprint"`
	LastSeen    time.Time   `json:"last_seen"`
}

// Product is a normalized record together with its resolved identity, the
// unit of work of the upsert engine.
type Product struct {
	Record      NormalizedRecord
	Key         ProductKey
	Fingerprint Fingerprint
}

type Decision string

const (
	DecisionInsert Decision = "insert"
	DecisionUpdate Decision = "update"
	DecisionSkip   Decision = "skip"
)

type Outcome string

const (
	OutcomeInserted Outcome = "inserted"
	OutcomeUpdated  Outcome = "updated"
	OutcomeSkipped  Outcome = "skipped"
	OutcomeError    Outcome = "error"
)

// RowStatus is what a sink row reports about the product it holds.
type RowStatus string

const (
	RowStatusOK    RowStatus = "ok"
	RowStatusError RowStatus = "error"
)

// FinalRecord is everything a sink needs to write one row.
type FinalRecord struct {
	Product
	Image     *ImageCacheEntry
	Status    RowStatus
	ErrorMsg  string
	Timestamp time.Time
}

func Ptr[T any](v T) *T {
	return &v
}
