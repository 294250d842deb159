// Package normalize converts raw extracted text into typed, validated values.
package normalize

import (
	"context"
	"errors"
	"strings"

	"catalogsync-backend/internal/catalog"
	"catalogsync-backend/internal/catalog/oracle"
	"catalogsync-backend/internal/telemetry"
	"catalogsync-backend/lib/textutil"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("catalogsync.internal.catalog.normalize")

const report_normalize = "normalizer.field"

type Normalizer struct {
	oracle oracle.ValueOracle
	tel    telemetry.API
}

// New creates a Normalizer, valueOracle may be nil to disable oracle
// assisted parsing.
func New(valueOracle oracle.ValueOracle, tel telemetry.API) Normalizer {
	if valueOracle == nil {
		valueOracle = oracle.Noop{}
	}
	return Normalizer{oracle: valueOracle, tel: tel}
}

// Normalize resolves every field independently to a value or to unset, the
// only error is a missing source url.
func (n Normalizer) Normalize(ctx context.Context, raw catalog.RawFields) (catalog.NormalizedRecord, error) {
	ctx, span := tracer.Start(ctx, "Normalize")
	defer span.End()

	sourceURL := strings.TrimSpace(raw.SourceURL)
	if sourceURL == "" {
		return catalog.NormalizedRecord{}, catalog.NewError(catalog.KindIdentityFailure, "", catalog.ErrMissingSourceURL)
	}
	span.SetAttributes(attribute.String("source_url", sourceURL))

	text := func(field catalog.Field) *string {
		value, ok := raw.Value(field)
		if !ok {
			return nil
		}
		return textutil.Clean(value)
	}

	record := catalog.NormalizedRecord{
		SourceURL:        sourceURL,
		PageNum:          raw.PageNum,
		SKU:              text(catalog.FieldSKU),
		Country:          text(catalog.FieldCountry),
		Brand:            text(catalog.FieldBrand),
		Producer:         text(catalog.FieldProducer),
		TastingNotes:     text(catalog.FieldTastingNotes),
		Gastronomy:       text(catalog.FieldGastronomy),
		Maturation:       text(catalog.FieldMaturation),
		Awards:           text(catalog.FieldAwards),
		GiftPackaging:    text(catalog.FieldGiftPackaging),
		ImageOriginalURL: text(catalog.FieldImage),
		Grapes:           DedupeList(raw.List(catalog.FieldGrapes)),
		Breadcrumbs:      DedupeList(raw.List(catalog.FieldBreadcrumbs)),
		PriceCurrency:    catalog.DefaultCurrency,
	}
	if title := text(catalog.FieldTitle); title != nil {
		record.Title = *title
	}
	if record.SKU == nil {
		record.SKU = text(catalog.FieldProductID)
	}
	if availability := text(catalog.FieldAvailability); availability != nil {
		record.Availability = ParseAvailability(*availability)
	}
	record.VintageYear = ParseVintage(record.Title)

	n.price(ctx, &record, text(catalog.FieldPrice))
	n.volumeABV(ctx, &record, text(catalog.FieldVolume), text(catalog.FieldABV))
	n.age(ctx, &record, text(catalog.FieldAge))

	return record, nil
}

func (n Normalizer) price(ctx context.Context, record *catalog.NormalizedRecord, raw *string) {
	if raw == nil {
		return
	}
	value, currency := ParsePrice(*raw)
	record.PriceCurrency = currency
	if value != nil {
		record.PriceValue = value
		return
	}

	values, err := n.oracle.ParseValue(ctx, oracle.ValueRequest{RawText: *raw, Schema: oracle.SchemaPrice})
	if err != nil {
		n.unresolved(record.SourceURL, catalog.FieldPrice, *raw, err)
		return
	}
	if values.PriceValue == nil || !ValidPrice(*values.PriceValue) {
		n.unresolved(record.SourceURL, catalog.FieldPrice, *raw, errInvalidOracleValue)
		return
	}
	record.PriceValue = values.PriceValue
	if values.Currency != nil && ValidCurrency(*values.Currency) {
		record.PriceCurrency = *values.Currency
	}
}

func (n Normalizer) volumeABV(ctx context.Context, record *catalog.NormalizedRecord, rawVolume, rawABV *string) {
	pending := map[catalog.Field]string{}
	if rawVolume != nil {
		record.VolumeL = ParseVolume(*rawVolume)
		if record.VolumeL == nil {
			pending[catalog.FieldVolume] = *rawVolume
		}
	}
	if rawABV != nil {
		record.ABVPercent = ParseABV(*rawABV)
		if record.ABVPercent == nil {
			pending[catalog.FieldABV] = *rawABV
		}
	}
	if len(pending) == 0 {
		return
	}

	var parts []string
	for _, field := range []catalog.Field{catalog.FieldVolume, catalog.FieldABV} {
		if raw, ok := pending[field]; ok {
			parts = append(parts, raw)
		}
	}
	values, err := n.oracle.ParseValue(ctx, oracle.ValueRequest{
		RawText: strings.Join(parts, "; "),
		Schema:  oracle.SchemaVolumeABV,
	})

	if raw, ok := pending[catalog.FieldVolume]; ok {
		switch {
		case err != nil:
			n.unresolved(record.SourceURL, catalog.FieldVolume, raw, err)
		case values.VolumeL != nil && ValidVolume(*values.VolumeL):
			record.VolumeL = values.VolumeL
		default:
			n.unresolved(record.SourceURL, catalog.FieldVolume, raw, errInvalidOracleValue)
		}
	}
	if raw, ok := pending[catalog.FieldABV]; ok {
		switch {
		case err != nil:
			n.unresolved(record.SourceURL, catalog.FieldABV, raw, err)
		case values.ABV != nil && ValidABV(*values.ABV):
			record.ABVPercent = values.ABV
		default:
			n.unresolved(record.SourceURL, catalog.FieldABV, raw, errInvalidOracleValue)
		}
	}
}

// age prefers the explicit age fact, the title is only read for a marked
// age and never for a vintage year.
func (n Normalizer) age(ctx context.Context, record *catalog.NormalizedRecord, raw *string) {
	if raw != nil {
		record.AgeYears = ParseAge(*raw)
		if record.AgeYears != nil {
			return
		}
	}
	record.AgeYears = ParseAge(record.Title)
	if record.AgeYears != nil || raw == nil {
		return
	}

	values, err := n.oracle.ParseValue(ctx, oracle.ValueRequest{RawText: *raw, Schema: oracle.SchemaAge})
	if err != nil {
		n.unresolved(record.SourceURL, catalog.FieldAge, *raw, err)
		return
	}
	if values.AgeYears == nil || !ValidAge(*values.AgeYears) {
		n.unresolved(record.SourceURL, catalog.FieldAge, *raw, errInvalidOracleValue)
		return
	}
	record.AgeYears = values.AgeYears
}

var errInvalidOracleValue = errors.New("oracle answer missing or out of range")

func (n Normalizer) unresolved(sourceURL string, field catalog.Field, raw string, err error) {
	n.tel.ReportWarning(
		report_normalize,
		catalog.NewError(catalog.KindNormalizationFailure, sourceURL, err),
		string(field),
		raw,
	)
}
