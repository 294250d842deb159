// Package oracle holds the optional interpreters consulted when deterministic
// extraction or parsing of a field gives up.
package oracle

import (
	"context"
	"errors"
)

// ErrUnavailable is returned by an oracle that is disabled or could not
// produce a usable answer, callers treat it as the field being unset.
var ErrUnavailable = errors.New("oracle unavailable")

type TextRequest struct {
	// Section is the heading the fragment was found under.
	Section  string
	Fragment string
	// PageURL is used to resolve relative links inside the fragment.
	PageURL string
}

type TextResponse struct {
	Text string   `json:"text"`
	List []string `json:"list,omitempty"`
}

// TextOracle turns an irregular html fragment into plain text.
type TextOracle interface {
	NormalizeText(ctx context.Context, req TextRequest) (TextResponse, error)
}

type Schema string

const (
	SchemaPrice     Schema = "price"
	SchemaVolumeABV Schema = "volume_abv"
	SchemaAge       Schema = "age"
)

// Keys lists the only fields a response for the schema may contain.
func (s Schema) Keys() []string {
	switch s {
	case SchemaPrice:
		return []string{"price_value", "currency"}
	case SchemaVolumeABV:
		return []string{"volume_l", "abv"}
	case SchemaAge:
		return []string{"age_years"}
	default:
		return nil
	}
}

type ValueRequest struct {
	RawText string
	Schema  Schema
}

// Values is the closed set of typed values an oracle may return, fields
// outside of the request's schema are always nil.
type Values struct {
	PriceValue *float64 `json:"price_value,omitempty"`
	Currency   *string  `json:"currency,omitempty"`
	VolumeL    *float64 `json:"volume_l,omitempty"`
	ABV        *float64 `json:"abv,omitempty"`
	AgeYears   *int     `json:"age_years,omitempty"`
}

// ValueOracle parses ambiguous text into typed values.
type ValueOracle interface {
	ParseValue(ctx context.Context, req ValueRequest) (Values, error)
}

// Noop is the default oracle, it never knows anything.
type Noop struct{}

func (Noop) NormalizeText(context.Context, TextRequest) (TextResponse, error) {
	return TextResponse{}, ErrUnavailable
}

func (Noop) ParseValue(context.Context, ValueRequest) (Values, error) {
	return Values{}, ErrUnavailable
}
