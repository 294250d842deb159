package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/time/rate"
)

var tracer = otel.Tracer("catalogsync.internal.catalog.oracle")

const systemPrompt = "Отвечай строго валидным JSON без пояснений."

// Completer sends a single prompt to a language model and returns its raw
// text answer.
type Completer interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
}

type LLMOptions struct {
	// Timeout bounds a single completion, defaults to 30s.
	Timeout time.Duration
	// RequestsPerMinute throttles completions, zero means unlimited.
	RequestsPerMinute int
}

// LLM implements TextOracle and ValueOracle on top of a Completer. Any
// failure of the model, including malformed output, surfaces as
// ErrUnavailable.
type LLM struct {
	completer Completer
	timeout   time.Duration
	limiter   *rate.Limiter
}

func NewLLM(completer Completer, opts LLMOptions) *LLM {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(opts.RequestsPerMinute)), 1)
	}
	return &LLM{
		completer: completer,
		timeout:   opts.Timeout,
		limiter:   limiter,
	}
}

func (o *LLM) NormalizeText(ctx context.Context, req TextRequest) (TextResponse, error) {
	prompt := fmt.Sprintf(
		"Из HTML-фрагмента под заголовком «%s» извлеки чистый текст; "+
			"верни JSON {text:string, list?:string[]}. HTML: ```%s```",
		req.Section, req.Fragment,
	)

	var out TextResponse
	err := o.askJSON(ctx, "normalize-text", prompt, &out)
	if err != nil {
		return TextResponse{}, err
	}
	out.Text = strings.TrimSpace(out.Text)
	if out.Text == "" && len(out.List) == 0 {
		return TextResponse{}, fmt.Errorf("%w: empty section text", ErrUnavailable)
	}
	return out, nil
}

func (o *LLM) ParseValue(ctx context.Context, req ValueRequest) (Values, error) {
	var prompt string
	switch req.Schema {
	case SchemaPrice:
		prompt = "Верни JSON {price_value:number, currency:string} из строки цены: " + req.RawText
	case SchemaVolumeABV:
		prompt = "Извлеки объём и крепость. Верни JSON {volume_l:number|null, abv:number|null}. Вход: " + req.RawText
	case SchemaAge:
		prompt = "Извлеки выдержку в годах (не год урожая). Верни JSON {age_years:integer|null}. Вход: " + req.RawText
	default:
		return Values{}, fmt.Errorf("%w: unknown schema %q", ErrUnavailable, req.Schema)
	}

	var raw map[string]json.RawMessage
	err := o.askJSON(ctx, "parse-value", prompt, &raw)
	if err != nil {
		return Values{}, err
	}
	return decodeValues(req.Schema, raw)
}

// decodeValues keeps only the keys the schema allows, a key holding the
// wrong type discards the whole response.
func decodeValues(schema Schema, raw map[string]json.RawMessage) (Values, error) {
	var out Values
	for _, key := range schema.Keys() {
		value, ok := raw[key]
		if !ok || string(value) == "null" {
			continue
		}

		var err error
		switch key {
		case "price_value":
			out.PriceValue, err = decodeNumber(value)
		case "volume_l":
			out.VolumeL, err = decodeNumber(value)
		case "abv":
			out.ABV, err = decodeNumber(value)
		case "age_years":
			var n *float64
			n, err = decodeNumber(value)
			if err == nil {
				if *n != math.Trunc(*n) {
					err = fmt.Errorf("age_years is not an integer: %v", *n)
				} else {
					age := int(*n)
					out.AgeYears = &age
				}
			}
		case "currency":
			var currency string
			err = json.Unmarshal(value, &currency)
			if err == nil {
				currency = strings.ToUpper(strings.TrimSpace(currency))
				if currency != "" {
					out.Currency = &currency
				}
			}
		}
		if err != nil {
			return Values{}, fmt.Errorf("%w: %s: %v", ErrUnavailable, key, err)
		}
	}
	return out, nil
}

func decodeNumber(value json.RawMessage) (*float64, error) {
	var n float64
	err := json.Unmarshal(value, &n)
	if err != nil {
		return nil, err
	}
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return nil, errors.New("not a finite number")
	}
	return &n, nil
}

var codeFence = regexp.MustCompile("(?s)^```(?:json)?\\s*(.*?)\\s*```$")

func (o *LLM) askJSON(ctx context.Context, op, prompt string, out any) error {
	ctx, span := tracer.Start(ctx, op)
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	err := o.limiter.Wait(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	answer, err := o.completer.Complete(ctx, systemPrompt, prompt)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "completion failed")
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	span.SetAttributes(attribute.Int("answer_len", len(answer)))

	answer = strings.TrimSpace(answer)
	if match := codeFence.FindStringSubmatch(answer); match != nil {
		answer = match[1]
	}
	if answer == "" {
		return fmt.Errorf("%w: empty answer", ErrUnavailable)
	}

	err = json.Unmarshal([]byte(answer), out)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "malformed json answer")
		return fmt.Errorf("%w: malformed json: %v", ErrUnavailable, err)
	}
	return nil
}
