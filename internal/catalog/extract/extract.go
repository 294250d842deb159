// Package extract turns a product page into a best-effort bag of raw fields.
package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"

	"catalogsync-backend/internal/catalog"
	"catalogsync-backend/internal/catalog/oracle"
	"catalogsync-backend/internal/telemetry"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("catalogsync.internal.catalog.extract")

const report_extract = "extractor.extract"

type Extractor struct {
	rules  []rule
	oracle oracle.TextOracle
	tel    telemetry.API
}

// New creates an Extractor, textOracle may be nil in which case irregular
// sections are left unset.
func New(textOracle oracle.TextOracle, tel telemetry.API) Extractor {
	if textOracle == nil {
		textOracle = oracle.Noop{}
	}
	return Extractor{
		rules:  defaultRules,
		oracle: textOracle,
		tel:    tel,
	}
}

// Extract never fails: a rule that does not match leaves its field absent, a
// rule that breaks leaves its field absent and adds a warning.
func (e Extractor) Extract(ctx context.Context, content []byte, pageNum int, sourceURL string) catalog.RawFields {
	ctx, span := tracer.Start(ctx, "Extract")
	defer span.End()
	span.SetAttributes(attribute.String("source_url", sourceURL))

	values := map[catalog.Field]string{}
	lists := map[catalog.Field][]string{}
	var warnings []catalog.Warning

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(content))
	if err != nil {
		warnings = e.warn(warnings, catalog.Warning{Rule: "parse-document", Message: err.Error()}, sourceURL)
		return catalog.NewRawFields(sourceURL, pageNum, values, lists, warnings)
	}

	base, err := url.Parse(sourceURL)
	if err != nil {
		base = nil
	}
	p := &page{
		doc:      doc,
		base:     base,
		sections: collectSections(doc),
	}

	for _, r := range e.rules {
		if _, done := values[r.field]; done {
			continue
		}
		if _, done := lists[r.field]; done {
			continue
		}

		res, err := e.apply(ctx, r, p)
		if err != nil {
			warnings = e.warn(warnings, catalog.Warning{Rule: r.name, Field: r.field, Message: err.Error()}, sourceURL)
			continue
		}
		switch {
		case len(res.list) > 0:
			lists[r.field] = res.list
		case res.value != "":
			values[r.field] = res.value
		}
	}

	span.SetAttributes(
		attribute.Int("fields", len(values)+len(lists)),
		attribute.Int("warnings", len(warnings)),
	)
	return catalog.NewRawFields(sourceURL, pageNum, values, lists, warnings)
}

func (e Extractor) apply(ctx context.Context, r rule, p *page) (res result, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("rule panicked: %v", recovered)
		}
	}()

	res, ok := r.match(p)
	if !ok {
		return result{}, nil
	}
	if res.irregular == nil {
		return res, nil
	}

	// the fragment is handed over as is, the oracle's answer replaces it
	answer, err := e.oracle.NormalizeText(ctx, oracle.TextRequest{
		Section:  res.irregular.heading,
		Fragment: res.irregular.html,
		PageURL:  p.sourceURL(),
	})
	if errors.Is(err, oracle.ErrUnavailable) {
		e.tel.ReportDebug("irregular section left unset", r.name, p.sourceURL(), err)
		return result{}, nil
	}
	if err != nil {
		return result{}, err
	}
	if r.wantsList {
		list := answer.List
		if len(list) == 0 {
			list = splitSectionLines(answer.Text)
		}
		return result{list: list}, nil
	}
	return result{value: answer.Text}, nil
}

func (e Extractor) warn(warnings []catalog.Warning, w catalog.Warning, sourceURL string) []catalog.Warning {
	e.tel.ReportWarning(report_extract, sourceURL, w.Rule, w.Message)
	return append(warnings, w)
}
