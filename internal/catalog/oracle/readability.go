package oracle

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"catalogsync-backend/lib/htmlutil"
	"catalogsync-backend/lib/textutil"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
)

// Readability is a local TextOracle, it strips markup from a fragment using
// a readability pass and falls back to the fragment's plain text lines when
// readability finds no article in it.
type Readability struct{}

func (Readability) NormalizeText(ctx context.Context, req TextRequest) (TextResponse, error) {
	fragment := strings.TrimSpace(req.Fragment)
	if fragment == "" {
		return TextResponse{}, ErrUnavailable
	}

	lines := articleLines(fragment, req.PageURL)
	if len(lines) == 0 {
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
		if err != nil {
			return TextResponse{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		lines = textutil.SplitLines(htmlutil.LineText(doc.Find("body")))
	}
	if len(lines) == 0 {
		return TextResponse{}, ErrUnavailable
	}

	res := TextResponse{Text: strings.Join(lines, "\n")}
	if len(lines) > 1 {
		res.List = lines
	}
	return res, nil
}

func articleLines(fragment, pageURL string) []string {
	parsedURL, err := url.Parse(pageURL)
	if err != nil || pageURL == "" {
		parsedURL = &url.URL{Scheme: "https", Host: "localhost"}
	}
	article, err := readability.FromReader(strings.NewReader(fragment), parsedURL)
	if err != nil {
		return nil
	}
	return textutil.SplitLines(article.TextContent)
}
