package htmlutil

import (
	"bytes"
	"context"
	"net/url"
	"strings"

	"catalogsync-backend/lib/textutil"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var tracer = otel.Tracer("catalogsync.lib.htmlutil")

func GetText(node *html.Node) string {
	var buffer bytes.Buffer
	getTextRecursive(node, &buffer)
	return buffer.String()
}

func getTextRecursive(node *html.Node, buffer *bytes.Buffer) {
	if node == nil {
		return
	}
	if node.Type == html.TextNode {
		buffer.WriteString(node.Data)
		return
	}
	child := node.FirstChild
	for child != nil {
		getTextRecursive(child, buffer)
		child = child.NextSibling
	}
}

// LineText returns the text of every node in the selection with each text
// node and <br> on its own line.
func LineText(sel *goquery.Selection) string {
	var lines []string
	for _, n := range sel.Nodes {
		collectLines(n, &lines)
	}
	return strings.Join(lines, "\n")
}

func collectLines(node *html.Node, lines *[]string) {
	switch {
	case node.Type == html.TextNode:
		text := strings.TrimSpace(node.Data)
		if text != "" {
			*lines = append(*lines, text)
		}
		return
	case node.Type == html.ElementNode && (node.DataAtom == atom.Script || node.DataAtom == atom.Style):
		return
	case node.Type == html.ElementNode && node.DataAtom == atom.Br:
		*lines = append(*lines, "")
		return
	}
	for child := node.FirstChild; child != nil; child = child.NextSibling {
		collectLines(child, lines)
	}
}

// ResolveURL resolves ref against base, returning ref untouched when either
// fails to parse.
func ResolveURL(base *url.URL, ref string) string {
	ref = strings.TrimSpace(ref)
	if base == nil || ref == "" {
		return ref
	}
	parsed, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return base.ResolveReference(parsed).String()
}

type Anchor struct {
	Name string
	Href string
}

// GetAnchors collects the anchors in sel with their hrefs made absolute
// against base.
func GetAnchors(ctx context.Context, sel *goquery.Selection, base *url.URL) []Anchor {
	_, span := tracer.Start(ctx, "GetAnchors")
	defer span.End()

	anchors := []Anchor{}
	sel.Each(func(_ int, a *goquery.Selection) {
		href, ok := a.Attr("href")
		if !ok {
			return
		}
		link, err := url.Parse(strings.TrimSpace(href))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "got error while parsing url")
			return
		}
		if base != nil {
			link = base.ResolveReference(link)
		}

		name := textutil.NormalizeWhitespace(GetText(a.Get(0)))
		linkStr := link.String()
		anchors = append(anchors, Anchor{
			Name: name,
			Href: linkStr,
		})
		span.AddEvent("anchor", trace.WithAttributes(
			attribute.String("name", name),
			attribute.String("url", linkStr),
		))
	})

	return anchors
}
