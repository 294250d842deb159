package extract

import (
	"regexp"
	"strings"

	"catalogsync-backend/internal/catalog"
	"catalogsync-backend/lib/htmlutil"
	"catalogsync-backend/lib/textutil"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

type irregularSection struct {
	heading string
	html    string
}

type result struct {
	value string
	list  []string
	// set when the match could not be read deterministically and should be
	// handed to the text oracle
	irregular *irregularSection
}

// rule reads a single field, rules for the same field are tried in order
// and the first one to match wins.
type rule struct {
	name      string
	field     catalog.Field
	wantsList bool
	match     func(p *page) (result, bool)
}

func textRule(name string, field catalog.Field, selector string) rule {
	return rule{
		name:  name,
		field: field,
		match: func(p *page) (result, bool) {
			text, ok := p.text(selector)
			return result{value: text}, ok
		},
	}
}

func attrRule(name string, field catalog.Field, selector, attr string) rule {
	return rule{
		name:  name,
		field: field,
		match: func(p *page) (result, bool) {
			value, ok := p.doc.Find(selector).First().Attr(attr)
			value = textutil.NormalizeWhitespace(value)
			return result{value: value}, ok && value != ""
		},
	}
}

func sectionRule(name string, field catalog.Field, key sectionKey) rule {
	return rule{
		name:  name,
		field: field,
		match: func(p *page) (result, bool) {
			s, ok := p.sections[key]
			if !ok {
				return result{}, false
			}
			if !s.regular {
				return result{irregular: &irregularSection{heading: s.heading, html: s.html}}, true
			}
			return result{value: s.text}, s.text != ""
		},
	}
}

func sectionListRule(name string, field catalog.Field, key sectionKey) rule {
	return rule{
		name:      name,
		field:     field,
		wantsList: true,
		match: func(p *page) (result, bool) {
			s, ok := p.sections[key]
			if !ok {
				return result{}, false
			}
			if !s.regular {
				return result{irregular: &irregularSection{heading: s.heading, html: s.html}}, true
			}
			lines := splitSectionLines(s.text)
			return result{list: lines}, len(lines) > 0
		},
	}
}

// a value needs at least one digit so words like "товара" in "Артикул
// товара: ..." are not taken for one
var skuRegex = regexp.MustCompile(`(?i)Артикул\s*:?\s*([\p{L}\p{N}\-_/]*\p{N}[\p{L}\p{N}\-_/]*)`)

func matchSKU(text string) (string, bool) {
	match := skuRegex.FindStringSubmatch(text)
	if match == nil {
		return "", false
	}
	return match[1], true
}

// stripSKULabel is the fallback for a block known to hold the sku, whatever
// follows the label is the value.
func stripSKULabel(text string) (string, bool) {
	value := strings.Replace(textutil.NormalizeWhitespace(text), "Артикул:", "", 1)
	value = strings.TrimSpace(value)
	return value, value != ""
}

// skuFromLabel finds the "Артикул:" label anywhere on the page, the value
// may sit in the same text node or in the node right after it.
func skuFromLabel(p *page) (result, bool) {
	var sku string
	p.doc.Find("body *").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		for node := sel.Get(0).FirstChild; node != nil; node = node.NextSibling {
			if node.Type != html.TextNode {
				continue
			}
			own := textutil.NormalizeWhitespace(node.Data)
			if !strings.Contains(strings.ToLower(own), "артикул") {
				continue
			}
			if value, ok := matchSKU(own); ok {
				sku = value
				return false
			}
			if value, ok := matchSKU(own + " " + labelValue(sel, node)); ok {
				sku = value
				return false
			}
		}
		return true
	})
	return result{value: sku}, sku != ""
}

// labelValue returns the text of the first non blank node after label. A
// label that is the last node of its element continues in the element's
// next sibling.
func labelValue(sel *goquery.Selection, label *html.Node) string {
	for node := label.NextSibling; node != nil; node = node.NextSibling {
		var text string
		switch node.Type {
		case html.TextNode:
			text = node.Data
		case html.ElementNode:
			text = goquery.NewDocumentFromNode(node).Text()
		}
		text = textutil.NormalizeWhitespace(text)
		if text != "" {
			return text
		}
	}
	return textutil.NormalizeWhitespace(sel.Next().Text())
}

var volumeFact = regexp.MustCompile(`(?i)\d\s*(?:мл|л(?:итр\p{L}*)?|ml|lit(?:er|re)s?|l)(?:[^\p{L}]|$)`)
var abvFact = regexp.MustCompile(`\d\s*%`)
var ageFact = regexp.MustCompile(`(?i)\d\s*(?:лет|года|год|yo|y\.o\.|years)`)

// factRule returns the first fact item matching marker.
func factRule(name string, field catalog.Field, marker *regexp.Regexp) rule {
	return rule{
		name:  name,
		field: field,
		match: func(p *page) (result, bool) {
			var found string
			p.doc.Find(".product__facts-item").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
				text := textutil.NormalizeWhitespace(sel.Text())
				if marker.MatchString(text) {
					found = text
					return false
				}
				return true
			})
			return result{value: found}, found != ""
		},
	}
}

func breadcrumbs(p *page) (result, bool) {
	var crumbs []string
	p.doc.Find(".ui-breadcrumbs__item").Each(func(_ int, sel *goquery.Selection) {
		text := textutil.NormalizeWhitespace(sel.Text())
		if text != "" {
			crumbs = append(crumbs, text)
		}
	})
	return result{list: crumbs}, len(crumbs) > 0
}

func producer(p *page) (result, bool) {
	s, ok := p.sections[sectionProducer]
	if !ok {
		return result{}, false
	}
	if len(s.items) > 0 {
		return result{value: s.items[0]}, true
	}
	if !s.regular {
		return result{irregular: &irregularSection{heading: s.heading, html: s.html}}, true
	}
	lines := splitSectionLines(s.text)
	if len(lines) == 0 {
		return result{}, false
	}
	return result{value: lines[0]}, true
}

const imageSelector = ".product__content-img img, .product__gallery img, img[src*='/upload/']"

var lazyAttrs = []string{"data-src", "data-lazy-src", "data-original", "data-lazy"}
var srcsetAttrs = []string{"srcset", "data-srcset"}

func isPlaceholder(src string) bool {
	lower := strings.ToLower(src)
	return lower == "" ||
		strings.HasPrefix(lower, "data:") ||
		strings.Contains(lower, "placeholder") ||
		strings.Contains(lower, "blank.gif") ||
		strings.Contains(lower, "lazy.")
}

func firstSrcsetEntry(srcset string) string {
	for _, chunk := range strings.Split(srcset, ",") {
		fields := strings.Fields(chunk)
		if len(fields) > 0 {
			return fields[0]
		}
	}
	return ""
}

// imageSource picks an image url from an img element, lazy-load attributes
// first, then the first srcset entry, then src.
func imageSource(img *goquery.Selection) string {
	for _, attr := range lazyAttrs {
		if value := strings.TrimSpace(img.AttrOr(attr, "")); !isPlaceholder(value) {
			return value
		}
	}
	for _, attr := range srcsetAttrs {
		if value := firstSrcsetEntry(img.AttrOr(attr, "")); !isPlaceholder(value) {
			return value
		}
	}
	if value := strings.TrimSpace(img.AttrOr("src", "")); !isPlaceholder(value) {
		return value
	}
	return ""
}

func image(p *page) (result, bool) {
	var src string
	p.doc.Find(imageSelector).EachWithBreak(func(_ int, img *goquery.Selection) bool {
		src = imageSource(img)
		return src == ""
	})
	if src == "" {
		return result{}, false
	}
	return result{value: htmlutil.ResolveURL(p.base, src)}, true
}

var defaultRules = []rule{
	textRule("title/h1", catalog.FieldTitle, "h1"),
	attrRule("title/og-title", catalog.FieldTitle, "meta[property='og:title']", "content"),

	{name: "sku/product-id-block", field: catalog.FieldSKU, match: func(p *page) (result, bool) {
		text, ok := p.text(".product__id")
		if !ok {
			return result{}, false
		}
		sku, ok := matchSKU(text)
		if !ok {
			sku, ok = stripSKULabel(text)
		}
		return result{value: sku}, ok
	}},
	{name: "sku/label", field: catalog.FieldSKU, match: skuFromLabel},
	attrRule("product-id/data-attr", catalog.FieldProductID, "[data-product-id]", "data-product-id"),

	textRule("brand/titles-name", catalog.FieldBrand, ".product__titles-name"),
	textRule("country/titles-region-link", catalog.FieldCountry, ".product__titles-region a"),
	textRule("country/titles-region", catalog.FieldCountry, ".product__titles-region"),
	{name: "breadcrumbs/items", field: catalog.FieldBreadcrumbs, wantsList: true, match: breadcrumbs},

	factRule("volume/facts", catalog.FieldVolume, volumeFact),
	factRule("abv/facts", catalog.FieldABV, abvFact),
	factRule("age/facts", catalog.FieldAge, ageFact),

	textRule("price/buy-box", catalog.FieldPrice, ".product__buy-box-price"),
	attrRule("price/itemprop", catalog.FieldPrice, "[itemprop='price']", "content"),
	textRule("availability/buy-box-footer", catalog.FieldAvailability, ".product__buy-box-footer"),

	sectionRule("section/tasting-notes", catalog.FieldTastingNotes, sectionTastingNotes),
	sectionRule("section/gastronomy", catalog.FieldGastronomy, sectionGastronomy),
	sectionListRule("section/grapes", catalog.FieldGrapes, sectionGrapes),
	sectionRule("section/maturation", catalog.FieldMaturation, sectionMaturation),
	sectionRule("section/awards", catalog.FieldAwards, sectionAwards),
	sectionRule("section/gift-packaging", catalog.FieldGiftPackaging, sectionGiftPackaging),
	{name: "producer/section", field: catalog.FieldProducer, match: producer},

	{name: "image/gallery", field: catalog.FieldImage, match: image},
}
