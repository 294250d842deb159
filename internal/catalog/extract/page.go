package extract

import (
	"net/url"
	"strings"

	"catalogsync-backend/lib/htmlutil"
	"catalogsync-backend/lib/textutil"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

type page struct {
	doc      *goquery.Document
	base     *url.URL
	sections map[sectionKey]section
}

func (p *page) sourceURL() string {
	if p.base == nil {
		return ""
	}
	return p.base.String()
}

// text is the whitespace normalized text of the first element matching
// selector.
func (p *page) text(selector string) (string, bool) {
	sel := p.doc.Find(selector).First()
	if sel.Length() == 0 {
		return "", false
	}
	text := textutil.NormalizeWhitespace(sel.Text())
	return text, text != ""
}

type sectionKey string

const (
	sectionTastingNotes  sectionKey = "дегустационные характеристики"
	sectionGastronomy    sectionKey = "гастрономия"
	sectionGrapes        sectionKey = "сортовой состав"
	sectionMaturation    sectionKey = "способ выдержки"
	sectionAwards        sectionKey = "награды и оценки товара"
	sectionProducer      sectionKey = "производитель"
	sectionGiftPackaging sectionKey = "подарочная упаковка"
)

var sectionKeys = []string{
	string(sectionTastingNotes),
	string(sectionGastronomy),
	string(sectionGrapes),
	string(sectionMaturation),
	string(sectionAwards),
	string(sectionProducer),
	string(sectionGiftPackaging),
}

type section struct {
	heading string
	html    string
	text    string
	items   []string
	regular bool
}

// tags a section may contain and still be read line by line
var regularTags = map[string]bool{
	"p": true, "br": true, "ul": true, "ol": true, "li": true, "span": true,
	"strong": true, "b": true, "i": true, "em": true, "a": true, "div": true,
	"small": true, "sup": true, "sub": true,
}

// collectSections reads every h4 heading matching a known section, the
// section content is every following sibling up to the next h4.
func collectSections(doc *goquery.Document) map[sectionKey]section {
	sections := map[sectionKey]section{}
	doc.Find("h4").Each(func(_ int, heading *goquery.Selection) {
		title := textutil.NormalizeWhitespace(heading.Text())
		if title == "" {
			return
		}
		key, ok := matchSection(title)
		if !ok {
			return
		}
		if _, seen := sections[key]; seen {
			return
		}

		content := heading.NextUntil("h4")
		var fragment strings.Builder
		content.Each(func(_ int, node *goquery.Selection) {
			outer, err := goquery.OuterHtml(node)
			if err == nil {
				fragment.WriteString(outer)
			}
		})

		lines := splitSectionLines(htmlutil.LineText(content))
		var items []string
		content.Find("li").Each(func(_ int, li *goquery.Selection) {
			item := textutil.NormalizeWhitespace(li.Text())
			if item != "" {
				items = append(items, item)
			}
		})

		sections[key] = section{
			heading: strings.TrimRight(title, ": "),
			html:    strings.TrimSpace(fragment.String()),
			text:    strings.Join(lines, "\n"),
			items:   items,
			regular: isRegular(content),
		}
	})
	return sections
}

func matchSection(title string) (sectionKey, bool) {
	normalized := textutil.NormalizeName(title)
	for _, key := range sectionKeys {
		if strings.HasPrefix(normalized, key) {
			return sectionKey(key), true
		}
	}
	// tolerate small misspellings in headings
	closest, ok := textutil.ClosestName(normalized, sectionKeys, 0.93)
	if ok {
		return sectionKey(closest), true
	}
	return "", false
}

func isRegular(content *goquery.Selection) bool {
	regular := true
	content.Each(func(_ int, node *goquery.Selection) {
		for _, n := range node.Nodes {
			if !regularTree(n) {
				regular = false
			}
		}
	})
	return regular
}

func regularTree(n *html.Node) bool {
	if n.Type == html.ElementNode && !regularTags[n.Data] {
		return false
	}
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		if !regularTree(child) {
			return false
		}
	}
	return true
}

func splitSectionLines(text string) []string {
	return textutil.SplitLines(text)
}
