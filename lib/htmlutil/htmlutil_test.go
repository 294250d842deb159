package htmlutil

import (
	"context"
	"net/url"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"
)

func parse(t *testing.T, contents string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(contents))
	require.NoError(t, err)
	return doc
}

func TestLineText(t *testing.T) {
	doc := parse(t, `<div class="s"><p>Уни Блан</p><p> Коломбар <br>Фоль Бланш</p><script>x()</script></div>`)
	text := LineText(doc.Find(".s"))
	require.Equal(t, "Уни Блан\nКоломбар\n\nФоль Бланш", text)
}

func TestGetAnchors(t *testing.T) {
	base, err := url.Parse("https://example.com/katalog/?PAGEN_1=2")
	require.NoError(t, err)

	doc := parse(t, `<div>
		<a href="/katalog/tovar/one/"> First   product </a>
		<a href="https://other.com/x">Other</a>
		<a>no href</a>
	</div>`)

	anchors := GetAnchors(context.Background(), doc.Find("a"), base)
	require.Equal(t, []Anchor{
		{Name: "First product", Href: "https://example.com/katalog/tovar/one/"},
		{Name: "Other", Href: "https://other.com/x"},
	}, anchors)
}

func TestResolveURL(t *testing.T) {
	base, err := url.Parse("https://example.com/a/b/")
	require.NoError(t, err)

	require.Equal(t, "https://example.com/upload/x.jpg", ResolveURL(base, "/upload/x.jpg"))
	require.Equal(t, "https://example.com/a/b/c.jpg", ResolveURL(base, "c.jpg"))
	require.Equal(t, "", ResolveURL(base, "  "))
	require.Equal(t, "rel.jpg", ResolveURL(nil, "rel.jpg"))
}
