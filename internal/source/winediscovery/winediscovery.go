// Package winediscovery walks a winediscovery.ru catalog category and
// fetches the product pages it lists.
package winediscovery

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"catalogsync-backend/internal/catalog/pipeline"
	"catalogsync-backend/internal/telemetry"
	"catalogsync-backend/lib/htmlutil"
	libtelemetry "catalogsync-backend/lib/telemetry"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"
)

var tracer = otel.Tracer("catalogsync.internal.source.winediscovery")

const DefaultCategoryURL = "https://winediscovery.ru/katalog/krepkie_napitki/filtr/drinktype-konyak/"

const (
	productLinkSelector    = "a[href^='/katalog/tovar/']"
	paginationLinkSelector = "a[href*='PAGEN_1=']"
	pageParam              = "PAGEN_1"
)

const report_category_page = "winediscovery.category-page"

var userAgents = []string{
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 13_3) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.6261.95 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.6167.85 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.2 Safari/605.1.15",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:122.0) Gecko/20100101 Firefox/122.0",
}

// RandomUserAgent picks one of a small pool of desktop browser user agents.
func RandomUserAgent() string {
	return userAgents[rand.IntN(len(userAgents))]
}

type Config struct {
	CategoryURL         string `json:"category_url"`
	RequestDelayMs      int    `json:"request_delay_ms"`
	NavigationTimeoutMs int    `json:"navigation_timeout_ms"`
	MaxRetries          int    `json:"max_retries"`
	ProxyURL            string `json:"proxy_url"`
	UserAgent           string `json:"user_agent"`
	// DumpDir keeps a copy of every http exchange when set.
	DumpDir string `json:"dump_dir"`
}

type Source struct {
	http     *resty.Client
	category *url.URL
	tel      telemetry.API
}

func New(config Config, tel telemetry.API) (*Source, error) {
	if config.CategoryURL == "" {
		config.CategoryURL = DefaultCategoryURL
	}
	category, err := url.Parse(config.CategoryURL)
	if err != nil {
		return nil, fmt.Errorf("parse category url: %w", err)
	}
	if config.NavigationTimeoutMs <= 0 {
		config.NavigationTimeoutMs = 20_000
	}
	if config.UserAgent == "" {
		config.UserAgent = RandomUserAgent()
	}

	client := resty.New()
	client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)
	client.SetHeader("user-agent", config.UserAgent)
	client.SetHeader("accept-language", "ru-RU,ru;q=0.9,en;q=0.8")
	client.SetRedirectPolicy(resty.DomainCheckRedirectPolicy(category.Hostname()))
	client.SetTimeout(time.Duration(config.NavigationTimeoutMs) * time.Millisecond)
	if config.ProxyURL != "" {
		client.SetProxy(config.ProxyURL)
	}
	client.SetRetryCount(max(config.MaxRetries, 0))
	client.SetRetryWaitTime(time.Second)
	client.AddRetryCondition(func(r *resty.Response, err error) bool {
		return err != nil || r.StatusCode() == 429 || r.StatusCode() >= 500
	})

	// one request per delay, a zero delay is unlimited
	limit := rate.Inf
	if config.RequestDelayMs > 0 {
		limit = rate.Every(time.Duration(config.RequestDelayMs) * time.Millisecond)
	}
	limiter := rate.NewLimiter(limit, 1)
	client.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
		return limiter.Wait(req.Context())
	})

	scoped := telemetry.NewScopedAPI("winediscovery", tel)
	libtelemetry.InstrumentResty(client, "catalogsync.internal.source.winediscovery/http")
	telemetry.InstrumentResty(client, scoped, config.DumpDir)

	return &Source{
		http:     client,
		category: category,
		tel:      scoped,
	}, nil
}

// PageNumber reads the PAGEN_1 query parameter, the category url itself is
// page 1 and anything else is 0.
func (s *Source) PageNumber(u *url.URL) int {
	value := u.Query().Get(pageParam)
	if value == "" {
		if strings.TrimSuffix(u.Path, "/") == strings.TrimSuffix(s.category.Path, "/") {
			return 1
		}
		return 0
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0
	}
	return n
}

func (s *Source) get(ctx context.Context, target string) ([]byte, error) {
	res, err := s.http.R().SetContext(ctx).Get(target)
	if err != nil {
		return nil, err
	}
	if res.IsError() {
		return nil, fmt.Errorf("get %s: status %d", target, res.StatusCode())
	}
	return res.Body(), nil
}

type categoryPage struct {
	products []pipeline.Link
	next     []*url.URL
}

func (s *Source) readCategoryPage(ctx context.Context, page *url.URL, pageNum int) (categoryPage, error) {
	ctx, span := tracer.Start(ctx, "readCategoryPage")
	defer span.End()
	span.SetAttributes(attribute.String("url", page.String()), attribute.Int("page_num", pageNum))

	body, err := s.get(ctx, page.String())
	if err != nil {
		return categoryPage{}, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return categoryPage{}, err
	}

	var out categoryPage

	seen := map[string]bool{}
	duplicates := 0
	for _, anchor := range htmlutil.GetAnchors(ctx, doc.Find(productLinkSelector), page) {
		if seen[anchor.Href] {
			duplicates++
			continue
		}
		seen[anchor.Href] = true
		out.products = append(out.products, pipeline.Link{URL: anchor.Href, PageNum: pageNum})
	}
	if duplicates > 0 {
		s.tel.ReportDebug("filtered duplicate product links", page.String(), duplicates)
	}

	seenPages := map[string]bool{}
	for _, anchor := range htmlutil.GetAnchors(ctx, doc.Find(paginationLinkSelector), page) {
		if seenPages[anchor.Href] {
			continue
		}
		seenPages[anchor.Href] = true
		next, err := url.Parse(anchor.Href)
		if err != nil {
			continue
		}
		n := s.PageNumber(next)
		if n > 0 && n <= pageNum {
			continue
		}
		out.next = append(out.next, next)
	}
	// unknown page numbers go last
	slices.SortStableFunc(out.next, func(a, b *url.URL) int {
		na, nb := s.PageNumber(a), s.PageNumber(b)
		if na == 0 {
			na = math.MaxInt
		}
		if nb == 0 {
			nb = math.MaxInt
		}
		return na - nb
	})

	span.SetAttributes(attribute.Int("products", len(out.products)))
	return out, nil
}

// Discover walks the category breadth first, following pagination links
// forward only.
func (s *Source) Discover(ctx context.Context, yield func(pipeline.Link) error) error {
	ctx, span := tracer.Start(ctx, "Discover")
	defer span.End()

	queue := []*url.URL{s.category}
	queued := map[string]bool{s.category.String(): true}
	visited := map[string]bool{}
	yielded := map[string]bool{}
	counter := 0

	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}

		target := queue[0]
		queue = queue[1:]
		if visited[target.String()] {
			continue
		}
		visited[target.String()] = true

		counter++
		pageNum := s.PageNumber(target)
		if pageNum == 0 {
			pageNum = counter
		}

		page, err := s.readCategoryPage(ctx, target, pageNum)
		if err != nil {
			if counter == 1 {
				return err
			}
			// a broken later page only loses that page
			s.tel.ReportWarning(report_category_page, target.String(), err)
			continue
		}

		for _, next := range page.next {
			key := next.String()
			if visited[key] || queued[key] {
				continue
			}
			queued[key] = true
			queue = append(queue, next)
		}

		for _, link := range page.products {
			if yielded[link.URL] {
				continue
			}
			yielded[link.URL] = true
			err = yield(link)
			if err != nil {
				return err
			}
		}
	}

	s.tel.ReportCount("pages", int64(len(visited)))
	s.tel.ReportCount("products", int64(len(yielded)))
	return nil
}

func (s *Source) Fetch(ctx context.Context, link pipeline.Link) (pipeline.Page, error) {
	ctx, span := tracer.Start(ctx, "Fetch")
	defer span.End()
	span.SetAttributes(attribute.String("url", link.URL))

	body, err := s.get(ctx, link.URL)
	if err != nil {
		return pipeline.Page{}, err
	}
	return pipeline.Page{
		Content:   body,
		PageNum:   link.PageNum,
		SourceURL: link.URL,
	}, nil
}
