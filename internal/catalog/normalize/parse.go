package normalize

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"catalogsync-backend/internal/catalog"
	"catalogsync-backend/lib/textutil"

	"github.com/cloudflare/ahocorasick"
)

var priceNumberRegex = regexp.MustCompile(`\d[\d\s.,]*`)
var decimalTailRegex = regexp.MustCompile(`[.,](\d{1,2})$`)

var currencyMarkers = []struct {
	marker   string
	currency string
}{
	{marker: "руб", currency: "RUB"},
	{marker: "₽", currency: "RUB"},
	{marker: "rub", currency: "RUB"},
	{marker: "$", currency: "USD"},
	{marker: "usd", currency: "USD"},
	{marker: "долл", currency: "USD"},
	{marker: "€", currency: "EUR"},
	{marker: "eur", currency: "EUR"},
	{marker: "евро", currency: "EUR"},
}

// ParsePrice reads a price such as "10 667 руб." ignoring thousands
// separators and surrounding noise. The currency is catalog.DefaultCurrency
// unless the text names another one.
func ParsePrice(text string) (*float64, string) {
	text = textutil.NormalizeWhitespace(text)

	currency := catalog.DefaultCurrency
	lower := strings.ToLower(text)
	for _, m := range currencyMarkers {
		if strings.Contains(lower, m.marker) {
			currency = m.currency
			break
		}
	}

	token := priceNumberRegex.FindString(text)
	token = strings.TrimRight(token, " .,")
	if token == "" {
		return nil, currency
	}

	var fraction string
	if match := decimalTailRegex.FindStringSubmatchIndex(token); match != nil {
		fraction = token[match[2]:match[3]]
		token = token[:match[0]]
	}
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, token)
	if fraction != "" {
		digits += "." + fraction
	}

	value, err := strconv.ParseFloat(digits, 64)
	if err != nil || value < 0 || math.IsInf(value, 0) {
		return nil, currency
	}
	return &value, currency
}

var volumeRegex = regexp.MustCompile(`(?i)(\d+(?:[.,]\d+)?)\s*(мл|л(?:итр\p{L}*)?|ml|lit(?:er|re)s?|l)(?:[^\p{L}]|$)`)

// ParseVolume reads the number before a liter (or milliliter) marker,
// "0,7 л", "0,7 литра" and "700 мл" all give 0.7.
func ParseVolume(text string) *float64 {
	match := volumeRegex.FindStringSubmatch(textutil.NormalizeWhitespace(text))
	if match == nil {
		return nil
	}
	value, ok := parseDecimal(match[1])
	if !ok {
		return nil
	}
	switch strings.ToLower(match[2]) {
	case "мл", "ml":
		value = value / 1000
	}
	if !ValidVolume(value) {
		return nil
	}
	return &value
}

var abvRegex = regexp.MustCompile(`(\d+(?:[.,]\d+)?)\s*%`)

// ParseABV reads the number before a percent marker.
func ParseABV(text string) *float64 {
	match := abvRegex.FindStringSubmatch(textutil.NormalizeWhitespace(text))
	if match == nil {
		return nil
	}
	value, ok := parseDecimal(match[1])
	if !ok || !ValidABV(value) {
		return nil
	}
	return &value
}

var ageRegex = regexp.MustCompile(`(?i)(?:^|[^\d])(\d{1,3})\s*-?\s*(?:лет|года|годов|год|летн\p{L}*|yo|y\.o\.|years?|yrs?)(?:[^\p{L}]|$)`)

// ParseAge reads an integer directly followed by an age marker ("5 лет",
// "12 YO"). Four digit numbers are never ages.
func ParseAge(text string) *int {
	match := ageRegex.FindStringSubmatch(textutil.NormalizeWhitespace(text))
	if match == nil {
		return nil
	}
	age, err := strconv.Atoi(match[1])
	if err != nil || !ValidAge(age) {
		return nil
	}
	return &age
}

var vintageRegex = regexp.MustCompile(`(?:^|[^\d])((?:19|20)\d{2})(?:[^\d]|$)`)
var vintageAgeMarker = regexp.MustCompile(`(?i)^\s*(?:лет|years?|yo)`)

// ParseVintage reads a standalone 19xx or 20xx year.
func ParseVintage(text string) *int {
	text = textutil.NormalizeWhitespace(text)
	for _, match := range vintageRegex.FindAllStringSubmatchIndex(text, -1) {
		if vintageAgeMarker.MatchString(text[match[3]:]) {
			continue
		}
		year, err := strconv.Atoi(text[match[2]:match[3]])
		if err == nil {
			return &year
		}
	}
	return nil
}

var outOfStockPhrases = []string{
	"нет в наличии",
	"отсутствует",
	"ожидается",
	"под заказ",
	"нет на складе",
	"распродано",
	"out of stock",
	"sold out",
}

var inStockPhrases = []string{
	"в наличии",
	"есть на складе",
	"in stock",
}

var availabilityMatcher = ahocorasick.NewStringMatcher(append(
	append([]string{}, outOfStockPhrases...),
	inStockPhrases...,
))

// ParseAvailability matches known stock phrases. "not available" phrases are
// checked first since most of them contain an "available" phrase.
func ParseAvailability(text string) catalog.Availability {
	text = strings.ToLower(textutil.NormalizeWhitespace(text))
	if text == "" {
		return catalog.AvailabilityUnknown
	}

	hits := availabilityMatcher.MatchThreadSafe([]byte(text))
	inStock := false
	for _, hit := range hits {
		if hit < len(outOfStockPhrases) {
			return catalog.OutOfStock
		}
		inStock = true
	}
	if inStock {
		return catalog.InStock
	}
	return catalog.AvailabilityUnknown
}

// DedupeList trims every item, drops blank ones and removes duplicates
// keeping the first occurrence.
func DedupeList(items []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, item := range items {
		item = textutil.NormalizeWhitespace(item)
		if item == "" || seen[item] {
			continue
		}
		seen[item] = true
		out = append(out, item)
	}
	return out
}

func parseDecimal(s string) (float64, bool) {
	value, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", "."), 64)
	if err != nil || math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, false
	}
	return value, true
}

func ValidPrice(v float64) bool {
	return v >= 0 && !math.IsNaN(v) && !math.IsInf(v, 0)
}

func ValidVolume(v float64) bool {
	return v > 0 && !math.IsInf(v, 0)
}

func ValidABV(v float64) bool {
	return v >= 0 && v <= 100
}

func ValidAge(v int) bool {
	return v >= 0 && v <= 200
}

var currencyCode = regexp.MustCompile(`^[A-Z]{3}$`)

func ValidCurrency(c string) bool {
	return currencyCode.MatchString(c)
}
