package identity

import (
	"testing"

	"catalogsync-backend/internal/catalog"

	"github.com/stretchr/testify/require"
)

func sampleRecord() catalog.NormalizedRecord {
	return catalog.NormalizedRecord{
		Title:            "Коньяк SAMPLE XO 6 лет",
		SKU:              catalog.Ptr("SAMPLE-001"),
		Country:          catalog.Ptr("Франция"),
		Brand:            catalog.Ptr("Sample Brand"),
		PriceValue:       catalog.Ptr(10667.0),
		PriceCurrency:    "RUB",
		VolumeL:          catalog.Ptr(0.7),
		ABVPercent:       catalog.Ptr(40.0),
		AgeYears:         catalog.Ptr(6),
		Availability:     catalog.InStock,
		Grapes:           []string{"Уни Блан", "Коломбар"},
		Breadcrumbs:      []string{"Главная", "Каталог"},
		ImageOriginalURL: catalog.Ptr("https://winediscovery.ru/upload/sample.jpg"),
		SourceURL:        "https://winediscovery.ru/katalog/tovar/sample/",
		PageNum:          1,
	}
}

func TestResolve(t *testing.T) {
	record := sampleRecord()
	require.Equal(t, catalog.ProductKey{ID: "SAMPLE-001"}, Resolve(record))

	record.SKU = catalog.Ptr("   ")
	key := Resolve(record)
	require.True(t, key.Derived)
	require.Len(t, key.ID, 64)

	record.SKU = nil
	require.Equal(t, key, Resolve(record))

	other := sampleRecord()
	other.SKU = nil
	other.SourceURL = "https://winediscovery.ru/katalog/tovar/other/"
	require.NotEqual(t, key.ID, Resolve(other).ID)
}

func TestResolveStableAcrossRecords(t *testing.T) {
	a := sampleRecord()
	a.SKU = nil
	b := sampleRecord()
	b.SKU = nil
	b.Title = "changed title"
	b.PageNum = 9

	// the derived key depends only on the source url
	require.Equal(t, Resolve(a), Resolve(b))
	// this value must never change, stored state depends on it
	require.Equal(t, hashString("https://winediscovery.ru/katalog/tovar/sample/"), Resolve(a).ID)
}

func TestFingerprintIgnoresPageNum(t *testing.T) {
	a := sampleRecord()
	b := sampleRecord()
	b.PageNum = 7
	require.Equal(t, MustFingerprint(a), MustFingerprint(b))
}

func TestFingerprintTreatsEmptyListsAsUnset(t *testing.T) {
	a := sampleRecord()
	a.Grapes = nil
	b := sampleRecord()
	b.Grapes = []string{}
	require.Equal(t, MustFingerprint(a), MustFingerprint(b))
}

func TestFingerprintSensitivity(t *testing.T) {
	base := MustFingerprint(sampleRecord())

	mutations := map[string]func(r *catalog.NormalizedRecord){
		"title":          func(r *catalog.NormalizedRecord) { r.Title = "Коньяк SAMPLE XO 7 лет" },
		"sku":            func(r *catalog.NormalizedRecord) { r.SKU = catalog.Ptr("SAMPLE-002") },
		"country unset":  func(r *catalog.NormalizedRecord) { r.Country = nil },
		"brand":          func(r *catalog.NormalizedRecord) { r.Brand = catalog.Ptr("Other") },
		"producer":       func(r *catalog.NormalizedRecord) { r.Producer = catalog.Ptr("Maison") },
		"price":          func(r *catalog.NormalizedRecord) { r.PriceValue = catalog.Ptr(10668.0) },
		"currency":       func(r *catalog.NormalizedRecord) { r.PriceCurrency = "EUR" },
		"volume":         func(r *catalog.NormalizedRecord) { r.VolumeL = catalog.Ptr(0.5) },
		"abv":            func(r *catalog.NormalizedRecord) { r.ABVPercent = catalog.Ptr(41.0) },
		"age":            func(r *catalog.NormalizedRecord) { r.AgeYears = catalog.Ptr(7) },
		"vintage":        func(r *catalog.NormalizedRecord) { r.VintageYear = catalog.Ptr(2001) },
		"availability":   func(r *catalog.NormalizedRecord) { r.Availability = catalog.OutOfStock },
		"tasting notes":  func(r *catalog.NormalizedRecord) { r.TastingNotes = catalog.Ptr("ваниль") },
		"gastronomy":     func(r *catalog.NormalizedRecord) { r.Gastronomy = catalog.Ptr("сыр") },
		"maturation":     func(r *catalog.NormalizedRecord) { r.Maturation = catalog.Ptr("дуб") },
		"awards":         func(r *catalog.NormalizedRecord) { r.Awards = catalog.Ptr("gold") },
		"gift packaging": func(r *catalog.NormalizedRecord) { r.GiftPackaging = catalog.Ptr("коробка") },
		"grapes order":   func(r *catalog.NormalizedRecord) { r.Grapes = []string{"Коломбар", "Уни Блан"} },
		"breadcrumbs":    func(r *catalog.NormalizedRecord) { r.Breadcrumbs = []string{"Главная"} },
		"image":          func(r *catalog.NormalizedRecord) { r.ImageOriginalURL = catalog.Ptr("https://x/y.jpg") },
		"source url":     func(r *catalog.NormalizedRecord) { r.SourceURL = "https://winediscovery.ru/x/" },
	}

	seen := map[catalog.Fingerprint]string{base: "base"}
	for name, mutate := range mutations {
		record := sampleRecord()
		mutate(&record)
		fp := MustFingerprint(record)
		require.NotEqual(t, base, fp, "changing %s kept the fingerprint", name)

		previous, dup := seen[fp]
		require.False(t, dup, "%s collides with %s", name, previous)
		seen[fp] = name
	}
}

func TestFingerprintDeterministic(t *testing.T) {
	a := MustFingerprint(sampleRecord())
	for i := 0; i < 20; i++ {
		require.Equal(t, a, MustFingerprint(sampleRecord()))
	}
	require.Len(t, string(a), 64)
}
