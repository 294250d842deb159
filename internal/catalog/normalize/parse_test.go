package normalize

import (
	"fmt"
	"testing"

	"catalogsync-backend/internal/catalog"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestParsePrice(t *testing.T) {
	testCases := []struct {
		in       string
		value    *float64
		currency string
	}{
		{in: "10 667 руб.", value: catalog.Ptr(10667.0), currency: "RUB"},
		{in: "10 667 ₽", value: catalog.Ptr(10667.0), currency: "RUB"},
		{in: "Цена: 9 999,50 руб.", value: catalog.Ptr(9999.5), currency: "RUB"},
		{in: "1.500", value: catalog.Ptr(1500.0), currency: "RUB"},
		{in: "$12.99", value: catalog.Ptr(12.99), currency: "USD"},
		{in: "45 €", value: catalog.Ptr(45.0), currency: "EUR"},
		{in: "по запросу", value: nil, currency: "RUB"},
		{in: "", value: nil, currency: "RUB"},
	}

	for _, test := range testCases {
		t.Run(test.in, func(t *testing.T) {
			value, currency := ParsePrice(test.in)
			require.Equal(t, test.value, value)
			require.Equal(t, test.currency, currency)
		})
	}
}

func TestParseVolume(t *testing.T) {
	testCases := []struct {
		in     string
		expect *float64
	}{
		{in: "0.5 л", expect: catalog.Ptr(0.5)},
		{in: "1,5 л", expect: catalog.Ptr(1.5)},
		{in: "Объём: 0,7 л", expect: catalog.Ptr(0.7)},
		{in: "700 мл", expect: catalog.Ptr(0.7)},
		{in: "0.75L", expect: catalog.Ptr(0.75)},
		{in: "0,75 литра", expect: catalog.Ptr(0.75)},
		{in: "Объём 1 литр", expect: catalog.Ptr(1.0)},
		{in: "3 литров", expect: catalog.Ptr(3.0)},
		{in: "1.5 liters", expect: catalog.Ptr(1.5)},
		{in: "6 лет", expect: nil},
		{in: "0 л", expect: nil},
		{in: "около литра", expect: nil},
	}

	for _, test := range testCases {
		t.Run(test.in, func(t *testing.T) {
			require.Equal(t, test.expect, ParseVolume(test.in))
		})
	}
}

func TestParseABV(t *testing.T) {
	testCases := []struct {
		in     string
		expect *float64
	}{
		{in: "40 %", expect: catalog.Ptr(40.0)},
		{in: "Крепость: 40%", expect: catalog.Ptr(40.0)},
		{in: "42,5 %", expect: catalog.Ptr(42.5)},
		{in: "140 %", expect: nil},
		{in: "сорок", expect: nil},
	}

	for _, test := range testCases {
		t.Run(test.in, func(t *testing.T) {
			require.Equal(t, test.expect, ParseABV(test.in))
		})
	}
}

func TestParseAvailability(t *testing.T) {
	testCases := []struct {
		in     string
		expect catalog.Availability
	}{
		{in: "Товар в наличии", expect: catalog.InStock},
		{in: "В НАЛИЧИИ", expect: catalog.InStock},
		{in: "Нет в наличии", expect: catalog.OutOfStock},
		{in: "Ожидается поставка", expect: catalog.OutOfStock},
		{in: "Под заказ", expect: catalog.OutOfStock},
		{in: "Звоните", expect: catalog.AvailabilityUnknown},
		{in: "", expect: catalog.AvailabilityUnknown},
	}

	for _, test := range testCases {
		t.Run(test.in, func(t *testing.T) {
			require.Equal(t, test.expect, ParseAvailability(test.in))
		})
	}
}

func TestParseAvailabilityConcurrent(t *testing.T) {
	inputs := []struct {
		in     string
		expect catalog.Availability
	}{
		{in: "Товар в наличии", expect: catalog.InStock},
		{in: "Нет в наличии", expect: catalog.OutOfStock},
		{in: "Sold out", expect: catalog.OutOfStock},
		{in: "Звоните", expect: catalog.AvailabilityUnknown},
	}

	var group errgroup.Group
	for worker := 0; worker < 8; worker++ {
		group.Go(func() error {
			for i := 0; i < 500; i++ {
				input := inputs[(worker+i)%len(inputs)]
				got := ParseAvailability(input.in)
				if got != input.expect {
					return fmt.Errorf("%q: got %s, want %s", input.in, got, input.expect)
				}
			}
			return nil
		})
	}
	require.NoError(t, group.Wait())
}

func TestParseAgeAndVintage(t *testing.T) {
	testCases := []struct {
		in      string
		age     *int
		vintage *int
	}{
		{in: "Коньяк SAMPLE XO 6 лет", age: catalog.Ptr(6)},
		{in: "Виски 12 YO", age: catalog.Ptr(12)},
		{in: "Бренди 5 y.o. 0,5 л", age: catalog.Ptr(5)},
		{in: "Арманьяк 20-летний", age: catalog.Ptr(20)},
		{in: "Выдержка: 3 года", age: catalog.Ptr(3)},
		{in: "Кальвадос 1995", vintage: catalog.Ptr(1995)},
		{in: "Арманьяк 2005 года", vintage: catalog.Ptr(2005)},
		{in: "Коньяк 1990, выдержка 25 лет", age: catalog.Ptr(25), vintage: catalog.Ptr(1990)},
		{in: "Коньяк VSOP", age: nil, vintage: nil},
	}

	for _, test := range testCases {
		t.Run(test.in, func(t *testing.T) {
			require.Equal(t, test.age, ParseAge(test.in))
			require.Equal(t, test.vintage, ParseVintage(test.in))
		})
	}
}

func TestDedupeList(t *testing.T) {
	got := DedupeList([]string{" Уни Блан ", "Коломбар", "", "Уни Блан", "  ", "Фоль Бланш", "Коломбар"})
	require.Equal(t, []string{"Уни Блан", "Коломбар", "Фоль Бланш"}, got)
	require.Nil(t, DedupeList(nil))
}
