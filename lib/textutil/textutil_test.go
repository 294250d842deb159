package textutil

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeWhitespace(t *testing.T) {
	testCases := []struct {
		in     string
		expect string
	}{
		{in: "  10 667  руб. ", expect: "10 667 руб."},
		{in: "a\n\t b", expect: "a b"},
		{in: "1 500", expect: "1 500"},
		{in: "", expect: ""},
	}

	for _, test := range testCases {
		require.Equal(t, test.expect, NormalizeWhitespace(test.in))
	}
}

func TestClean(t *testing.T) {
	require.Nil(t, Clean(" \n "))
	require.Nil(t, CleanPtr(nil))

	value := Clean(" Франция ")
	require.NotNil(t, value)
	require.Equal(t, "Франция", *value)
}

func TestSplitLines(t *testing.T) {
	lines := SplitLines("Уни Блан\r\n\n   \nФоль  Бланш\rКоломбар\n")
	require.Equal(t, []string{"Уни Блан", "Фоль Бланш", "Коломбар"}, lines)
	require.Empty(t, SplitLines("  \n "))
}

func TestNormalizeName(t *testing.T) {
	require.Equal(t, "сортовой состав", NormalizeName(" Сортовой  состав: "))
	require.True(t, MatchName("Дегустационные характеристики:", []string{"дегустационные характеристики"}))
	require.False(t, MatchName("Доставка", []string{"гастрономия"}))
}

func TestClosestName(t *testing.T) {
	candidates := []string{"гастрономия", "сортовой состав", "способ выдержки"}

	match, ok := ClosestName("Сортовый состав", candidates, 0.9)
	require.True(t, ok)
	require.Equal(t, "сортовой состав", match)

	_, ok = ClosestName("Условия доставки", candidates, 0.9)
	require.False(t, ok)
}
