package oracle

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReadabilityNormalizeText(t *testing.T) {
	fragment := `<div><p>Уни Блан</p><p>Коломбар</p><script>track()</script></div>`
	res, err := Readability{}.NormalizeText(context.Background(), TextRequest{
		Section:  "сортовой состав",
		Fragment: fragment,
		PageURL:  "https://winediscovery.ru/katalog/tovar/x/",
	})
	require.NoError(t, err)
	require.Contains(t, res.Text, "Уни Блан")
	require.Contains(t, res.Text, "Коломбар")
	require.NotContains(t, res.Text, "track()")
}

func TestReadabilityEmptyFragment(t *testing.T) {
	_, err := Readability{}.NormalizeText(context.Background(), TextRequest{Fragment: "   "})
	require.ErrorIs(t, err, ErrUnavailable)

	_, err = Readability{}.NormalizeText(context.Background(), TextRequest{Fragment: "<div> </div>"})
	require.ErrorIs(t, err, ErrUnavailable)
}
