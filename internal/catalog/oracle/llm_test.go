package oracle

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeCompleter struct {
	mutex   sync.Mutex
	answer  string
	err     error
	prompts []string
}

func (f *fakeCompleter) Complete(_ context.Context, system, prompt string) (string, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.prompts = append(f.prompts, prompt)
	return f.answer, f.err
}

func TestLLMParsePrice(t *testing.T) {
	completer := &fakeCompleter{answer: "```json\n{\"price_value\": 10667, \"currency\": \"rub\", \"volume_l\": 3}\n```"}
	llm := NewLLM(completer, LLMOptions{})

	values, err := llm.ParseValue(context.Background(), ValueRequest{RawText: "10 667 руб.", Schema: SchemaPrice})
	require.NoError(t, err)
	require.NotNil(t, values.PriceValue)
	require.Equal(t, 10667.0, *values.PriceValue)
	require.Equal(t, "RUB", *values.Currency)
	// outside of the price schema
	require.Nil(t, values.VolumeL)
	require.Contains(t, completer.prompts[0], "10 667 руб.")
}

func TestLLMRejectsMalformed(t *testing.T) {
	testCases := []struct {
		name   string
		answer string
		schema Schema
	}{
		{name: "not json", answer: "около пятисот миллилитров", schema: SchemaVolumeABV},
		{name: "wrong type", answer: `{"volume_l": "half"}`, schema: SchemaVolumeABV},
		{name: "fractional age", answer: `{"age_years": 2.5}`, schema: SchemaAge},
		{name: "empty", answer: "  ", schema: SchemaPrice},
		{name: "unknown schema", answer: `{}`, schema: Schema("color")},
	}

	for _, test := range testCases {
		t.Run(test.name, func(t *testing.T) {
			llm := NewLLM(&fakeCompleter{answer: test.answer}, LLMOptions{})
			_, err := llm.ParseValue(context.Background(), ValueRequest{RawText: "x", Schema: test.schema})
			require.ErrorIs(t, err, ErrUnavailable)
		})
	}
}

func TestLLMNullValuesAreUnset(t *testing.T) {
	llm := NewLLM(&fakeCompleter{answer: `{"volume_l": null, "abv": 40}`}, LLMOptions{})
	values, err := llm.ParseValue(context.Background(), ValueRequest{RawText: "40%", Schema: SchemaVolumeABV})
	require.NoError(t, err)
	require.Nil(t, values.VolumeL)
	require.Equal(t, 40.0, *values.ABV)
}

func TestLLMCompleterFailure(t *testing.T) {
	llm := NewLLM(&fakeCompleter{err: errors.New("429 too many requests")}, LLMOptions{Timeout: time.Second})
	_, err := llm.NormalizeText(context.Background(), TextRequest{Section: "гастрономия", Fragment: "<p>x</p>"})
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestLLMNormalizeText(t *testing.T) {
	completer := &fakeCompleter{answer: `{"text": " Уни Блан\nКоломбар ", "list": ["Уни Блан", "Коломбар"]}`}
	llm := NewLLM(completer, LLMOptions{RequestsPerMinute: 600})

	res, err := llm.NormalizeText(context.Background(), TextRequest{Section: "сортовой состав", Fragment: "<p>Уни Блан</p><p>Коломбар</p>"})
	require.NoError(t, err)
	require.Equal(t, "Уни Блан\nКоломбар", res.Text)
	require.Equal(t, []string{"Уни Блан", "Коломбар"}, res.List)
	require.Contains(t, completer.prompts[0], "«сортовой состав»")

	completer.answer = `{"text": ""}`
	_, err = llm.NormalizeText(context.Background(), TextRequest{Section: "награды", Fragment: "<p></p>"})
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestNoop(t *testing.T) {
	_, err := Noop{}.NormalizeText(context.Background(), TextRequest{})
	require.ErrorIs(t, err, ErrUnavailable)
	_, err = Noop{}.ParseValue(context.Background(), ValueRequest{})
	require.ErrorIs(t, err, ErrUnavailable)
}
