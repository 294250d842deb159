package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRawFieldsIsolatedFromInputs(t *testing.T) {
	values := map[Field]string{FieldTitle: "Коньяк"}
	lists := map[Field][]string{FieldGrapes: {"Уни Блан"}}
	raw := NewRawFields("https://example.com/p", 1, values, lists, nil)

	values[FieldTitle] = "changed"
	lists[FieldGrapes][0] = "changed"

	title, ok := raw.Value(FieldTitle)
	require.True(t, ok)
	require.Equal(t, "Коньяк", title)

	grapes := raw.List(FieldGrapes)
	require.Equal(t, []string{"Уни Блан"}, grapes)
	grapes[0] = "mutated"
	require.Equal(t, []string{"Уни Блан"}, raw.List(FieldGrapes))

	_, ok = raw.Value(FieldSKU)
	require.False(t, ok)
	require.Equal(t, []Field{FieldGrapes, FieldTitle}, raw.Fields())
}

func TestAvailabilityJSON(t *testing.T) {
	for _, a := range []Availability{AvailabilityUnknown, InStock, OutOfStock} {
		data, err := json.Marshal(a)
		require.NoError(t, err)

		var decoded Availability
		require.NoError(t, json.Unmarshal(data, &decoded))
		require.Equal(t, a, decoded)
	}

	data, err := json.Marshal(AvailabilityUnknown)
	require.NoError(t, err)
	require.Equal(t, "null", string(data))
}

func TestErrorKinds(t *testing.T) {
	err := fmt.Errorf("writing row: %w", NewError(KindSinkWriteFailure, "https://example.com/p", errors.New("quota")))
	kind, ok := KindOf(err)
	require.True(t, ok)
	require.Equal(t, KindSinkWriteFailure, kind)
	require.False(t, IsRunFatal(err))

	require.True(t, IsRunFatal(NewError(KindStateFailure, "", errors.New("disk gone"))))
	require.False(t, IsRunFatal(errors.New("plain")))

	wrapped := NewError(KindIdentityFailure, "", ErrMissingSourceURL)
	require.ErrorIs(t, wrapped, ErrMissingSourceURL)
}

func TestSummaryConcurrentObserve(t *testing.T) {
	summary := NewSummary("run", time.Unix(0, 0))

	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			switch i % 4 {
			case 0:
				summary.Observe(OutcomeInserted, "u", "k", nil)
			case 1:
				summary.Observe(OutcomeUpdated, "u", "k", nil)
			case 2:
				summary.Observe(OutcomeSkipped, "u", "k", nil)
			default:
				summary.Observe(OutcomeError, "u", "k", NewError(KindFetchFailure, "u", errors.New("timeout")))
			}
		}(i)
	}
	wg.Wait()

	require.Equal(t, 10, summary.Inserted())
	require.Equal(t, 10, summary.Updated())
	require.Equal(t, 10, summary.Skipped())
	require.Equal(t, 10, summary.Errors())
	require.Equal(t, 40, summary.Total())

	failures := summary.Failures()
	require.Len(t, failures, 10)
	require.Equal(t, KindFetchFailure, failures[0].Kind)

	summary.Finish(time.Unix(5, 0))
	require.Equal(t, 5*time.Second, summary.Duration())
}
