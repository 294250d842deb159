package timezone

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	loc, err := Load("")
	require.NoError(t, err)
	require.Equal(t, time.UTC, loc)

	loc, err = Load("Europe/Moscow")
	require.NoError(t, err)
	_, offset := time.Date(2024, time.August, 26, 12, 0, 0, 0, loc).Zone()
	require.Equal(t, 3*60*60, offset)

	_, err = Load("Mars/Olympus_Mons")
	require.Error(t, err)
}
