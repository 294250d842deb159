package chrono

import (
	"testing"
	"time"

	"catalogsync-backend/internal/telemetry"

	"github.com/stretchr/testify/require"
)

func TestFixedTime(t *testing.T) {
	start := time.Date(2024, 5, 1, 10, 0, 0, 0, time.FixedZone("MSK", 3*60*60))
	clock := NewFixedTime(start)
	require.Equal(t, time.UTC, clock.Now().Location())
	require.True(t, clock.Now().Equal(start))

	clock.Advance(time.Hour)
	require.True(t, clock.Now().Equal(start.Add(time.Hour)))
}

func TestStandardCronRejectsBadSpec(t *testing.T) {
	cron := NewStandardCron(telemetry.NewRecorder(), nil)
	defer cron.Stop()

	require.Error(t, cron.Cron("not a spec", func() {}))
	require.NoError(t, cron.Cron("@every 1h", func() {}))
}

func TestStandardCronRuns(t *testing.T) {
	cron := NewStandardCron(telemetry.NewRecorder(), time.UTC)
	defer cron.Stop()

	ran := make(chan struct{}, 1)
	require.NoError(t, cron.Cron("@every 1s", func() {
		select {
		case ran <- struct{}{}:
		default:
		}
	}))

	select {
	case <-ran:
	case <-time.After(5 * time.Second):
		t.Fatal("cron job never ran")
	}
}
