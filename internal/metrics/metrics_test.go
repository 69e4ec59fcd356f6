package metrics

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder_Success(t *testing.T) {
	r := New()
	started := time.Unix(1700000000, 0)

	r.FeedFetched(2048)
	r.ReadingsParsed(96)
	r.PointsWritten("influxdb", 96)
	r.PointsWritten("archive", 96)
	r.RunFinished(started, started.Add(1500*time.Millisecond), "")

	assert.Equal(t, 2048.0, testutil.ToFloat64(r.feedBytes))
	assert.Equal(t, 96.0, testutil.ToFloat64(r.readings))
	assert.Equal(t, 96.0, testutil.ToFloat64(r.pointsWritten.WithLabelValues("influxdb")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.success))
	assert.Equal(t, 1700000001.0, testutil.ToFloat64(r.lastRun))
	assert.InDelta(t, 1.5, testutil.ToFloat64(r.runDurationSec), 1e-9)
	assert.Equal(t, 0, testutil.CollectAndCount(r.failedStage))
}

func TestRecorder_Failure(t *testing.T) {
	r := New()
	now := time.Now()

	r.RunFinished(now, now, "write")

	assert.Equal(t, 0.0, testutil.ToFloat64(r.success))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.failedStage.WithLabelValues("write")))
}

func TestRecorder_NilIsNoop(t *testing.T) {
	var r *Recorder
	r.FeedFetched(1)
	r.ReadingsParsed(1)
	r.PointsWritten("influxdb", 1)
	r.RunFinished(time.Now(), time.Now(), "")
	assert.NoError(t, r.WriteTextfile("/nonexistent/espisync.prom"))
}

func TestWriteTextfile(t *testing.T) {
	r := New()
	r.ReadingsParsed(4)
	r.PointsWritten("influxdb", 4)

	path := filepath.Join(t.TempDir(), "espisync.prom")
	require.NoError(t, r.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "espisync_readings 4")
	assert.Contains(t, string(data), `espisync_points_written{sink="influxdb"} 4`)

	require.Error(t, r.WriteTextfile(filepath.Join(t.TempDir(), "missing", "dir", "x.prom")))
}
