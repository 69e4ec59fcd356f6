package influx

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jgoulah/espisync/internal/config"
	"github.com/jgoulah/espisync/pkg/models"
)

// fakeInflux records v2 write requests.
type fakeInflux struct {
	mu       sync.Mutex
	bodies   []string
	queries  []string
	auth     []string
	failFrom int // reject writes from this request index on; <0 never
}

func (f *fakeInflux) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ping":
			w.WriteHeader(http.StatusNoContent)
		case "/api/v2/write":
			body, _ := io.ReadAll(r.Body)
			f.mu.Lock()
			idx := len(f.bodies)
			f.bodies = append(f.bodies, string(body))
			f.queries = append(f.queries, r.URL.RawQuery)
			f.auth = append(f.auth, r.Header.Get("Authorization"))
			f.mu.Unlock()
			if f.failFrom >= 0 && idx >= f.failFrom {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(`{"code":"invalid","message":"bucket is read-only"}`))
				return
			}
			w.WriteHeader(http.StatusNoContent)
		default:
			http.NotFound(w, r)
		}
	})
}

func newTestWriter(t *testing.T, batch bool, failFrom int) (*Writer, *fakeInflux) {
	t.Helper()
	fake := &fakeInflux{failFrom: failFrom}
	srv := httptest.NewServer(fake.handler())
	t.Cleanup(srv.Close)

	w, err := Connect(context.Background(), config.InfluxDBConfig{
		URL:    srv.URL,
		Token:  "test-token",
		Org:    "home",
		Bucket: "energy",
		Batch:  batch,
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })
	return w, fake
}

func TestWriteReadings_LineProtocol(t *testing.T) {
	w, fake := newTestWriter(t, false, -1)

	n, err := w.WriteReadings(context.Background(), []models.Reading{
		{Timestamp: 1700000000, Duration: 900, Value: 0.5, Category: models.CategoryElectric},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.Len(t, fake.bodies, 1)
	assert.Equal(t, "energy_usage,type=electric value_kwh=0.5 1700000000", strings.TrimSpace(fake.bodies[0]))
	assert.Contains(t, fake.queries[0], "precision=s")
	assert.Contains(t, fake.queries[0], "bucket=energy")
	assert.Contains(t, fake.queries[0], "org=home")
	assert.Equal(t, "Token test-token", fake.auth[0])
}

func TestWriteReadings_OneRequestPerReading(t *testing.T) {
	w, fake := newTestWriter(t, false, -1)

	readings := []models.Reading{
		{Timestamp: 1700001800, Duration: 900, Value: 0.25, Category: models.CategoryElectric},
		{Timestamp: 1700000900, Duration: 900, Value: 0.125, Category: models.CategoryElectric},
		{Timestamp: 1700000000, Duration: 900, Value: 1.5, Category: models.CategoryElectric},
	}
	n, err := w.WriteReadings(context.Background(), readings)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	require.Len(t, fake.bodies, 3)
	assert.Contains(t, fake.bodies[0], "value_kwh=0.25 1700001800")
	assert.Contains(t, fake.bodies[1], "value_kwh=0.125 1700000900")
	assert.Contains(t, fake.bodies[2], "value_kwh=1.5 1700000000")
}

func TestWriteReadings_StopsAtFirstFailure(t *testing.T) {
	w, fake := newTestWriter(t, false, 1)

	readings := []models.Reading{
		{Timestamp: 1700001800, Value: 0.25, Category: models.CategoryElectric},
		{Timestamp: 1700000900, Value: 0.125, Category: models.CategoryElectric},
		{Timestamp: 1700000000, Value: 1.5, Category: models.CategoryElectric},
	}
	n, err := w.WriteReadings(context.Background(), readings)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrWriteFailed)
	assert.Equal(t, 1, n)
	assert.Len(t, fake.bodies, 2, "no requests after the failing one")
}

func TestWriteReadings_Batch(t *testing.T) {
	w, fake := newTestWriter(t, true, -1)

	readings := []models.Reading{
		{Timestamp: 1700000900, Value: 0.2, Category: models.CategoryElectric},
		{Timestamp: 1700000000, Value: 0.1, Category: models.CategoryElectric},
	}
	n, err := w.WriteReadings(context.Background(), readings)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.Len(t, fake.bodies, 1)
	lines := strings.Split(strings.TrimSpace(fake.bodies[0]), "\n")
	assert.Equal(t, []string{
		"energy_usage,type=electric value_kwh=0.2 1700000900",
		"energy_usage,type=electric value_kwh=0.1 1700000000",
	}, lines)
}

func TestWriteReadings_BatchFailureWritesNothing(t *testing.T) {
	w, _ := newTestWriter(t, true, 0)

	n, err := w.WriteReadings(context.Background(), []models.Reading{
		{Timestamp: 1700000000, Value: 0.1, Category: models.CategoryElectric},
	})
	require.ErrorIs(t, err, ErrWriteFailed)
	assert.Equal(t, 0, n)
}

func TestWriteReadings_Empty(t *testing.T) {
	w, fake := newTestWriter(t, false, -1)

	n, err := w.WriteReadings(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, fake.bodies)
}

func TestConnect_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := Connect(context.Background(), config.InfluxDBConfig{URL: url, Token: "t", Org: "o", Bucket: "b"}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConnectionFailed)
}

type recordingAPI struct {
	points [][]*write.Point
	err    error
}

func (r *recordingAPI) WritePoint(_ context.Context, point ...*write.Point) error {
	r.points = append(r.points, point)
	return r.err
}

func TestWriteReadings_WrapsClientError(t *testing.T) {
	boom := errors.New("connection reset")
	api := &recordingAPI{err: boom}
	w := &Writer{api: api, logger: slog.New(slog.DiscardHandler)}

	n, err := w.WriteReadings(context.Background(), []models.Reading{{Timestamp: 1, Value: 1, Category: "electric"}})
	assert.Zero(t, n)
	assert.ErrorIs(t, err, ErrWriteFailed)
	assert.ErrorIs(t, err, boom)
	assert.Len(t, api.points, 1)
}

func TestNewPoint(t *testing.T) {
	p := NewPoint(models.Reading{Timestamp: 1700000000, Duration: 900, Value: 0.5, Category: "electric"})

	assert.Equal(t, Measurement, p.Name())
	require.Len(t, p.TagList(), 1)
	assert.Equal(t, "type", p.TagList()[0].Key)
	assert.Equal(t, "electric", p.TagList()[0].Value)
	require.Len(t, p.FieldList(), 1)
	assert.Equal(t, "value_kwh", p.FieldList()[0].Key)
	assert.Equal(t, 0.5, p.FieldList()[0].Value)
	assert.Equal(t, int64(1700000000), p.Time().Unix())
}
