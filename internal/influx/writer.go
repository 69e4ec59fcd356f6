package influx

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/jgoulah/espisync/internal/config"
	"github.com/jgoulah/espisync/pkg/models"
)

const (
	// Measurement is the series every reading is written to.
	Measurement = "energy_usage"

	// SinkName identifies the writer in logs, errors and run results.
	SinkName = "influxdb"

	tagCategory = "type"
	fieldKWh    = "value_kwh"

	defaultPingTimeout = 5 * time.Second
)

// pointWriter is the part of api.WriteAPIBlocking the Writer uses.
type pointWriter interface {
	WritePoint(ctx context.Context, point ...*write.Point) error
}

// Writer sends readings to one InfluxDB org/bucket.
type Writer struct {
	client influxdb2.Client
	api    pointWriter
	batch  bool
	logger *slog.Logger
}

// Connect creates the client and verifies the server answers a ping.
func Connect(ctx context.Context, cfg config.InfluxDBConfig, logger *slog.Logger) (*Writer, error) {
	if logger == nil {
		logger = slog.Default()
	}

	client := influxdb2.NewClientWithOptions(
		cfg.URL,
		cfg.Token,
		influxdb2.DefaultOptions().SetPrecision(time.Second),
	)

	pingCtx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
	defer cancel()

	healthy, err := client.Ping(pingCtx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: ping failed: %w", ErrConnectionFailed, err)
	}
	if !healthy {
		client.Close()
		return nil, fmt.Errorf("%w: server not healthy", ErrConnectionFailed)
	}

	logger.DebugContext(ctx, "connected to influxdb", "url", cfg.URL, "org", cfg.Org, "bucket", cfg.Bucket)

	return &Writer{
		client: client,
		api:    client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		batch:  cfg.Batch,
		logger: logger,
	}, nil
}

// NewPoint maps a reading to its InfluxDB point.
func NewPoint(r models.Reading) *write.Point {
	return influxdb2.NewPoint(
		Measurement,
		map[string]string{tagCategory: r.Category},
		map[string]interface{}{fieldKWh: r.Value},
		time.Unix(r.Timestamp, 0),
	)
}

// Name identifies the sink in logs and errors.
func (w *Writer) Name() string {
	return SinkName
}

// WriteReadings writes the readings in order and returns how many points
// the server accepted. Points written before a failure stay written.
func (w *Writer) WriteReadings(ctx context.Context, readings []models.Reading) (int, error) {
	if len(readings) == 0 {
		return 0, nil
	}

	if w.batch {
		points := make([]*write.Point, 0, len(readings))
		for _, r := range readings {
			points = append(points, NewPoint(r))
		}
		if err := w.api.WritePoint(ctx, points...); err != nil {
			return 0, fmt.Errorf("%w: batch of %d points: %w", ErrWriteFailed, len(points), err)
		}
		return len(points), nil
	}

	for i, r := range readings {
		if err := w.api.WritePoint(ctx, NewPoint(r)); err != nil {
			return i, fmt.Errorf("%w: point at %s: %w", ErrWriteFailed, r.Time().Format(time.RFC3339), err)
		}
		w.logger.DebugContext(ctx, "wrote point", "timestamp", r.Timestamp, "value_kwh", r.Value)
	}
	return len(readings), nil
}

// Close releases the underlying client.
func (w *Writer) Close() error {
	if w.client != nil {
		w.client.Close()
	}
	return nil
}
