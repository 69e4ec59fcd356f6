package pipeline

import (
	"cmp"
	"context"
	"log/slog"
	"slices"
	"time"

	"github.com/jgoulah/espisync/internal/espi"
	"github.com/jgoulah/espisync/internal/metrics"
	"github.com/jgoulah/espisync/pkg/models"
)

// Fetcher retrieves the raw feed document.
type Fetcher interface {
	Fetch(ctx context.Context) ([]byte, error)
}

// Sink stores readings. WriteReadings returns how many readings were
// accepted before any error.
type Sink interface {
	Name() string
	WriteReadings(ctx context.Context, readings []models.Reading) (int, error)
}

// Options configures a Pipeline.
type Options struct {
	Fetcher  Fetcher
	Location *time.Location // zone of the feed's wall-clock timestamps
	Sinks    []Sink         // written in order; the first is the system of record
	Logger   *slog.Logger
	Metrics  *metrics.Recorder

	// Connect, if set, opens further sinks once the feed has parsed and has
	// readings to write. They are written after Sinks.
	Connect func(ctx context.Context) ([]Sink, error)
}

// Pipeline runs fetch, parse, sort and write once per call.
type Pipeline struct {
	fetcher  Fetcher
	location *time.Location
	sinks    []Sink
	connect  func(ctx context.Context) ([]Sink, error)
	logger   *slog.Logger
	metrics  *metrics.Recorder
}

// Result describes what a run did. It is returned alongside errors so a
// failed run can still be reported.
type Result struct {
	FeedBytes int
	Readings  []models.Reading // sorted newest first
	Written   map[string]int   // readings accepted per sink
}

// New creates a Pipeline.
func New(opts Options) *Pipeline {
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		fetcher:  opts.Fetcher,
		location: loc,
		sinks:    opts.Sinks,
		connect:  opts.Connect,
		logger:   logger,
		metrics:  opts.Metrics,
	}
}

// Run fetches the feed and processes it.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	data, err := p.fetcher.Fetch(ctx)
	if err != nil {
		return &Result{Written: map[string]int{}}, &StageError{Stage: StageFetch, Err: err}
	}
	p.metrics.FeedFetched(len(data))
	return p.Process(ctx, data)
}

// Process parses a feed document and writes its readings to every sink.
// Nothing is written, and no sink is connected, unless the whole document
// parses.
func (p *Pipeline) Process(ctx context.Context, data []byte) (*Result, error) {
	result := &Result{FeedBytes: len(data), Written: map[string]int{}}

	readings, err := espi.Parse(data, p.location)
	if err != nil {
		return result, &StageError{Stage: StageParse, Err: err}
	}
	SortNewestFirst(readings)
	result.Readings = readings
	p.metrics.ReadingsParsed(len(readings))

	p.logger.InfoContext(ctx, "parsed usage feed", "readings", len(readings), "zone", p.location.String())

	if len(readings) == 0 {
		p.logger.InfoContext(ctx, "no electric readings in feed")
		return result, nil
	}

	sinks := p.sinks
	if p.connect != nil {
		connected, err := p.connect(ctx)
		if err != nil {
			return result, &StageError{Stage: StageWrite, Err: err}
		}
		sinks = append(slices.Clip(sinks), connected...)
	}

	for _, sink := range sinks {
		n, err := sink.WriteReadings(ctx, readings)
		result.Written[sink.Name()] = n
		p.metrics.PointsWritten(sink.Name(), n)
		if err != nil {
			we := &WriteError{Sink: sink.Name(), Written: n, Total: len(readings), Err: err}
			if n >= 0 && n < len(readings) {
				we.Reading = readings[n]
			}
			return result, &StageError{Stage: StageWrite, Err: we}
		}
		p.logger.InfoContext(ctx, "wrote readings", "sink", sink.Name(), "count", n)
	}

	return result, nil
}

// SortNewestFirst orders readings by timestamp, latest interval first.
// Readings with equal timestamps keep their feed order.
func SortNewestFirst(readings []models.Reading) {
	slices.SortStableFunc(readings, func(a, b models.Reading) int {
		return cmp.Compare(b.Timestamp, a.Timestamp)
	})
}
