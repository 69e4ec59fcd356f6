package main

import (
	"context"
	"errors"

	"github.com/jgoulah/espisync/internal/config"
	"github.com/jgoulah/espisync/internal/database"
	"github.com/jgoulah/espisync/internal/influx"
	"github.com/jgoulah/espisync/internal/logging"
	"github.com/jgoulah/espisync/internal/pipeline"
	"github.com/jgoulah/espisync/internal/publisher"
)

// sinkConnector opens the configured sinks once the pipeline has readings
// to write. InfluxDB comes first, then the archive, then MQTT.
type sinkConnector struct {
	cfg   *config.Config
	db    *database.DB // nil when the archive is disabled
	runID string
	log   *logging.Logger

	closers []func() error
}

// Connect is the pipeline's Connect hook
func (c *sinkConnector) Connect(ctx context.Context) ([]pipeline.Sink, error) {
	var sinks []pipeline.Sink

	w, err := influx.Connect(ctx, c.cfg.InfluxDB, c.log.Logger)
	if err != nil {
		return nil, err
	}
	sinks = append(sinks, w)
	c.closers = append(c.closers, w.Close)

	if c.db != nil {
		sinks = append(sinks, c.db.Archive(c.runID))
	}

	if c.cfg.MQTT.Enabled {
		pub, err := publisher.New(c.cfg.MQTT)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, pub)
		c.closers = append(c.closers, pub.Close)
		c.log.Info("mqtt publishing enabled", "broker", c.cfg.MQTT.Broker, "topic_prefix", c.cfg.GetTopicPrefix())
	}

	return sinks, nil
}

// Close closes every connected sink in reverse order
func (c *sinkConnector) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}
