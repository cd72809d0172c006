// Package swarmintel provides a top-level convenience entry point for wiring
// the stigmergic intelligence coordination layer with minimal boilerplate.
//
// Usage:
//
//	import "github.com/BaSui01/swarmintel"
//
//	coord, err := swarmintel.New(ctx, config.DefaultConfig(), logger)
//	results, err := coord.Query(ctx, "Apache httpd", "2.4.49")
//	coord.Announce(ctx, "10.0.0.5:443", "cve", "Apache httpd", "2.4.49", results)
//
// A Coordinator owns one transport client, one aggregator with the default
// source set, the coalescing cache, and the stigmergic publisher/subscriber
// pair. Multiple isolated instances can coexist (nothing is process-global),
// which is what the tests rely on.
package swarmintel

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/BaSui01/swarmintel/config"
	"github.com/BaSui01/swarmintel/intel"
	"github.com/BaSui01/swarmintel/intel/sources"
	"github.com/BaSui01/swarmintel/internal/metrics"
	"github.com/BaSui01/swarmintel/stigmergy"
	"github.com/BaSui01/swarmintel/transport"
	"github.com/BaSui01/swarmintel/types"
)

// Coordinator bundles the coordination layer components for one agent.
type Coordinator struct {
	Transport  *transport.Client
	Aggregator *intel.Aggregator
	Cache      *intel.Cache
	Publisher  *stigmergy.Publisher
	Subscriber *stigmergy.Subscriber

	logger *zap.Logger
}

// New connects the transport and wires aggregator, cache, and stigmergic
// publisher/subscriber from cfg. The subscriber is created but not started;
// call [Coordinator.Listen] to join the swarm channel.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Coordinator, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	client, err := transport.Connect(ctx, cfg.Transport, logger)
	if err != nil {
		return nil, err
	}

	agg := intel.NewAggregator(cfg.Aggregator, logger)
	cache := intel.NewCache(agg, client, cfg.Cache, logger)

	c := &Coordinator{
		Transport:  client,
		Aggregator: agg,
		Cache:      cache,
		Publisher:  stigmergy.NewPublisher(client, cfg.Stigmergy, logger),
		Subscriber: stigmergy.NewSubscriber(client, cache, cfg.Stigmergy, logger),
		logger:     logger,
	}

	if err := c.registerSources(cfg.Sources); err != nil {
		_ = client.Close()
		return nil, err
	}

	return c, nil
}

// UseMetrics wires a Prometheus collector through every component.
func (c *Coordinator) UseMetrics(m *metrics.Collector) {
	c.Transport.UseMetrics(m)
	c.Aggregator.UseCollector(m)
	c.Cache.UseCollector(m)
	c.Subscriber.UseCollector(m)
}

// registerSources adds every enabled source from the configuration.
func (c *Coordinator) registerSources(cfg config.SourcesConfig) error {
	if cfg.KEV.Enabled {
		if err := c.Aggregator.AddSource(sources.NewKEVSource(cfg.KEV)); err != nil {
			return err
		}
	}
	if cfg.NVD.Enabled {
		if err := c.Aggregator.AddSource(sources.NewNVDSource(cfg.NVD)); err != nil {
			return err
		}
	}
	if cfg.ExploitDB.Enabled {
		if err := c.Aggregator.AddSource(sources.NewExploitDBSource(cfg.ExploitDB)); err != nil {
			return err
		}
	}
	if cfg.Nuclei.Enabled {
		if err := c.Aggregator.AddSource(sources.NewNucleiSource(cfg.Nuclei)); err != nil {
			return err
		}
	}
	if cfg.Metasploit.Enabled {
		if err := c.Aggregator.AddSource(sources.NewMetasploitSource(cfg.Metasploit)); err != nil {
			return err
		}
	}
	return nil
}

// Listen starts the background swarm subscriber.
func (c *Coordinator) Listen(ctx context.Context) error {
	return c.Subscriber.Start(ctx)
}

// Query answers an intelligence request through the cache-first path.
func (c *Coordinator) Query(ctx context.Context, service, version string) ([]types.IntelResult, error) {
	return c.Cache.Query(ctx, service, version)
}

// Announce broadcasts results for a target so other agents skip the query.
func (c *Coordinator) Announce(ctx context.Context, target, findingType, service, version string, results []types.IntelResult) error {
	return c.Publisher.Announce(ctx, stigmergy.Announcement{
		Service: service,
		Version: version,
		Target:  target,
		Type:    findingType,
		Results: results,
	})
}

// Close shuts down the subscriber and the transport.
func (c *Coordinator) Close() error {
	var errs []error
	if c.Subscriber != nil {
		errs = append(errs, c.Subscriber.Close())
	}
	if c.Transport != nil {
		errs = append(errs, c.Transport.Close())
	}
	return errors.Join(errs...)
}
