// Package collector runs the spatial collection pipeline: resolve the
// stations inside a boundary, fetch each station's series, and assemble the
// results into a single wide table.
package collector

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hidrodados/coletor/internal/domain"
	"github.com/hidrodados/coletor/internal/geo"
	"github.com/hidrodados/coletor/internal/observability"
)

// InventoryProvider lists the stations a data source knows about.
type InventoryProvider interface {
	Inventory(ctx context.Context) (domain.Inventory, error)
}

// SeriesProvider fetches one station's series for a date range.
type SeriesProvider interface {
	Series(ctx context.Context, code string, start, end time.Time) (domain.Series, error)
}

// Provider is a data source the collector can drive end to end.
type Provider interface {
	InventoryProvider
	SeriesProvider
	Name() string
}

// Request describes one collection run.
type Request struct {
	Boundary *geo.Boundary
	Start    time.Time
	End      time.Time
	Dedup    domain.DedupPolicy
}

// StationFailure records one station whose series fetch failed. The run
// continues past it.
type StationFailure struct {
	Code string
	Err  error
}

// Result is the outcome of one collection run.
type Result struct {
	RunID     string
	Provider  string
	Stations  []domain.Station
	Table     domain.WideTable
	Failed    []StationFailure
	StartedAt time.Time
	Duration  time.Duration
}

type Collector struct {
	provider Provider
	logger   *slog.Logger
	metrics  *observability.Metrics
}

func New(provider Provider, logger *slog.Logger, metrics *observability.Metrics) *Collector {
	return &Collector{provider: provider, logger: logger, metrics: metrics}
}

// CollectBoundary fetches series for every station of the provider that
// falls inside the request boundary and merges them into one table. A
// station whose fetch fails is recorded and skipped; an empty inventory
// yields an empty result, not an error.
func (c *Collector) CollectBoundary(ctx context.Context, req Request) (Result, error) {
	started := domain.Now()
	result := Result{
		RunID:     uuid.NewString(),
		Provider:  c.provider.Name(),
		StartedAt: started,
	}
	logger := c.logger.With("run_id", result.RunID, "provider", result.Provider)

	c.metrics.CollectionRunning.Inc()
	defer c.metrics.CollectionRunning.Dec()
	defer func() {
		result.Duration = domain.Now().Sub(started)
		c.metrics.CollectionDuration.Observe(result.Duration.Seconds())
	}()

	inv, err := c.provider.Inventory(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrEmptyResult) {
			logger.Warn("inventory is empty, nothing to collect")
			result.Table = domain.Merge(req.Dedup)
			return result, nil
		}
		return result, err
	}

	if req.Boundary != nil {
		inv = req.Boundary.Filter(inv)
	}
	stations := inv.Stations
	logger.Info("collection started",
		"stations", len(stations),
		"start", req.Start.Format("2006-01-02"),
		"end", req.End.Format("2006-01-02"))

	series := make([]domain.Series, 0, len(stations))
	for _, st := range stations {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		s, err := c.provider.Series(ctx, st.Code, req.Start, req.End)
		if err != nil {
			result.Failed = append(result.Failed, StationFailure{Code: st.Code, Err: err})
			c.metrics.StationFailures.Inc()
			logger.Warn("station fetch failed, skipping", "station", st.Code, "error", err)
			continue
		}
		series = append(series, s)
		result.Stations = append(result.Stations, st)
		c.metrics.StationsCollected.Inc()
	}

	result.Table = domain.Merge(req.Dedup, series...)
	logger.Info("collection finished",
		"collected", len(result.Stations),
		"failed", len(result.Failed),
		"rows", len(result.Table.Dates))
	return result, nil
}
