// Package api exposes the collector over a REST surface.
package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hidrodados/coletor/internal/adapter/ana"
	"github.com/hidrodados/coletor/internal/adapter/inmet"
	"github.com/hidrodados/coletor/internal/adapter/merge"
	"github.com/hidrodados/coletor/internal/collector"
	"github.com/hidrodados/coletor/internal/config"
	"github.com/hidrodados/coletor/internal/domain"
	"github.com/hidrodados/coletor/internal/geo"
	"github.com/hidrodados/coletor/internal/grid"
	"github.com/hidrodados/coletor/internal/observability"
)

// ReadinessChecker reports whether the service can serve traffic.
type ReadinessChecker func() error

// Server bundles router and dependencies for the REST API.
type Server struct {
	cfg     *config.Config
	ana     *ana.Client
	inmet   *inmet.Client
	logger  *slog.Logger
	metrics *observability.Metrics
	ready   ReadinessChecker
	engine  *gin.Engine

	// loadGrid stacks the decoded daily grids for a date range. Swappable
	// in tests to avoid real GRIB fixtures.
	loadGrid func(dir string, start, end time.Time) (grid.Dataset, error)
}

// New constructs a server with routes and middleware.
func New(cfg *config.Config, anaClient *ana.Client, inmetClient *inmet.Client, logger *slog.Logger, metrics *observability.Metrics, ready ReadinessChecker) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(gin.Logger())
	engine.Use(corsMiddleware())

	server := &Server{
		cfg:     cfg,
		ana:     anaClient,
		inmet:   inmetClient,
		logger:  logger,
		metrics: metrics,
		ready:   ready,
		engine:  engine,
	}
	server.loadGrid = merge.NewDecoder(logger).LoadRange
	server.registerRoutes()
	return server
}

// Engine exposes the underlying gin engine (for tests).
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Run starts the HTTP server and blocks until shutdown.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.cfg.HTTPAddr,
		Handler: s.engine,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) registerRoutes() {
	s.engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	s.engine.GET("/readyz", s.handleReady)
	s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := s.engine.Group("/v1")
	v1.GET("/ana/inventory", s.handleANAInventory)
	v1.GET("/ana/stations/:code/series", s.handleANASeries)
	v1.GET("/inmet/stations", s.handleINMETStations)
	v1.GET("/inmet/stations/:code/series", s.handleINMETSeries)
	v1.POST("/collect", s.handleCollect)
	v1.POST("/merge/collect", s.handleMergeCollect)
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

func (s *Server) handleReady(c *gin.Context) {
	if s.ready != nil {
		if err := s.ready(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready", "error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

func (s *Server) handleANAInventory(c *gin.Context) {
	filter := ana.InventoryFilter{Code: c.Query("code")}

	switch kind := c.Query("kind"); kind {
	case "":
	case string(domain.StreamGauge):
		filter.Kind = domain.StreamGauge
	case string(domain.RainGauge):
		filter.Kind = domain.RainGauge
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid kind: " + kind})
		return
	}
	telemetry, ok := parseTelemetry(c.Query("telemetry"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid telemetry: " + c.Query("telemetry")})
		return
	}
	filter.Telemetry = telemetry

	ctx, cancel := context.WithTimeout(c.Request.Context(), s.cfg.RequestTimeout)
	defer cancel()

	inv, err := s.ana.Inventory(ctx, filter)
	if err != nil {
		s.writeProviderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": inv.Len(), "stations": inv.Stations})
}

func (s *Server) handleANASeries(c *gin.Context) {
	variable, err := ana.ParseVariable(c.DefaultQuery("variable", "precipitation"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	start, end, ok := parseRange(c)
	if !ok {
		return
	}

	q := ana.SeriesQuery{
		Code:     c.Param("code"),
		Variable: variable,
		Start:    start,
		End:      end,
	}
	switch cons := c.Query("consistency"); cons {
	case "":
	case "raw":
		q.Consistency = ana.Raw
	case "validated":
		q.Consistency = ana.Validated
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid consistency: " + cons})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), s.cfg.RequestTimeout)
	defer cancel()

	series, err := s.ana.Series(ctx, q)
	if err != nil {
		s.writeProviderError(c, err)
		return
	}
	writeSeries(c, series)
}

func (s *Server) handleINMETStations(c *gin.Context) {
	telemetry, ok := parseTelemetry(c.Query("telemetry"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid telemetry: " + c.Query("telemetry")})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), s.cfg.RequestTimeout)
	defer cancel()

	inv, err := s.inmet.Stations(ctx, telemetry)
	if err != nil {
		s.writeProviderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": inv.Len(), "stations": inv.Stations})
}

func (s *Server) handleINMETSeries(c *gin.Context) {
	name := c.DefaultQuery("variable", "rainfall")
	code, ok := inmet.Variables()[name]
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown variable: " + name})
		return
	}
	start, end, rangeOK := parseRange(c)
	if !rangeOK {
		return
	}

	q := inmet.SeriesQuery{
		Code:     c.Param("code"),
		Variable: code,
		Freq:     inmet.Daily,
		Start:    start,
		End:      end,
	}
	switch freq := c.Query("freq"); freq {
	case "", "daily":
	case "hourly":
		q.Freq = inmet.Hourly
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid freq: " + freq})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), s.cfg.RequestTimeout)
	defer cancel()

	series, err := s.inmet.Series(ctx, q)
	if err != nil {
		s.writeProviderError(c, err)
		return
	}
	writeSeries(c, series)
}

// handleCollect runs a boundary collection: the request body is the boundary
// GeoJSON, query parameters select provider and range.
func (s *Server) handleCollect(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil || len(body) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "boundary geojson body is required"})
		return
	}
	boundary, err := geo.FromGeoJSON(body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	start, end, ok := parseRange(c)
	if !ok {
		return
	}

	provider, err := s.providerFor(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	dedup := domain.KeepFirst
	if s.cfg.DedupKeepLast {
		dedup = domain.KeepLast
	}

	runner := collector.New(provider, s.logger, s.metrics)
	result, err := runner.CollectBoundary(c.Request.Context(), collector.Request{
		Boundary: boundary,
		Start:    start,
		End:      end,
		Dedup:    dedup,
	})
	if err != nil {
		s.writeProviderError(c, err)
		return
	}

	failures := make([]gin.H, 0, len(result.Failed))
	for _, f := range result.Failed {
		failures = append(failures, gin.H{"code": f.Code, "error": f.Err.Error()})
	}
	c.JSON(http.StatusOK, gin.H{
		"run_id":       result.RunID,
		"provider":     result.Provider,
		"started_at":   result.StartedAt,
		"duration_ms":  result.Duration.Milliseconds(),
		"stations":     result.Stations,
		"failed":       failures,
		"dates":        result.Table.Dates,
		"columns":      result.Table.Columns,
		"values":       jsonSafeValues(result.Table.Values),
		"generated_at": result.Table.GeneratedAt,
	})
}

// handleMergeCollect runs the gridded-precipitation pipeline: download the
// daily grid files for the range, decode and stack them, clip to the
// boundary, and reduce to an area mean or per-cell virtual stations.
func (s *Server) handleMergeCollect(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil || len(body) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "boundary geojson body is required"})
		return
	}
	boundary, err := geo.FromGeoJSON(body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	start, end, ok := parseRange(c)
	if !ok {
		return
	}
	reduce := c.DefaultQuery("reduce", "mean")
	if reduce != "mean" && reduce != "stations" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid reduce: " + reduce})
		return
	}

	failures := []gin.H{}
	if c.DefaultQuery("download", "true") == "true" {
		dl := merge.NewDownloader(s.cfg.MergeBaseURL, s.cfg.MergeDir, s.cfg.MergeWorkers,
			s.cfg.MergeAbortOnError, s.cfg.RequestTimeout, s.logger, s.metrics)
		report, err := dl.Download(c.Request.Context(), start, end)
		if err != nil {
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
			return
		}
		for _, f := range report.Failed {
			failures = append(failures, gin.H{"date": f.Date.Format("2006-01-02"), "error": f.Err.Error()})
		}
	}

	ds, err := s.loadGrid(s.cfg.MergeDir, start, end)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	ds.NormalizeLongitudes()
	clipped := ds.Clip(boundary)
	if clipped.Empty() {
		c.JSON(http.StatusNotFound, gin.H{"error": "no grid data inside boundary for range"})
		return
	}

	if reduce == "mean" {
		series := clipped.AreaMean()
		c.JSON(http.StatusOK, gin.H{
			"failed_downloads": failures,
			"code":             series.Code,
			"count":            series.Len(),
			"points":           seriesPoints(series),
		})
		return
	}
	table := clipped.VirtualStations(c.DefaultQuery("prefix", "PMERGE"))
	c.JSON(http.StatusOK, gin.H{
		"failed_downloads": failures,
		"dates":            table.Dates,
		"columns":          table.Columns,
		"values":           jsonSafeValues(table.Values),
		"generated_at":     table.GeneratedAt,
	})
}

func (s *Server) providerFor(c *gin.Context) (collector.Provider, error) {
	switch name := c.DefaultQuery("provider", "ana"); name {
	case "ana":
		variable, err := ana.ParseVariable(c.DefaultQuery("variable", "precipitation"))
		if err != nil {
			return nil, err
		}
		filter := ana.InventoryFilter{}
		switch variable {
		case ana.Precipitation:
			filter.Kind = domain.RainGauge
		default:
			filter.Kind = domain.StreamGauge
		}
		return collector.ANAProvider{
			Client:   s.ana,
			Filter:   filter,
			Variable: variable,
		}, nil
	case "inmet":
		code, ok := inmet.Variables()[c.DefaultQuery("variable", "rainfall")]
		if !ok {
			return nil, errors.New("unknown variable: " + c.Query("variable"))
		}
		return collector.INMETProvider{
			Client:   s.inmet,
			Class:    domain.Telemetric,
			Variable: code,
			Freq:     inmet.Daily,
		}, nil
	default:
		return nil, errors.New("unknown provider: " + name)
	}
}

func (s *Server) writeProviderError(c *gin.Context, err error) {
	var rangeEmpty *domain.RangeEmptyError
	switch {
	case errors.Is(err, domain.ErrEmptyResult), errors.As(err, &rangeEmpty):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, context.DeadlineExceeded):
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": err.Error()})
	default:
		s.logger.Error("provider request failed", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	}
}

// parseRange reads start/end query dates (YYYY-MM-DD) and writes the error
// response itself when they are missing or malformed.
func parseRange(c *gin.Context) (start, end time.Time, ok bool) {
	const layout = "2006-01-02"
	var err error
	if start, err = time.Parse(layout, c.Query("start")); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid start date"})
		return start, end, false
	}
	if end, err = time.Parse(layout, c.Query("end")); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid end date"})
		return start, end, false
	}
	if end.Before(start) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "end precedes start"})
		return start, end, false
	}
	return start, end, true
}

func parseTelemetry(value string) (domain.TelemetryClass, bool) {
	switch value {
	case "":
		return domain.AnyTelemetry, true
	case string(domain.Telemetric):
		return domain.Telemetric, true
	case string(domain.Conventional):
		return domain.Conventional, true
	default:
		return domain.AnyTelemetry, false
	}
}

func writeSeries(c *gin.Context, series domain.Series) {
	c.JSON(http.StatusOK, gin.H{
		"code":   series.Code,
		"count":  series.Len(),
		"points": seriesPoints(series),
	})
}

func seriesPoints(series domain.Series) []gin.H {
	points := make([]gin.H, 0, len(series.Points))
	for _, p := range series.Points {
		points = append(points, gin.H{"date": p.Date, "value": jsonSafe(p.Value)})
	}
	return points
}

// jsonSafe maps NaN to null, which encoding/json cannot represent otherwise.
func jsonSafe(v float64) any {
	if math.IsNaN(v) {
		return nil
	}
	return v
}

func jsonSafeValues(rows [][]float64) [][]any {
	out := make([][]any, len(rows))
	for i, row := range rows {
		converted := make([]any, len(row))
		for j, v := range row {
			converted[j] = jsonSafe(v)
		}
		out[i] = converted
	}
	return out
}
