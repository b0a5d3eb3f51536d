// Package ana is the client for the ANA (Agência Nacional de Águas)
// HidroWeb telemetry web service.
package ana

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/hidrodados/coletor/internal/domain"
	"github.com/hidrodados/coletor/internal/observability"
)

const (
	providerName = "ana"

	// Station-type codes the inventory endpoint understands.
	stationTypeStream = "1"
	stationTypeRain   = "2"

	// The series endpoint degrades on multi-year ranges, so requests are
	// split at one year and concatenated.
	maxSpanYears = 1
)

// Variable selects which daily series a station query returns.
type Variable int

const (
	Stage         Variable = 1 // water level (Cota), served in centimeters
	Precipitation Variable = 2 // rainfall (Chuva), mm
	Discharge     Variable = 3 // stream flow (Vazao), m³/s
)

// dayFieldPrefix returns the per-day XML field prefix for the variable,
// e.g. Chuva01..Chuva31.
func (v Variable) dayFieldPrefix() string {
	switch v {
	case Stage:
		return "Cota"
	case Precipitation:
		return "Chuva"
	case Discharge:
		return "Vazao"
	default:
		return ""
	}
}

func (v Variable) String() string {
	switch v {
	case Stage:
		return "stage"
	case Precipitation:
		return "precipitation"
	case Discharge:
		return "discharge"
	default:
		return fmt.Sprintf("Variable(%d)", int(v))
	}
}

// ParseVariable maps a variable name to its Variable code.
func ParseVariable(name string) (Variable, error) {
	switch name {
	case "stage":
		return Stage, nil
	case "precipitation":
		return Precipitation, nil
	case "discharge":
		return Discharge, nil
	default:
		return 0, fmt.Errorf("unknown variable %q", name)
	}
}

// Consistency is the provider-assigned data-quality tag.
type Consistency int

const (
	AnyConsistency Consistency = 0 // empty query parameter: both levels
	Raw            Consistency = 1
	Validated      Consistency = 2
)

func (c Consistency) queryValue() string {
	if c == AnyConsistency {
		return ""
	}
	return strconv.Itoa(int(c))
}

// InventoryFilter narrows an inventory request. Zero values mean no filter.
type InventoryFilter struct {
	Code      string
	Kind      domain.MeasurementKind
	Telemetry domain.TelemetryClass
}

// SeriesQuery describes one station series request.
type SeriesQuery struct {
	Code        string
	Variable    Variable
	Start       time.Time
	End         time.Time
	Consistency Consistency
}

// Client talks to the ANA web service. It is stateless beyond its
// configuration; construct one per process and share it freely.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *observability.Metrics
}

// NewClient creates an ANA client.
func NewClient(baseURL string, timeout time.Duration, logger *slog.Logger, metrics *observability.Metrics) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
		metrics:    metrics,
	}
}

// Inventory fetches the station inventory matching the filter. Zero matching
// stations yields domain.ErrEmptyResult; callers doing boundary queries
// should treat that as a valid empty set.
func (c *Client) Inventory(ctx context.Context, filter InventoryFilter) (domain.Inventory, error) {
	params := url.Values{
		"codEstDE":    {filter.Code},
		"codEstATE":   {""},
		"tpEst":       {stationTypeCode(filter.Kind)},
		"nmEst":       {""},
		"nmRio":       {""},
		"codSubBacia": {""},
		"codBacia":    {""},
		"nmMunicipio": {""},
		"nmEstado":    {""},
		"sgResp":      {""},
		"sgOper":      {""},
		"telemetrica": {telemetryCode(filter.Telemetry)},
	}

	records, err := c.fetchRecords(ctx, "inventory", c.baseURL+"/HidroInventario?"+params.Encode(), "Table")
	if err != nil {
		return domain.Inventory{}, err
	}
	if len(records) == 0 {
		c.countOutcome("inventory", "empty")
		return domain.Inventory{}, fmt.Errorf("ana inventory: %w", domain.ErrEmptyResult)
	}

	stations := make([]domain.Station, 0, len(records))
	for _, rec := range records {
		s, err := stationFromRecord(rec)
		if err != nil {
			return domain.Inventory{}, &domain.MalformedResponseError{
				Provider: providerName,
				Context:  fmt.Sprintf("inventory station %q", rec["Codigo"]),
				Err:      err,
			}
		}
		stations = append(stations, s)
	}
	return domain.NewInventory(stations), nil
}

// Series fetches a station's daily series for the full requested range.
// Ranges longer than the provider's one-year cap are split into consecutive
// sub-ranges transparently; results come back chronologically sorted.
// The provider serves the whole month for any range touching it, so a month
// straddling a split boundary comes back from both adjacent sub-requests;
// those repeats are dropped (first sub-range wins) so the concatenation
// equals a single unsplit fetch. Duplicate dates within one response are a
// provider anomaly and are left for the caller's dedup policy.
func (c *Client) Series(ctx context.Context, q SeriesQuery) (domain.Series, error) {
	series := domain.Series{Code: q.Code}

	served := make(map[time.Time]bool)
	for _, r := range domain.SplitRange(q.Start, q.End, maxSpanYears, 0, 0) {
		records, err := c.fetchSeriesRecords(ctx, q, r)
		if err != nil {
			return domain.Series{}, err
		}
		months := make(map[time.Time]bool)
		for _, rec := range records {
			first, err := parseMonthStart(rec["DataHora"])
			if err != nil {
				return domain.Series{}, &domain.MalformedResponseError{
					Provider: providerName,
					Context:  fmt.Sprintf("series station %s range %s..%s", q.Code, r.Start.Format("2006-01-02"), r.End.Format("2006-01-02")),
					Err:      err,
				}
			}
			if served[first] {
				continue
			}
			months[first] = true
			expandMonth(&series, rec, first, q.Variable)
		}
		for m := range months {
			served[m] = true
		}
	}

	if series.Len() == 0 {
		return domain.Series{}, &domain.RangeEmptyError{
			Provider: providerName, Station: q.Code, Start: q.Start, End: q.End,
		}
	}
	series.SortAsc()
	if q.Variable == Stage {
		// Stage is served in centimeters; downstream works in meters.
		for i := range series.Points {
			series.Points[i].Value /= 100
		}
	}
	return series, nil
}

// DischargeStats fetches the monthly Maxima/Minima/Media aggregates the
// discharge endpoint reports alongside daily values.
func (c *Client) DischargeStats(ctx context.Context, code string, start, end time.Time, consistency Consistency) ([]domain.MonthlyStat, error) {
	q := SeriesQuery{Code: code, Variable: Discharge, Start: start, End: end, Consistency: consistency}

	var stats []domain.MonthlyStat
	served := make(map[time.Time]bool)
	for _, r := range domain.SplitRange(start, end, maxSpanYears, 0, 0) {
		records, err := c.fetchSeriesRecords(ctx, q, r)
		if err != nil {
			return nil, err
		}
		months := make(map[time.Time]bool)
		for _, rec := range records {
			month, err := parseMonthStart(rec["DataHora"])
			if err != nil {
				return nil, &domain.MalformedResponseError{
					Provider: providerName,
					Context:  fmt.Sprintf("discharge stats station %s", code),
					Err:      err,
				}
			}
			// A month straddling a split boundary is served by both
			// adjacent sub-requests; keep the first.
			if served[month] {
				continue
			}
			months[month] = true
			level, _ := strconv.Atoi(rec["NivelConsistencia"])
			stats = append(stats, domain.MonthlyStat{
				Month:       month,
				Max:         coerce(rec["Maxima"]),
				Min:         coerce(rec["Minima"]),
				Mean:        coerce(rec["Media"]),
				Consistency: level,
			})
		}
		for m := range months {
			served[m] = true
		}
	}
	if len(stats) == 0 {
		return nil, &domain.RangeEmptyError{Provider: providerName, Station: code, Start: start, End: end}
	}
	return stats, nil
}

func (c *Client) fetchSeriesRecords(ctx context.Context, q SeriesQuery, r domain.DateRange) ([]map[string]string, error) {
	params := url.Values{
		"CodEstacao":        {q.Code},
		"dataInicio":        {r.Start.Format("02/01/2006")},
		"dataFim":           {r.End.Format("02/01/2006")},
		"tipoDados":         {strconv.Itoa(int(q.Variable))},
		"nivelConsistencia": {q.Consistency.queryValue()},
	}
	return c.fetchRecords(ctx, "series", c.baseURL+"/HidroSerieHistorica?"+params.Encode(), "SerieHistorica")
}

// fetchRecords performs one GET and maps the named record elements.
func (c *Client) fetchRecords(ctx context.Context, operation, fullURL, recordTag string) ([]map[string]string, error) {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.countOutcome(operation, "error")
		return nil, fmt.Errorf("ana %s request: %w", operation, err)
	}
	defer resp.Body.Close()

	c.metrics.RequestDuration.WithLabelValues(providerName, operation).Observe(time.Since(start).Seconds())

	if resp.StatusCode != http.StatusOK {
		c.countOutcome(operation, "error")
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("ana %s: status %d: %s", operation, resp.StatusCode, body)
	}

	records, err := parseRecords(resp.Body, recordTag)
	if err != nil {
		c.countOutcome(operation, "error")
		return nil, &domain.MalformedResponseError{Provider: providerName, Context: operation, Err: err}
	}
	c.countOutcome(operation, "success")
	return records, nil
}

func (c *Client) countOutcome(operation, outcome string) {
	c.metrics.ProviderRequests.WithLabelValues(providerName, operation, outcome).Inc()
}

// expandMonth turns one <SerieHistorica> month record into day rows, using
// the true day count of the month starting at first. A day field absent from
// the payload is a missing value, not an error.
func expandMonth(series *domain.Series, rec map[string]string, first time.Time, v Variable) {
	days := domain.DaysInMonth(first)
	for d := 1; d <= days; d++ {
		raw, ok := rec[fmt.Sprintf("%s%02d", v.dayFieldPrefix(), d)]
		value := math.NaN()
		if ok && raw != "" {
			value = coerce(raw)
		}
		series.Append(first.AddDate(0, 0, d-1), value)
	}
}

// parseMonthStart parses the record's DataHora field and normalizes it to
// the first day of its month. The service has served both ISO and Brazilian
// day-first timestamps over the years.
func parseMonthStart(s string) (time.Time, error) {
	layouts := []string{
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
		"2006-01-02",
		"02/01/2006 15:04:05",
		"02/01/2006",
	}
	for _, layout := range layouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable DataHora %q", s)
}

// coerce parses a provider numeric field, mapping empty or garbage values to
// NaN. Coercion failures are data holes, not fatal errors.
func coerce(s string) float64 {
	if s == "" {
		return math.NaN()
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN()
	}
	return v
}

func stationTypeCode(kind domain.MeasurementKind) string {
	switch kind {
	case domain.StreamGauge:
		return stationTypeStream
	case domain.RainGauge:
		return stationTypeRain
	default:
		return ""
	}
}

// telemetryCode maps the telemetry filter to the provider's query argument:
// 1 = telemetric only, 0 = conventional only, empty = both.
func telemetryCode(t domain.TelemetryClass) string {
	switch t {
	case domain.Telemetric:
		return "1"
	case domain.Conventional:
		return "0"
	default:
		return ""
	}
}

// stationFromRecord maps one <Table> inventory record onto a Station.
// Coordinates arrive as text and must coerce; a station without numeric
// coordinates is a malformed record.
func stationFromRecord(rec map[string]string) (domain.Station, error) {
	lat, err := strconv.ParseFloat(rec["Latitude"], 64)
	if err != nil {
		return domain.Station{}, fmt.Errorf("latitude %q: %w", rec["Latitude"], err)
	}
	lon, err := strconv.ParseFloat(rec["Longitude"], 64)
	if err != nil {
		return domain.Station{}, fmt.Errorf("longitude %q: %w", rec["Longitude"], err)
	}

	s := domain.Station{
		Code:         rec["Codigo"],
		Name:         rec["Nome"],
		Latitude:     lat,
		Longitude:    lon,
		Altitude:     coerce(rec["Altitude"]),
		State:        rec["nmEstado"],
		Municipality: rec["nmMunicipio"],
		Operator:     rec["ResponsavelSigla"],
		Telemetry:    domain.Conventional,
	}
	if s.Code == "" {
		return domain.Station{}, fmt.Errorf("record has no station code")
	}

	switch rec["TipoEstacao"] {
	case stationTypeStream:
		s.Kind = domain.StreamGauge
	case stationTypeRain:
		s.Kind = domain.RainGauge
	}
	if rec["PeriodoTelemetricaInicio"] != "" {
		s.Telemetry = domain.Telemetric
	}
	if t, err := parseTimestamp(rec["UltimaAtualizacao"]); err == nil {
		s.UpdatedAt = t
	}
	return s, nil
}

func parseTimestamp(s string) (time.Time, error) {
	for _, layout := range []string{"2006-01-02T15:04:05", "2006-01-02 15:04:05", "02/01/2006"} {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable timestamp %q", s)
}
