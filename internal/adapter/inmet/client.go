// Package inmet is the client for the INMET (Instituto Nacional de
// Meteorologia) station API.
//
// Endpoints follow the INMET station-data API manual: station inventories at
// /estacoes/{T|M} (T = automatic/telemetric, M = manual/conventional) and
// series at /estacao[/diaria]/{start}/{end}/{code}. The series endpoint
// enforces a maximum span of one year per call.
package inmet

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/hidrodados/coletor/internal/domain"
	"github.com/hidrodados/coletor/internal/observability"
)

const (
	providerName = "inmet"
	maxSpanYears = 1
)

// Provider variable codes. RainfallCode is the column a precipitation
// collection selects.
const (
	RainfallCode      = "CHUVA"
	PressureCode      = "PRESS_ATM_MED"
	TempMaxCode       = "TEMP_MAX"
	TempMinCode       = "TEMP_MIN"
	TempMeanCode      = "TEMP_MED"
	HumidityMeanCode  = "UMID_MED"
	HumidityMinCode   = "UMID_MIN"
	WindSpeedMeanCode = "VEL_VENTO_MED"
)

// Variables maps human-readable variable names to provider field codes.
func Variables() map[string]string {
	return map[string]string{
		"rainfall":         RainfallCode,
		"pressure":         PressureCode,
		"max temperature":  TempMaxCode,
		"min temperature":  TempMinCode,
		"mean temperature": TempMeanCode,
		"mean humidity":    HumidityMeanCode,
		"min humidity":     HumidityMinCode,
		"mean wind speed":  WindSpeedMeanCode,
	}
}

// Freq selects the series sampling frequency.
type Freq string

const (
	Hourly Freq = "H"
	Daily  Freq = "D"
)

// SeriesQuery describes one station series request.
type SeriesQuery struct {
	Code     string
	Variable string // provider field code, e.g. RainfallCode
	Freq     Freq
	Start    time.Time
	End      time.Time
}

// Client talks to the INMET API. Stateless beyond configuration.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *observability.Metrics
}

// NewClient creates an INMET client.
func NewClient(baseURL string, timeout time.Duration, logger *slog.Logger, metrics *observability.Metrics) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
		metrics:    metrics,
	}
}

// Stations fetches the weather-station inventory for the given telemetry
// class. AnyTelemetry concatenates the automatic and manual inventories.
func (c *Client) Stations(ctx context.Context, class domain.TelemetryClass) (domain.Inventory, error) {
	classes := []domain.TelemetryClass{class}
	if class == domain.AnyTelemetry {
		classes = []domain.TelemetryClass{domain.Conventional, domain.Telemetric}
	}

	var stations []domain.Station
	for _, cl := range classes {
		batch, err := c.stationsOf(ctx, cl)
		if err != nil {
			return domain.Inventory{}, err
		}
		stations = append(stations, batch...)
	}
	if len(stations) == 0 {
		return domain.Inventory{}, fmt.Errorf("inmet stations: %w", domain.ErrEmptyResult)
	}
	return domain.NewInventory(stations), nil
}

func (c *Client) stationsOf(ctx context.Context, class domain.TelemetryClass) ([]domain.Station, error) {
	kind := "T"
	if class == domain.Conventional {
		kind = "M"
	}

	records, err := c.fetchJSON(ctx, "inventory", fmt.Sprintf("%s/estacoes/%s", c.baseURL, kind))
	if err != nil {
		return nil, err
	}

	stations := make([]domain.Station, 0, len(records))
	for _, rec := range records {
		code := stringField(rec, "CD_ESTACAO")
		if code == "" {
			continue
		}
		lat := numberField(rec, "VL_LATITUDE")
		lon := numberField(rec, "VL_LONGITUDE")
		if math.IsNaN(lat) || math.IsNaN(lon) {
			return nil, &domain.MalformedResponseError{
				Provider: providerName,
				Context:  fmt.Sprintf("station %s coordinates", code),
				Err:      fmt.Errorf("non-numeric VL_LATITUDE/VL_LONGITUDE"),
			}
		}
		stations = append(stations, domain.Station{
			Code:      code,
			Name:      stringField(rec, "DC_NOME"),
			Latitude:  lat,
			Longitude: lon,
			Altitude:  numberField(rec, "VL_ALTITUDE"),
			State:     stringField(rec, "SG_ESTADO"),
			Kind:      domain.Weather,
			Telemetry: class,
		})
	}
	return stations, nil
}

// Series fetches one variable of a station for the full requested range,
// transparently splitting requests at the provider's one-year span cap and
// concatenating the results chronologically. Duplicate timestamps are left
// for the caller's dedup policy.
func (c *Client) Series(ctx context.Context, q SeriesQuery) (domain.Series, error) {
	if q.Variable == "" {
		q.Variable = RainfallCode
	}
	if q.Freq == "" {
		q.Freq = Daily
	}

	series := domain.Series{Code: q.Code}
	for _, r := range domain.SplitRange(q.Start, q.End, maxSpanYears, 0, 0) {
		records, err := c.fetchJSON(ctx, "series", c.seriesURL(q, r))
		if err != nil {
			return domain.Series{}, err
		}
		for _, rec := range records {
			stamp, err := recordTime(rec, q.Freq)
			if err != nil {
				return domain.Series{}, &domain.MalformedResponseError{
					Provider: providerName,
					Context:  fmt.Sprintf("series station %s", q.Code),
					Err:      err,
				}
			}
			series.Append(stamp, numberField(rec, q.Variable))
		}
	}

	if series.Len() == 0 {
		return domain.Series{}, &domain.RangeEmptyError{
			Provider: providerName, Station: q.Code, Start: q.Start, End: q.End,
		}
	}
	series.SortAsc()
	return series, nil
}

func (c *Client) seriesURL(q SeriesQuery, r domain.DateRange) string {
	freqSegment := ""
	if q.Freq == Daily {
		freqSegment = "diaria/"
	}
	return fmt.Sprintf("%s/estacao/%s%s/%s/%s",
		c.baseURL, freqSegment, r.Start.Format("2006-01-02"), r.End.Format("2006-01-02"), q.Code)
}

// fetchJSON performs one GET and decodes the JSON record array.
func (c *Client) fetchJSON(ctx context.Context, operation, fullURL string) ([]map[string]any, error) {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.countOutcome(operation, "error")
		return nil, fmt.Errorf("inmet %s request: %w", operation, err)
	}
	defer resp.Body.Close()

	c.metrics.RequestDuration.WithLabelValues(providerName, operation).Observe(time.Since(start).Seconds())

	if resp.StatusCode != http.StatusOK {
		c.countOutcome(operation, "error")
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("inmet %s: status %d: %s", operation, resp.StatusCode, body)
	}

	var records []map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
		c.countOutcome(operation, "error")
		return nil, &domain.MalformedResponseError{Provider: providerName, Context: operation, Err: err}
	}

	outcome := "success"
	if len(records) == 0 {
		outcome = "empty"
	}
	c.countOutcome(operation, outcome)
	return records, nil
}

func (c *Client) countOutcome(operation, outcome string) {
	c.metrics.ProviderRequests.WithLabelValues(providerName, operation, outcome).Inc()
}

// recordTime builds the observation timestamp from DT_MEDICAO and, for
// hourly data, HR_MEDICAO ("1200" = 12:00 UTC).
func recordTime(rec map[string]any, freq Freq) (time.Time, error) {
	date := stringField(rec, "DT_MEDICAO")
	day, err := time.ParseInLocation("2006-01-02", date, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("unparseable DT_MEDICAO %q", date)
	}
	if freq != Hourly {
		return day, nil
	}

	hhmm := stringField(rec, "HR_MEDICAO")
	if len(hhmm) < 4 {
		return day, nil
	}
	hour, errH := strconv.Atoi(hhmm[:2])
	mins, errM := strconv.Atoi(hhmm[2:4])
	if errH != nil || errM != nil || hour > 23 || mins > 59 {
		return day, nil
	}
	return day.Add(time.Duration(hour)*time.Hour + time.Duration(mins)*time.Minute), nil
}

// stringField reads a string-valued provider field, tolerating numbers.
func stringField(rec map[string]any, key string) string {
	switch v := rec[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}

// numberField reads a numeric provider field. INMET serves numbers both as
// JSON numbers and as strings; null or absent values are NaN.
func numberField(rec map[string]any, key string) float64 {
	switch v := rec[key].(type) {
	case float64:
		return v
	case string:
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
		return math.NaN()
	default:
		return math.NaN()
	}
}
