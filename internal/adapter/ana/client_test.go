package ana

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hidrodados/coletor/internal/domain"
	"github.com/hidrodados/coletor/internal/observability"
)

func testClient(baseURL string) *Client {
	return NewClient(baseURL, 5*time.Second,
		slog.New(slog.NewTextHandler(io.Discard, nil)),
		observability.NewMetricsForTesting())
}

const inventoryXML = `<?xml version="1.0" encoding="utf-8"?>
<DataTable>
  <Table>
    <Latitude>-20.5</Latitude>
    <Longitude>-45.1</Longitude>
    <Altitude>600</Altitude>
    <Codigo>64432000</Codigo>
    <Nome>PORTO SANTA MARIA</Nome>
    <nmEstado>MINAS GERAIS</nmEstado>
    <nmMunicipio>PIMENTA</nmMunicipio>
    <ResponsavelSigla>ANA</ResponsavelSigla>
    <UltimaAtualizacao>2021-03-01T00:00:00</UltimaAtualizacao>
    <TipoEstacao>1</TipoEstacao>
    <DataIns>1970-01-01T00:00:00</DataIns>
    <DataAlt>2021-03-01T00:00:00</DataAlt>
    <PeriodoTelemetricaInicio>2010-05-01T00:00:00</PeriodoTelemetricaInicio>
    <PeriodoTelemetricaFim></PeriodoTelemetricaFim>
  </Table>
  <Table>
    <Latitude>-21.0</Latitude>
    <Longitude>-44.9</Longitude>
    <Altitude></Altitude>
    <Codigo>64433000</Codigo>
    <Nome>FAZENDA SAMBURA</Nome>
    <nmEstado>MINAS GERAIS</nmEstado>
    <nmMunicipio>CAPITOLIO</nmMunicipio>
    <ResponsavelSigla>ANA</ResponsavelSigla>
    <UltimaAtualizacao>2020-11-10T00:00:00</UltimaAtualizacao>
    <TipoEstacao>1</TipoEstacao>
    <DataIns>1970-01-01T00:00:00</DataIns>
    <DataAlt>2020-11-10T00:00:00</DataAlt>
    <PeriodoTelemetricaInicio></PeriodoTelemetricaInicio>
    <PeriodoTelemetricaFim></PeriodoTelemetricaFim>
  </Table>
</DataTable>`

// monthXML renders one <SerieHistorica> record with sequential day values
// starting at base (day d gets base+d).
func monthXML(month time.Time, prefix string, base float64, days int) string {
	var b strings.Builder
	b.WriteString("<SerieHistorica>")
	fmt.Fprintf(&b, "<EstacaoCodigo>64432000</EstacaoCodigo>")
	fmt.Fprintf(&b, "<NivelConsistencia>2</NivelConsistencia>")
	fmt.Fprintf(&b, "<DataHora>%s</DataHora>", month.Format("2006-01-02T15:04:05"))
	if prefix == "Vazao" {
		fmt.Fprintf(&b, "<Maxima>%g</Maxima><Minima>%g</Minima><Media>%g</Media>", base+float64(days), base+1, base+15)
	}
	for d := 1; d <= days; d++ {
		fmt.Fprintf(&b, "<%s%02d>%g</%s%02d>", prefix, d, base+float64(d), prefix, d)
	}
	b.WriteString("</SerieHistorica>")
	return b.String()
}

func seriesDocument(months ...string) string {
	return `<?xml version="1.0" encoding="utf-8"?><DataTable>` + strings.Join(months, "") + `</DataTable>`
}

func TestInventory(t *testing.T) {
	t.Run("maps stations and filters", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Contains(t, r.URL.Path, "HidroInventario")
			assert.Equal(t, "1", r.URL.Query().Get("tpEst"))
			assert.Equal(t, "", r.URL.Query().Get("telemetrica"))
			fmt.Fprint(w, inventoryXML)
		}))
		defer srv.Close()

		inv, err := testClient(srv.URL).Inventory(context.Background(), InventoryFilter{Kind: domain.StreamGauge})
		require.NoError(t, err)
		require.Equal(t, 2, inv.Len())

		s, ok := inv.Lookup("64432000")
		require.True(t, ok)
		assert.Equal(t, "PORTO SANTA MARIA", s.Name)
		assert.Equal(t, -20.5, s.Latitude)
		assert.Equal(t, -45.1, s.Longitude)
		assert.Equal(t, 600.0, s.Altitude)
		assert.Equal(t, domain.StreamGauge, s.Kind)
		assert.Equal(t, domain.Telemetric, s.Telemetry)
		assert.Equal(t, "MINAS GERAIS", s.State)

		s2, _ := inv.Lookup("64433000")
		assert.Equal(t, domain.Conventional, s2.Telemetry)
		assert.True(t, math.IsNaN(s2.Altitude))
	})

	t.Run("telemetry filter codes", func(t *testing.T) {
		var got string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got = r.URL.Query().Get("telemetrica")
			fmt.Fprint(w, inventoryXML)
		}))
		defer srv.Close()
		c := testClient(srv.URL)

		_, err := c.Inventory(context.Background(), InventoryFilter{Telemetry: domain.Telemetric})
		require.NoError(t, err)
		assert.Equal(t, "1", got)

		_, err = c.Inventory(context.Background(), InventoryFilter{Telemetry: domain.Conventional})
		require.NoError(t, err)
		assert.Equal(t, "0", got)
	})

	t.Run("zero stations is ErrEmptyResult", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			fmt.Fprint(w, `<?xml version="1.0"?><DataTable></DataTable>`)
		}))
		defer srv.Close()

		_, err := testClient(srv.URL).Inventory(context.Background(), InventoryFilter{})
		require.ErrorIs(t, err, domain.ErrEmptyResult)
	})

	t.Run("non-numeric coordinates are malformed", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			fmt.Fprint(w, `<?xml version="1.0"?><DataTable><Table><Latitude>south</Latitude><Longitude>-44</Longitude><Codigo>1</Codigo></Table></DataTable>`)
		}))
		defer srv.Close()

		_, err := testClient(srv.URL).Inventory(context.Background(), InventoryFilter{})
		var malformed *domain.MalformedResponseError
		require.ErrorAs(t, err, &malformed)
		assert.Equal(t, "ana", malformed.Provider)
	})

	t.Run("http error status", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
		}))
		defer srv.Close()

		_, err := testClient(srv.URL).Inventory(context.Background(), InventoryFilter{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "status 503")
	})
}

func TestSeries(t *testing.T) {
	t.Run("discharge january 2020 is 31 ascending numeric rows", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "64432000", r.URL.Query().Get("CodEstacao"))
			assert.Equal(t, "01/01/2020", r.URL.Query().Get("dataInicio"))
			assert.Equal(t, "31/01/2020", r.URL.Query().Get("dataFim"))
			assert.Equal(t, "3", r.URL.Query().Get("tipoDados"))
			assert.Equal(t, "2", r.URL.Query().Get("nivelConsistencia"))
			fmt.Fprint(w, seriesDocument(monthXML(time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC), "Vazao", 100, 31)))
		}))
		defer srv.Close()

		s, err := testClient(srv.URL).Series(context.Background(), SeriesQuery{
			Code:        "64432000",
			Variable:    Discharge,
			Start:       time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
			End:         time.Date(2020, 1, 31, 0, 0, 0, 0, time.UTC),
			Consistency: Validated,
		})
		require.NoError(t, err)
		require.Equal(t, 31, s.Len())
		for i, p := range s.Points {
			assert.Equal(t, time.Date(2020, 1, i+1, 0, 0, 0, 0, time.UTC), p.Date)
			assert.Equal(t, 100.0+float64(i+1), p.Value)
		}
	})

	t.Run("leap february expands to 29 rows", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			fmt.Fprint(w, seriesDocument(monthXML(time.Date(2020, 2, 1, 0, 0, 0, 0, time.UTC), "Chuva", 0, 29)))
		}))
		defer srv.Close()

		s, err := testClient(srv.URL).Series(context.Background(), SeriesQuery{
			Code:     "123",
			Variable: Precipitation,
			Start:    time.Date(2020, 2, 1, 0, 0, 0, 0, time.UTC),
			End:      time.Date(2020, 2, 29, 0, 0, 0, 0, time.UTC),
		})
		require.NoError(t, err)
		assert.Equal(t, 29, s.Len())
	})

	t.Run("absent day fields become NaN", func(t *testing.T) {
		// Only the first 3 days are present in a 30-day month.
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			fmt.Fprint(w, seriesDocument(monthXML(time.Date(2020, 4, 1, 0, 0, 0, 0, time.UTC), "Chuva", 10, 3)))
		}))
		defer srv.Close()

		s, err := testClient(srv.URL).Series(context.Background(), SeriesQuery{
			Code:     "123",
			Variable: Precipitation,
			Start:    time.Date(2020, 4, 1, 0, 0, 0, 0, time.UTC),
			End:      time.Date(2020, 4, 30, 0, 0, 0, 0, time.UTC),
		})
		require.NoError(t, err)
		require.Equal(t, 30, s.Len())
		assert.Equal(t, 11.0, s.Points[0].Value)
		assert.True(t, math.IsNaN(s.Points[5].Value))
		assert.True(t, math.IsNaN(s.Points[29].Value))
	})

	t.Run("stage divides centimeters by 100", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			fmt.Fprint(w, seriesDocument(monthXML(time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC), "Cota", 349, 31)))
		}))
		defer srv.Close()

		s, err := testClient(srv.URL).Series(context.Background(), SeriesQuery{
			Code:     "123",
			Variable: Stage,
			Start:    time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
			End:      time.Date(2020, 1, 31, 0, 0, 0, 0, time.UTC),
		})
		require.NoError(t, err)
		// Raw value 350 on day 1 → 3.5 meters.
		assert.InDelta(t, 3.5, s.Points[0].Value, 1e-9)
	})

	t.Run("pagination is transparent", func(t *testing.T) {
		// Two years of data, one month record per request year. The
		// handler answers only the months inside the requested window,
		// as the real service does.
		months := map[int]string{
			2019: monthXML(time.Date(2019, 6, 1, 0, 0, 0, 0, time.UTC), "Chuva", 0, 30),
			2020: monthXML(time.Date(2020, 6, 1, 0, 0, 0, 0, time.UTC), "Chuva", 50, 30),
		}
		var requests int
		handler := func(w http.ResponseWriter, r *http.Request) {
			requests++
			from, err := time.Parse("02/01/2006", r.URL.Query().Get("dataInicio"))
			require.NoError(t, err)
			to, err := time.Parse("02/01/2006", r.URL.Query().Get("dataFim"))
			require.NoError(t, err)
			var served []string
			for year, m := range months {
				mid := time.Date(year, 6, 15, 0, 0, 0, 0, time.UTC)
				if !mid.Before(from) && !mid.After(to) {
					served = append(served, m)
				}
			}
			fmt.Fprint(w, seriesDocument(served...))
		}
		srv := httptest.NewServer(http.HandlerFunc(handler))
		defer srv.Close()

		c := testClient(srv.URL)
		q := SeriesQuery{
			Code:     "123",
			Variable: Precipitation,
			Start:    time.Date(2019, 1, 1, 0, 0, 0, 0, time.UTC),
			End:      time.Date(2020, 12, 31, 0, 0, 0, 0, time.UTC),
		}
		split, err := c.Series(context.Background(), q)
		require.NoError(t, err)
		assert.Equal(t, 2, requests, "two-year range should be split")

		// A server without the span cap returns the same data in one call.
		requests = 0
		srvWhole := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			fmt.Fprint(w, seriesDocument(months[2019], months[2020]))
		}))
		defer srvWhole.Close()

		whole := domain.Series{Code: "123"}
		for _, rec := range mustRecords(t, srvWhole.URL) {
			first, err := parseMonthStart(rec["DataHora"])
			require.NoError(t, err)
			expandMonth(&whole, rec, first, Precipitation)
		}
		whole.SortAsc()

		require.Equal(t, whole.Len(), split.Len())
		for i := range whole.Points {
			assert.Equal(t, whole.Points[i].Date, split.Points[i].Date)
			assertSameValue(t, whole.Points[i].Value, split.Points[i].Value)
		}
	})

	t.Run("month straddling the year split appears once", func(t *testing.T) {
		// The service serves the whole month for any window touching it.
		// A range split mid-month therefore gets the straddled month from
		// both adjacent sub-requests; only one copy may survive.
		march := monthXML(time.Date(2020, 3, 1, 0, 0, 0, 0, time.UTC), "Chuva", 0, 31)
		first := time.Date(2020, 3, 1, 0, 0, 0, 0, time.UTC)
		last := time.Date(2020, 3, 31, 0, 0, 0, 0, time.UTC)
		var requests int
		handler := func(w http.ResponseWriter, r *http.Request) {
			requests++
			from, err := time.Parse("02/01/2006", r.URL.Query().Get("dataInicio"))
			require.NoError(t, err)
			to, err := time.Parse("02/01/2006", r.URL.Query().Get("dataFim"))
			require.NoError(t, err)
			if !to.Before(first) && !from.After(last) {
				fmt.Fprint(w, seriesDocument(march))
				return
			}
			fmt.Fprint(w, seriesDocument())
		}
		srv := httptest.NewServer(http.HandlerFunc(handler))
		defer srv.Close()

		s, err := testClient(srv.URL).Series(context.Background(), SeriesQuery{
			Code:     "123",
			Variable: Precipitation,
			Start:    time.Date(2019, 3, 10, 0, 0, 0, 0, time.UTC),
			End:      time.Date(2020, 12, 31, 0, 0, 0, 0, time.UTC),
		})
		require.NoError(t, err)
		require.Equal(t, 2, requests, "the range must have been split mid-month")
		require.Equal(t, 31, s.Len())
		for i := 1; i < s.Len(); i++ {
			assert.True(t, s.Points[i].Date.After(s.Points[i-1].Date),
				"duplicate date %s", s.Points[i].Date.Format("2006-01-02"))
		}
	})

	t.Run("empty interval is RangeEmptyError", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			fmt.Fprint(w, seriesDocument())
		}))
		defer srv.Close()

		_, err := testClient(srv.URL).Series(context.Background(), SeriesQuery{
			Code:     "123",
			Variable: Discharge,
			Start:    time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
			End:      time.Date(2020, 1, 31, 0, 0, 0, 0, time.UTC),
		})
		var rangeEmpty *domain.RangeEmptyError
		require.ErrorAs(t, err, &rangeEmpty)
		assert.Equal(t, "123", rangeEmpty.Station)
	})
}

func TestDischargeStats(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, seriesDocument(monthXML(time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC), "Vazao", 100, 31)))
	}))
	defer srv.Close()

	stats, err := testClient(srv.URL).DischargeStats(context.Background(), "64432000",
		time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2020, 1, 31, 0, 0, 0, 0, time.UTC), AnyConsistency)
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC), stats[0].Month)
	assert.Equal(t, 131.0, stats[0].Max)
	assert.Equal(t, 101.0, stats[0].Min)
	assert.Equal(t, 115.0, stats[0].Mean)
	assert.Equal(t, 2, stats[0].Consistency)
}

func TestDischargeStatsSplitRangeMonthServedOnce(t *testing.T) {
	// As with daily series, a month cut by the one-year split is served by
	// both sub-requests and must yield a single monthly aggregate.
	march := monthXML(time.Date(2020, 3, 1, 0, 0, 0, 0, time.UTC), "Vazao", 200, 31)
	first := time.Date(2020, 3, 1, 0, 0, 0, 0, time.UTC)
	last := time.Date(2020, 3, 31, 0, 0, 0, 0, time.UTC)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		from, err := time.Parse("02/01/2006", r.URL.Query().Get("dataInicio"))
		require.NoError(t, err)
		to, err := time.Parse("02/01/2006", r.URL.Query().Get("dataFim"))
		require.NoError(t, err)
		if !to.Before(first) && !from.After(last) {
			fmt.Fprint(w, seriesDocument(march))
			return
		}
		fmt.Fprint(w, seriesDocument())
	}))
	defer srv.Close()

	stats, err := testClient(srv.URL).DischargeStats(context.Background(), "64432000",
		time.Date(2019, 3, 10, 0, 0, 0, 0, time.UTC),
		time.Date(2020, 12, 31, 0, 0, 0, 0, time.UTC), AnyConsistency)
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, first, stats[0].Month)
}

func mustRecords(t *testing.T, url string) []map[string]string {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	records, err := parseRecords(resp.Body, "SerieHistorica")
	require.NoError(t, err)
	return records
}

func assertSameValue(t *testing.T, want, got float64) {
	t.Helper()
	if math.IsNaN(want) {
		assert.True(t, math.IsNaN(got))
		return
	}
	assert.Equal(t, want, got)
}

func TestParseRecordsMalformed(t *testing.T) {
	_, err := parseRecords(strings.NewReader("<DataTable><Table><Codigo>1</Codigo>"), "Table")
	require.Error(t, err)
}

func TestVariableStrings(t *testing.T) {
	assert.Equal(t, "stage", Stage.String())
	assert.Equal(t, "precipitation", Precipitation.String())
	assert.Equal(t, "discharge", Discharge.String())
}
