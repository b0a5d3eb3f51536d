package collector

import (
	"context"
	"time"

	"github.com/hidrodados/coletor/internal/adapter/ana"
	"github.com/hidrodados/coletor/internal/adapter/inmet"
	"github.com/hidrodados/coletor/internal/domain"
)

// ANAProvider binds an ANA client and a fixed variable/filter choice to the
// Provider interface, so one collector run fetches one variable for every
// station.
type ANAProvider struct {
	Client      *ana.Client
	Filter      ana.InventoryFilter
	Variable    ana.Variable
	Consistency ana.Consistency
}

func (p ANAProvider) Name() string { return "ana" }

func (p ANAProvider) Inventory(ctx context.Context) (domain.Inventory, error) {
	return p.Client.Inventory(ctx, p.Filter)
}

func (p ANAProvider) Series(ctx context.Context, code string, start, end time.Time) (domain.Series, error) {
	return p.Client.Series(ctx, ana.SeriesQuery{
		Code:        code,
		Variable:    p.Variable,
		Start:       start,
		End:         end,
		Consistency: p.Consistency,
	})
}

// INMETProvider binds an INMET client to the Provider interface.
type INMETProvider struct {
	Client   *inmet.Client
	Class    domain.TelemetryClass
	Variable string
	Freq     inmet.Freq
}

func (p INMETProvider) Name() string { return "inmet" }

func (p INMETProvider) Inventory(ctx context.Context) (domain.Inventory, error) {
	return p.Client.Stations(ctx, p.Class)
}

func (p INMETProvider) Series(ctx context.Context, code string, start, end time.Time) (domain.Series, error) {
	return p.Client.Series(ctx, inmet.SeriesQuery{
		Code:     code,
		Variable: p.Variable,
		Freq:     p.Freq,
		Start:    start,
		End:      end,
	})
}
