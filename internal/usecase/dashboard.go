package usecase

import (
	"context"
	"time"

	"github.com/vitos/loki_dashboard/internal/domain"
)

type DashboardConfig struct {
	Policies    map[QueryKey]QueryPolicy
	TradesLimit int
	ChartDays   int
}

func DefaultDashboardConfig() DashboardConfig {
	return DashboardConfig{
		Policies:    DefaultPolicies(),
		TradesLimit: 20,
		ChartDays:   7,
	}
}

// Dashboard registers the eight dashboard queries and derives the view the
// presentation layer renders.
type Dashboard struct {
	client *QueryClient

	Status    *Query[*domain.BotStatus]
	Trades    *Query[*domain.TradePage]
	Positions *Query[[]domain.Position]
	Metrics   *Query[*domain.Metrics]
	Chart     *Query[domain.ChartData]
	Health    *Query[*domain.DetailedHealth]
	Signals   *Query[*domain.WalletSignalFeed]
	Volume    *Query[*domain.VolumeInfo]

	chartMemo     memo[ChartSeries]
	portfolioMemo memo[PortfolioView]
}

func NewDashboard(api domain.BotAPI, client *QueryClient, cfg DashboardConfig) *Dashboard {
	defaults := DefaultPolicies()
	policy := func(key QueryKey) QueryPolicy {
		if p, ok := cfg.Policies[key]; ok && p.Interval > 0 {
			return p
		}
		return defaults[key]
	}
	if cfg.TradesLimit <= 0 {
		cfg.TradesLimit = 20
	}
	if cfg.ChartDays <= 0 {
		cfg.ChartDays = 7
	}

	d := &Dashboard{client: client}
	d.Status = NewQuery(client, QueryStatus, policy(QueryStatus), api.GetStatus)
	d.Trades = NewQuery(client, QueryTrades, policy(QueryTrades), func(ctx context.Context) (*domain.TradePage, error) {
		return api.GetTrades(ctx, cfg.TradesLimit, 0)
	})
	d.Positions = NewQuery(client, QueryPositions, policy(QueryPositions), api.GetPositions)
	d.Metrics = NewQuery(client, QueryMetrics, policy(QueryMetrics), api.GetMetrics)
	d.Chart = NewQuery(client, QueryChart, policy(QueryChart), func(ctx context.Context) (domain.ChartData, error) {
		return api.GetChartData(ctx, cfg.ChartDays)
	})
	d.Health = NewQuery(client, QueryHealth, policy(QueryHealth), api.GetDetailedHealth)
	d.Signals = NewQuery(client, QuerySignals, policy(QuerySignals), api.GetWalletSignals)
	d.Volume = NewQuery(client, QueryVolume, policy(QueryVolume), api.GetVolumeInfo)
	return d
}

func (d *Dashboard) Client() *QueryClient {
	return d.client
}

// Panel is one query's data plus the flags a widget needs. Fetching is
// already gated by the first-load phase.
type Panel[T any] struct {
	Data      T         `json:"data"`
	Loaded    bool      `json:"loaded"`
	Fetching  bool      `json:"fetching"`
	Stale     bool      `json:"stale"`
	Error     string    `json:"error,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func panelFrom[T, V any](c *QueryClient, q *Query[T], derive func(T, QueryState) V) Panel[V] {
	data, st := q.Snapshot()
	return Panel[V]{
		Data:      derive(data, st),
		Loaded:    st.HasData,
		Fetching:  st.Fetching && c.Phase() == PhaseSteady,
		Stale:     st.Stale,
		Error:     st.ErrorMessage(),
		UpdatedAt: st.UpdatedAt,
	}
}

func identity[T any](v T, _ QueryState) T { return v }

type DashboardView struct {
	Loading     bool      `json:"loading"`
	Phase       string    `json:"phase"`
	Live        bool      `json:"live"`
	Badge       string    `json:"badge"`
	GeneratedAt time.Time `json:"generatedAt"`

	Stats     StatsSummary                    `json:"stats"`
	Status    Panel[*domain.BotStatus]        `json:"status"`
	Trades    Panel[*domain.TradePage]        `json:"trades"`
	Positions Panel[PortfolioView]            `json:"positions"`
	Metrics   Panel[*domain.Metrics]          `json:"metrics"`
	Chart     Panel[ChartSeries]              `json:"chart"`
	Health    Panel[*domain.DetailedHealth]   `json:"health"`
	Signals   Panel[*domain.WalletSignalFeed] `json:"signals"`
	Volume    Panel[*domain.VolumeInfo]       `json:"volume"`
}

// View assembles the current render state. Chart and portfolio derivations
// are rebuilt only when their query produced a new result.
func (d *Dashboard) View() DashboardView {
	c := d.client
	phase := c.Phase()

	v := DashboardView{
		Loading:     phase == PhaseAwaitingFirstLoad,
		Phase:       phase.String(),
		Live:        c.Live(),
		GeneratedAt: c.now(),
		Status:      panelFrom(c, d.Status, identity[*domain.BotStatus]),
		Trades:      panelFrom(c, d.Trades, identity[*domain.TradePage]),
		Metrics:     panelFrom(c, d.Metrics, identity[*domain.Metrics]),
		Health:      panelFrom(c, d.Health, identity[*domain.DetailedHealth]),
		Signals:     panelFrom(c, d.Signals, identity[*domain.WalletSignalFeed]),
		Volume:      panelFrom(c, d.Volume, identity[*domain.VolumeInfo]),
		Positions: panelFrom(c, d.Positions, func(ps []domain.Position, st QueryState) PortfolioView {
			return d.portfolioMemo.get(st.Version, func() PortfolioView { return BuildPortfolio(ps) })
		}),
		Chart: panelFrom(c, d.Chart, func(raw domain.ChartData, st QueryState) ChartSeries {
			return d.chartMemo.get(st.Version, func() ChartSeries { return BuildChartSeries(raw) })
		}),
	}
	v.Badge = StatusBadge(v.Status.Data)
	v.Stats = BuildStatsSummary(v.Status.Data, v.Metrics.Data, v.Positions.Data)
	return v
}

// Mount ties the sync layer to the auth gate: polling runs only while logged
// in, and logging out drops every cached result.
func (d *Dashboard) Mount(ctx context.Context, gate *AuthGate) {
	gate.OnChange(func(state AuthState) {
		if state == LoggedIn {
			d.client.Start(ctx)
			return
		}
		d.client.Stop()
		d.client.Reset()
	})
	if gate.IsAuthenticated() {
		d.client.Start(ctx)
	}
}
