package usecase

import (
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vitos/loki_dashboard/internal/domain"
)

var chartDateKey = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

type ChartSeries struct {
	Points []domain.ChartPoint `json:"points"`
	Net    float64             `json:"net"`
}

// BuildChartSeries keeps only YYYY-MM-DD keys, ascending. Nil input gives an
// empty series.
func BuildChartSeries(raw domain.ChartData) ChartSeries {
	dates := make([]string, 0, len(raw))
	for key := range raw {
		if chartDateKey.MatchString(key) {
			dates = append(dates, key)
		}
	}
	// Fixed-width ISO dates sort lexicographically.
	sort.Strings(dates)

	points := make([]domain.ChartPoint, 0, len(dates))
	for _, date := range dates {
		day := raw[date]
		points = append(points, domain.ChartPoint{
			Date:       date,
			Label:      chartLabel(date),
			Profit:     day.Profit,
			Loss:       -day.Loss,
			Net:        day.Profit - day.Loss,
			TradeCount: day.Trades,
			Buys:       day.Buys,
			Sells:      day.Sells,
		})
	}
	return ChartSeries{Points: points, Net: SeriesNet(points)}
}

func chartLabel(date string) string {
	t, err := time.Parse(time.DateOnly, date)
	if err != nil {
		return date
	}
	return t.Format("Jan 2")
}

func SeriesNet(points []domain.ChartPoint) float64 {
	total := decimal.Zero
	for _, p := range points {
		total = total.Add(decimal.NewFromFloat(p.Net))
	}
	return total.InexactFloat64()
}

// OpenPositions drops CLOSED entries and keeps the original order. The input
// is not modified.
func OpenPositions(ps []domain.Position) []domain.Position {
	out := make([]domain.Position, 0, len(ps))
	for _, p := range ps {
		if p.Status != domain.PositionClosed {
			out = append(out, p)
		}
	}
	return out
}

type PortfolioSummary struct {
	Count              int     `json:"count"`
	Winners            int     `json:"winners"`
	Losers             int     `json:"losers"`
	WinningPct         float64 `json:"winningPct"`
	TotalValue         float64 `json:"totalValue"`
	TotalCost          float64 `json:"totalCost"`
	TotalProfitLoss    float64 `json:"totalProfitLoss"`
	TotalProfitLossPct float64 `json:"totalProfitLossPct"`
	AvgProfitLossPct   float64 `json:"avgProfitLossPct"`
}

// SummarizePortfolio rolls up a position set. Sums are accumulated in
// decimal; every ratio is 0 for an empty set or zero cost.
func SummarizePortfolio(ps []domain.Position) PortfolioSummary {
	s := PortfolioSummary{Count: len(ps)}
	if len(ps) == 0 {
		return s
	}

	value, cost, pl, pct := decimal.Zero, decimal.Zero, decimal.Zero, decimal.Zero
	for _, p := range ps {
		value = value.Add(decimal.NewFromFloat(p.CurrentValue))
		cost = cost.Add(decimal.NewFromFloat(p.EntryValue))
		pl = pl.Add(decimal.NewFromFloat(p.ProfitLoss))
		pct = pct.Add(decimal.NewFromFloat(p.ProfitLossPercent))
		switch {
		case p.ProfitLoss > 0:
			s.Winners++
		case p.ProfitLoss < 0:
			s.Losers++
		}
	}

	n := decimal.NewFromInt(int64(len(ps)))
	hundred := decimal.NewFromInt(100)
	s.TotalValue = value.InexactFloat64()
	s.TotalCost = cost.InexactFloat64()
	s.TotalProfitLoss = pl.InexactFloat64()
	s.AvgProfitLossPct = pct.Div(n).InexactFloat64()
	s.WinningPct = decimal.NewFromInt(int64(s.Winners)).Mul(hundred).Div(n).InexactFloat64()
	if cost.IsPositive() {
		s.TotalProfitLossPct = pl.Div(cost).Mul(hundred).InexactFloat64()
	}
	return s
}

type PortfolioView struct {
	Open    []domain.Position `json:"open"`
	Summary PortfolioSummary  `json:"summary"`
}

func BuildPortfolio(ps []domain.Position) PortfolioView {
	open := OpenPositions(ps)
	return PortfolioView{Open: open, Summary: SummarizePortfolio(open)}
}

const (
	BadgeOffline = "OFFLINE"
	BadgeStopped = "STOPPED"
	BadgePaused  = "PAUSED"
	BadgeLive    = "LIVE"
)

func StatusBadge(st *domain.BotStatus) string {
	switch {
	case st == nil || !st.Running:
		return BadgeOffline
	case st.EmergencyStopped:
		return BadgeStopped
	case st.Paused:
		return BadgePaused
	default:
		return BadgeLive
	}
}

// StatsSummary feeds the headline cards.
type StatsSummary struct {
	WalletAddress string  `json:"walletAddress"`
	WalletBalance float64 `json:"walletBalance"`
	TotalTrades   int     `json:"totalTrades"`
	Successful    int     `json:"successful"`
	Failed        int     `json:"failed"`
	NetProfit     float64 `json:"netProfit"`
	WinRate       float64 `json:"winRate"`
	ProfitFactor  float64 `json:"profitFactor"`
	OpenPositions int     `json:"openPositions"`
	OpenValue     float64 `json:"openValue"`
}

// BuildStatsSummary prefers metrics analysis figures and falls back to the
// status counters when they are absent or zero.
func BuildStatsSummary(st *domain.BotStatus, m *domain.Metrics, portfolio PortfolioView) StatsSummary {
	s := StatsSummary{
		OpenPositions: portfolio.Summary.Count,
		OpenValue:     portfolio.Summary.TotalValue,
	}
	if st != nil {
		s.WalletAddress = st.Wallet.Address
		s.WalletBalance = st.Wallet.Balance
		s.TotalTrades = st.Counters.TotalTrades
		s.Successful = st.Counters.Successful
		s.Failed = st.Counters.Failed
		s.NetProfit = st.Counters.TotalProfitLoss
		s.WinRate = st.Counters.WinRate
	}
	if m != nil {
		if m.Analysis.NetProfit != 0 {
			s.NetProfit = m.Analysis.NetProfit
		}
		if m.Analysis.WinRate != 0 {
			s.WinRate = m.Analysis.WinRate
		}
		if s.TotalTrades == 0 {
			s.TotalTrades = m.Analysis.TotalTrades
		}
		s.ProfitFactor = m.Analysis.ProfitFactor
	}
	return s
}

// memo caches one derived value per query result version.
type memo[T any] struct {
	mu      sync.Mutex
	valid   bool
	version uint64
	value   T
	builds  int
}

func (m *memo[T]) get(version uint64, build func() T) T {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.valid && m.version == version {
		return m.value
	}
	m.value = build()
	m.version = version
	m.valid = true
	m.builds++
	return m.value
}
