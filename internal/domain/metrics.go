package domain

import "encoding/json"

type MetricsAnalysis struct {
	TotalTrades   int     `json:"totalTrades"`
	WinningTrades int     `json:"winningTrades"`
	LosingTrades  int     `json:"losingTrades"`
	WinRate       float64 `json:"winRate"`
	TotalProfit   float64 `json:"totalProfit"`
	TotalLoss     float64 `json:"totalLoss"`
	NetProfit     float64 `json:"netProfit"`
	ProfitFactor  float64 `json:"profitFactor"`
}

// Metrics holds the analysis aggregate. Current and History are backend-defined
// and passed through untouched for charting.
type Metrics struct {
	Analysis MetricsAnalysis   `json:"analysis"`
	Current  json.RawMessage   `json:"current,omitempty"`
	History  []json.RawMessage `json:"history,omitempty"`
}

// ChartDay is one entry of the date-keyed profit/loss map.
type ChartDay struct {
	Profit float64 `json:"profit"`
	Loss   float64 `json:"loss"`
	Trades int     `json:"trades"`
	Buys   int     `json:"buys"`
	Sells  int     `json:"sells"`
}

// ChartData is the raw chart response. Keys are not guaranteed to be dates.
type ChartData map[string]ChartDay

// ChartPoint is one calendar day of the derived chart series.
type ChartPoint struct {
	Date       string  `json:"date"`
	Label      string  `json:"label"`
	Profit     float64 `json:"profit"`
	Loss       float64 `json:"loss"`
	Net        float64 `json:"net"`
	TradeCount int     `json:"tradeCount"`
	Buys       int     `json:"buys"`
	Sells      int     `json:"sells"`
}
