package domain

import "time"

// BotStatus is a point-in-time snapshot of the trading bot. It is replaced
// wholesale on every poll.
type BotStatus struct {
	Running          bool      `json:"running"`
	Connected        bool      `json:"connected"`
	Paused           bool      `json:"paused"`
	EmergencyStopped bool      `json:"emergencyStopped"`
	Mode             string    `json:"mode"`
	TrackedWallet    string    `json:"trackedWallet"`
	StartTime        time.Time `json:"startTime"`
	LastTradeTime    time.Time `json:"lastTradeTime"`

	Wallet   Wallet          `json:"wallet"`
	Counters TradeCounters   `json:"counters"`
	Safety   SafetySnapshot  `json:"safety"`
	Exits    ExitStrategyRef `json:"exitStrategy"`
}

type Wallet struct {
	Address string  `json:"address"`
	Balance float64 `json:"balance"`
}

// TradeCounters aggregates trade processing since bot start.
type TradeCounters struct {
	TotalTrades     int     `json:"totalTrades"`
	TotalProcessed  int     `json:"totalProcessed"`
	Successful      int     `json:"successful"`
	Failed          int     `json:"failed"`
	Skipped         int     `json:"skipped"`
	WinRate         float64 `json:"winRate"`
	TotalProfitLoss float64 `json:"totalProfitLoss"`
	OpenPositions   int     `json:"openPositions"`
	Errors          int     `json:"errors"`
	QueueSize       int     `json:"queueSize"`
	Processing      bool    `json:"isProcessing"`
}

type SafetySnapshot struct {
	DailyTrades       int     `json:"dailyTrades"`
	DailyLoss         float64 `json:"dailyLoss"`
	ConsecutiveLosses int     `json:"consecutiveLosses"`
	PositionCount     int     `json:"positionCount"`
	TotalExposure     float64 `json:"totalExposure"`
}

type ExitStrategyRef struct {
	MonitoredPositions int `json:"monitoredPositions"`
	ActiveAlerts       int `json:"activeAlerts"`
}

// CircuitBreaker mirrors the bot's trading circuit breaker.
type CircuitBreaker struct {
	Tripped   bool      `json:"tripped"`
	Reason    string    `json:"reason,omitempty"`
	TrippedAt time.Time `json:"trippedAt,omitempty"`
	Failures  int       `json:"failures"`
}

// ServiceProbe is the payload of the basic liveness endpoint.
type ServiceProbe struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}
