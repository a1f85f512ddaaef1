package botapi

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/vitos/loki_dashboard/internal/domain"
)

// Wire shapes mirror the backend JSON. Each resource has exactly one normalize
// step so that nothing downstream inspects optional or legacy fields again.

// flexTime accepts epoch milliseconds, RFC 3339 strings and null.
type flexTime struct {
	time.Time
}

func (t *flexTime) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		if s == "" {
			return nil
		}
		if ms, err := strconv.ParseFloat(s, 64); err == nil {
			t.Time = fromMillis(ms)
			return nil
		}
		parsed, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return err
		}
		t.Time = parsed
		return nil
	}
	var ms float64
	if err := json.Unmarshal(b, &ms); err != nil {
		return err
	}
	t.Time = fromMillis(ms)
	return nil
}

func fromMillis(ms float64) time.Time {
	if ms <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(int64(ms)).UTC()
}

// flexFloat accepts a JSON number or a numeric string with an optional
// trailing percent sign.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		return nil
	}
	if b[0] != '"' {
		var v float64
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*f = flexFloat(v)
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "%"))
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	*f = flexFloat(v)
	return nil
}

func firstFloat(vals ...*float64) (float64, bool) {
	for _, v := range vals {
		if v != nil {
			return *v, true
		}
	}
	return 0, false
}

// --- status ---

type wireStatus struct {
	Bot struct {
		Running         bool     `json:"running"`
		Connected       bool     `json:"connected"`
		Paused          bool     `json:"paused"`
		Mode            string   `json:"mode"`
		TrackedWallet   string   `json:"trackedWallet"`
		TotalTrades     int      `json:"totalTrades"`
		TotalProfitLoss float64  `json:"totalProfitLoss"`
		OpenPositions   int      `json:"openPositions"`
		Errors          int      `json:"errors"`
		StartTime       flexTime `json:"startTime"`
		LastTradeTime   flexTime `json:"lastTradeTime"`
	} `json:"bot"`
	Statistics struct {
		TotalProcessed int     `json:"totalProcessed"`
		Successful     int     `json:"successful"`
		Failed         int     `json:"failed"`
		Skipped        int     `json:"skipped"`
		WinRate        float64 `json:"winRate"`
		QueueSize      int     `json:"queueSize"`
		IsProcessing   bool    `json:"isProcessing"`
	} `json:"statistics"`
	Wallet struct {
		Address string  `json:"address"`
		Balance float64 `json:"balance"`
	} `json:"wallet"`
	Safety struct {
		DailyTrades        int     `json:"dailyTrades"`
		DailyLoss          float64 `json:"dailyLoss"`
		ConsecutiveLosses  int     `json:"consecutiveLosses"`
		PositionCount      int     `json:"positionCount"`
		TotalExposure      float64 `json:"totalExposure"`
		IsEmergencyStopped bool    `json:"isEmergencyStopped"`
	} `json:"safety"`
	ExitStrategy struct {
		MonitoredPositions int               `json:"monitoredPositions"`
		ActiveAlerts       []json.RawMessage `json:"activeAlerts"`
	} `json:"exitStrategy"`
}

func (w *wireStatus) normalize() *domain.BotStatus {
	return &domain.BotStatus{
		Running:          w.Bot.Running,
		Connected:        w.Bot.Connected,
		Paused:           w.Bot.Paused,
		EmergencyStopped: w.Safety.IsEmergencyStopped,
		Mode:             w.Bot.Mode,
		TrackedWallet:    w.Bot.TrackedWallet,
		StartTime:        w.Bot.StartTime.Time,
		LastTradeTime:    w.Bot.LastTradeTime.Time,
		Wallet: domain.Wallet{
			Address: w.Wallet.Address,
			Balance: w.Wallet.Balance,
		},
		Counters: domain.TradeCounters{
			TotalTrades:     w.Bot.TotalTrades,
			TotalProcessed:  w.Statistics.TotalProcessed,
			Successful:      w.Statistics.Successful,
			Failed:          w.Statistics.Failed,
			Skipped:         w.Statistics.Skipped,
			WinRate:         w.Statistics.WinRate,
			TotalProfitLoss: w.Bot.TotalProfitLoss,
			OpenPositions:   w.Bot.OpenPositions,
			Errors:          w.Bot.Errors,
			QueueSize:       w.Statistics.QueueSize,
			Processing:      w.Statistics.IsProcessing,
		},
		Safety: domain.SafetySnapshot{
			DailyTrades:       w.Safety.DailyTrades,
			DailyLoss:         w.Safety.DailyLoss,
			ConsecutiveLosses: w.Safety.ConsecutiveLosses,
			PositionCount:     w.Safety.PositionCount,
			TotalExposure:     w.Safety.TotalExposure,
		},
		Exits: domain.ExitStrategyRef{
			MonitoredPositions: w.ExitStrategy.MonitoredPositions,
			ActiveAlerts:       len(w.ExitStrategy.ActiveAlerts),
		},
	}
}

// --- trades ---

type wireTrade struct {
	ID          int64    `json:"id"`
	Timestamp   flexTime `json:"timestamp"`
	CreatedAt   flexTime `json:"created_at"`
	TokenAddr   string   `json:"token_address"`
	Action      string   `json:"action"`
	AmountSOL   float64  `json:"amount_sol"`
	Price       float64  `json:"price"`
	TokenAmount float64  `json:"token_amount"`
	Status      string   `json:"status"`
	TxSignature string   `json:"tx_signature"`
	Reason      *string  `json:"reason"`
	GasCost     *float64 `json:"gas_cost"`
	RiskScore   *float64 `json:"risk_score"`
	Slippage    *float64 `json:"slippage"`
	ProfitLoss  *float64 `json:"profit_loss"`
}

func (w wireTrade) normalize() domain.Trade {
	t := domain.Trade{
		ID:           w.ID,
		Timestamp:    w.Timestamp.Time,
		TokenAddress: w.TokenAddr,
		Action:       domain.TradeAction(strings.ToUpper(w.Action)),
		AmountSOL:    w.AmountSOL,
		Price:        w.Price,
		TokenAmount:  w.TokenAmount,
		Status:       domain.TradeStatus(strings.ToUpper(w.Status)),
		TxSignature:  w.TxSignature,
		GasCost:      w.GasCost,
		RiskScore:    w.RiskScore,
		Slippage:     w.Slippage,
		ProfitLoss:   w.ProfitLoss,
	}
	if t.Timestamp.IsZero() {
		t.Timestamp = w.CreatedAt.Time
	}
	if w.Reason != nil {
		t.Reason = *w.Reason
	}
	return t
}

// --- positions ---

type wirePosition struct {
	TokenAddress      string   `json:"token_address"`
	TokenSymbol       string   `json:"token_symbol"`
	Amount            float64  `json:"amount"`
	EntryPrice        float64  `json:"entry_price"`
	CurrentPriceSnake *float64 `json:"current_price"`
	CurrentPriceCamel *float64 `json:"currentPrice"`
	CurrentValue      *float64 `json:"currentValue"`
	EntryValue        *float64 `json:"entryValue"`
	CostBasis         *float64 `json:"cost_basis"`
	ProfitLossCamel   *float64 `json:"profitLoss"`
	ProfitLossSnake   *float64 `json:"profit_loss"`
	ProfitLossPercent *float64 `json:"profitLossPercent"`
	Status            string   `json:"status"`
	Timestamp         flexTime `json:"timestamp"`
	UpdatedAt         flexTime `json:"updated_at"`
	LastUpdated       flexTime `json:"last_updated"`
	ExitPrice         *float64 `json:"exit_price"`
	ExitTimestamp     flexTime `json:"exit_timestamp"`
	HasPriceUpdate    bool     `json:"hasPriceUpdate"`
	TradeCount        int      `json:"trade_count"`
}

func (w wirePosition) normalize() domain.Position {
	p := domain.Position{
		TokenAddress:   w.TokenAddress,
		TokenSymbol:    w.TokenSymbol,
		Amount:         w.Amount,
		EntryPrice:     w.EntryPrice,
		Status:         domain.PositionStatus(strings.ToUpper(w.Status)),
		OpenedAt:       w.Timestamp.Time,
		UpdatedAt:      w.UpdatedAt.Time,
		ExitPrice:      w.ExitPrice,
		HasPriceUpdate: w.HasPriceUpdate,
		TradeCount:     w.TradeCount,
	}
	if p.Status == "" {
		p.Status = domain.PositionOpen
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = w.LastUpdated.Time
	}
	if !w.ExitTimestamp.IsZero() {
		exited := w.ExitTimestamp.Time
		p.ExitedAt = &exited
	}

	if v, ok := firstFloat(w.CurrentPriceSnake, w.CurrentPriceCamel); ok {
		p.CurrentPrice = v
	} else {
		p.CurrentPrice = w.EntryPrice
	}
	if v, ok := firstFloat(w.EntryValue, w.CostBasis); ok {
		p.EntryValue = v
	} else {
		p.EntryValue = w.Amount * w.EntryPrice
	}
	if v, ok := firstFloat(w.CurrentValue); ok {
		p.CurrentValue = v
	} else {
		p.CurrentValue = w.Amount * p.CurrentPrice
	}
	if v, ok := firstFloat(w.ProfitLossCamel, w.ProfitLossSnake); ok {
		p.ProfitLoss = v
	} else {
		p.ProfitLoss = p.CurrentValue - p.EntryValue
	}
	if v, ok := firstFloat(w.ProfitLossPercent); ok {
		p.ProfitLossPercent = v
	} else if p.EntryValue > 0 {
		p.ProfitLossPercent = p.ProfitLoss / p.EntryValue * 100
	}
	return p
}

type wireCloseResult struct {
	Success     bool    `json:"success"`
	SOLReceived float64 `json:"solReceived"`
	Signature   string  `json:"signature"`
	Message     string  `json:"message"`
}

func (w *wireCloseResult) normalize() *domain.ClosePositionResult {
	return &domain.ClosePositionResult{
		Success:     w.Success,
		SOLReceived: w.SOLReceived,
		Signature:   w.Signature,
		Message:     w.Message,
	}
}

// --- chart ---

// normalizeChart keeps every entry that decodes as a day object. Date-key
// filtering belongs to the chart view model.
func normalizeChart(raw map[string]json.RawMessage) domain.ChartData {
	out := make(domain.ChartData, len(raw))
	for key, value := range raw {
		var day struct {
			Profit flexFloat `json:"profit"`
			Loss   flexFloat `json:"loss"`
			Trades int       `json:"trades"`
			Buys   int       `json:"buys"`
			Sells  int       `json:"sells"`
		}
		if bytes.HasPrefix(bytes.TrimSpace(value), []byte("{")) && json.Unmarshal(value, &day) == nil {
			out[key] = domain.ChartDay{
				Profit: float64(day.Profit),
				Loss:   float64(day.Loss),
				Trades: day.Trades,
				Buys:   day.Buys,
				Sells:  day.Sells,
			}
		}
	}
	return out
}

// --- health ---

type wireService struct {
	Name      string          `json:"name"`
	Status    string          `json:"status"`
	Latency   *float64        `json:"latency"`
	LastCheck flexTime        `json:"lastCheck"`
	Details   json.RawMessage `json:"details"`
}

type wireHealth struct {
	Overall   string                 `json:"overall"`
	Timestamp flexTime               `json:"timestamp"`
	Uptime    float64                `json:"uptime"`
	Services  map[string]wireService `json:"services"`
	Metrics   struct {
		MemoryUsage struct {
			RSS          int64   `json:"rss"`
			HeapTotal    int64   `json:"heapTotal"`
			HeapUsed     int64   `json:"heapUsed"`
			External     int64   `json:"external"`
			ArrayBuffers int64   `json:"arrayBuffers"`
			Percentage   float64 `json:"percentage"`
		} `json:"memoryUsage"`
		MemoryDetails   json.RawMessage `json:"memoryDetails"`
		ApplicationData json.RawMessage `json:"applicationData"`
		CPUUsage        *struct {
			User   int64 `json:"user"`
			System int64 `json:"system"`
		} `json:"cpuUsage"`
	} `json:"metrics"`
}

func (w *wireHealth) normalize() *domain.DetailedHealth {
	h := &domain.DetailedHealth{
		Overall:   domain.HealthLevel(strings.ToLower(w.Overall)),
		Timestamp: w.Timestamp.Time,
		Uptime:    time.Duration(w.Uptime * float64(time.Second)),
		Services:  make(map[string]domain.ServiceHealth, len(w.Services)),
		Memory: domain.MemoryUsage{
			RSS:          w.Metrics.MemoryUsage.RSS,
			HeapTotal:    w.Metrics.MemoryUsage.HeapTotal,
			HeapUsed:     w.Metrics.MemoryUsage.HeapUsed,
			External:     w.Metrics.MemoryUsage.External,
			ArrayBuffers: w.Metrics.MemoryUsage.ArrayBuffers,
			Percentage:   w.Metrics.MemoryUsage.Percentage,
		},
	}
	for key, s := range w.Services {
		svc := domain.ServiceHealth{
			Name:      s.Name,
			Status:    domain.HealthLevel(strings.ToLower(s.Status)),
			LastCheck: s.LastCheck.Time,
			Details:   s.Details,
		}
		if svc.Name == "" {
			svc.Name = key
		}
		if s.Latency != nil {
			latency := time.Duration(*s.Latency * float64(time.Millisecond))
			svc.Latency = &latency
		}
		h.Services[key] = svc
	}
	if c := w.Metrics.CPUUsage; c != nil {
		h.CPU = &domain.CPUUsage{User: c.User, System: c.System}
	}
	if len(w.Metrics.MemoryDetails) > 0 || len(w.Metrics.ApplicationData) > 0 {
		h.Diagnostics = &domain.HealthDiagnostics{
			MemoryDetails:   w.Metrics.MemoryDetails,
			ApplicationData: w.Metrics.ApplicationData,
		}
	}
	return h
}

// --- wallet signals ---

type wireTokenAmount struct {
	Address string    `json:"address"`
	Amount  flexFloat `json:"amount"`
	Symbol  string    `json:"symbol"`
}

func (w wireTokenAmount) normalize() domain.TokenAmount {
	return domain.TokenAmount{Address: w.Address, Amount: float64(w.Amount), Symbol: w.Symbol}
}

type wireSignal struct {
	Timestamp     flexTime        `json:"timestamp"`
	Time          string          `json:"time"`
	Action        string          `json:"action"`
	Signature     string          `json:"signature"`
	FullSignature string          `json:"fullSignature"`
	TokenIn       wireTokenAmount `json:"tokenIn"`
	TokenOut      wireTokenAmount `json:"tokenOut"`
	DEX           string          `json:"dex"`
	Pool          string          `json:"pool"`
}

type wireSignalFeed struct {
	Count         int          `json:"count"`
	Signals       []wireSignal `json:"signals"`
	TrackedWallet string       `json:"trackedWallet"`
}

func (w *wireSignalFeed) normalize() *domain.WalletSignalFeed {
	feed := &domain.WalletSignalFeed{
		Count:         w.Count,
		Signals:       make([]domain.WalletSignal, 0, len(w.Signals)),
		TrackedWallet: w.TrackedWallet,
	}
	for _, s := range w.Signals {
		sig := domain.WalletSignal{
			Timestamp:     s.Timestamp.Time,
			Action:        domain.TradeAction(strings.ToUpper(s.Action)),
			Signature:     s.Signature,
			FullSignature: s.FullSignature,
			TokenIn:       s.TokenIn.normalize(),
			TokenOut:      s.TokenOut.normalize(),
			DEX:           s.DEX,
			Pool:          s.Pool,
		}
		if sig.FullSignature == "" {
			sig.FullSignature = s.Signature
		}
		feed.Signals = append(feed.Signals, sig)
	}
	if feed.Count == 0 {
		feed.Count = len(feed.Signals)
	}
	return feed
}

// --- volume ---

type wireVolume struct {
	FlyApp     string `json:"flyApp"`
	VolumePath string `json:"volumePath"`
	Volume     struct {
		TotalBytes     flexFloat `json:"totalBytes"`
		UsedBytes      flexFloat `json:"usedBytes"`
		AvailableBytes flexFloat `json:"availableBytes"`
		UsagePercent   flexFloat `json:"usagePercent"`
		DatabaseSize   flexFloat `json:"databaseSize"`
	} `json:"volume"`
	Timestamp flexTime `json:"timestamp"`
}

func (w *wireVolume) normalize() *domain.VolumeInfo {
	return &domain.VolumeInfo{
		App:            w.FlyApp,
		Path:           w.VolumePath,
		TotalBytes:     int64(w.Volume.TotalBytes),
		UsedBytes:      int64(w.Volume.UsedBytes),
		AvailableBytes: int64(w.Volume.AvailableBytes),
		UsagePercent:   float64(w.Volume.UsagePercent),
		DatabaseSize:   int64(w.Volume.DatabaseSize),
		Timestamp:      w.Timestamp.Time,
	}
}

// --- circuit breaker ---

type wireCircuitBreaker struct {
	Tripped   bool     `json:"tripped"`
	Reason    string   `json:"reason"`
	TrippedAt flexTime `json:"trippedAt"`
	Failures  int      `json:"failures"`
}

func (w *wireCircuitBreaker) normalize() *domain.CircuitBreaker {
	return &domain.CircuitBreaker{
		Tripped:   w.Tripped,
		Reason:    w.Reason,
		TrippedAt: w.TrippedAt.Time,
		Failures:  w.Failures,
	}
}
