package domain

import "time"

type TradeAction string

const (
	ActionBuy  TradeAction = "BUY"
	ActionSell TradeAction = "SELL"
)

type TradeStatus string

const (
	TradeSuccess TradeStatus = "SUCCESS"
	TradeFailed  TradeStatus = "FAILED"
	TradePending TradeStatus = "PENDING"
	TradeSkipped TradeStatus = "SKIPPED"
)

// Trade is an execution record. Order is server-determined, most recent first.
type Trade struct {
	ID           int64       `json:"id"`
	Timestamp    time.Time   `json:"timestamp"`
	TokenAddress string      `json:"tokenAddress"`
	Action       TradeAction `json:"action"`
	AmountSOL    float64     `json:"amountSol"`
	Price        float64     `json:"price"`
	TokenAmount  float64     `json:"tokenAmount"`
	Status       TradeStatus `json:"status"`
	TxSignature  string      `json:"txSignature"`
	Reason       string      `json:"reason,omitempty"`
	GasCost      *float64    `json:"gasCost,omitempty"`
	RiskScore    *float64    `json:"riskScore,omitempty"`
	Slippage     *float64    `json:"slippage,omitempty"`
	ProfitLoss   *float64    `json:"profitLoss,omitempty"`
}

type TradePage struct {
	Trades []Trade `json:"trades"`
	Total  int     `json:"total"`
}
