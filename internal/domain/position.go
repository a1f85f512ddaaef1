package domain

import "time"

type PositionStatus string

const (
	PositionOpen   PositionStatus = "OPEN"
	PositionClosed PositionStatus = "CLOSED"
)

// Position is a held (or recently held) token, keyed by TokenAddress.
type Position struct {
	TokenAddress      string         `json:"tokenAddress"`
	TokenSymbol       string         `json:"tokenSymbol,omitempty"`
	Amount            float64        `json:"amount"`
	EntryPrice        float64        `json:"entryPrice"`
	CurrentPrice      float64        `json:"currentPrice"`
	EntryValue        float64        `json:"entryValue"`
	CurrentValue      float64        `json:"currentValue"`
	ProfitLoss        float64        `json:"profitLoss"`
	ProfitLossPercent float64        `json:"profitLossPercent"`
	Status            PositionStatus `json:"status"`
	OpenedAt          time.Time      `json:"openedAt"`
	UpdatedAt         time.Time      `json:"updatedAt,omitempty"`
	ExitPrice         *float64       `json:"exitPrice,omitempty"`
	ExitedAt          *time.Time     `json:"exitedAt,omitempty"`
	HasPriceUpdate    bool           `json:"hasPriceUpdate"`
	TradeCount        int            `json:"tradeCount"`
}

// ClosePositionResult reports the proceeds of a manual close.
type ClosePositionResult struct {
	Success     bool    `json:"success"`
	SOLReceived float64 `json:"solReceived"`
	Signature   string  `json:"signature,omitempty"`
	Message     string  `json:"message,omitempty"`
}

// DefaultCloseReason is sent when the caller gives no reason.
const DefaultCloseReason = "Manual close via dashboard"
