package domain

import "time"

type TokenAmount struct {
	Address string  `json:"address"`
	Amount  float64 `json:"amount"`
	Symbol  string  `json:"symbol"`
}

// WalletSignal is an on-chain action observed on the tracked wallet.
type WalletSignal struct {
	Timestamp     time.Time   `json:"timestamp"`
	Action        TradeAction `json:"action"`
	Signature     string      `json:"signature"`
	FullSignature string      `json:"fullSignature"`
	TokenIn       TokenAmount `json:"tokenIn"`
	TokenOut      TokenAmount `json:"tokenOut"`
	DEX           string      `json:"dex"`
	Pool          string      `json:"pool,omitempty"`
}

type WalletSignalFeed struct {
	Count         int            `json:"count"`
	Signals       []WalletSignal `json:"signals"`
	TrackedWallet string         `json:"trackedWallet"`
}

// VolumeInfo is a storage capacity snapshot of the bot host.
type VolumeInfo struct {
	App            string    `json:"app"`
	Path           string    `json:"path"`
	TotalBytes     int64     `json:"totalBytes"`
	UsedBytes      int64     `json:"usedBytes"`
	AvailableBytes int64     `json:"availableBytes"`
	UsagePercent   float64   `json:"usagePercent"`
	DatabaseSize   int64     `json:"databaseSize"`
	Timestamp      time.Time `json:"timestamp"`
}

// DatabaseArchive is the raw download-database payload.
type DatabaseArchive struct {
	Filename    string
	ContentType string
	Data        []byte
}
