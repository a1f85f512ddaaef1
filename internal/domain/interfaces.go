package domain

import "context"

// BotAPI is the bot backend. Every call is a single request with no retries.
type BotAPI interface {
	GetStatus(ctx context.Context) (*BotStatus, error)
	GetTrades(ctx context.Context, limit, offset int) (*TradePage, error)
	GetTrade(ctx context.Context, id int64) (*Trade, error)
	GetPositions(ctx context.Context) ([]Position, error)
	GetPosition(ctx context.Context, token string) (*Position, error)
	GetMetrics(ctx context.Context) (*Metrics, error)
	GetChartData(ctx context.Context, days int) (ChartData, error)
	GetHealth(ctx context.Context) (*ServiceProbe, error)
	GetDetailedHealth(ctx context.Context) (*DetailedHealth, error)
	GetWalletSignals(ctx context.Context) (*WalletSignalFeed, error)
	GetVolumeInfo(ctx context.Context) (*VolumeInfo, error)
	GetCircuitBreaker(ctx context.Context) (*CircuitBreaker, error)

	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
	EmergencyStop(ctx context.Context) error
	ClearQueue(ctx context.Context) error
	ClearDatabase(ctx context.Context, confirm string) error
	ClosePosition(ctx context.Context, token, reason string) (*ClosePositionResult, error)
	DownloadDatabase(ctx context.Context, hours int) (*DatabaseArchive, error)
	ResetCircuitBreaker(ctx context.Context) error
	TripCircuitBreaker(ctx context.Context, reason string) error
}

// SessionStore persists the single auth session. LoadSession returns nil, nil
// when nothing is stored.
type SessionStore interface {
	LoadSession(ctx context.Context) (*AuthSession, error)
	SaveSession(ctx context.Context, s *AuthSession) error
	ClearSession(ctx context.Context) error
}
