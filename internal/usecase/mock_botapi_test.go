package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/vitos/loki_dashboard/internal/domain"
)

// MockBotAPI behaves like a tiny bot backend: control calls change the status
// it serves next.
type MockBotAPI struct {
	mu    sync.Mutex
	calls map[string]int

	Status    domain.BotStatus
	Trades    []domain.Trade
	Positions []domain.Position
	Chart     domain.ChartData
	Archive   []byte

	FailWith map[string]error
	Block    map[string]chan struct{}
}

func NewMockBotAPI() *MockBotAPI {
	return &MockBotAPI{
		calls:    make(map[string]int),
		Status:   domain.BotStatus{Running: true, Wallet: domain.Wallet{Address: "W1", Balance: 3}},
		FailWith: make(map[string]error),
		Block:    make(map[string]chan struct{}),
	}
}

func (m *MockBotAPI) enter(ctx context.Context, name string) error {
	m.mu.Lock()
	m.calls[name]++
	block := m.Block[name]
	err := m.FailWith[name]
	m.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func (m *MockBotAPI) Calls(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[name]
}

func (m *MockBotAPI) SetFail(name string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FailWith[name] = err
}

func (m *MockBotAPI) SetBlock(name string, ch chan struct{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Block[name] = ch
}

func (m *MockBotAPI) GetStatus(ctx context.Context) (*domain.BotStatus, error) {
	if err := m.enter(ctx, "status"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	st := m.Status
	return &st, nil
}

func (m *MockBotAPI) GetTrades(ctx context.Context, limit, offset int) (*domain.TradePage, error) {
	if err := m.enter(ctx, "trades"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return &domain.TradePage{Trades: append([]domain.Trade(nil), m.Trades...), Total: len(m.Trades)}, nil
}

func (m *MockBotAPI) GetTrade(ctx context.Context, id int64) (*domain.Trade, error) {
	if err := m.enter(ctx, "trade"); err != nil {
		return nil, err
	}
	return &domain.Trade{ID: id}, nil
}

func (m *MockBotAPI) GetPositions(ctx context.Context) ([]domain.Position, error) {
	if err := m.enter(ctx, "positions"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Position(nil), m.Positions...), nil
}

func (m *MockBotAPI) GetPosition(ctx context.Context, token string) (*domain.Position, error) {
	if err := m.enter(ctx, "position"); err != nil {
		return nil, err
	}
	return &domain.Position{TokenAddress: token, Status: domain.PositionOpen}, nil
}

func (m *MockBotAPI) GetMetrics(ctx context.Context) (*domain.Metrics, error) {
	if err := m.enter(ctx, "metrics"); err != nil {
		return nil, err
	}
	return &domain.Metrics{}, nil
}

func (m *MockBotAPI) GetChartData(ctx context.Context, days int) (domain.ChartData, error) {
	if err := m.enter(ctx, "chart"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Chart, nil
}

func (m *MockBotAPI) GetHealth(ctx context.Context) (*domain.ServiceProbe, error) {
	if err := m.enter(ctx, "probe"); err != nil {
		return nil, err
	}
	return &domain.ServiceProbe{Status: "ok", Timestamp: time.Now()}, nil
}

func (m *MockBotAPI) GetDetailedHealth(ctx context.Context) (*domain.DetailedHealth, error) {
	if err := m.enter(ctx, "health"); err != nil {
		return nil, err
	}
	return &domain.DetailedHealth{Overall: domain.Healthy}, nil
}

func (m *MockBotAPI) GetWalletSignals(ctx context.Context) (*domain.WalletSignalFeed, error) {
	if err := m.enter(ctx, "signals"); err != nil {
		return nil, err
	}
	return &domain.WalletSignalFeed{}, nil
}

func (m *MockBotAPI) GetVolumeInfo(ctx context.Context) (*domain.VolumeInfo, error) {
	if err := m.enter(ctx, "volume"); err != nil {
		return nil, err
	}
	return &domain.VolumeInfo{TotalBytes: 100}, nil
}

func (m *MockBotAPI) GetCircuitBreaker(ctx context.Context) (*domain.CircuitBreaker, error) {
	if err := m.enter(ctx, "circuit-breaker"); err != nil {
		return nil, err
	}
	return &domain.CircuitBreaker{}, nil
}

func (m *MockBotAPI) Pause(ctx context.Context) error {
	if err := m.enter(ctx, "pause"); err != nil {
		return err
	}
	m.mu.Lock()
	m.Status.Paused = true
	m.mu.Unlock()
	return nil
}

func (m *MockBotAPI) Resume(ctx context.Context) error {
	if err := m.enter(ctx, "resume"); err != nil {
		return err
	}
	m.mu.Lock()
	m.Status.Paused = false
	m.mu.Unlock()
	return nil
}

func (m *MockBotAPI) EmergencyStop(ctx context.Context) error {
	if err := m.enter(ctx, "emergency-stop"); err != nil {
		return err
	}
	m.mu.Lock()
	m.Status.EmergencyStopped = true
	m.mu.Unlock()
	return nil
}

func (m *MockBotAPI) ClearQueue(ctx context.Context) error {
	return m.enter(ctx, "clear-queue")
}

func (m *MockBotAPI) ClearDatabase(ctx context.Context, confirm string) error {
	if err := m.enter(ctx, "clear-database"); err != nil {
		return err
	}
	m.mu.Lock()
	m.Trades = nil
	m.Positions = nil
	m.Chart = nil
	m.mu.Unlock()
	return nil
}

func (m *MockBotAPI) ClosePosition(ctx context.Context, token, reason string) (*domain.ClosePositionResult, error) {
	if err := m.enter(ctx, "close-position"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.Positions {
		if m.Positions[i].TokenAddress == token {
			m.Positions[i].Status = domain.PositionClosed
		}
	}
	return &domain.ClosePositionResult{Success: true, SOLReceived: 1.5}, nil
}

func (m *MockBotAPI) DownloadDatabase(ctx context.Context, hours int) (*domain.DatabaseArchive, error) {
	if err := m.enter(ctx, "download-database"); err != nil {
		return nil, err
	}
	return &domain.DatabaseArchive{Filename: "db.zip", ContentType: "application/zip", Data: m.Archive}, nil
}

func (m *MockBotAPI) ResetCircuitBreaker(ctx context.Context) error {
	return m.enter(ctx, "reset-circuit-breaker")
}

func (m *MockBotAPI) TripCircuitBreaker(ctx context.Context, reason string) error {
	return m.enter(ctx, "trip-circuit-breaker")
}

// MockSessionStore keeps the session in memory.
type MockSessionStore struct {
	mu      sync.Mutex
	Session *domain.AuthSession
	Saves   int
	Clears  int
	SaveErr error
}

func (s *MockSessionStore) LoadSession(ctx context.Context) (*domain.AuthSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Session == nil {
		return nil, nil
	}
	cp := *s.Session
	return &cp, nil
}

func (s *MockSessionStore) SaveSession(ctx context.Context, session *domain.AuthSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SaveErr != nil {
		return s.SaveErr
	}
	cp := *session
	s.Session = &cp
	s.Saves++
	return nil
}

func (s *MockSessionStore) ClearSession(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Session = nil
	s.Clears++
	return nil
}

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}
