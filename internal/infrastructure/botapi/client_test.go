package botapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitos/loki_dashboard/internal/domain"
	"go.uber.org/zap"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL+"/", time.Second, zap.NewNop())
}

func TestGetStatus_Normalizes(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/status", r.URL.Path)
		_, _ = io.WriteString(w, `{
			"bot": {"running": true, "paused": true, "mode": "paper", "totalTrades": 12,
			        "totalProfitLoss": 1.5, "startTime": 1700000000000, "lastTradeTime": 0},
			"statistics": {"successful": 9, "failed": 3, "winRate": 75, "queueSize": 2},
			"wallet": {"address": "AbC", "balance": 4.2},
			"safety": {"isEmergencyStopped": true, "dailyTrades": 4},
			"exitStrategy": {"monitoredPositions": 1, "activeAlerts": [{}, {}]}
		}`)
	})

	st, err := c.GetStatus(context.Background())
	require.NoError(t, err)
	assert.True(t, st.Running)
	assert.True(t, st.Paused)
	assert.True(t, st.EmergencyStopped)
	assert.Equal(t, "AbC", st.Wallet.Address)
	assert.Equal(t, 4.2, st.Wallet.Balance)
	assert.Equal(t, 12, st.Counters.TotalTrades)
	assert.Equal(t, 9, st.Counters.Successful)
	assert.Equal(t, 3, st.Counters.Failed)
	assert.Equal(t, 75.0, st.Counters.WinRate)
	assert.Equal(t, 2, st.Exits.ActiveAlerts)
	assert.Equal(t, time.UnixMilli(1700000000000).UTC(), st.StartTime)
	assert.True(t, st.LastTradeTime.IsZero())
}

func TestGetTrades_SendsPagingAndKeepsOrder(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/trades", r.URL.Path)
		assert.Equal(t, "20", r.URL.Query().Get("limit"))
		assert.Equal(t, "40", r.URL.Query().Get("offset"))
		_, _ = io.WriteString(w, `{"total": 2, "trades": [
			{"id": 9, "timestamp": 1700000300000, "action": "sell", "amount_sol": 0.5, "status": "SUCCESS", "reason": null, "profit_loss": 0.1},
			{"id": 8, "timestamp": 1700000200000, "action": "BUY", "amount_sol": 0.4, "status": "failed", "gas_cost": 0.001}
		]}`)
	})

	page, err := c.GetTrades(context.Background(), 20, 40)
	require.NoError(t, err)
	require.Len(t, page.Trades, 2)
	assert.Equal(t, 2, page.Total)
	assert.Equal(t, int64(9), page.Trades[0].ID)
	assert.Equal(t, domain.ActionSell, page.Trades[0].Action)
	require.NotNil(t, page.Trades[0].ProfitLoss)
	assert.Equal(t, 0.1, *page.Trades[0].ProfitLoss)
	assert.Equal(t, domain.TradeFailed, page.Trades[1].Status)
	assert.Nil(t, page.Trades[1].ProfitLoss)
	require.NotNil(t, page.Trades[1].GasCost)
}

func TestGetPositions_FallbackFields(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `[
			{"token_address": "A", "amount": 10, "entry_price": 1, "currentPrice": 2, "cost_basis": 10, "profit_loss": 10, "status": "OPEN"},
			{"token_address": "B", "amount": 5, "entry_price": 2, "current_price": 1, "currentValue": 5, "entryValue": 10, "profitLoss": -5, "profitLossPercent": -50, "status": "CLOSED"}
		]`)
	})

	ps, err := c.GetPositions(context.Background())
	require.NoError(t, err)
	require.Len(t, ps, 2)

	a := ps[0]
	assert.Equal(t, 2.0, a.CurrentPrice)
	assert.Equal(t, 10.0, a.EntryValue)
	assert.Equal(t, 20.0, a.CurrentValue)
	assert.Equal(t, 10.0, a.ProfitLoss)
	assert.Equal(t, 100.0, a.ProfitLossPercent)

	b := ps[1]
	assert.Equal(t, domain.PositionClosed, b.Status)
	assert.Equal(t, -50.0, b.ProfitLossPercent)
}

func TestGetChartData_KeepsObjectEntriesOnly(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/metrics/chart", r.URL.Path)
		assert.Equal(t, "7", r.URL.Query().Get("days"))
		_, _ = io.WriteString(w, `{"2024-01-01": {"profit": 1, "loss": 0.5, "trades": 3}, "note": "text", "summary": {"profit": 9}}`)
	})

	data, err := c.GetChartData(context.Background(), 7)
	require.NoError(t, err)
	assert.Len(t, data, 2)
	assert.Equal(t, 3, data["2024-01-01"].Trades)
	_, hasNote := data["note"]
	assert.False(t, hasNote)
}

func TestGetDetailedHealth(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health/detailed", r.URL.Path)
		_, _ = io.WriteString(w, `{"overall": "degraded", "timestamp": 1700000000000, "uptime": 90,
			"services": {"database": {"name": "database", "status": "healthy", "latency": 12, "lastCheck": 1700000000000},
			             "solanaRpc": {"status": "unhealthy", "lastCheck": 1700000000000}},
			"metrics": {"memoryUsage": {"rss": 100, "heapUsed": 50, "percentage": 42.5}, "cpuUsage": {"user": 1, "system": 2}}}`)
	})

	h, err := c.GetDetailedHealth(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.Degraded, h.Overall)
	assert.Equal(t, 90*time.Second, h.Uptime)
	require.Contains(t, h.Services, "solanaRpc")
	assert.Equal(t, "solanaRpc", h.Services["solanaRpc"].Name)
	assert.Equal(t, domain.Unhealthy, h.Services["solanaRpc"].Status)
	require.NotNil(t, h.Services["database"].Latency)
	assert.Equal(t, 12*time.Millisecond, *h.Services["database"].Latency)
	require.NotNil(t, h.CPU)
	assert.Nil(t, h.Diagnostics)
}

func TestGetVolumeInfo_ParsesPercentString(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"flyApp": "loki", "volumePath": "/data", "timestamp": "2024-01-02T03:04:05Z",
			"volume": {"totalBytes": 1000, "usedBytes": 421, "availableBytes": 579, "usagePercent": "42.10%", "databaseSize": 300}}`)
	})

	v, err := c.GetVolumeInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 42.10, v.UsagePercent)
	assert.Equal(t, int64(300), v.DatabaseSize)
	assert.Equal(t, 2024, v.Timestamp.Year())
}

func TestNon2xx_ReturnsTransportError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = io.WriteString(w, `{"error":"bot offline"}`)
	})

	err := c.Pause(context.Background())
	require.Error(t, err)
	var te *domain.TransportError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, http.StatusServiceUnavailable, te.StatusCode)
	assert.JSONEq(t, `{"error":"bot offline"}`, string(te.Body))
}

func TestNetworkFailure_ReturnsTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := NewClient(url, time.Second, zap.NewNop())
	_, err := c.GetStatus(context.Background())
	var te *domain.TransportError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, 0, te.StatusCode)
	assert.Error(t, te.Err)
}

func TestControlEndpoints(t *testing.T) {
	var (
		calls atomic.Int32
		mu    sync.Mutex
		paths = map[string]string{}
	)
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		mu.Lock()
		paths[r.URL.Path] = r.Method
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	})
	ctx := context.Background()

	require.NoError(t, c.Pause(ctx))
	require.NoError(t, c.Resume(ctx))
	require.NoError(t, c.EmergencyStop(ctx))
	require.NoError(t, c.ClearQueue(ctx))
	require.NoError(t, c.ResetCircuitBreaker(ctx))

	assert.Equal(t, int32(5), calls.Load())
	mu.Lock()
	defer mu.Unlock()
	for _, p := range []string{"/control/pause", "/control/resume", "/control/emergency-stop", "/control/clear-queue", "/circuit-breaker/reset"} {
		assert.Equal(t, http.MethodPost, paths[p], p)
	}
}

func TestClearDatabase_RequiresConfirmation(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/database/clear-all", r.URL.Path)
		assert.Equal(t, domain.ClearDatabaseConfirmation, r.URL.Query().Get("confirm"))
	})

	err := c.ClearDatabase(context.Background(), "")
	assert.ErrorIs(t, err, domain.ErrConfirmationRequired)
	assert.Equal(t, int32(0), calls.Load())

	require.NoError(t, c.ClearDatabase(context.Background(), domain.ClearDatabaseConfirmation))
	assert.Equal(t, int32(1), calls.Load())
}

func TestClosePosition_DefaultReason(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/control/positions/Tok1/close", r.URL.Path)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, domain.DefaultCloseReason, body["reason"])
		_, _ = io.WriteString(w, `{"success": true, "solReceived": 1.25, "signature": "sig"}`)
	})

	res, err := c.ClosePosition(context.Background(), "Tok1", "")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 1.25, res.SOLReceived)
}

func TestDownloadDatabase_ReturnsRawBytes(t *testing.T) {
	payload := []byte{0x50, 0x4b, 0x03, 0x04, 0x00, 0xff}
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/database/download", r.URL.Path)
		assert.Equal(t, "application/zip", r.Header.Get("Accept"))
		assert.Equal(t, "24", r.URL.Query().Get("hours"))
		w.Header().Set("Content-Type", "application/zip")
		w.Header().Set("Content-Disposition", `attachment; filename="loki-24h.zip"`)
		_, _ = w.Write(payload)
	})

	a, err := c.DownloadDatabase(context.Background(), 24)
	require.NoError(t, err)
	assert.Equal(t, payload, a.Data)
	assert.Equal(t, "loki-24h.zip", a.Filename)
	assert.Equal(t, "application/zip", a.ContentType)
}

func TestDownloadDatabase_OmitsZeroHours(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.URL.RawQuery)
		_, _ = w.Write([]byte("zip"))
	})

	a, err := c.DownloadDatabase(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, "loki-database.zip", a.Filename)
}
