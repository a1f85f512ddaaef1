package botapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/vitos/loki_dashboard/internal/domain"
	"go.uber.org/zap"
)

const DefaultTimeout = 15 * time.Second

// Client is the typed wrapper over the bot REST API. It performs exactly one
// request per call and never caches.
type Client struct {
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

var _ domain.BotAPI = (*Client)(nil)

func NewClient(baseURL string, timeout time.Duration, logger *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		logger:  logger.Named("botapi"),
	}
}

type response struct {
	body   []byte
	header http.Header
}

func (c *Client) sendRequest(ctx context.Context, method, path string, query url.Values, payload any, accept string) (*response, error) {
	op := method + " " + path

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("%s: encode body: %w", op, err)
		}
		body = bytes.NewReader(raw)
	}

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, &domain.TransportError{Op: op, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	if accept == "" {
		accept = "application/json"
	}
	req.Header.Set("Accept", accept)

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &domain.TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &domain.TransportError{Op: op, StatusCode: resp.StatusCode, Err: err}
	}

	c.logger.Debug("Request completed",
		zap.String("op", op),
		zap.Int("status", resp.StatusCode),
		zap.Duration("took", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &domain.TransportError{Op: op, StatusCode: resp.StatusCode, Body: respBody}
	}
	return &response{body: respBody, header: resp.Header}, nil
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	resp, err := c.sendRequest(ctx, http.MethodGet, path, query, nil, "")
	if err != nil {
		return err
	}
	if err := json.Unmarshal(resp.body, out); err != nil {
		return fmt.Errorf("GET %s: decode: %w", path, err)
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, payload any, out any) error {
	resp, err := c.sendRequest(ctx, http.MethodPost, path, nil, payload, "")
	if err != nil {
		return err
	}
	if out == nil || len(bytes.TrimSpace(resp.body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.body, out); err != nil {
		return fmt.Errorf("POST %s: decode: %w", path, err)
	}
	return nil
}

// --- Reads ---

func (c *Client) GetStatus(ctx context.Context) (*domain.BotStatus, error) {
	var w wireStatus
	if err := c.getJSON(ctx, "/status", nil, &w); err != nil {
		return nil, err
	}
	return w.normalize(), nil
}

func (c *Client) GetTrades(ctx context.Context, limit, offset int) (*domain.TradePage, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", strconv.Itoa(offset))

	var w struct {
		Trades []wireTrade `json:"trades"`
		Total  int         `json:"total"`
	}
	if err := c.getJSON(ctx, "/trades", q, &w); err != nil {
		return nil, err
	}
	page := &domain.TradePage{Trades: make([]domain.Trade, 0, len(w.Trades)), Total: w.Total}
	for _, t := range w.Trades {
		page.Trades = append(page.Trades, t.normalize())
	}
	return page, nil
}

func (c *Client) GetTrade(ctx context.Context, id int64) (*domain.Trade, error) {
	var w wireTrade
	if err := c.getJSON(ctx, "/trades/"+strconv.FormatInt(id, 10), nil, &w); err != nil {
		return nil, err
	}
	t := w.normalize()
	return &t, nil
}

func (c *Client) GetPositions(ctx context.Context) ([]domain.Position, error) {
	var w []wirePosition
	if err := c.getJSON(ctx, "/positions", nil, &w); err != nil {
		return nil, err
	}
	out := make([]domain.Position, 0, len(w))
	for _, p := range w {
		out = append(out, p.normalize())
	}
	return out, nil
}

func (c *Client) GetPosition(ctx context.Context, token string) (*domain.Position, error) {
	var w wirePosition
	if err := c.getJSON(ctx, "/positions/"+url.PathEscape(token), nil, &w); err != nil {
		return nil, err
	}
	p := w.normalize()
	return &p, nil
}

func (c *Client) GetMetrics(ctx context.Context) (*domain.Metrics, error) {
	var m domain.Metrics
	if err := c.getJSON(ctx, "/metrics", nil, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (c *Client) GetChartData(ctx context.Context, days int) (domain.ChartData, error) {
	q := url.Values{}
	q.Set("days", strconv.Itoa(days))

	var raw map[string]json.RawMessage
	if err := c.getJSON(ctx, "/metrics/chart", q, &raw); err != nil {
		return nil, err
	}
	return normalizeChart(raw), nil
}

func (c *Client) GetHealth(ctx context.Context) (*domain.ServiceProbe, error) {
	var w struct {
		Status    string   `json:"status"`
		Timestamp flexTime `json:"timestamp"`
	}
	if err := c.getJSON(ctx, "/health", nil, &w); err != nil {
		return nil, err
	}
	return &domain.ServiceProbe{Status: w.Status, Timestamp: w.Timestamp.Time}, nil
}

func (c *Client) GetDetailedHealth(ctx context.Context) (*domain.DetailedHealth, error) {
	var w wireHealth
	if err := c.getJSON(ctx, "/health/detailed", nil, &w); err != nil {
		return nil, err
	}
	return w.normalize(), nil
}

func (c *Client) GetWalletSignals(ctx context.Context) (*domain.WalletSignalFeed, error) {
	var w wireSignalFeed
	if err := c.getJSON(ctx, "/wallet/signals", nil, &w); err != nil {
		return nil, err
	}
	return w.normalize(), nil
}

func (c *Client) GetVolumeInfo(ctx context.Context) (*domain.VolumeInfo, error) {
	var w wireVolume
	if err := c.getJSON(ctx, "/system/volume", nil, &w); err != nil {
		return nil, err
	}
	return w.normalize(), nil
}

func (c *Client) GetCircuitBreaker(ctx context.Context) (*domain.CircuitBreaker, error) {
	var w wireCircuitBreaker
	if err := c.getJSON(ctx, "/circuit-breaker", nil, &w); err != nil {
		return nil, err
	}
	return w.normalize(), nil
}

// --- Control ---

func (c *Client) Pause(ctx context.Context) error {
	return c.post(ctx, "/control/pause", nil, nil)
}

func (c *Client) Resume(ctx context.Context) error {
	return c.post(ctx, "/control/resume", nil, nil)
}

func (c *Client) EmergencyStop(ctx context.Context) error {
	return c.post(ctx, "/control/emergency-stop", nil, nil)
}

func (c *Client) ClearQueue(ctx context.Context) error {
	return c.post(ctx, "/control/clear-queue", nil, nil)
}

// ClearDatabase wipes all bot data. The confirmation value has no default and
// must equal domain.ClearDatabaseConfirmation.
func (c *Client) ClearDatabase(ctx context.Context, confirm string) error {
	if confirm != domain.ClearDatabaseConfirmation {
		return domain.ErrConfirmationRequired
	}
	q := url.Values{}
	q.Set("confirm", confirm)
	_, err := c.sendRequest(ctx, http.MethodDelete, "/database/clear-all", q, nil, "")
	return err
}

func (c *Client) ClosePosition(ctx context.Context, token, reason string) (*domain.ClosePositionResult, error) {
	if reason == "" {
		reason = domain.DefaultCloseReason
	}
	var w wireCloseResult
	path := "/control/positions/" + url.PathEscape(token) + "/close"
	if err := c.post(ctx, path, map[string]string{"reason": reason}, &w); err != nil {
		return nil, err
	}
	return w.normalize(), nil
}

// DownloadDatabase returns the archive bytes as-is. hours <= 0 requests everything.
func (c *Client) DownloadDatabase(ctx context.Context, hours int) (*domain.DatabaseArchive, error) {
	var q url.Values
	if hours > 0 {
		q = url.Values{}
		q.Set("hours", strconv.Itoa(hours))
	}
	resp, err := c.sendRequest(ctx, http.MethodGet, "/database/download", q, nil, "application/zip")
	if err != nil {
		return nil, err
	}
	archive := &domain.DatabaseArchive{
		Filename:    archiveFilename(resp.header.Get("Content-Disposition")),
		ContentType: resp.header.Get("Content-Type"),
		Data:        resp.body,
	}
	if archive.ContentType == "" {
		archive.ContentType = "application/zip"
	}
	return archive, nil
}

func (c *Client) ResetCircuitBreaker(ctx context.Context) error {
	return c.post(ctx, "/circuit-breaker/reset", nil, nil)
}

func (c *Client) TripCircuitBreaker(ctx context.Context, reason string) error {
	return c.post(ctx, "/circuit-breaker/trip", map[string]string{"reason": reason}, nil)
}

func archiveFilename(disposition string) string {
	if disposition != "" {
		if _, params, err := mime.ParseMediaType(disposition); err == nil && params["filename"] != "" {
			return params["filename"]
		}
	}
	return "loki-database.zip"
}
