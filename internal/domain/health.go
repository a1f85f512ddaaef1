package domain

import (
	"encoding/json"
	"time"
)

type HealthLevel string

const (
	Healthy   HealthLevel = "healthy"
	Degraded  HealthLevel = "degraded"
	Unhealthy HealthLevel = "unhealthy"
)

// Service names reported by the detailed health endpoint.
const (
	ServiceWebsocket   = "websocket"
	ServiceSolanaRPC   = "solanaRpc"
	ServiceDatabase    = "database"
	ServiceJupiterAPI  = "jupiterApi"
	ServiceDexScreener = "dexScreener"
	ServiceMonitoring  = "monitoring"
)

type ServiceHealth struct {
	Name      string          `json:"name"`
	Status    HealthLevel     `json:"status"`
	Latency   *time.Duration  `json:"latency,omitempty"`
	LastCheck time.Time       `json:"lastCheck"`
	Details   json.RawMessage `json:"details,omitempty"`
}

type MemoryUsage struct {
	RSS          int64   `json:"rss"`
	HeapTotal    int64   `json:"heapTotal"`
	HeapUsed     int64   `json:"heapUsed"`
	External     int64   `json:"external"`
	ArrayBuffers int64   `json:"arrayBuffers,omitempty"`
	Percentage   float64 `json:"percentage"`
}

type CPUUsage struct {
	User   int64 `json:"user"`
	System int64 `json:"system"`
}

// HealthDiagnostics carries the optional nested diagnostics blocks.
type HealthDiagnostics struct {
	MemoryDetails   json.RawMessage `json:"memoryDetails,omitempty"`
	ApplicationData json.RawMessage `json:"applicationData,omitempty"`
}

// DetailedHealth is the per-service health report. Overall is computed by the
// backend and never recomputed here.
type DetailedHealth struct {
	Overall     HealthLevel              `json:"overall"`
	Timestamp   time.Time                `json:"timestamp"`
	Uptime      time.Duration            `json:"uptime"`
	Services    map[string]ServiceHealth `json:"services"`
	Memory      MemoryUsage              `json:"memory"`
	CPU         *CPUUsage                `json:"cpu,omitempty"`
	Diagnostics *HealthDiagnostics       `json:"diagnostics,omitempty"`
}
