package realtime

import (
	"os"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	wsDefaultSendQueueSize = 256
	wsMinSendQueueSize     = 32

	wsDefaultWriteTimeout = 5 * time.Second
	wsDefaultReadIdle     = 2 * time.Minute
	wsCloseGrace          = 1 * time.Second

	wsMaxPingFailures = 3
)

// GatewayConfig holds the websocket policy knobs.
type GatewayConfig struct {
	// DevInsecure disables websocket.Accept's origin verification. Dev only.
	DevInsecure bool

	OriginRequired bool
	AllowedOrigins []string

	WriteTimeout    time.Duration
	ReadIdleTimeout time.Duration
	SendQueueSize   int

	HeartbeatEvery   time.Duration
	HeartbeatTimeout time.Duration

	RateEvents int
	RateWindow time.Duration

	// RequireParticipant makes joinRoom consult the ParticipantChecker.
	RequireParticipant bool
}

// DefaultGatewayConfig returns the defaults used when no env overrides are set.
// Mobile clients send no Origin header, so it is optional by default.
func DefaultGatewayConfig() GatewayConfig {
	return GatewayConfig{
		OriginRequired:   false,
		AllowedOrigins:   []string{"*"},
		WriteTimeout:     wsDefaultWriteTimeout,
		ReadIdleTimeout:  wsDefaultReadIdle,
		SendQueueSize:    wsDefaultSendQueueSize,
		HeartbeatEvery:   heartbeatInterval,
		HeartbeatTimeout: heartbeatTimeout,
		RateEvents:       rateLimitEvents,
		RateWindow:       rateLimitWindow,
	}
}

// LoadGatewayConfig reads LAYOO_WS_* variables over the defaults.
func LoadGatewayConfig() GatewayConfig {
	def := DefaultGatewayConfig()

	cfg := GatewayConfig{
		DevInsecure:        envBoolWS("LAYOO_WS_DEV_INSECURE", false),
		OriginRequired:     envBoolWS("LAYOO_WS_ORIGIN_REQUIRED", def.OriginRequired),
		AllowedOrigins:     envCSVWS("LAYOO_WS_ALLOWED_ORIGINS", strings.Join(def.AllowedOrigins, ",")),
		WriteTimeout:       envDurationWS("LAYOO_WS_WRITE_TIMEOUT", def.WriteTimeout),
		ReadIdleTimeout:    envDurationWS("LAYOO_WS_READ_IDLE_TIMEOUT", def.ReadIdleTimeout),
		SendQueueSize:      envIntWS("LAYOO_WS_SEND_QUEUE", def.SendQueueSize),
		HeartbeatEvery:     envDurationWS("LAYOO_WS_HEARTBEAT_INTERVAL", def.HeartbeatEvery),
		HeartbeatTimeout:   envDurationWS("LAYOO_WS_HEARTBEAT_TIMEOUT", def.HeartbeatTimeout),
		RateEvents:         envIntWS("LAYOO_WS_RATE_EVENTS", def.RateEvents),
		RateWindow:         envDurationWS("LAYOO_WS_RATE_WINDOW", def.RateWindow),
		RequireParticipant: envBoolWS("LAYOO_WS_REQUIRE_PARTICIPANT", false),
	}
	return cfg.normalized()
}

func (c GatewayConfig) normalized() GatewayConfig {
	def := DefaultGatewayConfig()
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = def.WriteTimeout
	}
	if c.ReadIdleTimeout <= 0 {
		c.ReadIdleTimeout = def.ReadIdleTimeout
	}
	if c.SendQueueSize < wsMinSendQueueSize {
		c.SendQueueSize = wsMinSendQueueSize
	}
	if c.HeartbeatEvery <= 0 {
		c.HeartbeatEvery = def.HeartbeatEvery
	}
	if c.HeartbeatTimeout <= 0 {
		c.HeartbeatTimeout = def.HeartbeatTimeout
	}
	if c.RateEvents <= 0 {
		c.RateEvents = def.RateEvents
	}
	if c.RateWindow <= 0 {
		c.RateWindow = def.RateWindow
	}
	return c
}

// originPatterns derives websocket.Accept OriginPatterns from the allowlist so the two
// layers agree: Accept authorizes same-host origins itself but needs host patterns for
// cross-origin requests.
func (c GatewayConfig) originPatterns() []string {
	seen := make(map[string]struct{}, len(c.AllowedOrigins))
	for _, a := range c.AllowedOrigins {
		a = strings.TrimSpace(a)
		if a == "*" {
			return []string{"*"}
		}
		h := originHostOnly(a)
		if h == "" {
			continue
		}
		seen[h] = struct{}{}
	}

	out := make([]string, 0, len(seen))
	for h := range seen {
		out = append(out, h)
	}
	sort.Strings(out)
	return out
}

// ---- env helpers ----

func envBoolWS(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envIntWS(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envDurationWS(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func envCSVWS(key string, def string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		raw = def
	}
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
