package realtime

import (
	"slices"
	"testing"
	"time"
)

func TestLoadGatewayConfig_EnvOverrides(t *testing.T) {
	t.Setenv("LAYOO_WS_ORIGIN_REQUIRED", "true")
	t.Setenv("LAYOO_WS_ALLOWED_ORIGINS", "https://app.example:8443, http://localhost")
	t.Setenv("LAYOO_WS_SEND_QUEUE", "4")
	t.Setenv("LAYOO_WS_RATE_WINDOW", "bogus")
	t.Setenv("LAYOO_WS_REQUIRE_PARTICIPANT", "1")

	cfg := LoadGatewayConfig()

	if !cfg.OriginRequired || !cfg.RequireParticipant {
		t.Fatalf("bools not applied: %+v", cfg)
	}
	if cfg.SendQueueSize != wsMinSendQueueSize {
		t.Fatalf("send queue=%d want clamp to %d", cfg.SendQueueSize, wsMinSendQueueSize)
	}
	if cfg.RateWindow != rateLimitWindow {
		t.Fatalf("invalid duration must fall back, got %s", cfg.RateWindow)
	}
	if got := cfg.originPatterns(); !slices.Equal(got, []string{"app.example", "localhost"}) {
		t.Fatalf("origin patterns=%v", got)
	}
}

func TestGatewayConfig_Defaults(t *testing.T) {
	t.Parallel()

	cfg := GatewayConfig{}.normalized()
	if cfg.WriteTimeout != wsDefaultWriteTimeout || cfg.HeartbeatEvery != 25*time.Second {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
	if got := DefaultGatewayConfig().originPatterns(); !slices.Equal(got, []string{"*"}) {
		t.Fatalf("wildcard patterns=%v", got)
	}
}
