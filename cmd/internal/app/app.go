// Package app wires the layoo server runtime: config, logging, stores, HTTP routes, the
// realtime gateway and background jobs.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"layoo/cmd/internal/actu"
	"layoo/cmd/internal/chat"
	"layoo/cmd/internal/events"
	"layoo/cmd/internal/gift"
	"layoo/cmd/internal/media"
	"layoo/cmd/internal/observability"
	"layoo/cmd/internal/post"
	"layoo/cmd/internal/realtime"
	"layoo/cmd/internal/retry"
	"layoo/cmd/internal/user"
)

// App is the layoo server runtime. It owns the backends, the hub and every domain handler.
type App struct {
	cfg Config
	log Logger

	backends *backends
	metrics  *observability.Metrics
	events   events.Publisher
	intake   *media.Intake
	hub      *realtime.Hub
	ws       *realtime.WSGateway
	sweeper  *cron.Cron

	chat  *chat.Service
	users *user.Service
	actus *actu.Service
	gifts *gift.Service
	posts *post.Service
}

// New constructs a fully wired App instance from config and logger.
func New(ctx context.Context, cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel, cfg.LogFormat)
	}

	b, err := openBackends(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	a, err := wire(ctx, cfg, log, b)
	if err != nil {
		_ = b.Close(context.Background())
		return nil, err
	}
	return a, nil
}

func wire(ctx context.Context, cfg Config, log Logger, b *backends) (*App, error) {
	metrics := observability.NewMetrics()

	var pub events.Publisher = events.Nop{}
	if len(cfg.KafkaBrokers) > 0 {
		kp, err := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.KafkaTimeout)
		if err != nil {
			return nil, err
		}
		pub = kp
		log.Info("events.kafka", "brokers", strings.Join(cfg.KafkaBrokers, ","), "topic", cfg.KafkaTopic)
	}

	intake, err := media.NewIntake(cfg.UploadDir, cfg.UploadMaxBytes, nil)
	if err != nil {
		return nil, err
	}
	up, err := newUploader(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	uploads := media.NewInstrumented(up, retry.Once(cfg.UploadTimeout), metrics)

	hubOpts := []realtime.HubOption{realtime.WithMetrics(metrics)}
	if b.redis != nil {
		hubOpts = append(hubOpts, realtime.WithPresenceMirror(realtime.NewRedisPresence(b.redis, "layoo", cfg.PresenceTTL)))
	}
	hub := realtime.NewHub(log, hubOpts...)

	users := user.NewService(log, b.users, pub)
	chatSvc := chat.NewService(log, b.chat, hub, metrics,
		chat.WithUploader(uploads),
		chat.WithPublisher(pub),
		chat.WithTxPolicy(retry.Once(cfg.TxTimeout)),
	)
	actus := actu.NewService(log, actu.Deps{
		Store:     b.actus,
		Uploader:  uploads,
		Prober:    media.NewFFmpegProber(),
		Previewer: media.ImagePreviewer{Width: 480},
		Directory: users,
		Notifier:  hub,
		Publisher: pub,
		WorkDir:   cfg.UploadDir,
	})
	gifts := gift.NewService(log, gift.Deps{
		Store:     b.gifts,
		Uploader:  uploads,
		Contacts:  users,
		Notifier:  hub,
		Publisher: pub,
	})
	posts := post.NewService(log, post.Deps{
		Store:     b.posts,
		Uploader:  uploads,
		Contacts:  users,
		Directory: users,
		Publisher: pub,
	})

	var verifier realtime.TokenVerifier = realtime.PresenceTokenVerifier{}
	if cfg.JWTSecret != "" {
		verifier = realtime.NewJWTVerifier(cfg.JWTSecret)
	} else {
		log.Warn("ws.auth.presence_only", "hint", "set LAYOO_JWT_SECRET to verify handshake tokens")
	}
	ws := realtime.NewWSGateway(log, hub, verifier, realtime.LoadGatewayConfig(), realtime.WithParticipantChecker(chatSvc))

	a := &App{
		cfg:      cfg,
		log:      log,
		backends: b,
		metrics:  metrics,
		events:   pub,
		intake:   intake,
		hub:      hub,
		ws:       ws,
		chat:     chatSvc,
		users:    users,
		actus:    actus,
		gifts:    gifts,
		posts:    posts,
	}
	if cfg.SweepSchedule != "" {
		sweeper, err := newSweeper(cfg.SweepSchedule, log, actus, gifts)
		if err != nil {
			return nil, err
		}
		a.sweeper = sweeper
	}
	return a, nil
}

// newUploader picks S3 when a bucket is configured and the local upload directory otherwise.
func newUploader(ctx context.Context, cfg Config, log Logger) (media.Uploader, error) {
	if cfg.S3Bucket != "" {
		s3u, err := media.NewS3Uploader(ctx, media.S3Config{
			Region:        cfg.S3Region,
			Bucket:        cfg.S3Bucket,
			Endpoint:      cfg.S3Endpoint,
			Prefix:        cfg.S3Prefix,
			PublicBaseURL: cfg.S3PublicBaseURL,
		})
		if err != nil {
			return nil, err
		}
		log.Info("media.uploader.s3", "bucket", cfg.S3Bucket, "region", cfg.S3Region)
		return s3u, nil
	}

	base := cfg.PublicBaseURL
	if base == "" {
		base = runtimeBaseURL(cfg.HTTPAddr)
	}
	log.Info("media.uploader.local", "dir", cfg.UploadDir)
	return media.LocalUploader{Dir: cfg.UploadDir, BaseURL: strings.TrimRight(base, "/") + uploadsPrefix}, nil
}

// Handler returns the complete HTTP handler with middleware applied.
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()
	a.registerHTTP(mux)

	var h http.Handler = mux
	h = WithCORS(h, a.cfg, a.log)
	h = WithSecurityHeaders(h)
	return WithRequestLogging(h, a.log)
}

// Run starts the HTTP server and blocks until context cancellation or fatal server error.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           a.Handler(),
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 2*time.Minute),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 2*time.Minute),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	base := runtimeBaseURL(a.cfg.HTTPAddr)
	a.log.Info("server.start",
		"addr", a.cfg.HTTPAddr,
		"http_url", base,
		"ws_url", wsBaseURL(base)+"/ws",
		"db_enabled", a.backends.databaseEnabled(),
	)

	if a.sweeper != nil {
		a.sweeper.Start()
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.log.Info("server.stop", "reason", "context_done")
	case err := <-errCh:
		a.log.Error("server.fail", "err", err)
		runErr = err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if runErr == nil {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.log.Error("server.shutdown.fail", "err", err)
			runErr = err
		}
	}
	a.Close(shutdownCtx)

	if runErr == nil {
		a.log.Info("server.stopped")
	}
	return runErr
}

// Close stops background jobs and releases the event producer and the backends.
func (a *App) Close(ctx context.Context) {
	if a.sweeper != nil {
		select {
		case <-a.sweeper.Stop().Done():
		case <-ctx.Done():
		}
	}
	if err := a.events.Close(); err != nil {
		a.log.Error("events.close.fail", "err", err)
	}
	if err := a.backends.Close(ctx); err != nil {
		a.log.Error("store.close.fail", "err", err)
	}
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// runtimeBaseURL turns a listen address into a URL clients on this host can reach.
func runtimeBaseURL(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "http://" + addr
	}
	switch host {
	case "", "0.0.0.0", "::":
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port)
}

// wsBaseURL maps an HTTP base URL to its WebSocket scheme.
func wsBaseURL(base string) string {
	switch {
	case strings.HasPrefix(base, "https://"):
		return "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		return "ws://" + strings.TrimPrefix(base, "http://")
	}
	return fmt.Sprintf("ws://%s", base)
}
