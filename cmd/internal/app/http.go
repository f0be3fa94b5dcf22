package app

import (
	"net/http"
	"time"

	"layoo/cmd/internal/actu"
	"layoo/cmd/internal/chat"
	"layoo/cmd/internal/gift"
	"layoo/cmd/internal/httpx"
	"layoo/cmd/internal/post"
	"layoo/cmd/internal/user"
)

// uploadsPrefix is where LocalUploader files are served.
const uploadsPrefix = "/uploads"

func (a *App) registerHTTP(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		if a.cfg.ReadinessRequireDB && !a.backends.databaseEnabled() {
			http.Error(w, "db not configured", http.StatusServiceUnavailable)
			return
		}
		if err := a.backends.ping(r.Context(), 2*time.Second); err != nil {
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			a.log.Info("readyz.db.not_ready", "err", err)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready\n"))
	})

	mux.Handle("GET /metrics", a.metrics.Handler())

	mux.HandleFunc("GET /api/ping", func(w http.ResponseWriter, _ *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, map[string]string{"message": "pong"})
	})

	mux.HandleFunc("GET /api/presence/{userID}", a.handlePresence)

	mux.HandleFunc("/ws", a.ws.HandleWS)

	chat.NewHandler(a.log, a.chat, a.intake).Register(mux)
	user.NewHandler(a.log, a.users).Register(mux)
	actu.NewHandler(a.log, a.actus, a.intake).Register(mux)
	gift.NewHandler(a.log, a.gifts, a.intake).Register(mux)
	post.NewHandler(a.log, a.posts, a.intake).Register(mux)

	if a.cfg.S3Bucket == "" {
		files := http.FileServer(http.Dir(a.cfg.UploadDir))
		mux.Handle("GET "+uploadsPrefix+"/", http.StripPrefix(uploadsPrefix, files))
	}
}

func (a *App) handlePresence(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userID")
	st, err := a.hub.Presence(r.Context(), userID)
	if err != nil {
		// Local state is still authoritative for this instance.
		a.log.Warn("presence.lookup.fail", "user_id", userID, "err", err)
	}
	httpx.WriteJSON(w, http.StatusOK, st)
}
