package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/julienschmidt/httprouter"

	"github.com/Seednode/quizhost/internal/clock"
	"github.com/Seednode/quizhost/internal/hub"
	"github.com/Seednode/quizhost/internal/orchestrator"
	"github.com/Seednode/quizhost/internal/registry"
	"github.com/Seednode/quizhost/internal/store"
)

const (
	logDate string        = `2006-01-02T15:04:05.000-07:00`
	timeout time.Duration = 10 * time.Second

	// quizCacheSize bounds the LRU of hot quiz definitions in front of the
	// durable Store (spec SPEC_FULL's hashicorp/golang-lru wiring).
	quizCacheSize = 64

	// reaperInterval is how often ServePage sweeps for idle sessions; it is
	// deliberately finer-grained than sessionTimeout itself.
	reaperInterval = time.Minute
)

func securityHeaders(cfg *Config, w http.ResponseWriter) {
	w.Header().Set("Cross-Origin-Embedder-Policy", "require-corp")
	w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
	w.Header().Set("Cross-Origin-Resource-Policy", "same-site")
	w.Header().Set("Permissions-Policy", "geolocation=(), midi=(), sync-xhr=(), microphone=(), camera=(), magnetometer=(), gyroscope=(), fullscreen=(), payment=()")
	w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Content-Security-Policy", "default-src 'self'")

	if cfg.scheme() == "https" {
		w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains; preload")
	}
}

func realIP(r *http.Request) string {
	host, port, _ := net.SplitHostPort(r.RemoteAddr)
	if ip := r.Header.Get("CF-Connecting-IP"); ip != "" {
		if net.ParseIP(ip) != nil {
			host = ip
		}
	} else if ip := r.Header.Get("X-Real-IP"); ip != "" {
		if net.ParseIP(ip) != nil {
			host = ip
		}
	}
	if net.ParseIP(host) != nil && strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	if port != "" {
		return host + ":" + port
	}
	return host
}

func serveVersion(cfg *Config, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		startTime := time.Now()

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		securityHeaders(cfg, w)
		w.WriteHeader(http.StatusOK)

		written, err := w.Write([]byte("quizhost v" + releaseVersion + "\n"))
		if err != nil {
			errs <- err

			return
		}

		logf(cfg, "SERVE: Version page (%s) to %s in %s",
			humanReadableSize(int64(written)),
			realIP(r),
			time.Since(startTime).Round(time.Microsecond),
		)
	}
}

// buildStore opens the durable Store named by cfg.quizStore, wraps its write
// path in retry/backoff (spec §7/§4.8 - StoreTransient errors are retried
// before a Session ever sees them), and wraps its quiz lookups in an LRU
// cache, mirroring the teacher's go.mod bet on hashicorp/golang-lru for this
// exact shape of read-mostly cache.
func buildStore(cfg *Config) (store.Store, func() error, error) {
	sqliteStore, err := store.OpenSQLite(cfg.quizStore)
	if err != nil {
		return nil, nil, err
	}

	retrying := store.NewRetryingStore(sqliteStore)

	cached, err := store.NewCachedQuizStore(retrying, quizCacheSize)
	if err != nil {
		return nil, nil, err
	}

	return cached, sqliteStore.Close, nil
}

func ServePage(ctx context.Context, cfg *Config, args []string) error {
	var err error

	timeZone := os.Getenv("TZ")
	if timeZone != "" {
		time.Local, err = time.LoadLocation(timeZone)
		if err != nil {
			return err
		}
	}

	logf(cfg, "START: quizhost v%s", releaseVersion)

	st, closeStore, err := buildStore(cfg)
	if err != nil {
		return fmt.Errorf("opening quiz store: %w", err)
	}
	defer func() { _ = closeStore() }()

	hb := hub.New()
	reg := registry.New(st)
	clk := clock.Real{}

	orch := orchestrator.New(st, hb, reg, clk, cfg.reconnectWindow, cfg.minigameTickHz, cfg.itemTimerTolerance, func(format string, args ...any) {
		logf(cfg, format, args...)
	})

	if err := orch.RehydrateAll(ctx); err != nil {
		logf(cfg, "START: rehydration failed: %v", err)
	}

	mux := httprouter.New()

	srv := &http.Server{
		Addr:              net.JoinHostPort(cfg.bind, strconv.Itoa(cfg.port)),
		Handler:           mux,
		IdleTimeout:       10 * time.Minute,
		ReadTimeout:       timeout,
		ReadHeaderTimeout: timeout,
		WriteTimeout:      timeout,
	}

	mux.PanicHandler = func(w http.ResponseWriter, r *http.Request, i any) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		securityHeaders(cfg, w)
		w.WriteHeader(http.StatusInternalServerError)

		io.WriteString(w, newPage("Server Error", "An error has occurred. Please try again."))
	}

	errs := make(chan error, 64)

	cfg.prefix = strings.TrimSuffix(cfg.prefix, "/")

	mux.GET(cfg.prefix+"/", serveHomePage(cfg))

	mux.GET(cfg.prefix+"/favicons/*favicon", serveFavicons(cfg, errs))

	mux.GET(cfg.prefix+"/favicon.webp", serveFavicons(cfg, errs))

	mux.GET(cfg.prefix+"/assets/*asset", serveAssets(cfg, errs))

	mux.GET(cfg.prefix+"/healthz", orch.HandleHealthz)

	mux.GET(cfg.prefix+"/robots.txt", serveRobots(cfg, errs))

	mux.GET(cfg.prefix+"/version", serveVersion(cfg, errs))

	mux.POST(cfg.prefix+"/sessions", orch.HandleCreateSession)

	mux.GET(cfg.prefix+"/sessions/code/:code", orch.HandleSessionInfo)

	mux.GET(cfg.prefix+"/sessions/code/:code/qr", orch.HandleSessionQR)

	mux.GET(cfg.prefix+"/ws/:code", orch.HandleWebSocket)

	if cfg.profile {
		registerProfileHandlers(cfg, mux)
	}

	go func() {
		ticker := time.NewTicker(reaperInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				orch.ReapIdle(ctx, cfg.sessionTimeout)
			}
		}
	}()

	go func() {
		var err error
		if cfg.tlsKey != "" && cfg.tlsCert != "" {
			logf(cfg, "SERVE: Listening on %s://%s%s/", cfg.scheme(), srv.Addr, cfg.prefix)
			err = srv.ListenAndServeTLS(cfg.tlsCert, cfg.tlsKey)
		} else {
			logf(cfg, "SERVE: Listening on %s://%s%s/", cfg.scheme(), srv.Addr, cfg.prefix)
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			fmt.Printf("%s | ERROR: %v\n", time.Now().Format(logDate), err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)

	return nil
}
