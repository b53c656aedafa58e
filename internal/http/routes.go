package httpx

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/target/webfront-auth/internal/observability/metrics"
	"github.com/target/webfront-auth/internal/ports"
	"github.com/target/webfront-auth/internal/service"
)

// RouterServices holds all the services needed by the HTTP router.
type RouterServices struct {
	WebFront *service.WebFrontService
	Cookies  CookieConfig
	// EntryPath roots the protocol endpoints, e.g. "/.webfront".
	EntryPath string
	// Optional: enables unsafeDirectLogin.
	Allower ports.UnsafeDirectLoginAllower
	Metrics *metrics.Recorder
	// Optional: exposes /metrics.
	Gatherer prometheus.Gatherer
	// Optional: served for every path outside the protocol. It can read the
	// caller with ResolutionFromContext.
	App    http.Handler
	Logger *slog.Logger
}

// NewRouter creates the protocol router wrapped with the standard middleware.
func NewRouter(services RouterServices) http.Handler {
	logger := services.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "http")
	entry := services.EntryPath
	if entry == "" {
		entry = "/.webfront"
	}

	h := &WebFrontHandlers{
		Svc:       services.WebFront,
		Cookies:   services.Cookies,
		Allower:   services.Allower,
		EntryPath: entry,
		Metrics:   services.Metrics,
		Logger:    logger,
	}

	mux := http.NewServeMux()
	mux.Handle("GET /healthz", healthHandler(services.WebFront.Options().Version))
	mux.Handle("HEAD /healthz", healthHandler(services.WebFront.Options().Version))
	if services.Gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(services.Gatherer, promhttp.HandlerOpts{}))
	}

	c := entry + "/c/"
	mux.HandleFunc("GET "+c+"refresh", h.Refresh)
	mux.HandleFunc("POST "+c+"basicLogin", h.BasicLogin)
	mux.HandleFunc("POST "+c+"unsafeDirectLogin", h.UnsafeDirectLogin)
	mux.HandleFunc("GET "+c+"startLogin", h.StartLogin)
	mux.HandleFunc("POST "+c+"startLogin", h.StartLogin)
	mux.HandleFunc("GET "+c+"callback/{scheme}", h.Callback)
	mux.HandleFunc("POST "+c+"callback/{scheme}", h.Callback)
	mux.HandleFunc("POST "+c+"endLogin", h.EndLogin)
	mux.HandleFunc("GET "+c+"logout", h.Logout)
	mux.HandleFunc("POST "+c+"impersonate", h.Impersonate)
	mux.HandleFunc("GET "+entry+"/token", h.Token)

	if services.App != nil {
		mux.Handle("/", services.App)
	}

	return Chain(mux,
		RequestID(),
		Logging(logger),
		Recover(logger),
		Authenticate(AuthenticateConfig{
			Svc:       services.WebFront,
			Cookies:   services.Cookies,
			EntryPath: entry,
			Logger:    logger,
		}),
	)
}
