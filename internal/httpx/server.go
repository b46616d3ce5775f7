package httpx

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"github.com/ariefcatur/go-clothing-orders/internal/inventory"
	"github.com/ariefcatur/go-clothing-orders/internal/logger"
	"github.com/ariefcatur/go-clothing-orders/internal/metrics"
	"github.com/ariefcatur/go-clothing-orders/internal/orders"
	"github.com/ariefcatur/go-clothing-orders/internal/redisx"
)

type Deps struct {
	Orders    *orders.Service
	Inventory *inventory.Service
	Cache     *redisx.Cache
	Auth      *Authenticator
}

func NewRouter(d Deps) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, requestLogger, middleware.Recoverer)
	r.Use(middleware.Timeout(15 * time.Second))
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", metrics.Handler())

	oh := &OrdersHandler{Orders: d.Orders, Inventory: d.Inventory, Cache: d.Cache}
	ah := &AdminHandler{Orders: d.Orders, Inventory: d.Inventory, Cache: d.Cache}

	oh.RegisterPublic(r)
	r.Group(func(r chi.Router) {
		r.Use(d.Auth.Middleware)
		oh.Register(r)
		r.Route("/admin", func(r chi.Router) {
			r.Use(requireAdmin)
			ah.Register(r)
		})
	})
	return r
}

// requestLogger logs one line per request and records the HTTP metrics,
// labelled by route pattern to keep cardinality bounded.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		elapsed := time.Since(start)
		metrics.HTTPRequests.WithLabelValues(route, r.Method, strconv.Itoa(status)).Inc()
		metrics.HTTPLatencyMS.WithLabelValues(route).Observe(float64(elapsed.Milliseconds()))

		ev := logger.Info(r.Context())
		if status >= http.StatusInternalServerError {
			ev = logger.Error(r.Context())
		}
		ev.Str("method", r.Method).
			Str("route", route).
			Int("status", status).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", elapsed).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("http request")
	})
}

// CORS allows browser clients from origins. Callers authenticate with bearer
// tokens, never cookies, so credentialed requests are not enabled.
func CORS(origins []string) func(http.Handler) http.Handler {
	return cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type", "Idempotency-Key"},
	}).Handler
}
