package httpx

import (
	"net/http"
	"strconv"
	"time"

	"github.com/ariefcatur/go-marketplace-orders/internal/auth"
	"github.com/ariefcatur/go-marketplace-orders/internal/logging"
	"github.com/ariefcatur/go-marketplace-orders/internal/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

type RouterDeps struct {
	Auth           *auth.Verifier
	Metrics        *metrics.Server
	Gatherer       prometheus.Gatherer
	Orders         *OrdersHandler
	Cart           *CartHandler
	Webhook        *WebhookHandler
	HandlerTimeout time.Duration
}

func NewRouter(d RouterDeps) *chi.Mux {
	if d.HandlerTimeout <= 0 {
		d.HandlerTimeout = 15 * time.Second
	}
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, accessLog(d.Metrics), middleware.Recoverer)
	r.Use(middleware.Timeout(d.HandlerTimeout))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if d.Gatherer != nil {
		r.Handle("/metrics", metrics.Handler(d.Gatherer))
	}

	// callback Xendit tidak membawa JWT
	r.Post("/webhooks/xendit", d.Webhook.handle)

	r.With(d.Auth.Require(auth.CapCheckout)).Post("/orders", d.Orders.create)
	r.With(d.Auth.Require(auth.CapViewOrders)).Get("/orders", d.Orders.list)
	r.With(d.Auth.Require(auth.CapViewOrders)).Get("/orders/{id}", d.Orders.get)
	r.With(d.Auth.Require(auth.CapViewOrders)).Get("/orders/{id}/status", d.Orders.status)
	r.Route("/cart", func(r chi.Router) {
		r.Use(d.Auth.Require(auth.CapManageCart))
		r.Get("/", d.Cart.view)
		r.Post("/", d.Cart.add)
		r.Put("/items/{itemID}", d.Cart.update)
		r.Delete("/items/{itemID}", d.Cart.remove)
	})
	return r
}

// accessLog puts a request-scoped logger in the context and records the
// request once it finished.
func accessLog(m *metrics.Server) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			log := logging.Base().With("request_id", middleware.GetReqID(r.Context()))
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r.WithContext(logging.WithCtx(r.Context(), log)))

			route := chi.RouteContext(r.Context()).RoutePattern()
			if route == "" {
				route = "unmatched"
			}
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			dur := time.Since(start)
			if m != nil {
				m.Requests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
				m.LatencyMS.WithLabelValues(r.Method, route).Observe(float64(dur.Milliseconds()))
			}
			log.Info("http request", "method", r.Method, "route", route, "path", r.URL.Path,
				"status", status, "duration_ms", dur.Milliseconds(), "bytes", ww.BytesWritten())
		})
	}
}
