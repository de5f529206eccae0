package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/kozaktomas/customer-recognition/internal/constants"
	"github.com/kozaktomas/customer-recognition/internal/web/handlers"
)

func (s *Server) setupRoutes() {
	// Create handlers
	statsHandler := handlers.NewStatsHandler(s.deps.Store, s.deps.Engine, s.deps.Cache)
	detectionsHandler := handlers.NewDetectionsHandler(s.deps.Detector, s.deps.Cache, s.config.Detection.RecentLimit)
	billsHandler := handlers.NewBillsHandler(s.deps.Engine, s.deps.Cache, statsHandler.InvalidateCache)
	customersHandler := handlers.NewCustomersHandler(s.deps.Store, s.deps.Engine, s.deps.Cache, s.deps.Images)
	configHandler := handlers.NewConfigHandler(s.config)

	// Long-lived event stream, no request timeout
	s.router.Get("/api/detections/events", detectionsHandler.Events)

	s.router.Group(func(r chi.Router) {
		r.Use(chiMiddleware.Timeout(requestTimeout))

		r.Get("/api/health", handlers.HealthCheck)

		// Detection intake; /identify_customer is kept for older camera scripts
		r.Post("/api/customer_detected", detectionsHandler.CustomerDetected)
		r.Post("/identify_customer", detectionsHandler.CustomerDetected)
		r.Post("/api/test_detection", detectionsHandler.TestDetection)

		// Dashboard feed
		r.Get("/api/latest_customer", detectionsHandler.LatestCustomer)
		r.Get("/api/recent_customers", detectionsHandler.RecentCustomers)

		// Point of sale
		r.Post("/api/update_bill", billsHandler.UpdateBill)
		r.Post("/api/manual_lookup", customersHandler.ManualLookup)

		// Customers
		r.Get("/api/customers", customersHandler.List)
		r.Get("/api/customers/{id}", customersHandler.Get)
		r.Get("/api/customers/{id}/history", customersHandler.History)

		r.Get("/api/config", configHandler.Get)
		r.Get("/api/stats", statsHandler.Get)

		if s.deps.StaticDir != "" {
			fs := http.StripPrefix(constants.StaticImagesPrefix, http.FileServer(http.Dir(s.deps.StaticDir)))
			r.Get(constants.StaticImagesPrefix+"*", fs.ServeHTTP)
		}

		r.Get("/", s.serveIndex)
	})
}

// serveIndex serves a landing page pointing at the API.
func (s *Server) serveIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`<!DOCTYPE html>
<html>
<head>
    <title>Customer Recognition</title>
    <style>
        body { font-family: system-ui, sans-serif; display: flex; justify-content: center; align-items: center; height: 100vh; margin: 0; background: #1a1a2e; color: #eee; }
        .container { text-align: center; }
        h1 { color: #00d9ff; }
        a { color: #00d9ff; }
    </style>
</head>
<body>
    <div class="container">
        <h1>Customer Recognition</h1>
        <p><a href="/api/recent_customers">Recent customers</a> · <a href="/api/stats">Stats</a> · <a href="/api/health">Health</a></p>
    </div>
</body>
</html>`))
}
