package api

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/platinummonkey/finance/pkg/httputil"
	"github.com/platinummonkey/finance/pkg/observability"
)

// maxBodyBytes bounds request bodies; plan options are the largest payload
const maxBodyBytes = 1 << 20

// Service is the engine the API drives; *finance.Manager implements it
type Service interface {
	RegisterUser(ctx context.Context, id, provider, planName string) error
	UnregisterUser(ctx context.Context, id, provider string) error
	RemoveUser(ctx context.Context, id, provider string) error
	PurgeUser(ctx context.Context, id, provider string) error
	ChangePlan(ctx context.Context, id, provider, newPlanName string) error
	UpdateFinanceState(ctx context.Context, id, provider string, state map[string]string) error
	GetFinanceState(id, provider, property string) (string, error)
	IsAuthorized(ctx context.Context, id, provider, operation string) (bool, error)

	CreatePlan(ctx context.Context, kind, name string, options map[string]string) error
	GetPlanOptions(name string) (map[string]string, error)
	UpdatePlanOptions(ctx context.Context, name string, options map[string]string) error
	RemovePlan(ctx context.Context, name string) error
	PlanNames() []string

	Reload(ctx context.Context) error
}

// Server serves the finance admin API
type Server struct {
	service Service
	router  *mux.Router
	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewServer creates the API server. metrics may be nil.
func NewServer(service Service, logger *observability.Logger, metrics *observability.Metrics) *Server {
	s := &Server{
		service: service,
		router:  mux.NewRouter(),
		logger:  logger,
		metrics: metrics,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	fs := s.router.PathPrefix("/fs").Subrouter()

	// User routes
	fs.HandleFunc("/users", s.registerUser).Methods(http.MethodPost)
	fs.HandleFunc("/users/{provider}/{id}", s.unregisterUser).Methods(http.MethodDelete)
	fs.HandleFunc("/users/{provider}/{id}/record", s.removeUser).Methods(http.MethodDelete)
	fs.HandleFunc("/users/{provider}/{id}/purge", s.purgeUser).Methods(http.MethodDelete)
	fs.HandleFunc("/users/{provider}/{id}/plan", s.changePlan).Methods(http.MethodPut)
	fs.HandleFunc("/users/{provider}/{id}/state", s.updateFinanceState).Methods(http.MethodPut)
	fs.HandleFunc("/users/{provider}/{id}/state/{property}", s.getFinanceState).Methods(http.MethodGet)
	fs.HandleFunc("/users/{provider}/{id}/authorized/{operation}", s.isAuthorized).Methods(http.MethodGet)

	// Plan routes
	fs.HandleFunc("/plans", s.createPlan).Methods(http.MethodPost)
	fs.HandleFunc("/plans", s.listPlans).Methods(http.MethodGet)
	fs.HandleFunc("/plans/{name}", s.getPlan).Methods(http.MethodGet)
	fs.HandleFunc("/plans/{name}", s.updatePlan).Methods(http.MethodPut)
	fs.HandleFunc("/plans/{name}", s.removePlan).Methods(http.MethodDelete)

	fs.HandleFunc("/reload", s.reload).Methods(http.MethodPost)

	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteErrorMessage(w, http.StatusNotFound, "no such route")
	})

	// route middleware runs after matching, so the metrics see the template
	if s.metrics != nil {
		s.router.Use(observability.HTTPMetricsMiddleware(s.metrics, routeLabel))
	}
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Handler returns the API with tracing, request ids, logging and panic
// recovery around it
func (s *Server) Handler() http.Handler {
	chain := httputil.Chain(
		httputil.RequestIDMiddleware(s.logger),
		observability.RecoveryMiddleware(s.logger),
		httputil.LoggingMiddleware,
		httputil.ContentTypeMiddleware,
		httputil.MaxBytesMiddleware(maxBodyBytes),
	)
	return otelhttp.NewHandler(chain(s), "finance-api",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + routeLabel(r)
		}),
	)
}

func routeLabel(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tmpl, err := route.GetPathTemplate(); err == nil {
			return tmpl
		}
	}
	return "unmatched"
}
