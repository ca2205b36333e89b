package httpserver

import (
	"log/slog"
	"net/http"

	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/sudheendrakatikar/exsim/internal/server/management"
)

// ObjectSource is the read side of the management registry.
type ObjectSource interface {
	List() []management.ObjectInfo
	Describe(name string) (management.ObjectInfo, bool)
}

// RouterConfig holds configuration for the HTTP router.
type RouterConfig struct {
	// Objects is the management registry.
	Objects ObjectSource

	// Metrics serves /metrics. Nil disables the endpoint.
	Metrics http.Handler

	// Status backs /v1/status. Nil disables the endpoint.
	Status func() any

	// Registerer receives the request metrics. Nil disables them.
	Registerer prometheus.Registerer

	// Logger for request logging.
	Logger *slog.Logger
}

// NewRouter creates the management router with all routes and middleware.
func NewRouter(cfg *RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	router := httprouter.New()
	router.NotFound = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "EX-HTTP-4040", "no route for "+r.URL.Path)
	})
	router.MethodNotAllowed = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "EX-HTTP-4050", r.Method+" not allowed on "+r.URL.Path)
	})

	router.GET("/healthz", func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	if cfg.Metrics != nil {
		router.Handler(http.MethodGet, "/metrics", cfg.Metrics)
	}

	if cfg.Status != nil {
		status := cfg.Status
		router.GET("/v1/status", func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
			writeJSON(w, http.StatusOK, status())
		})
	}

	if cfg.Objects != nil {
		objects := cfg.Objects
		router.GET("/v1/objects", func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
			writeJSON(w, http.StatusOK, objects.List())
		})
		router.GET("/v1/objects/:name", func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
			name := ps.ByName("name")
			info, ok := objects.Describe(name)
			if !ok {
				writeError(w, http.StatusNotFound, "EX-HTTP-4041", "object not found: "+name)
				return
			}
			writeJSON(w, http.StatusOK, info)
		})
	}

	chain := []Middleware{Recover(logger), RequestID(), AccessLog(logger)}
	if cfg.Registerer != nil {
		chain = append(chain, Instrument(cfg.Registerer))
	}
	return Chain(router, chain...)
}
