package httpapi

import (
	"net/http"

	"authgrid.org/internal/obs"
	"authgrid.org/internal/rbac"
)

// Options tunes the HTTP surface.
type Options struct {
	Version       string
	RateLimitRPS  int
	RateBurst     int
	MaxBodyBytes  int64
	ReadyProbe    func() error
	EnableMetrics bool
}

// API is the HTTP surface of the permission service.
type API struct {
	mux  *http.ServeMux
	svc  *rbac.Service
	opts Options
}

// New wires the service into an HTTP API.
func New(svc *rbac.Service, opts Options) *API {
	if opts.Version == "" {
		opts.Version = "dev"
	}
	if opts.RateLimitRPS <= 0 {
		opts.RateLimitRPS = 20
	}
	if opts.RateBurst <= 0 {
		opts.RateBurst = 2 * opts.RateLimitRPS
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 1 << 20
	}

	a := &API{
		mux:  http.NewServeMux(),
		svc:  svc,
		opts: opts,
	}
	a.routes()
	return a
}

func (a *API) routes() {
	a.mux.HandleFunc("/healthz", a.handleHealth)
	a.mux.HandleFunc("/readyz", a.handleReady)
	if a.opts.EnableMetrics {
		a.mux.Handle("/metrics", obs.Handler())
	}

	a.mux.HandleFunc("/v1/auth/token", a.handleAuthToken)

	a.mux.HandleFunc("/v1/accounts", a.handleAccounts)
	a.mux.HandleFunc("/v1/accounts/", a.handleAccountByPath)

	a.mux.HandleFunc("/v1/claims", a.handleClaims)
	a.mux.HandleFunc("/v1/claims/", a.handleClaimByID)

	a.mux.HandleFunc("/v1/actions", a.handleActions)
	a.mux.HandleFunc("/v1/actions/", a.handleActionByID)

	a.mux.HandleFunc("/v1/claim-actions", a.handleClaimActions)
	a.mux.HandleFunc("/v1/claim-actions/", a.handleClaimActionByPath)

	a.mux.HandleFunc("/v1/grants", a.handleGrants)
	a.mux.HandleFunc("/v1/grants/", a.handleGrantByID)
}

// Handler returns the fully wrapped handler chain.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = a.withAuth(h)
	h = MaxBodyBytes(h, a.opts.MaxBodyBytes)
	h = RateLimit(h, a.opts.RateBurst, a.opts.RateLimitRPS)
	h = obs.Instrument(h)
	h = LoggingJSON(h)
	h = SecurityHeaders(h)
	h = CORS(h)
	h = RequestID(h)
	return h
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": a.opts.Version,
	})
}

func (a *API) handleReady(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if probe := a.opts.ReadyProbe; probe != nil {
		if err := probe(); err != nil {
			writeError(w, r, http.StatusServiceUnavailable, "not ready")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
