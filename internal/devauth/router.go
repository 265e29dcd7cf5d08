package devauth

import (
	"log/slog"
	"net/http"

	"github.com/aussiebroadwan/labsession/pkg/httpx"
	"github.com/aussiebroadwan/labsession/pkg/jwtx"
	"github.com/aussiebroadwan/labsession/pkg/slogx"
)

// Router holds shared dependencies for the dev server's handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	verifier     jwtx.Verifier
	buildVersion string
	logger       *slog.Logger
	tokenLimit   httpx.RateLimitConfig

	Directory *Directory
	Tokens    *TokenService
}

func NewRouter(dir *Directory, tokens *TokenService, verifier jwtx.Verifier, buildVersion string, tokenLimit httpx.RateLimitConfig, logger *slog.Logger) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		verifier:     verifier,
		buildVersion: buildVersion,
		logger:       logger,
		tokenLimit:   tokenLimit,
		Directory:    dir,
		Tokens:       tokens,
	}
	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
	}
	return r
}

func (r *Router) ApplyRoutes() {
	r.registerOAuth2()
	r.registerResources()
	r.registerSystem()
}

// ServeHTTP applies the global middleware chain.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) registerOAuth2() {
	// Keyed by IP + username so one user's failures don't lock out the office.
	r.Mux.Handle("POST /v1/oauth2/token",
		httpx.Chain(&TokenHandler{Tokens: r.Tokens},
			httpx.RateLimitByIPAndFormField(r.tokenLimit, "username"),
		),
	)
	r.Mux.Handle("POST /v1/oauth2/revoke",
		httpx.Chain(&RevokeHandler{Tokens: r.Tokens},
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)
}

func (r *Router) registerResources() {
	r.Mux.Handle("GET /v1/profile",
		httpx.Chain(&ProfileHandler{Directory: r.Directory},
			httpx.AuthnMiddleware(r.verifier),
		),
	)
	r.Mux.Handle("GET /v1/probe",
		httpx.Chain(ProbeHandler{},
			httpx.AuthnMiddleware(r.verifier),
		),
	)
}

func (r *Router) registerSystem() {
	r.Mux.Handle("GET /livez", LivezHandler(r.buildVersion))
}
