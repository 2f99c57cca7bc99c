package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vigilo-nms/accessd/internal/logger"
	"github.com/vigilo-nms/accessd/pkg/acl"
	"github.com/vigilo-nms/accessd/pkg/config"
	"github.com/vigilo-nms/accessd/pkg/identity"
	"github.com/vigilo-nms/accessd/pkg/ldapsync"
	"github.com/vigilo-nms/accessd/pkg/store"
)

// NewRouter creates and configures the chi router.
//
// The middleware stack, in order:
//   - Request ID for request tracking
//   - Real IP extraction behind the front-end proxy
//   - Request logging using the internal logger
//   - Panic recovery
//   - Request timeout
//   - Identity resolution (external pre-auth or internal credentials)
//
// Routes:
//   - GET  /health                  - Liveness probe
//   - GET  /metrics                 - Prometheus metrics (when enabled)
//   - POST /login                   - Internal authentication
//   - POST /logout                  - Session teardown
//   - POST /api/v1/auth/refresh     - Token refresh
//   - GET  /api/v1/auth/me          - Current user profile
//   - /api/v1/hosts/*               - Hosts (listing filtered, reads guarded)
//   - /api/v1/services/*            - Low/high level services
//   - /api/v1/maps/*                - Supervision maps
//   - /api/v1/graphs/*              - Performance graphs
//   - /api/v1/groups/{kind}/*       - Group hierarchies (manager only)
//   - /api/v1/users/*               - Account management (manager only)
//   - /api/v1/permissions           - Permission catalog (manager only)
//
// The evaluator is supplied by the caller so its admin-group set can be
// swapped on configuration reload while the router keeps serving.
func NewRouter(cfg *config.Config, st store.Store, evaluator *acl.Evaluator) (http.Handler, error) {
	tokens, err := identity.NewTokenService(identity.TokenConfig{
		Secret:               cfg.API.TokenSecret,
		Issuer:               cfg.API.TokenIssuer,
		AccessTokenDuration:  cfg.API.AccessTokenDuration,
		RefreshTokenDuration: cfg.API.RefreshTokenDuration,
	})
	if err != nil {
		return nil, err
	}

	resolver := &identity.Resolver{
		Identifiers: []identity.Identifier{
			&identity.LoginFormIdentifier{LoginPath: cfg.Auth.LoginPath},
			&identity.BearerTokenIdentifier{Tokens: tokens},
			&identity.SessionCookieIdentifier{Tokens: tokens},
		},
		Authenticators: []identity.Authenticator{
			&identity.TokenAuthenticator{Store: st},
			&identity.PasswordAuthenticator{Store: st},
		},
		Providers: []identity.MetadataProvider{
			// Order matters: the directory sync must run before the
			// store provider so the same request sees fresh memberships.
			ldapsync.New(cfg.LDAP, st),
			&identity.StoreMetadataProvider{Store: st},
		},
	}
	if cfg.Auth.RemoteUserHeader != "" {
		resolver.External = &identity.RemoteUserIdentifier{
			Header:       cfg.Auth.RemoteUserHeader,
			StripRealm:   cfg.Auth.StripRealm,
			CCacheHeader: cfg.Auth.CCacheHeader,
		}
	}

	networks, err := identity.ParseInternalNetworks(cfg.Auth.InternalNetworks)
	if err != nil {
		return nil, fmt.Errorf("auth internal_networks: %w", err)
	}
	classifier := &identity.Classifier{
		APIPrefixes:      cfg.Auth.APIPrefixes,
		StaticPrefixes:   cfg.Auth.StaticPrefixes,
		InternalNetworks: networks,
		RemoteUserHeader: cfg.Auth.RemoteUserHeader,
	}
	challenger := &identity.LoginChallenger{LoginPath: cfg.Auth.LoginPath}
	guard := NewGuard(evaluator, classifier, challenger)

	authHandler := NewAuthHandler(st, tokens, evaluator, *cfg.API.SecureCookies)
	hostHandler := NewHostHandler(st, evaluator)
	serviceHandler := NewServiceHandler(st, evaluator)
	mapHandler := NewMapHandler(st, evaluator)
	graphHandler := NewGraphHandler(st, evaluator)
	groupHandler := NewGroupHandler(st)
	userHandler := NewUserHandler(st, evaluator)

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.API.RequestTimeout))
	r.Use(identity.Middleware(resolver))

	// Unauthenticated probes.
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		WriteJSONOK(w, map[string]string{"status": "ok"})
	})
	if cfg.Metrics.Enabled {
		r.Handle(cfg.Metrics.Path, promhttp.Handler())
	}

	// Session endpoints live at the root so the front end can expose
	// them without path rewriting.
	r.Post(cfg.Auth.LoginPath, authHandler.Login)
	r.Post("/logout", authHandler.Logout)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/refresh", authHandler.Refresh)
			r.Group(func(r chi.Router) {
				r.Use(guard.RequireAuthenticated)
				r.Get("/me", authHandler.Me)
			})
		})

		// Entity reads: authenticated, ACL-checked per entity.
		r.Group(func(r chi.Router) {
			r.Use(guard.RequireAuthenticated)

			r.Get("/hosts", hostHandler.List)
			r.Get("/hosts/{name}", hostHandler.Get)
			r.Get("/services/lls/{id}", serviceHandler.GetLLS)
			r.Get("/services/hls/{id}", serviceHandler.GetHLS)
			r.Get("/maps", mapHandler.List)
			r.Get("/maps/{id}", mapHandler.Get)
			r.Get("/graphs", graphHandler.List)
			r.Get("/graphs/{id}", graphHandler.Get)

			// Self-or-manager access, decided in the handler.
			r.Get("/users/{username}", userHandler.Get)
		})

		// Administrative writes: manager only.
		r.Group(func(r chi.Router) {
			r.Use(guard.RequireManager)

			r.Post("/hosts", hostHandler.Create)
			r.Post("/hosts/{name}/groups", hostHandler.AddToGroup)
			r.Post("/services/lls", serviceHandler.CreateLLS)
			r.Post("/services/hls", serviceHandler.CreateHLS)
			r.Post("/maps", mapHandler.Create)
			r.Post("/maps/{id}/groups", mapHandler.AddToGroup)
			r.Post("/graphs", graphHandler.Create)
			r.Post("/graphs/{id}/groups", graphHandler.AddToGroup)

			r.Route("/groups/{kind}", func(r chi.Router) {
				r.Get("/", groupHandler.List)
				r.Post("/", groupHandler.Create)
				r.Get("/{name}", groupHandler.Get)
				r.Put("/{name}", groupHandler.Update)
				r.Delete("/{name}", groupHandler.Delete)
				r.Get("/{name}/members", groupHandler.ListMembers)
				r.Post("/{name}/members", groupHandler.AddMember)
				r.Delete("/{name}/members/{username}", groupHandler.RemoveMember)
				r.Post("/{name}/permissions", groupHandler.AttachPermission)
			})

			r.Post("/users", userHandler.Create)
			r.Get("/users", userHandler.List)
			r.Put("/users/{username}", userHandler.Update)
			r.Delete("/users/{username}", userHandler.Delete)
			r.Post("/users/{username}/password", userHandler.ResetPassword)
		})
	})

	return r, nil
}

// requestLogger logs requests using the internal logger. Health probes
// log at DEBUG to keep the noise down.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := middleware.GetReqID(r.Context())

		lc := logger.NewLogContext(requestID, r.RemoteAddr)
		ctx := logger.WithContext(r.Context(), lc)

		logger.DebugCtx(ctx, "request started",
			"method", r.Method,
			"path", r.URL.Path,
		)

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r.WithContext(ctx))

		logArgs := []any{
			"method", r.Method,
			"path", r.URL.Path,
			logger.KeyStatus, ww.Status(),
			"bytes", ww.BytesWritten(),
			logger.KeyDurationMs, time.Since(start).Milliseconds(),
		}

		if r.URL.Path == "/health" {
			logger.DebugCtx(ctx, "request completed", logArgs...)
		} else {
			logger.InfoCtx(ctx, "request completed", logArgs...)
		}
	})
}
