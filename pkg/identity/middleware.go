package identity

import (
	"fmt"
	"html/template"
	"net/http"
	"net/url"

	"github.com/vigilo-nms/accessd/internal/logger"
)

// Middleware resolves the request identity and stores it in the request
// context. It never rejects on its own: route guards downstream decide
// whether an anonymous request is acceptable and issue challenges.
func Middleware(resolver *Resolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := resolver.Resolve(r)
			if err != nil {
				logger.ErrorCtx(r.Context(), "identity resolution failed", logger.KeyError, err)
				http.Error(w, "internal server error", http.StatusInternalServerError)
				return
			}
			ctx := r.Context()
			if id != nil {
				ctx = WithIdentity(ctx, id)
				branch := "internal"
				if id.External {
					branch = "external"
				}
				logger.FromContext(ctx).SetPrincipal(id.Principal, branch)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// trampolineTemplate recovers the URL fragment on the client before
// handing off to the login page. The fragment never reaches the server,
// so a plain 302 would lose it; this page re-appends it to came_from.
var trampolineTemplate = template.Must(template.New("trampoline").Parse(`<!DOCTYPE html>
<html><head><meta charset="utf-8"><title>Redirecting</title></head>
<body><script>
var target = {{.LoginURL}};
if (window.location.hash) {
	target += encodeURIComponent(window.location.hash);
}
window.location.replace(target);
</script>
<noscript><a href="{{.LoginURL}}">Log in</a></noscript>
</body></html>
`))

// LoginChallenger renders authentication challenges per request class.
type LoginChallenger struct {
	// LoginPath is where browsers are sent to authenticate.
	LoginPath string
}

// Challenge writes the challenge response. API clients get a bare 401;
// browsers get the fragment-preserving redirect to the login page with
// the original URL in came_from. Externally fronted requests get a 401
// with no redirect, because a missing pre-auth header means the front
// end is broken and bouncing the user in a loop would not help.
func (c *LoginChallenger) Challenge(w http.ResponseWriter, r *http.Request, class RequestClass) {
	switch class {
	case ClassBrowser:
		cameFrom := r.URL.Path
		if r.URL.RawQuery != "" {
			cameFrom += "?" + r.URL.RawQuery
		}
		loginURL := fmt.Sprintf("%s?came_from=%s", c.LoginPath, url.QueryEscape(cameFrom))
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusUnauthorized)
		_ = trampolineTemplate.Execute(w, map[string]string{"LoginURL": loginURL})
	default:
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"detail":"authentication required"}`)
	}
}
