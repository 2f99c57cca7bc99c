// Package identity resolves the authenticated principal for an inbound
// request and enriches it with user, group, and permission metadata.
//
// Two mutually exclusive sources are supported:
//
//   - external: a trusted upstream (Apache/Kerberos) already verified the
//     user and passes the principal in a request header. No password check
//     happens here.
//   - internal: credentials are extracted by identifier plugins (login
//     body, bearer token, session cookie) and verified by authenticator
//     plugins against the store.
//
// Whichever branch produced the principal, metadata providers always run
// afterwards. This is what lets externally-authenticated users be
// provisioned and synchronized on first contact instead of arriving with
// an empty profile.
package identity

import (
	"context"

	"github.com/vigilo-nms/accessd/pkg/models"
)

// Identity is the per-request authentication state. It is request-local
// and must never be cached across requests.
type Identity struct {
	// Principal is the login name asserted for this request.
	Principal string

	// Password carries the cleartext credential between the identifier
	// and authenticator stages of the internal branch. Never persisted.
	Password string

	// External is true when the principal came from the upstream
	// pre-authentication header.
	External bool

	// CCachePath points to the delegated Kerberos credential cache, when
	// the front end forwards one. Consumed by the directory sync for
	// GSSAPI binds.
	CCachePath string

	// tokens marks which pipeline stages have already run for this
	// identity. Append-only within one request; the sync engine uses it
	// to avoid reconciling the same identity twice in one pass.
	tokens map[string]struct{}

	// User is the local account record, once resolved. Nil for an
	// external principal that has not been provisioned yet.
	User *models.User

	// Groups and Permissions are the enriched credential sets consumed
	// by the ACL evaluator and the REST guard.
	Groups      map[string]struct{}
	Permissions map[string]struct{}
}

// New creates an Identity for the given principal.
func New(principal string) *Identity {
	return &Identity{
		Principal:   principal,
		tokens:      make(map[string]struct{}),
		Groups:      make(map[string]struct{}),
		Permissions: make(map[string]struct{}),
	}
}

// AddToken records that the named pipeline stage has run.
func (id *Identity) AddToken(token string) {
	id.tokens[token] = struct{}{}
}

// HasToken reports whether the named stage already ran for this identity.
func (id *Identity) HasToken(token string) bool {
	_, ok := id.tokens[token]
	return ok
}

// Tokens returns a copy of the completed-stage markers, for logging.
func (id *Identity) Tokens() []string {
	out := make([]string, 0, len(id.tokens))
	for t := range id.tokens {
		out = append(out, t)
	}
	return out
}

// HasGroup reports membership in the enriched group set.
func (id *Identity) HasGroup(name string) bool {
	_, ok := id.Groups[name]
	return ok
}

// HasPermission reports a permission in the enriched set.
func (id *Identity) HasPermission(name string) bool {
	_, ok := id.Permissions[name]
	return ok
}

// TokenExternal marks an identity established by the external branch.
const TokenExternal = "external"

// contextKey is a private type for context keys.
type contextKey struct{}

var identityContextKey = contextKey{}

// WithIdentity returns a context carrying the resolved identity.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, id)
}

// FromContext retrieves the identity from ctx, or nil if the request was
// not authenticated.
func FromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(identityContextKey).(*Identity)
	return id
}
