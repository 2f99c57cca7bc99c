package identity

import (
	"net/http"

	"github.com/vigilo-nms/accessd/internal/logger"
)

// Resolver runs the identification pipeline for one request.
//
// The external identifier is checked first and is exclusive: when the
// upstream asserts a principal, no internal identifier or authenticator
// runs, and the password check is skipped entirely. Otherwise the
// internal identifiers produce candidates in order, and the first
// candidate accepted by an authenticator wins.
//
// Metadata providers run for every established identity, regardless of
// branch. Provider failures are logged and swallowed so a broken
// directory can never lock users out.
type Resolver struct {
	External       *RemoteUserIdentifier
	Identifiers    []Identifier
	Authenticators []Authenticator
	Providers      []MetadataProvider
}

// Resolve establishes the identity for a request, or nil when no
// credential source yielded an authenticated principal. The returned
// error is reserved for infrastructure failures (store unreachable);
// bad credentials are a nil identity, not an error.
func (res *Resolver) Resolve(r *http.Request) (*Identity, error) {
	ctx := r.Context()

	id, err := res.resolvePrincipal(r)
	if err != nil || id == nil {
		return nil, err
	}

	for _, provider := range res.Providers {
		if perr := provider.AddMetadata(ctx, id); perr != nil {
			logger.WarnCtx(ctx, "metadata provider failed",
				logger.KeyPrincipal, id.Principal,
				"provider", provider.Name(),
				logger.KeyError, perr)
		}
	}
	return id, nil
}

func (res *Resolver) resolvePrincipal(r *http.Request) (*Identity, error) {
	ctx := r.Context()

	if res.External != nil {
		if id := res.External.Identify(r); id != nil {
			logger.DebugCtx(ctx, "external principal asserted",
				logger.KeyPrincipal, id.Principal,
				logger.KeyAuthBranch, "external")
			return id, nil
		}
	}

	for _, identifier := range res.Identifiers {
		candidate := identifier.Identify(r)
		if candidate == nil {
			continue
		}
		for _, authenticator := range res.Authenticators {
			ok, err := authenticator.Authenticate(ctx, candidate)
			if err != nil {
				return nil, err
			}
			if ok {
				logger.DebugCtx(ctx, "principal authenticated",
					logger.KeyPrincipal, candidate.Principal,
					logger.KeyAuthBranch, "internal",
					"identifier", identifier.Name(),
					"authenticator", authenticator.Name())
				return candidate, nil
			}
		}
	}
	return nil, nil
}
