package identity

import (
	"context"
	"net/http"
)

// The resolver is assembled from small plugins so deployments can swap
// credential sources without touching the pipeline. Each plugin names
// itself; the name becomes the completed-stage token on the identity.

// Identifier extracts a credential candidate from the request. Returning
// nil means this plugin found nothing; the resolver moves on.
type Identifier interface {
	Name() string
	Identify(r *http.Request) *Identity
}

// Authenticator verifies a candidate produced by an identifier. It may
// populate id.User on success. Authenticators run in registration order
// and the first success wins.
type Authenticator interface {
	Name() string
	Authenticate(ctx context.Context, id *Identity) (bool, error)
}

// MetadataProvider enriches an authenticated identity. Providers always
// run, for both branches, in registration order. A provider error is
// logged by the resolver but never blocks authentication.
type MetadataProvider interface {
	Name() string
	AddMetadata(ctx context.Context, id *Identity) error
}

// Challenger renders the "authentication required" response for a given
// request class.
type Challenger interface {
	Challenge(w http.ResponseWriter, r *http.Request, class RequestClass)
}
