package identity

import (
	"net/http"
	"strings"
)

// RemoteUserIdentifier implements the external branch: the principal is
// asserted by a trusted front end (Apache with Kerberos or certificate
// auth) in a request header. The front end MUST strip this header from
// client-supplied requests; accessd trusts it unconditionally.
type RemoteUserIdentifier struct {
	// Header is the request header carrying the verified principal,
	// for example "X-Remote-User".
	Header string

	// StripRealm removes a trailing "@REALM" suffix so Kerberos
	// principals match local usernames.
	StripRealm bool

	// CCacheHeader optionally names the header carrying the path of the
	// delegated Kerberos credential cache, for example "X-Krb5-Ccname".
	CCacheHeader string
}

// Name returns the stage token for this identifier.
func (p *RemoteUserIdentifier) Name() string { return "remote-user" }

// Identify reads the pre-authentication header. The returned identity is
// already authenticated: no authenticator runs for the external branch.
func (p *RemoteUserIdentifier) Identify(r *http.Request) *Identity {
	principal := r.Header.Get(p.Header)
	if principal == "" {
		return nil
	}
	if p.StripRealm {
		if i := strings.LastIndex(principal, "@"); i >= 0 {
			principal = principal[:i]
		}
	}
	id := New(principal)
	id.External = true
	if p.CCacheHeader != "" {
		id.CCachePath = strings.TrimPrefix(r.Header.Get(p.CCacheHeader), "FILE:")
	}
	id.AddToken(TokenExternal)
	id.AddToken(p.Name())
	return id
}
