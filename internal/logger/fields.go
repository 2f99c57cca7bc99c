package logger

// Standard field keys for structured logging.
// Use these keys consistently across all log statements so that log
// aggregation can correlate authentication, sync, and ACL events.
const (
	// Request correlation
	KeyRequestID = "request_id" // HTTP request ID (chi middleware)
	KeyClientIP  = "client_ip"  // Client IP address

	// Identity
	KeyPrincipal  = "principal"   // Authenticated login name
	KeyAuthBranch = "auth_branch" // "external" or "internal"
	KeyRealm      = "realm"       // Kerberos realm stripped from the principal

	// Groups and permissions
	KeyGroup      = "group"      // Group name
	KeyGroupKind  = "group_kind" // monitoring, map, graph
	KeyPermission = "permission" // Permission name

	// Monitored entities
	KeyEntity   = "entity"    // Entity kind: host, lls, hls, map, graph
	KeyEntityID = "entity_id" // Entity identifier

	// Directory sync
	KeyLDAPURL    = "ldap_url"    // LDAP server URL being contacted
	KeyLDAPFilter = "ldap_filter" // Search filter (already escaped)
	KeyUserDN     = "user_dn"     // Distinguished name of the user entry

	// Operation metadata
	KeyDurationMs = "duration_ms" // Operation duration in milliseconds
	KeyError      = "error"       // Error message
	KeyStatus     = "status"      // HTTP status code
)
