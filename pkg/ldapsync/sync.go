package ldapsync

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-ldap/ldap/v3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/text/encoding/ianaindex"

	"github.com/vigilo-nms/accessd/internal/logger"
	"github.com/vigilo-nms/accessd/pkg/identity"
	"github.com/vigilo-nms/accessd/pkg/models"
	"github.com/vigilo-nms/accessd/pkg/store"
)

// ErrEntryNotFound means the user filter matched no directory entry.
var ErrEntryNotFound = errors.New("no matching LDAP entry")

var syncTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "accessd_ldap_sync_total",
	Help: "Directory synchronization attempts by outcome.",
}, []string{"outcome"})

// DirectoryEntry is what a sync extracts from the directory for one user.
type DirectoryEntry struct {
	DN       string
	FullName string
	Email    string
	Groups   []string
}

// Engine reconciles one user's directory state into the local store.
//
// It implements identity.MetadataProvider and must be registered BEFORE
// the store metadata provider, so a freshly synchronized membership is
// visible to the same request that triggered the sync.
type Engine struct {
	cfg   Config
	store store.Store
	dial  func(ccachePath string) (Conn, error)
}

// New builds an Engine using a real directory connection.
func New(cfg Config, st store.Store) *Engine {
	dialer := NewDialer(cfg)
	return &Engine{cfg: cfg, store: st, dial: dialer.Dial}
}

// NewWithDialer builds an Engine with a custom dial function. Tests use
// this to substitute a fake connection.
func NewWithDialer(cfg Config, st store.Store, dial func(ccachePath string) (Conn, error)) *Engine {
	return &Engine{cfg: cfg, store: st, dial: dial}
}

// Name returns the stage token guarding repeat syncs of one identity.
func (e *Engine) Name() string { return "ldap-sync" }

// AddMetadata synchronizes an externally authenticated identity from the
// directory. Internal accounts are never touched. Failures are returned
// for the resolver to log but authentication proceeds regardless: a
// broken directory must not lock out users whose local state is intact.
func (e *Engine) AddMetadata(ctx context.Context, id *identity.Identity) error {
	if !e.cfg.Enabled || !id.External {
		return nil
	}
	if id.HasToken(e.Name()) {
		return nil
	}
	id.AddToken(e.Name())

	if err := e.SyncUser(ctx, id.Principal, id.CCachePath); err != nil {
		syncTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("directory sync for %q: %w", id.Principal, err)
	}
	syncTotal.WithLabelValues("success").Inc()
	return nil
}

// SyncUser fetches the user's directory entry and reconciles the local
// account and its monitoring-group memberships to match it exactly:
// missing groups are created and attached, stale memberships detached.
// The reconciliation is transactional; a failure leaves local state
// untouched.
func (e *Engine) SyncUser(ctx context.Context, login, ccachePath string) error {
	conn, err := e.dial(ccachePath)
	if err != nil {
		return err
	}
	defer conn.Close()

	entry, err := e.fetchEntry(ctx, conn, login)
	if err != nil {
		return err
	}

	logger.DebugCtx(ctx, "directory entry fetched",
		logger.KeyPrincipal, login,
		logger.KeyUserDN, entry.DN,
		"groups", entry.Groups)

	return e.reconcile(ctx, login, entry)
}

// fetchEntry searches the user entry and resolves its group names.
func (e *Engine) fetchEntry(ctx context.Context, conn Conn, login string) (*DirectoryEntry, error) {
	userScope, err := parseScope(e.cfg.UserScope)
	if err != nil {
		return nil, err
	}

	filter := fmt.Sprintf(e.cfg.UserFilter, ldap.EscapeFilter(login))
	attrs := []string{e.cfg.AttrUID, e.cfg.AttrCN, e.cfg.AttrMail}
	if e.cfg.AttrMemberOf != "" {
		attrs = append(attrs, e.cfg.AttrMemberOf)
	}

	logger.DebugCtx(ctx, "searching directory",
		logger.KeyLDAPFilter, filter,
		"base", e.cfg.UserBase)

	result, err := conn.Search(ldap.NewSearchRequest(
		e.cfg.UserBase, userScope, ldap.NeverDerefAliases, 0, 0, false,
		filter, attrs, nil,
	))
	if err != nil {
		return nil, fmt.Errorf("user search: %w", err)
	}

	userEntry := firstRealEntry(result)
	if userEntry == nil {
		return nil, fmt.Errorf("%w for login %q", ErrEntryNotFound, login)
	}

	decode, err := e.decoder()
	if err != nil {
		return nil, err
	}

	entry := &DirectoryEntry{
		DN:       userEntry.DN,
		FullName: decode(userEntry.GetAttributeValue(e.cfg.AttrCN)),
		Email:    decode(userEntry.GetAttributeValue(e.cfg.AttrMail)),
	}

	var groups []string
	if e.cfg.AttrMemberOf != "" {
		groups, err = e.groupsFromMemberOf(conn, userEntry.GetAttributeValues(e.cfg.AttrMemberOf))
	} else {
		groups, err = e.groupsFromSearch(conn, login, userEntry.DN)
	}
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(groups))
	for _, g := range groups {
		name := decode(g)
		if e.cfg.NormalizeGroups {
			name = strings.ToLower(name)
		}
		if name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		entry.Groups = append(entry.Groups, name)
	}
	return entry, nil
}

// groupsFromMemberOf resolves each memberOf DN to its group name with a
// base-scope read. Unresolvable DNs are skipped, not fatal: a dangling
// memberOf value is a directory hygiene problem, not an auth problem.
func (e *Engine) groupsFromMemberOf(conn Conn, groupDNs []string) ([]string, error) {
	var names []string
	for _, dn := range groupDNs {
		result, err := conn.Search(ldap.NewSearchRequest(
			dn, ldap.ScopeBaseObject, ldap.NeverDerefAliases, 0, 0, false,
			"(objectClass=*)", []string{e.cfg.AttrGroupCN}, nil,
		))
		if err != nil {
			logger.Warn("cannot resolve group DN",
				logger.KeyUserDN, dn,
				logger.KeyError, err)
			continue
		}
		entry := firstRealEntry(result)
		if entry == nil {
			continue
		}
		if name := entry.GetAttributeValue(e.cfg.AttrGroupCN); name != "" {
			names = append(names, name)
		}
	}
	return names, nil
}

// groupsFromSearch queries the group subtree for entries whose member
// attribute contains the user.
func (e *Engine) groupsFromSearch(conn Conn, login, userDN string) ([]string, error) {
	groupScope, err := parseScope(e.cfg.GroupScope)
	if err != nil {
		return nil, err
	}

	memberValue := login
	if e.cfg.UseDN {
		memberValue = userDN
	}
	filter := fmt.Sprintf("(%s=%s)", e.cfg.AttrGroupMember, ldap.EscapeFilter(memberValue))
	if e.cfg.GroupFilter != "" {
		filter = fmt.Sprintf(e.cfg.GroupFilter, ldap.EscapeFilter(memberValue))
	}

	result, err := conn.Search(ldap.NewSearchRequest(
		e.cfg.GroupBase, groupScope, ldap.NeverDerefAliases, 0, 0, false,
		filter, []string{e.cfg.AttrGroupCN}, nil,
	))
	if err != nil {
		return nil, fmt.Errorf("group search: %w", err)
	}

	var names []string
	for _, entry := range result.Entries {
		// Referral entries come back with an empty DN.
		if entry.DN == "" {
			continue
		}
		if name := entry.GetAttributeValue(e.cfg.AttrGroupCN); name != "" {
			names = append(names, name)
		}
	}
	return names, nil
}

// reconcile applies the directory entry to the local store inside one
// transaction.
func (e *Engine) reconcile(ctx context.Context, login string, entry *DirectoryEntry) error {
	return e.store.WithTransaction(ctx, func(tx store.Store) error {
		user, err := tx.GetUser(ctx, login)
		switch {
		case errors.Is(err, models.ErrUserNotFound):
			user = &models.User{
				Username: login,
				FullName: entry.FullName,
				Email:    entry.Email,
				External: true,
				Enabled:  true,
			}
			if _, err := tx.CreateUser(ctx, user); err != nil {
				return fmt.Errorf("creating user %q: %w", login, err)
			}
		case err != nil:
			return err
		default:
			if user.FullName != entry.FullName || user.Email != entry.Email {
				user.FullName = entry.FullName
				user.Email = entry.Email
				if err := tx.UpdateUser(ctx, user); err != nil {
					return fmt.Errorf("updating user %q: %w", login, err)
				}
			}
		}

		desired := make(map[string]struct{}, len(entry.Groups))
		for _, name := range entry.Groups {
			desired[name] = struct{}{}
		}

		current := make(map[string]struct{})
		for _, g := range user.Groups {
			if g.Kind == models.KindMonitoring {
				current[g.Name] = struct{}{}
			}
		}

		for name := range desired {
			if _, ok := current[name]; ok {
				continue
			}
			if _, err := tx.GetGroup(ctx, models.KindMonitoring, name); errors.Is(err, models.ErrGroupNotFound) {
				if _, err := tx.CreateGroup(ctx, &models.Group{Name: name, Kind: models.KindMonitoring}); err != nil {
					return fmt.Errorf("creating group %q: %w", name, err)
				}
			} else if err != nil {
				return err
			}
			if err := tx.AddUserToGroup(ctx, login, models.KindMonitoring, name); err != nil {
				return fmt.Errorf("attaching %q to group %q: %w", login, name, err)
			}
		}

		for name := range current {
			if _, ok := desired[name]; ok {
				continue
			}
			if err := tx.RemoveUserFromGroup(ctx, login, models.KindMonitoring, name); err != nil {
				return fmt.Errorf("detaching %q from group %q: %w", login, name, err)
			}
		}
		return nil
	})
}

// firstRealEntry returns the first non-referral entry of a result.
func firstRealEntry(result *ldap.SearchResult) *ldap.Entry {
	for _, entry := range result.Entries {
		if entry.DN != "" {
			return entry
		}
	}
	return nil
}

// decoder returns a text decoder for the configured directory charset.
// The identity transform is returned for UTF-8 and unset charsets.
func (e *Engine) decoder() (func(string) string, error) {
	if e.cfg.Charset == "" || strings.EqualFold(e.cfg.Charset, "utf-8") {
		return func(s string) string { return s }, nil
	}
	enc, err := ianaindex.IANA.Encoding(e.cfg.Charset)
	if err != nil || enc == nil {
		return nil, fmt.Errorf("unknown charset %q", e.cfg.Charset)
	}
	dec := enc.NewDecoder()
	return func(s string) string {
		out, err := dec.String(s)
		if err != nil {
			return s
		}
		return out
	}, nil
}
