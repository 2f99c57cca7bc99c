// Package ldapsync mirrors group memberships from an LDAP directory into
// the local database. It runs as a metadata provider for externally
// authenticated principals: the first request of a session triggers a
// reconciliation, later requests are guarded by the identity's stage
// token.
package ldapsync

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-ldap/ldap/v3"
)

// Scope names accepted in the configuration file.
const (
	ScopeBase     = "base"
	ScopeOneLevel = "onelevel"
	ScopeSubtree  = "subtree"
)

// TLSReqCert values, mirroring the ldap.conf TLS_REQCERT keywords.
const (
	ReqCertNever  = "never"
	ReqCertAllow  = "allow"
	ReqCertTry    = "try"
	ReqCertDemand = "demand"
	ReqCertHard   = "hard"
)

// Config holds the directory synchronization settings.
type Config struct {
	// Enabled turns the sync provider on. When false, externally
	// authenticated users keep whatever local memberships they have.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// URL lists one or more LDAP server URLs separated by spaces, tried
	// in order. The first server that accepts a connection and bind wins.
	URL string `mapstructure:"ldap_url" yaml:"ldap_url"`

	// BindDN and BindPassword select a simple bind. When BindDN is empty
	// and the request carried a delegated Kerberos credential cache, a
	// GSSAPI bind is attempted; otherwise the bind is anonymous.
	BindDN       string `mapstructure:"binddn" yaml:"binddn"`
	BindPassword string `mapstructure:"bindpw" yaml:"bindpw,omitempty"`

	// KRB5ServicePrincipal is the LDAP service principal used for GSSAPI
	// binds, e.g. "ldap/ldap.example.com". Required when GSSAPI is used.
	KRB5ServicePrincipal string `mapstructure:"krb5_service_principal" yaml:"krb5_service_principal,omitempty"`

	// KRB5Config is the path to krb5.conf. Default: /etc/krb5.conf.
	KRB5Config string `mapstructure:"krb5_config" yaml:"krb5_config,omitempty"`

	// Timeout bounds each directory operation. Zero means unbounded,
	// which is intentional: some deployments front the directory with a
	// load balancer that holds connections, and an aggressive timeout
	// turns slow logins into failed ones.
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`

	// StartTLS upgrades a plain connection before binding.
	StartTLS   bool   `mapstructure:"tls_starttls" yaml:"tls_starttls"`
	TLSReqCert string `mapstructure:"tls_reqcert" yaml:"tls_reqcert"`
	TLSCACert  string `mapstructure:"tls_ca_cert" yaml:"tls_ca_cert,omitempty"`
	TLSCert    string `mapstructure:"tls_cert" yaml:"tls_cert,omitempty"`
	TLSKey     string `mapstructure:"tls_key" yaml:"tls_key,omitempty"`

	// UserBase/UserScope/UserFilter locate the user entry. The filter
	// must contain exactly one %s, replaced by the escaped login.
	UserBase   string `mapstructure:"user_base" yaml:"user_base"`
	UserScope  string `mapstructure:"user_scope" yaml:"user_scope"`
	UserFilter string `mapstructure:"user_filter" yaml:"user_filter"`

	// GroupBase/GroupScope/GroupFilter locate the groups containing the
	// user, for directories without a memberOf overlay. The filter's %s
	// is replaced by the user's DN (use_dn=true) or login. When the
	// filter is left empty it is built from AttrGroupMember.
	GroupBase   string `mapstructure:"group_base" yaml:"group_base"`
	GroupScope  string `mapstructure:"group_scope" yaml:"group_scope"`
	GroupFilter string `mapstructure:"group_filter" yaml:"group_filter,omitempty"`

	// Attribute names.
	AttrUID         string `mapstructure:"attr_uid" yaml:"attr_uid"`
	AttrCN          string `mapstructure:"attr_cn" yaml:"attr_cn"`
	AttrMail        string `mapstructure:"attr_mail" yaml:"attr_mail"`
	AttrMemberOf    string `mapstructure:"attr_member_of" yaml:"attr_member_of,omitempty"`
	AttrGroupCN     string `mapstructure:"attr_group_cn" yaml:"attr_group_cn"`
	AttrGroupMember string `mapstructure:"attr_group_member" yaml:"attr_group_member"`

	// UseDN substitutes the user's DN instead of the login into the
	// group filter.
	UseDN bool `mapstructure:"use_dn" yaml:"use_dn"`

	// NormalizeGroups lowercases group names before reconciliation.
	NormalizeGroups bool `mapstructure:"normalize_groups" yaml:"normalize_groups"`

	// Charset names the encoding of directory text attributes, for
	// directories that still serve latin-1. Empty means UTF-8.
	Charset string `mapstructure:"charset" yaml:"charset,omitempty"`
}

// ApplyDefaults fills in missing configuration with default values.
func (c *Config) ApplyDefaults() {
	if c.URL == "" {
		c.URL = "ldap://localhost"
	}
	if c.KRB5Config == "" {
		c.KRB5Config = "/etc/krb5.conf"
	}
	if c.TLSReqCert == "" {
		c.TLSReqCert = ReqCertDemand
	}
	if c.UserScope == "" {
		c.UserScope = ScopeSubtree
	}
	if c.UserFilter == "" {
		c.UserFilter = "(uid=%s)"
	}
	if c.GroupScope == "" {
		c.GroupScope = ScopeSubtree
	}
	if c.AttrUID == "" {
		c.AttrUID = "uid"
	}
	if c.AttrCN == "" {
		c.AttrCN = "cn"
	}
	if c.AttrMail == "" {
		c.AttrMail = "mail"
	}
	if c.AttrGroupCN == "" {
		c.AttrGroupCN = "cn"
	}
	if c.AttrGroupMember == "" {
		c.AttrGroupMember = "member"
	}
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.UserBase == "" {
		return fmt.Errorf("ldap user_base is required")
	}
	if strings.Count(c.UserFilter, "%s") != 1 {
		return fmt.Errorf("ldap user_filter must contain exactly one %%s placeholder")
	}
	if c.AttrMemberOf == "" {
		if c.GroupBase == "" {
			return fmt.Errorf("ldap group_base is required when attr_member_of is unset")
		}
		if c.GroupFilter != "" && strings.Count(c.GroupFilter, "%s") != 1 {
			return fmt.Errorf("ldap group_filter must contain exactly one %%s placeholder")
		}
		if c.GroupFilter == "" && c.AttrGroupMember == "" {
			return fmt.Errorf("ldap attr_group_member is required when group_filter is unset")
		}
	}
	if _, err := parseScope(c.UserScope); err != nil {
		return fmt.Errorf("ldap user_scope: %w", err)
	}
	if _, err := parseScope(c.GroupScope); err != nil {
		return fmt.Errorf("ldap group_scope: %w", err)
	}
	switch c.TLSReqCert {
	case ReqCertNever, ReqCertAllow, ReqCertTry, ReqCertDemand, ReqCertHard:
	default:
		return fmt.Errorf("ldap tls_reqcert: unknown value %q", c.TLSReqCert)
	}
	return nil
}

// Servers splits the space-separated URL list.
func (c *Config) Servers() []string {
	return strings.Fields(c.URL)
}

func parseScope(name string) (int, error) {
	switch name {
	case ScopeBase:
		return ldap.ScopeBaseObject, nil
	case ScopeOneLevel:
		return ldap.ScopeSingleLevel, nil
	case ScopeSubtree:
		return ldap.ScopeWholeSubtree, nil
	default:
		return 0, fmt.Errorf("unknown scope %q", name)
	}
}
