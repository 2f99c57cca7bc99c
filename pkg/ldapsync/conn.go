package ldapsync

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/go-ldap/ldap/v3"
	"github.com/go-ldap/ldap/v3/gssapi"
	krb5client "github.com/jcmturner/gokrb5/v8/client"
	krb5config "github.com/jcmturner/gokrb5/v8/config"
	"github.com/jcmturner/gokrb5/v8/credentials"

	"github.com/vigilo-nms/accessd/internal/logger"
)

// ErrNoServerAvailable means every configured server refused the
// connection or the bind.
var ErrNoServerAvailable = errors.New("no LDAP server available")

// Conn is the slice of *ldap.Conn the sync engine uses. Tests substitute
// a fake; production code gets a real connection from Dialer.
type Conn interface {
	Search(req *ldap.SearchRequest) (*ldap.SearchResult, error)
	Close() error
}

// Dialer establishes authenticated directory connections according to
// the configuration.
type Dialer struct {
	cfg Config
}

// NewDialer builds a Dialer for the given configuration.
func NewDialer(cfg Config) *Dialer {
	return &Dialer{cfg: cfg}
}

// Dial tries each configured server in order and returns the first
// connection that accepts both the transport and the bind. ccachePath,
// when non-empty, points to a delegated Kerberos credential cache and
// selects a GSSAPI bind for configurations without a bind DN.
func (d *Dialer) Dial(ccachePath string) (Conn, error) {
	servers := d.cfg.Servers()
	if len(servers) == 0 {
		return nil, ErrNoServerAvailable
	}

	tlsConfig, err := d.tlsConfig()
	if err != nil {
		return nil, err
	}

	var lastErr error
	for _, server := range servers {
		conn, err := d.dialOne(server, tlsConfig, ccachePath)
		if err != nil {
			logger.Warn("LDAP server unavailable",
				logger.KeyLDAPURL, server,
				logger.KeyError, err)
			lastErr = err
			continue
		}
		return conn, nil
	}
	return nil, fmt.Errorf("%w: %v", ErrNoServerAvailable, lastErr)
}

func (d *Dialer) dialOne(server string, tlsConfig *tls.Config, ccachePath string) (Conn, error) {
	u, err := url.Parse(server)
	if err != nil {
		return nil, fmt.Errorf("invalid LDAP URL %q: %w", server, err)
	}

	var opts []ldap.DialOpt
	if u.Scheme == "ldaps" {
		opts = append(opts, ldap.DialWithTLSConfig(tlsConfig))
	}

	conn, err := ldap.DialURL(server, opts...)
	if err != nil {
		return nil, err
	}

	if d.cfg.Timeout > 0 {
		conn.SetTimeout(d.cfg.Timeout)
	} else {
		// Unbounded on purpose; see Config.Timeout.
		conn.SetTimeout(time.Duration(0))
	}

	if d.cfg.StartTLS && u.Scheme != "ldaps" {
		if err := conn.StartTLS(tlsConfig); err != nil {
			conn.Close()
			return nil, fmt.Errorf("STARTTLS failed: %w", err)
		}
	}

	if err := d.bind(conn, ccachePath); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

func (d *Dialer) bind(conn *ldap.Conn, ccachePath string) error {
	switch {
	case d.cfg.BindDN != "":
		return conn.Bind(d.cfg.BindDN, d.cfg.BindPassword)

	case ccachePath != "" && d.cfg.KRB5ServicePrincipal != "":
		client, err := d.krb5Client(ccachePath)
		if err != nil {
			return fmt.Errorf("loading kerberos credentials: %w", err)
		}
		defer client.Destroy()
		return conn.GSSAPIBind(client, d.cfg.KRB5ServicePrincipal, "")

	default:
		return conn.UnauthenticatedBind("")
	}
}

// krb5Client builds a GSSAPI client from a delegated credential cache,
// typically written by the front end's mod_auth_gssapi.
func (d *Dialer) krb5Client(ccachePath string) (*gssapi.Client, error) {
	krbConf, err := krb5config.Load(d.cfg.KRB5Config)
	if err != nil {
		return nil, err
	}
	ccache, err := credentials.LoadCCache(ccachePath)
	if err != nil {
		return nil, err
	}
	krbClient, err := krb5client.NewFromCCache(ccache, krbConf, krb5client.DisablePAFXFAST(true))
	if err != nil {
		return nil, err
	}
	return &gssapi.Client{Client: krbClient}, nil
}

func (d *Dialer) tlsConfig() (*tls.Config, error) {
	tlsConfig := &tls.Config{}

	switch d.cfg.TLSReqCert {
	case ReqCertNever, ReqCertAllow, ReqCertTry:
		tlsConfig.InsecureSkipVerify = true
	}

	if d.cfg.TLSCACert != "" {
		pem, err := os.ReadFile(d.cfg.TLSCACert)
		if err != nil {
			return nil, fmt.Errorf("reading LDAP CA certificate: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificates found in %s", d.cfg.TLSCACert)
		}
		tlsConfig.RootCAs = pool
	}

	if d.cfg.TLSCert != "" && d.cfg.TLSKey != "" {
		cert, err := tls.LoadX509KeyPair(d.cfg.TLSCert, d.cfg.TLSKey)
		if err != nil {
			return nil, fmt.Errorf("loading LDAP client certificate: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	return tlsConfig, nil
}
