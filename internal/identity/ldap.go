package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/go-ldap/ldap/v3"
)

// LDAPConfig locates the directory. Users bind as <username>@<BaseDN>.
type LDAPConfig struct {
	URL        string
	BaseDN     string
	SearchBase string
	Timeout    time.Duration
}

type ldapConn interface {
	Bind(username, password string) error
	Search(req *ldap.SearchRequest) (*ldap.SearchResult, error)
	Close() error
}

// LDAP is a Directory backed by an Active Directory style server.
type LDAP struct {
	cfg    LDAPConfig
	logger *slog.Logger
	dial   func(ctx context.Context) (ldapConn, error)
}

func NewLDAP(cfg LDAPConfig, logger *slog.Logger) (*LDAP, error) {
	if cfg.URL == "" || cfg.BaseDN == "" || cfg.SearchBase == "" {
		return nil, errors.New("ldap: url, base dn and search base are required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	// A bare host name means plain LDAP on the default port.
	if !strings.Contains(cfg.URL, "://") {
		cfg.URL = "ldap://" + cfg.URL
	}
	d := &LDAP{cfg: cfg, logger: logger}
	d.dial = d.dialServer
	return d, nil
}

func (d *LDAP) dialServer(ctx context.Context) (ldapConn, error) {
	dialer := &net.Dialer{Timeout: d.cfg.Timeout}
	conn, err := ldap.DialURL(d.cfg.URL, ldap.DialWithDialer(dialer))
	if err != nil {
		return nil, err
	}
	timeout := d.cfg.Timeout
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < timeout {
			timeout = left
		}
	}
	conn.SetTimeout(timeout)
	return conn, nil
}

// Authenticate binds as the user and collects their group names, expanding
// one level of parent groups.
func (d *LDAP) Authenticate(ctx context.Context, username, password string) (*Account, error) {
	conn, err := d.dial(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: dial: %w", ErrUnavailable, err)
	}
	defer func() {
		if cerr := conn.Close(); cerr != nil {
			d.logger.DebugContext(ctx, "ldap close", "error", cerr)
		}
	}()

	if err := conn.Bind(username+"@"+d.cfg.BaseDN, password); err != nil {
		if ldap.IsErrorWithCode(err, ldap.LDAPResultInvalidCredentials) || ldap.IsErrorWithCode(err, ldap.ErrorEmptyPassword) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("%w: bind: %w", ErrUnavailable, err)
	}

	direct, err := d.memberOf(conn, fmt.Sprintf("(&(objectClass=user)(sAMAccountName=%s))", ldap.EscapeFilter(username)))
	if err != nil {
		return nil, fmt.Errorf("%w: user groups: %w", ErrUnavailable, err)
	}

	all := append([]string(nil), direct...)
	for _, group := range direct {
		parents, err := d.memberOf(conn, fmt.Sprintf("(&(objectClass=group)(distinguishedName=%s))", ldap.EscapeFilter(group)))
		if err != nil {
			return nil, fmt.Errorf("%w: parent groups: %w", ErrUnavailable, err)
		}
		all = append(all, parents...)
	}

	groups := CommonNames(all)
	d.logger.DebugContext(ctx, "ldap groups resolved", "username", username, "groups", len(groups))
	return &Account{Username: username, Groups: groups}, nil
}

// memberOf returns the memberOf values of the first entry matching filter.
func (d *LDAP) memberOf(conn ldapConn, filter string) ([]string, error) {
	res, err := conn.Search(ldap.NewSearchRequest(
		d.cfg.SearchBase,
		ldap.ScopeWholeSubtree,
		ldap.NeverDerefAliases,
		1,
		0,
		false,
		filter,
		[]string{"memberOf"},
		nil,
	))
	if err != nil {
		if ldap.IsErrorWithCode(err, ldap.LDAPResultSizeLimitExceeded) && res != nil && len(res.Entries) > 0 {
			return res.Entries[0].GetAttributeValues("memberOf"), nil
		}
		return nil, err
	}
	if len(res.Entries) == 0 {
		return nil, nil
	}
	return res.Entries[0].GetAttributeValues("memberOf"), nil
}
