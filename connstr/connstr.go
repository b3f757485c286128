// Package connstr parses and builds the connection-string URL grammar:
// driver://[user[:password]@]host[:port]/database[?opt=val&...]
//
// Built on net/url.URL rather than hand-rolled fmt.Sprintf DSN
// concatenation, so percent-escaping of user/password/host/database is
// handled by the standard library instead of left as a TODO.
package connstr

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Driver identifies which backend a connection string targets.
type Driver string

const (
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
	DriverMySQL    Driver = "mysql"
)

// defaultPorts gives GetPort's fallback when no port was specified.
var defaultPorts = map[Driver]int{
	DriverPostgres: 5432,
	DriverMySQL:    3306,
}

// canonicalDrivers maps every accepted scheme spelling to its canonical
// Driver value: postgres/postgresql/pg all mean DriverPostgres, mysql/mariadb
// both mean DriverMySQL.
var canonicalDrivers = map[string]Driver{
	"sqlite":     DriverSQLite,
	"postgres":   DriverPostgres,
	"postgresql": DriverPostgres,
	"pg":         DriverPostgres,
	"mysql":      DriverMySQL,
	"mariadb":    DriverMySQL,
}

// ConnString is the parsed form of a connection-string URL. Options is
// order-preserving per §4.2.
type ConnString struct {
	Driver      Driver
	User        string
	HasUser     bool
	Password    string
	HasPassword bool
	Host        string
	Port        int
	HasPort     bool
	Database    string
	Options     Options
}

// Option is one key=value pair of the connection string's query component.
type Option struct {
	Key   string
	Value string
}

// Get returns the first value for key, and whether it was present.
func (o Options) Get(key string) (string, bool) {
	for _, kv := range o {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return "", false
}

// Options is an order-preserving option list.
type Options = optionList

type optionList []Option

// GetPort returns cs.Port if set, else the driver's well-known default (for
// SQLite, which has no port, it returns 0, false).
func (cs ConnString) GetPort() (int, bool) {
	if cs.HasPort {
		return cs.Port, true
	}
	if p, ok := defaultPorts[cs.Driver]; ok {
		return p, true
	}
	return 0, false
}

// Parse parses a connection string per the grammar in §4.2/§6. Percent
// decoding is applied to user, password, host, and database, but not to the
// driver scheme or option keys. SQLite accepts both "sqlite:///absolute" and
// "sqlite://./relative" path forms.
func Parse(s string) (ConnString, error) {
	u, err := url.Parse(s)
	if err != nil {
		return ConnString{}, fmt.Errorf("connstr: invalid URL: %w", err)
	}
	if u.Scheme == "" {
		return ConnString{}, fmt.Errorf("connstr: missing driver scheme")
	}
	driver, ok := canonicalDrivers[strings.ToLower(u.Scheme)]
	if !ok {
		return ConnString{}, fmt.Errorf("connstr: unknown driver %q", u.Scheme)
	}

	cs := ConnString{Driver: driver}

	if u.User != nil {
		cs.HasUser = true
		cs.User = u.User.Username()
		if pw, set := u.User.Password(); set {
			cs.HasPassword = true
			cs.Password = pw
		}
	}

	if driver == DriverSQLite {
		path, err := sqlitePath(u)
		if err != nil {
			return ConnString{}, err
		}
		cs.Database = path
	} else {
		cs.Host = u.Hostname()
		if cs.Host == "" {
			return ConnString{}, fmt.Errorf("connstr: missing host")
		}
		if portStr := u.Port(); portStr != "" {
			port, err := strconv.Atoi(portStr)
			if err != nil {
				return ConnString{}, fmt.Errorf("connstr: invalid port %q: %w", portStr, err)
			}
			cs.HasPort = true
			cs.Port = port
		}
		db := strings.TrimPrefix(u.Path, "/")
		if db == "" {
			return ConnString{}, fmt.Errorf("connstr: missing database")
		}
		cs.Database = db
	}

	q := u.Query()
	// url.Values doesn't preserve insertion order; rebuild order-preserving
	// by walking the raw query string ourselves.
	cs.Options = parseOrderedQuery(u.RawQuery)
	_ = q

	return cs, nil
}

// sqlitePath extracts a filesystem path from a sqlite:// URL, supporting
// both "sqlite:///absolute/path" (three slashes: empty host, absolute path)
// and "sqlite://./relative/path" (host is ".", path is the remainder).
func sqlitePath(u *url.URL) (string, error) {
	switch {
	case u.Host == "" && u.Path != "":
		return u.Path, nil
	case u.Host == ".":
		return "." + u.Path, nil
	case u.Host != "":
		return u.Host + u.Path, nil
	default:
		return "", fmt.Errorf("connstr: missing sqlite path")
	}
}

func parseOrderedQuery(raw string) Options {
	if raw == "" {
		return nil
	}
	var out Options
	for _, pair := range strings.Split(raw, "&") {
		if pair == "" {
			continue
		}
		k, v, _ := strings.Cut(pair, "=")
		dv, err := url.QueryUnescape(v)
		if err != nil {
			dv = v
		}
		out = append(out, Option{Key: k, Value: dv})
	}
	return out
}

// Build reverses Parse. When includePassword is false, the password is
// elided from the output entirely (never emitted as an empty placeholder),
// matching §4.2's builder behaviour used for redacted logging/session
// storage.
func Build(cs ConnString, includePassword bool) string {
	var sb strings.Builder
	sb.WriteString(string(cs.Driver))
	sb.WriteString("://")

	if cs.HasUser {
		sb.WriteString(url.PathEscape(cs.User))
		if includePassword && cs.HasPassword {
			sb.WriteByte(':')
			sb.WriteString(url.PathEscape(cs.Password))
		}
		sb.WriteByte('@')
	}

	if cs.Driver == DriverSQLite {
		sb.WriteString(cs.Database)
	} else {
		sb.WriteString(cs.Host)
		if cs.HasPort {
			fmt.Fprintf(&sb, ":%d", cs.Port)
		}
		sb.WriteByte('/')
		sb.WriteString(cs.Database)
	}

	if len(cs.Options) > 0 {
		sb.WriteByte('?')
		for i, o := range cs.Options {
			if i > 0 {
				sb.WriteByte('&')
			}
			sb.WriteString(o.Key)
			sb.WriteByte('=')
			sb.WriteString(url.QueryEscape(o.Value))
		}
	}

	return sb.String()
}
