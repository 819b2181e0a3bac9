package dialect

import (
	"fmt"
	"strconv"
	"strings"
)

// Connect-argument keys.
const (
	KeyHost             = "host"
	KeyPort             = "port"
	KeyUser             = "user"
	KeyPassword         = "password"
	KeyDBName           = "dbname"
	KeyDatabase         = "database"
	KeyServiceName      = "service_name"
	KeyMode             = "mode"
	KeyConnectionString = "connection_string"
)

// ModeSYSDBA requests Oracle administrator privilege.
const ModeSYSDBA = "SYSDBA"

// sqlServerODBCDriver is the driver name written into SQL Server connection strings.
const sqlServerODBCDriver = "ODBC Driver 17 for SQL Server"

// Params is the subset of a connection profile needed to connect.
type Params struct {
	Type     Type
	Host     string
	Port     int
	Username string
	Password string
	Name     string // database, service name or SQLite file path
}

// ConnectArgs is the driver-neutral argument set handed to a connector.
type ConnectArgs struct {
	Type   Type
	Values map[string]string
}

// Get returns the value for key, or "".
func (a ConnectArgs) Get(key string) string {
	return a.Values[key]
}

// Has reports whether key is present.
func (a ConnectArgs) Has(key string) bool {
	_, ok := a.Values[key]
	return ok
}

// Port returns the numeric port, or 0.
func (a ConnectArgs) Port() int {
	p, _ := strconv.Atoi(a.Values[KeyPort])
	return p
}

// Redacted renders the arguments for logging with secrets masked.
func (a ConnectArgs) Redacted() map[string]string {
	out := make(map[string]string, len(a.Values))
	for k, v := range a.Values {
		switch k {
		case KeyPassword:
			out[k] = "****"
		case KeyConnectionString:
			out[k] = redactConnString(v)
		default:
			out[k] = v
		}
	}
	return out
}

// BuildConnectArgs shapes p into the argument set its dialect expects.
// A non-empty override replaces p.Name; ignoreDatabaseName leaves the
// database out entirely so server-level queries can run unbound.
func BuildConnectArgs(p Params, override string, ignoreDatabaseName bool) (ConnectArgs, error) {
	spec, err := Lookup(p.Type)
	if err != nil {
		return ConnectArgs{}, err
	}

	name := p.Name
	if override != "" {
		name = override
	}
	includeDB := name != "" && !ignoreDatabaseName
	port := p.Port
	if port == 0 {
		port = spec.DefaultPort
	}

	args := ConnectArgs{Type: p.Type, Values: map[string]string{}}

	switch p.Type {
	case SQLite:
		args.Values[KeyDatabase] = name
		return args, nil

	case SQLServer:
		var b strings.Builder
		writeODBC(&b, "DRIVER", "{"+sqlServerODBCDriver+"}")
		writeODBC(&b, "SERVER", fmt.Sprintf("%s,%d", p.Host, port))
		writeODBC(&b, "UID", odbcValue(p.Username))
		writeODBC(&b, "PWD", odbcValue(p.Password))
		if includeDB {
			writeODBC(&b, spec.DatabaseKey, odbcValue(name))
		}
		args.Values[KeyConnectionString] = b.String()
		return args, nil
	}

	args.Values[KeyHost] = p.Host
	args.Values[KeyPort] = strconv.Itoa(port)
	args.Values[KeyUser] = p.Username
	args.Values[KeyPassword] = p.Password
	if includeDB {
		args.Values[spec.DatabaseKey] = name
	}
	if p.Type == Oracle && strings.EqualFold(p.Username, "sys") {
		args.Values[KeyMode] = ModeSYSDBA
	}
	return args, nil
}

func writeODBC(b *strings.Builder, key, value string) {
	b.WriteString(key)
	b.WriteByte('=')
	b.WriteString(value)
	b.WriteByte(';')
}

// odbcValue brace-quotes v when it carries characters that would end or
// split an ODBC attribute. A closing brace inside braces is doubled.
func odbcValue(v string) string {
	if !strings.ContainsAny(v, ";{}=") && strings.TrimSpace(v) == v {
		return v
	}
	return "{" + strings.ReplaceAll(v, "}", "}}") + "}"
}

type connAttr struct {
	key, value string
	// raw is the attribute as written, without the trailing separator.
	raw string
}

// splitConnString scans KEY=value;KEY={va;lue} attributes. Inside braces a
// semicolon is literal and "}}" stands for one "}".
func splitConnString(s string) []connAttr {
	var out []connAttr
	for i := 0; i < len(s); {
		start := i
		eq := strings.IndexAny(s[i:], "=;")
		if eq < 0 {
			out = append(out, connAttr{key: strings.TrimSpace(s[i:]), raw: s[i:]})
			break
		}
		if s[i+eq] == ';' {
			out = append(out, connAttr{key: strings.TrimSpace(s[i : i+eq]), raw: s[i : i+eq]})
			i += eq + 1
			continue
		}
		key := strings.TrimSpace(s[i : i+eq])
		i += eq + 1
		for i < len(s) && s[i] == ' ' {
			i++
		}

		var value strings.Builder
		if i < len(s) && s[i] == '{' {
			i++
			for i < len(s) {
				if s[i] == '}' {
					if i+1 < len(s) && s[i+1] == '}' {
						value.WriteByte('}')
						i += 2
						continue
					}
					i++
					break
				}
				value.WriteByte(s[i])
				i++
			}
			if j := strings.IndexByte(s[i:], ';'); j >= 0 {
				i += j
			} else {
				i = len(s)
			}
		} else {
			j := strings.IndexByte(s[i:], ';')
			if j < 0 {
				j = len(s) - i
			}
			value.WriteString(strings.TrimSpace(s[i : i+j]))
			i += j
		}
		out = append(out, connAttr{key: key, value: value.String(), raw: s[start:i]})
		if i < len(s) {
			i++
		}
	}
	return out
}

// ParseConnString splits an ODBC KEY=value;KEY=value string. Keys are
// upper-cased and brace-quoted values are unescaped.
func ParseConnString(s string) map[string]string {
	out := map[string]string{}
	for _, a := range splitConnString(s) {
		if a.key != "" {
			out[strings.ToUpper(a.key)] = a.value
		}
	}
	return out
}

func redactConnString(s string) string {
	attrs := splitConnString(s)
	parts := make([]string, 0, len(attrs))
	for _, a := range attrs {
		if strings.EqualFold(a.key, "PWD") {
			parts = append(parts, a.key+"=****")
			continue
		}
		parts = append(parts, a.raw)
	}
	out := strings.Join(parts, ";")
	if strings.HasSuffix(s, ";") {
		out += ";"
	}
	return out
}
