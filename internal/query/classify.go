package query

import "strings"

// IsSelect reports whether any semicolon-separated segment of sql starts
// with SELECT once comment lines and surrounding whitespace are removed.
func IsSelect(sql string) bool {
	for _, segment := range strings.Split(sql, ";") {
		if strings.HasPrefix(strings.ToLower(stripComments(segment)), "select") {
			return true
		}
	}
	return false
}

// stripComments drops lines starting with "--" and trims the remainder.
func stripComments(segment string) string {
	var b strings.Builder
	for _, line := range strings.Split(segment, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "--") {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(trimmed)
	}
	return b.String()
}

var txControlWords = map[string]bool{
	"begin":     true,
	"start":     true,
	"commit":    true,
	"end":       true,
	"rollback":  true,
	"abort":     true,
	"release":   true,
	"savepoint": true,
}

// HasTxControl reports whether any semicolon-separated segment of sql opens,
// ends or alters a transaction. Such statements would escape the dry-run
// transaction.
func HasTxControl(sql string) bool {
	for _, segment := range strings.Split(sql, ";") {
		fields := strings.Fields(strings.ToLower(stripComments(segment)))
		if len(fields) > 0 && txControlWords[fields[0]] {
			return true
		}
	}
	return false
}
