package logging

import (
	"log/slog"
	"sort"
	"strings"
)

// RedactedValue replaces the value of any field outside the allowlist.
const RedactedValue = "[REDACTED]"

// Registry records are public ledger data: principals, bond identifiers and
// amounts stay readable. Everything else, secrets included, is masked.
var redactionAllowlist = map[string]struct{}{
	"service":   {},
	"env":       {},
	"component": {},
	"error":     {},
	"listen":    {},
	"requestid": {},
	"type":      {},
	"op":        {},
	"code":      {},
	"bondid":    {},
	"title":     {},
	"ngo":       {},
	"verifier":  {},
	"funder":    {},
	"caller":    {},
	"admin":     {},
	"previous":  {},
	"goal":      {},
	"amount":    {},
	"funded":    {},
	"isfunded":  {},
}

// IsAllowlisted reports whether key may be logged verbatim. Matching ignores case.
func IsAllowlisted(key string) bool {
	_, ok := redactionAllowlist[strings.ToLower(strings.TrimSpace(key))]
	return ok
}

// MaskField returns key with its value, or with RedactedValue when the key is
// not allowlisted. Empty values pass through.
func MaskField(key, value string) slog.Attr {
	if strings.TrimSpace(value) == "" || IsAllowlisted(key) {
		return slog.String(key, value)
	}
	return slog.String(key, RedactedValue)
}

// MaskedAttrs converts fields into masked attributes ordered by key, ready to
// pass as slog arguments.
func MaskedAttrs(fields map[string]string) []any {
	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	out := make([]any, 0, len(keys))
	for _, key := range keys {
		out = append(out, MaskField(key, fields[key]))
	}
	return out
}
