// Package security masks sensitive command parameters before they reach logs.
package security

import (
	"github.com/wasilibs/go-re2"
)

// Mask replaces the value of a sensitive parameter.
const Mask = "***"

var sensitiveKey = re2.MustCompile(`(?i)(pass(word|wd|phrase)?|secret|token|api[_-]?key|private[_-]?key|credentials?)`)

// IsSensitive reports whether a parameter named key holds a secret.
func IsSensitive(key string) bool {
	return sensitiveKey.MatchString(key)
}

// RedactParams returns a copy of params with sensitive values masked. Nested
// maps and lists are walked; the input is never modified.
func RedactParams(params map[string]any) map[string]any {
	if params == nil {
		return nil
	}
	out := make(map[string]any, len(params))
	for k, v := range params {
		if IsSensitive(k) {
			out[k] = Mask
			continue
		}
		out[k] = redactValue(v)
	}
	return out
}

func redactValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return RedactParams(val)
	case []any:
		list := make([]any, len(val))
		for i, item := range val {
			list[i] = redactValue(item)
		}
		return list
	default:
		return v
	}
}

// RedactArgv masks argv elements of the form --password=value or name=value
// whose name is sensitive, and the element following a bare sensitive flag.
func RedactArgv(argv []string) []string {
	out := make([]string, len(argv))
	maskNext := false
	for i, arg := range argv {
		if maskNext {
			out[i] = Mask
			maskNext = false
			continue
		}
		if m := assignment.FindStringSubmatch(arg); m != nil && IsSensitive(m[1]) {
			out[i] = m[1] + "=" + Mask
			continue
		}
		if flag.MatchString(arg) && IsSensitive(arg) {
			maskNext = true
		}
		out[i] = arg
	}
	return out
}

var (
	assignment = re2.MustCompile(`^(-{0,2}[A-Za-z0-9_.-]+)=(.*)$`)
	flag       = re2.MustCompile(`^-{1,2}[A-Za-z0-9_-]+$`)
)
