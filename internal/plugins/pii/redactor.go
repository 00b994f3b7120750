// Package pii provides a plugin that redacts personally identifiable
// information from interactions, spans and traces before they are rendered.
package pii

import (
	"encoding/json"
	"reflect"
	"regexp"
	"strings"
)

// Pattern names a built-in detector.
type Pattern string

const (
	Email       Pattern = "email"
	Phone       Pattern = "phone"
	SSN         Pattern = "ssn"
	CreditCard  Pattern = "credit_card"
	Credentials Pattern = "credentials"
	Address     Pattern = "address"
	Password    Pattern = "password"
)

// DefaultReplacement is used when SpecificTokens is off.
const DefaultReplacement = "<REDACTED>"

// builtins run in this order; phone runs before ssn and credit cards so
// formatted numbers get the more specific token.
var builtins = []struct {
	name  Pattern
	re    *regexp.Regexp
	token string
}{
	{Email, regexp.MustCompile(`(?i)\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Z|a-z]{2,}\b`), "<REDACTED_EMAIL>"},
	{Phone, regexp.MustCompile(`(\+?1[-.\s]?)?\(?\d{3}\)?[-.\s]?\d{3}[-.\s]?\d{4}\b`), "<REDACTED_PHONE>"},
	{SSN, regexp.MustCompile(`\b\d{3}[-\s]?\d{2}[-\s]?\d{4}\b`), "<REDACTED_SSN>"},
	{CreditCard, regexp.MustCompile(`\b(?:\d[ -]*?){13,19}\b`), "<REDACTED_CREDIT_CARD>"},
	{Credentials, regexp.MustCompile(`(?i)\b(api[_-]?key|token|bearer|authorization|auth[_-]?token|access[_-]?token|secret[_-]?key)\s*[:=]\s*["']?[\w-]+["']?`), "<REDACTED_CREDENTIALS>"},
	{Address, regexp.MustCompile(`(?i)\b\d+\s+[A-Za-z\s]+\s+(street|st|avenue|ave|road|rd|boulevard|blvd|lane|ln|drive|dr|court|ct|plaza|pl|terrace|ter|way|parkway|pkwy)\b`), "<REDACTED_ADDRESS>"},
	{Password, regexp.MustCompile(`(?i)\b(pass(word|phrase)?|secret|pwd|passwd)\s*[:=]\s*\S+`), "<REDACTED_SECRET>"},
}

const nameToken = "<REDACTED_NAME>"

var (
	greetingRe  = regexp.MustCompile(`(?i)(^|\.\s+)(dear|hi|hello|greetings|hey|hey there)[\s,:-]*`)
	closingRe   = regexp.MustCompile(`(?i)(thx|thanks|thank you|regards|best|[a-z]+ly|[a-z]+ regards|all the best|happy [a-z]+ing|take care|have a [a-z]+ (weekend|night|day))\s*[,.!]*`)
	leadNameRe  = regexp.MustCompile(`^\s*([A-Z][a-z]+(?:\s+[A-Z][a-z]+)*)`)
	trailNameRe = regexp.MustCompile(`([A-Z][a-z]+(?:\s+[A-Z][a-z]+)*)\s*$`)
	signatureRe = regexp.MustCompile(`^[A-Z][a-z]+(?:\s+[A-Z][a-z]+)*[,.]?$`)
)

// words that look like a signature line but are not names
var signatureExclusions = map[string]bool{
	"thanks": true, "thank": true, "best": true, "regards": true,
	"sincerely": true, "cheers": true, "hello": true, "hi": true,
	"hey": true, "dear": true, "greetings": true, "respectfully": true,
	"cordially": true, "warmly": true, "truly": true, "faithfully": true,
	"kindly": true, "yours": true,
}

// Options configures a Redactor.
type Options struct {
	// Patterns selects built-in detectors; empty means all
	Patterns []Pattern

	// Custom patterns always use the generic replacement
	Custom []*regexp.Regexp

	// AllowList holds exact matches that are never redacted
	AllowList []string

	// Replacement defaults to DefaultReplacement
	Replacement string

	// SpecificTokens uses per-pattern tokens such as <REDACTED_EMAIL>
	SpecificTokens bool

	// RedactNames redacts names found after greetings, before closings, on
	// signature lines, and any listed in Names
	RedactNames bool
	Names       []string
}

type rule struct {
	re          *regexp.Regexp
	replacement string
}

// Redactor replaces PII in strings and structured values.
type Redactor struct {
	rules       []rule
	allow       map[string]bool
	redactNames bool
	nameRepl    string
	namesRe     *regexp.Regexp
}

// NewRedactor creates a Redactor.
func NewRedactor(opts Options) *Redactor {
	repl := opts.Replacement
	if repl == "" {
		repl = DefaultReplacement
	}

	enabled := make(map[Pattern]bool, len(opts.Patterns))
	for _, p := range opts.Patterns {
		enabled[p] = true
	}

	r := &Redactor{
		allow:       make(map[string]bool, len(opts.AllowList)),
		redactNames: opts.RedactNames,
		nameRepl:    repl,
	}
	for _, b := range builtins {
		if len(enabled) > 0 && !enabled[b.name] {
			continue
		}
		token := repl
		if opts.SpecificTokens {
			token = b.token
		}
		r.rules = append(r.rules, rule{re: b.re, replacement: token})
	}
	for _, re := range opts.Custom {
		r.rules = append(r.rules, rule{re: re, replacement: repl})
	}
	for _, a := range opts.AllowList {
		r.allow[a] = true
	}
	if opts.SpecificTokens {
		r.nameRepl = nameToken
	}
	if opts.RedactNames && len(opts.Names) > 0 {
		quoted := make([]string, len(opts.Names))
		for i, n := range opts.Names {
			quoted[i] = regexp.QuoteMeta(n)
		}
		r.namesRe = regexp.MustCompile(`(?i)\b(` + strings.Join(quoted, "|") + `)\b`)
	}
	return r
}

// Redact returns text with every detected PII match replaced.
func (r *Redactor) Redact(text string) string {
	for _, rl := range r.rules {
		text = rl.re.ReplaceAllStringFunc(text, func(m string) string {
			if r.allow[m] {
				return m
			}
			return rl.replacement
		})
	}
	if r.redactNames {
		text = r.redactNamesIn(text)
	}
	return text
}

// RedactValue redacts strings inside v. Maps and slices are walked; other
// structured values are redacted in their JSON form and returned decoded.
func (r *Redactor) RedactValue(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case string:
		return r.Redact(val)
	case []byte:
		return r.Redact(string(val))
	case []string:
		out := make([]string, len(val))
		for i, s := range val {
			out[i] = r.Redact(s)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = r.RedactValue(item)
		}
		return out
	case map[string]string:
		out := make(map[string]string, len(val))
		for k, s := range val {
			out[k] = r.Redact(s)
		}
		return out
	case map[string]any:
		return r.RedactMap(val)
	}

	switch reflect.Indirect(reflect.ValueOf(v)).Kind() {
	case reflect.Struct, reflect.Map, reflect.Slice, reflect.Array:
		b, err := json.Marshal(v)
		if err != nil {
			return v
		}
		var decoded any
		if err := json.Unmarshal(b, &decoded); err != nil {
			return v
		}
		return r.RedactValue(decoded)
	}
	return v
}

// RedactMap returns a redacted copy of m.
func (r *Redactor) RedactMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = r.RedactValue(v)
	}
	return out
}

func (r *Redactor) redactNamesIn(text string) string {
	if r.namesRe != nil {
		text = r.namesRe.ReplaceAllString(text, r.nameRepl)
	}

	// names right after a greeting, processed back to front so offsets hold
	matches := greetingRe.FindAllStringIndex(text, -1)
	for i := len(matches) - 1; i >= 0; i-- {
		start := matches[i][1]
		loc := leadNameRe.FindStringSubmatchIndex(text[start:])
		if loc == nil {
			continue
		}
		text = text[:start+loc[2]] + r.nameRepl + text[start+loc[3]:]
	}

	// names right before a closing
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		loc := closingRe.FindStringIndex(line)
		if loc == nil {
			continue
		}
		before := line[:loc[0]]
		name := trailNameRe.FindStringSubmatchIndex(before)
		if name == nil {
			continue
		}
		lines[i] = before[:name[2]] + r.nameRepl + before[name[3]:] + line[loc[0]:]
	}

	// short lines holding only a name
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || len(trimmed) >= 50 || strings.Contains(line, r.nameRepl) {
			continue
		}
		if !signatureRe.MatchString(trimmed) {
			continue
		}
		if signatureExclusions[strings.TrimRight(strings.ToLower(trimmed), ",.")] {
			continue
		}
		lines[i] = strings.Replace(line, trimmed, r.nameRepl, 1)
	}
	return strings.Join(lines, "\n")
}
