package templates

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/valyala/fasttemplate"
)

// ErrNoTemplate means no template is registered for the event's selector.
// The caller suppresses the notification without surfacing an error.
var ErrNoTemplate = errors.New("no template registered")

// Template is one subject/body pattern pair. Placeholders use {field}
// syntax over the event field map.
type Template struct {
	Subject string
	Body    string
}

// Store holds the template set, loaded once at startup and immutable
// afterwards.
type Store struct {
	templates map[string]Template
}

// Load reads the configured template files, keyed by selector such as
// "open_pr". File format: first line "subject: <pattern>", the remainder
// is the body pattern. Files that do not exist are skipped with a log
// line, not treated as an error.
func Load(files map[string]string) *Store {
	s := &Store{templates: map[string]Template{}}
	for key, path := range files {
		raw, err := os.ReadFile(path)
		if err != nil {
			log.Warn().Str("template", key).Str("path", path).Msg("Template file missing, skipped")
			continue
		}
		first, rest, _ := strings.Cut(string(raw), "\n")
		s.templates[key] = Template{
			Subject: strings.TrimPrefix(first, "subject: "),
			Body:    strings.TrimSpace(rest),
		}
		log.Debug().Str("template", key).Str("path", path).Msg("Loaded template")
	}
	return s
}

// Keys lists the registered selectors, sorted.
func (s *Store) Keys() []string {
	keys := make([]string, 0, len(s.templates))
	for k := range s.templates {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Render produces the subject and body for a selector. overrides is the
// repository's custom-subject map: an exact selector match wins, then a
// catchall entry, then the template's own subject. A missing selector is
// ErrNoTemplate; an unresolved placeholder in either pattern fails the
// render for this one event.
func (s *Store) Render(key string, fields map[string]string, overrides map[string]string) (string, string, error) {
	tmpl, ok := s.templates[key]
	if !ok {
		return "", "", ErrNoTemplate
	}

	subjectPattern := tmpl.Subject
	if p, ok := overrides[key]; ok && p != "" {
		subjectPattern = p
	} else if p, ok := overrides["catchall"]; ok && p != "" {
		subjectPattern = p
	}

	subject, err := Substitute(subjectPattern, fields)
	if err != nil {
		return "", "", fmt.Errorf("rendering subject for %s: %w", key, err)
	}
	body, err := Substitute(tmpl.Body, fields)
	if err != nil {
		return "", "", fmt.Errorf("rendering body for %s: %w", key, err)
	}
	return subject, body, nil
}

// Substitute fills {field} placeholders in pattern from the field map.
// Placeholders with no corresponding field are a hard failure so that a
// stale template never sends a half-rendered message.
func Substitute(pattern string, fields map[string]string) (string, error) {
	t, err := fasttemplate.NewTemplate(pattern, "{", "}")
	if err != nil {
		return "", fmt.Errorf("parsing pattern: %w", err)
	}
	return t.ExecuteFuncStringWithErr(func(w io.Writer, tag string) (int, error) {
		value, ok := fields[tag]
		if !ok {
			return 0, fmt.Errorf("unresolved placeholder {%s}", tag)
		}
		return w.Write([]byte(value))
	})
}
