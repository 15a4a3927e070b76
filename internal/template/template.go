// Package template substitutes named placeholders of the form {name} into
// prompt templates. Doubled braces ({{ and }}) produce literal braces. There is
// no control flow and no escaping of substituted values.
package template

import (
	"fmt"
	"sort"
	"strings"

	rcerrors "github.com/alexisbeaulieu97/reportcheck/pkg/errors"
)

type segment struct {
	literal     string
	placeholder string
}

// Render replaces every {name} in tmpl with vars[name]. A placeholder without a
// matching variable is a ValidationError. Unused variables are ignored.
func Render(tmpl string, vars map[string]string) (string, error) {
	segments := parse(tmpl)

	var missing []string
	seen := make(map[string]struct{})
	var b strings.Builder
	b.Grow(len(tmpl))

	for _, seg := range segments {
		if seg.placeholder == "" {
			b.WriteString(seg.literal)
			continue
		}
		value, ok := vars[seg.placeholder]
		if !ok {
			if _, dup := seen[seg.placeholder]; !dup {
				seen[seg.placeholder] = struct{}{}
				missing = append(missing, seg.placeholder)
			}
			continue
		}
		b.WriteString(value)
	}

	if len(missing) > 0 {
		sort.Strings(missing)
		return "", rcerrors.NewValidationError("template", fmt.Sprintf("unresolved placeholders: %s", strings.Join(missing, ", ")), nil)
	}
	return b.String(), nil
}

// Placeholders lists the distinct placeholder names in order of first appearance.
func Placeholders(tmpl string) []string {
	var names []string
	seen := make(map[string]struct{})
	for _, seg := range parse(tmpl) {
		if seg.placeholder == "" {
			continue
		}
		if _, ok := seen[seg.placeholder]; ok {
			continue
		}
		seen[seg.placeholder] = struct{}{}
		names = append(names, seg.placeholder)
	}
	return names
}

func parse(tmpl string) []segment {
	var segments []segment
	var lit strings.Builder

	flush := func() {
		if lit.Len() > 0 {
			segments = append(segments, segment{literal: lit.String()})
			lit.Reset()
		}
	}

	for i := 0; i < len(tmpl); {
		c := tmpl[i]
		switch {
		case c == '{' && i+1 < len(tmpl) && tmpl[i+1] == '{':
			lit.WriteByte('{')
			i += 2
		case c == '}' && i+1 < len(tmpl) && tmpl[i+1] == '}':
			lit.WriteByte('}')
			i += 2
		case c == '{':
			end := identEnd(tmpl, i+1)
			if end > i+1 && end < len(tmpl) && tmpl[end] == '}' {
				flush()
				segments = append(segments, segment{placeholder: tmpl[i+1 : end]})
				i = end + 1
				continue
			}
			lit.WriteByte(c)
			i++
		default:
			lit.WriteByte(c)
			i++
		}
	}
	flush()
	return segments
}

func identEnd(s string, start int) int {
	i := start
	for i < len(s) {
		c := s[i]
		isLetter := c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
		isDigit := c >= '0' && c <= '9'
		if !isLetter && !(isDigit && i > start) {
			break
		}
		i++
	}
	return i
}
