package webserver

import "strings"

// Variable produces a substitution value at render time.
type Variable func() string

// TemplateVariables maps marker names to value producers. Markers appear in
// served assets as %KEY%; values are only computed when a marker is hit.
type TemplateVariables struct {
	Variables map[string]Variable
}

func NewTemplateVariables() *TemplateVariables {
	return &TemplateVariables{Variables: make(map[string]Variable)}
}

func (tv *TemplateVariables) Set(key string, variable Variable) {
	tv.Variables[key] = variable
}

// Inject replaces every %KEY% occurrence in src with the value of the
// registered variable for KEY. The scan is a single left-to-right pass over
// src: substituted values are never re-scanned, so a value containing a
// marker of another key stays literal. Markers without a registered key are
// left byte-identical.
func (tv *TemplateVariables) Inject(src string) string {
	if len(tv.Variables) == 0 || !strings.ContainsRune(src, '%') {
		return src
	}

	var out strings.Builder
	out.Grow(len(src))

	for i := 0; i < len(src); {
		if src[i] != '%' {
			next := strings.IndexByte(src[i:], '%')
			if next == -1 {
				out.WriteString(src[i:])
				break
			}
			out.WriteString(src[i : i+next])
			i += next
			continue
		}

		end := strings.IndexByte(src[i+1:], '%')
		if end == -1 {
			out.WriteString(src[i:])
			break
		}

		key := src[i+1 : i+1+end]
		if variable, ok := tv.Variables[key]; ok {
			out.WriteString(variable())
			i += end + 2
			continue
		}

		// Unknown marker: emit the leading '%' only, so overlapping
		// candidates like %A%KEY% still resolve.
		out.WriteByte('%')
		i++
	}

	return out.String()
}
