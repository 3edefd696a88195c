package nodes

import "strings"

// renderTemplate substitutes {name} placeholders in a prompt template from
// vars. Doubled braces escape literal braces. Returns ok=false when the
// template references a name not present in vars, so callers can fall back
// to the raw template (or the bare input) instead of sending a half-filled
// prompt.
func renderTemplate(tmpl string, vars map[string]string) (string, bool) {
	var sb strings.Builder
	sb.Grow(len(tmpl))

	for i := 0; i < len(tmpl); {
		c := tmpl[i]
		switch c {
		case '{':
			if i+1 < len(tmpl) && tmpl[i+1] == '{' {
				sb.WriteByte('{')
				i += 2
				continue
			}
			end := strings.IndexByte(tmpl[i:], '}')
			if end < 0 {
				return "", false
			}
			name := tmpl[i+1 : i+end]
			val, ok := vars[name]
			if !ok || !validPlaceholder(name) {
				return "", false
			}
			sb.WriteString(val)
			i += end + 1
		case '}':
			if i+1 < len(tmpl) && tmpl[i+1] == '}' {
				sb.WriteByte('}')
				i += 2
				continue
			}
			sb.WriteByte('}')
			i++
		default:
			sb.WriteByte(c)
			i++
		}
	}
	return sb.String(), true
}

func validPlaceholder(name string) bool {
	if name == "" {
		return false
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '_':
		default:
			return false
		}
	}
	return true
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
