package nlquery

import "strings"

// substituteArguments replaces {name} placeholders with the supplied values.
// Substitution is textual and by name: values are inserted verbatim with no
// quoting or type coercion, because the shipped templates place placeholders
// in identifier and keyword positions (ORDER BY direction, LIMIT count) that
// bound parameters cannot express. Templates are operator-vetted.
func substituteArguments(queryText string, args map[string]string) string {
	out := strings.TrimSpace(queryText)
	for name, value := range args {
		out = strings.ReplaceAll(out, "{"+name+"}", value)
	}
	return out
}
