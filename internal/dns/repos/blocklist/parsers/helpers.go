package parsers

import "strings"

// stripComment removes an inline '#' comment and surrounding whitespace,
// along with a UTF-8 BOM that editors sometimes leave on the first line.
func stripComment(line string) string {
	line = strings.TrimPrefix(line, "\uFEFF")
	if idx := strings.IndexByte(line, '#'); idx >= 0 {
		line = line[:idx]
	}
	return strings.TrimSpace(line)
}

// normalizePattern lowercases a pattern and drops a leading "*." wildcard
// marker. Substring matching already covers every subdomain, so the marker
// carries no meaning here.
func normalizePattern(raw string) string {
	p := strings.ToLower(strings.TrimSpace(raw))
	return strings.TrimPrefix(p, "*.")
}

// isValidPattern rejects tokens that would match almost everything or
// cannot appear in a decoded query name.
func isValidPattern(p string) bool {
	if len(p) < 3 || len(p) > 253 {
		return false
	}
	if strings.Trim(p, ".") == "" {
		return false
	}
	return !strings.ContainsAny(p, " \t\r\n")
}
