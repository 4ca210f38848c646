package collect

import (
	"path/filepath"
	"strings"
)

// ExcludeRules is a list of deny globs applied to paths relative to the
// corpus root. Rules are bare globs ("vendor/**") or wrapped in a Read()
// verb ("Read(./vendor/**)").
type ExcludeRules []string

// Match reports whether relPath (forward-slash, relative to root) matches any
// rule. Safe on a nil receiver.
func (r ExcludeRules) Match(relPath string) bool {
	for _, rule := range r {
		if matchDenyPattern(parseDenyRule(rule), relPath) {
			return true
		}
	}
	return false
}

// parseDenyRule strips the Read() verb and a leading "./":
//
//	"Read(./vendor/**)" → "vendor/**"
//	"vendor/**"         → "vendor/**"
func parseDenyRule(rule string) string {
	rule = strings.TrimSpace(rule)
	if strings.HasPrefix(rule, "Read(") && strings.HasSuffix(rule, ")") {
		rule = rule[5 : len(rule)-1]
	}
	return strings.TrimPrefix(rule, "./")
}

// "prefix/**" matches the prefix directory itself and every path beneath it.
// Other patterns use filepath.Match semantics (single * does not cross /).
func matchDenyPattern(pattern, path string) bool {
	if pattern == "" {
		return false
	}
	if strings.HasSuffix(pattern, "/**") {
		prefix := strings.TrimSuffix(pattern, "/**")
		return path == prefix || strings.HasPrefix(path, prefix+"/")
	}
	matched, _ := filepath.Match(pattern, path)
	return matched
}
