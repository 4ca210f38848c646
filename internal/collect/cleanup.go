package collect

import (
	"os"
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// DefaultKeepInclude is the only #include that survives cleanup.
const DefaultKeepInclude = "bits/stdc++.h"

// headerPreambleLines is how many synthetic typedef lines header-stripped
// corpora prepend to every file.
const headerPreambleLines = 8

var (
	blockComment  = regexp.MustCompile(`(?s)/\*.*?\*/`)
	mainOpener    = regexp.MustCompile(`^int\s+main\s*\(\s*(?:void)?\s*\)`)
	usedAttribute = regexp.MustCompile(`__attribute__\s*\(\(\s*used\s*\)\)[ \t]*`)

	// Applied in order, whole words only.
	portableTypedefs = []struct {
		pattern *regexp.Regexp
		repl    string
	}{
		{regexp.MustCompile(`\bNULL\b`), "((void*)0)"},
		{regexp.MustCompile(`\btrue\b`), "1"},
		{regexp.MustCompile(`\bfalse\b`), "0"},
		{regexp.MustCompile(`\buintptr_t\b`), "unsigned long"},
		{regexp.MustCompile(`\bsize_t\b`), "unsigned long"},
		{regexp.MustCompile(`\bintptr_t\b`), "long"},
		{regexp.MustCompile(`\bbool\b`), "int"},
	}
)

// Cleanup configures the source cleanup transform.
type Cleanup struct {
	// HeaderStripped enables the preamble drop and typedef rewrites used by
	// corpora whose files were extracted without their headers.
	HeaderStripped bool
	// KeepInclude is the header whose #include line is retained.
	KeepInclude string
}

// Apply runs the cleanup transform over text and returns the retained lines
// joined by "\n" with a trailing newline, in Unicode NFC.
func (c Cleanup) Apply(text string) string {
	keep := c.KeepInclude
	if keep == "" {
		keep = DefaultKeepInclude
	}

	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = blockComment.ReplaceAllString(text, "")
	if c.HeaderStripped {
		text = rewritePortableTypedefs(dropLines(text, headerPreambleLines))
	}

	var kept []string
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "//") {
			continue
		}
		if strings.HasPrefix(trimmed, "#include") && !strings.Contains(trimmed, keep) {
			continue
		}
		if mainOpener.MatchString(trimmed) {
			break
		}
		kept = append(kept, strings.TrimRight(line, " \t\r"))
	}
	return norm.NFC.String(strings.Join(kept, "\n") + "\n")
}

// File rewrites path in place with the cleaned content.
func (c Cleanup) File(path string) (string, error) {
	// #nosec G304 -- path is inside the collector's output directory
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	cleaned := c.Apply(string(data))
	if err := os.WriteFile(path, []byte(cleaned), 0o600); err != nil {
		return "", err
	}
	return cleaned, nil
}

func dropLines(text string, n int) string {
	for i := 0; i < n; i++ {
		idx := strings.IndexByte(text, '\n')
		if idx < 0 {
			return ""
		}
		text = text[idx+1:]
	}
	return text
}

func rewritePortableTypedefs(text string) string {
	for _, rw := range portableTypedefs {
		text = rw.pattern.ReplaceAllString(text, rw.repl)
	}
	return usedAttribute.ReplaceAllString(text, "")
}
