package crawler

import (
	"net/url"
	"path/filepath"
	"strings"
)

// shouldCrawl applies the ignore and follow patterns to the URL path.
// An ignore match always wins; when follow patterns exist, one of them must
// match.
func shouldCrawl(targetURL string, ignorePatterns, followPatterns []string) bool {
	u, err := url.Parse(targetURL)
	if err != nil {
		return false
	}
	path := u.Path
	if path == "" {
		path = "/"
	}

	for _, pattern := range ignorePatterns {
		if matchPattern(pattern, path) {
			return false
		}
	}
	if len(followPatterns) == 0 {
		return true
	}
	for _, pattern := range followPatterns {
		if matchPattern(pattern, path) {
			return true
		}
	}
	return false
}

// matchPattern checks if a path matches a glob pattern.
// Patterns can use:
//   - * to match any sequence of non-separator characters
//   - ? to match any single character
//
// A trailing "/*" also matches everything below the prefix, and "*.ext"
// matches the extension at any depth.
func matchPattern(pattern, path string) bool {
	if prefix, ok := strings.CutSuffix(pattern, "/*"); ok {
		if strings.HasPrefix(path, prefix+"/") || path == prefix {
			return true
		}
	}

	if strings.HasPrefix(pattern, "*.") && strings.HasSuffix(path, strings.TrimPrefix(pattern, "*")) {
		return true
	}

	if matched, err := filepath.Match(pattern, path); err == nil && matched {
		return true
	}

	if strings.Contains(pattern, "*") && !strings.Contains(pattern, "/") {
		if matched, err := filepath.Match(pattern, filepath.Base(path)); err == nil && matched {
			return true
		}
	}
	return false
}
