package httputil

import (
	"fmt"
	"net/url"
	"path/filepath"
	"regexp"
	"strings"
)

var (
	// validIDPattern matches provider IDs: letters, digits, hyphens, underscores, slashes.
	validIDPattern = regexp.MustCompile(`^[a-zA-Z0-9/_-]+$`)

	numericIDPattern = regexp.MustCompile(`^[0-9]+$`)

	filenameReplacer = strings.NewReplacer(
		"..", "_",
		"/", "_",
		"\\", "_",
		"\x00", "",
		":", "_",
		"*", "_",
		"?", "_",
		"\"", "_",
		"<", "_",
		">", "_",
		"|", "_",
	)
)

// ValidateURL checks that a URL is well-formed and uses HTTPS.
func ValidateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("malformed URL: %w", err)
	}
	if u.Scheme != "https" {
		return fmt.Errorf("only HTTPS URLs are allowed, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("URL has no host")
	}
	return nil
}

// ValidateID checks that a provider ID contains only safe characters before
// it is placed in a request path.
func ValidateID(id string) error {
	switch {
	case id == "":
		return fmt.Errorf("ID cannot be empty")
	case len(id) > 256:
		return fmt.Errorf("ID too long: %d characters", len(id))
	case !validIDPattern.MatchString(id):
		return fmt.Errorf("ID contains invalid characters: %q", id)
	case strings.Contains(id, ".."):
		return fmt.Errorf("ID contains path traversal: %q", id)
	}
	return nil
}

// ValidateNumericID checks that an ID is purely numeric.
func ValidateNumericID(id string) error {
	if !numericIDPattern.MatchString(id) {
		return fmt.Errorf("expected numeric ID, got %q", id)
	}
	return nil
}

// SanitizeFilename reduces name to a single safe path component.
func SanitizeFilename(name string) string {
	name = filenameReplacer.Replace(filepath.Base(name))
	if name == "" || name == "." || name == ".." {
		return "untitled"
	}
	return name
}

// SafeDownloadPath joins a sanitized filename onto dir and verifies the
// result stays inside dir.
func SafeDownloadPath(dir, filename string) (string, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolving directory: %w", err)
	}

	resolved := filepath.Join(absDir, SanitizeFilename(filename))
	if !strings.HasPrefix(resolved, absDir+string(filepath.Separator)) {
		return "", fmt.Errorf("path traversal detected: %q escapes %q", resolved, absDir)
	}
	return resolved, nil
}

// BuildURL joins base with escaped path segments and an optional query.
func BuildURL(base string, query url.Values, pathSegments ...string) string {
	u := strings.TrimRight(base, "/")
	for _, seg := range pathSegments {
		u += "/" + url.PathEscape(seg)
	}
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}
