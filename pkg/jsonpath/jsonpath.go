// Package jsonpath reads values out of JSON response bodies. Paths may be
// written as JSONPath ($.content[0].id) or as gjson paths (content.0.id).
package jsonpath

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/tidwall/gjson"
)

// Extract extracts a value from a JSON body.
func Extract(body []byte, path string) (string, error) {
	if len(body) == 0 {
		return "", fmt.Errorf("empty JSON body")
	}
	if path == "" {
		return "", fmt.Errorf("empty JSONPath expression")
	}

	result := gjson.GetBytes(body, ToGjsonPath(path))
	if !result.Exists() {
		return "", fmt.Errorf("path not found: %s", path)
	}

	if result.Type == gjson.Null {
		return "null", nil
	}

	return result.String(), nil
}

// Exists reports whether path resolves to a value in body.
func Exists(body []byte, path string) bool {
	return gjson.GetBytes(body, ToGjsonPath(path)).Exists()
}

// ExtractMultiple extracts several named values. Values that resolve are
// returned even when others fail.
func ExtractMultiple(body []byte, paths map[string]string) (map[string]string, error) {
	if len(body) == 0 {
		return nil, fmt.Errorf("empty JSON body")
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no JSONPath expressions provided")
	}

	names := make([]string, 0, len(paths))
	for name := range paths {
		names = append(names, name)
	}
	sort.Strings(names)

	results := make(map[string]string, len(paths))
	var failed []string
	for _, name := range names {
		value, err := Extract(body, paths[name])
		if err != nil {
			failed = append(failed, fmt.Sprintf("%s: %v", name, err))
			continue
		}
		results[name] = value
	}

	if len(failed) > 0 {
		return results, fmt.Errorf("extraction errors: %s", strings.Join(failed, "; "))
	}
	return results, nil
}

var (
	quotedKeyRe = regexp.MustCompile(`\[\s*['"]([^'"]+)['"]\s*\]`)
	indexRe     = regexp.MustCompile(`\[\s*(\d+|\*)\s*\]`)
)

// ToGjsonPath converts a JSONPath expression to gjson syntax. Paths that
// do not start with "$" are returned unchanged.
func ToGjsonPath(path string) string {
	path = strings.TrimSpace(path)
	if !strings.HasPrefix(path, "$") {
		return path
	}

	path = strings.TrimPrefix(path, "$")
	if path == "" {
		return "@this"
	}

	path = quotedKeyRe.ReplaceAllString(path, ".$1")
	path = indexRe.ReplaceAllStringFunc(path, func(m string) string {
		idx := indexRe.FindStringSubmatch(m)[1]
		if idx == "*" {
			return ".#"
		}
		return "." + idx
	})

	return strings.TrimPrefix(path, ".")
}
