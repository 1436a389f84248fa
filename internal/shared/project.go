package shared

import (
	"path/filepath"
	"strings"
)

// ProjectFromDir derives a project key from a working directory: the last
// two path segments, joined with "/". This disambiguates same-named repos
// checked out under different parents (e.g. "work/api" vs "side/api").
func ProjectFromDir(dir string) string {
	dir = filepath.Clean(dir)
	dir = strings.TrimRight(dir, string(filepath.Separator))
	if dir == "" || dir == "." {
		return "unknown"
	}
	parent, base := filepath.Split(dir)
	base = strings.TrimSuffix(base, string(filepath.Separator))
	if base == "" {
		return "unknown"
	}
	parent = strings.TrimRight(parent, string(filepath.Separator))
	if parent == "" || parent == string(filepath.Separator) {
		return base
	}
	_, grandparentBase := filepath.Split(parent)
	if grandparentBase == "" {
		return base
	}
	return grandparentBase + "/" + base
}
