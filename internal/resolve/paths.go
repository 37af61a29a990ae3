package resolve

import (
	"net/url"
	"path"
	"path/filepath"
	"strings"
)

// RelativeBundlePath returns the slash-separated path from the directory
// of from to to, always starting with "./" or "../".
func RelativeBundlePath(from, to *Bundle) string {
	rel, err := filepath.Rel(filepath.FromSlash(path.Dir(from.FilePath())), filepath.FromSlash(to.FilePath()))
	if err != nil {
		// Rel fails only when one path is absolute and the other is not.
		rel = to.FilePath()
	}
	rel = filepath.ToSlash(rel)
	if !strings.HasPrefix(rel, "../") && !strings.HasPrefix(rel, "./") {
		rel = "./" + rel
	}
	return rel
}

// JoinURL appends p to the path of base. base may be an absolute URL, a
// root-relative path or empty.
func JoinURL(base, p string) string {
	u, err := url.Parse(base)
	if err != nil {
		return strings.TrimSuffix(base, "/") + "/" + strings.TrimPrefix(p, "/")
	}
	u.Path = path.Join(u.Path, p)
	u.RawPath = ""
	return u.String()
}
