package compose

import (
	"path/filepath"
	"strings"
)

// pathRebaser rewrites relative paths declared in one directory so that they stay valid
// when read from another.
type pathRebaser struct {
	// prefix leads from the target directory to the source directory. Empty when both
	// are the same.
	prefix string

	// named holds the named volumes declared by the document.
	named map[string]bool
}

func newPathRebaser(sourceDir, targetDir string, named map[string]bool) (*pathRebaser, error) {
	rel, err := filepath.Rel(targetDir, sourceDir)
	if err != nil {
		return nil, err
	}
	rel = filepath.ToSlash(rel)
	if rel == "." {
		rel = ""
	}
	return &pathRebaser{prefix: rel, named: named}, nil
}

// isAbsolute reports whether a path must be left as is. Paths starting with a variable
// reference are treated as absolute.
func isAbsolute(path string) bool {
	return strings.HasPrefix(path, "/") ||
		strings.HasPrefix(path, "${") ||
		strings.HasPrefix(path, "~")
}

// rebase rewrites a relative path.
func (r *pathRebaser) rebase(path string) string {
	if r.prefix == "" || path == "" || isAbsolute(path) {
		return path
	}

	joined := filepath.ToSlash(filepath.Join(filepath.FromSlash(r.prefix), filepath.FromSlash(path)))
	if joined == ".." || strings.HasPrefix(joined, "../") {
		return joined
	}
	return "./" + joined
}

// rewriteService rewrites the filesystem references of a service definition in place.
func (r *pathRebaser) rewriteService(service map[string]any) {
	if r.prefix == "" {
		return
	}

	if volumes, ok := service[volumesKey].([]any); ok {
		for i, volume := range volumes {
			volumes[i] = r.rewriteVolume(volume)
		}
	}

	switch build := service["build"].(type) {
	case string:
		service["build"] = r.rebase(build)
	case map[string]any:
		if buildContext, ok := build["context"].(string); ok {
			// The dockerfile is resolved against the context.
			build["context"] = r.rebase(buildContext)
		} else if dockerfile, ok := build["dockerfile"].(string); ok {
			build["dockerfile"] = r.rebase(dockerfile)
		}
	}

	switch envFile := service["env_file"].(type) {
	case string:
		service["env_file"] = r.rebase(envFile)
	case []any:
		for i, item := range envFile {
			switch entry := item.(type) {
			case string:
				envFile[i] = r.rebase(entry)
			case map[string]any:
				if path, ok := entry["path"].(string); ok {
					entry["path"] = r.rebase(path)
				}
			}
		}
	}
}

// rewriteVolume handles both the short "source:target[:mode]" syntax and the long syntax.
func (r *pathRebaser) rewriteVolume(volume any) any {
	switch v := volume.(type) {
	case string:
		source, rest, found := strings.Cut(v, ":")
		if !found || r.named[source] {
			// An anonymous volume, or a named one.
			return v
		}
		return r.rebase(source) + ":" + rest
	case map[string]any:
		if kind, _ := v["type"].(string); kind != "" && kind != "bind" {
			return v
		}
		source, ok := v["source"].(string)
		if !ok || r.named[source] {
			return v
		}
		v["source"] = r.rebase(source)
		return v
	default:
		return volume
	}
}
