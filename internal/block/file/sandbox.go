package file

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/tombee/baton/pkg/errors"
	"github.com/tombee/baton/pkg/workflow"
)

// sandbox confines block I/O to the platform directories handed to the
// run as the paths scope. Every operand path must canonicalize to a
// location under one of those roots.
type sandbox struct {
	roots []string
}

func newSandbox(paths map[string]string) *sandbox {
	roots := make([]string, 0, len(paths))
	for _, dir := range paths {
		if dir == "" {
			continue
		}
		roots = append(roots, filepath.Clean(dir))
	}
	sort.Strings(roots)
	return &sandbox{roots: roots}
}

// resolve canonicalizes path and verifies it falls under an allowed
// root. The leaf may not exist yet (write targets); a leaf that is a
// symlink is refused because its target sits outside the check.
func (s *sandbox) resolve(path string) (string, error) {
	if !filepath.IsAbs(path) {
		return "", &errors.ValidationError{
			Field:       "filesystem_path",
			Message:     "path must be absolute",
			SuggestText: "anchor the path at a platform directory, like {{$paths.data}}/reports/out.json",
		}
	}
	cleaned := filepath.Clean(path)

	info, err := os.Lstat(cleaned)
	if err != nil && !os.IsNotExist(err) {
		return "", fmt.Errorf("stat %s: %w", cleaned, err)
	}
	if err == nil && info.Mode()&os.ModeSymlink != 0 {
		return "", &errors.BlockError{
			BlockType: string(workflow.BlockFilesystem),
			Kind:      errors.CodeForbidden,
			Message:   fmt.Sprintf("path %s is a symlink", path),
		}
	}

	if len(s.roots) == 0 {
		return "", &errors.BlockError{
			BlockType: string(workflow.BlockFilesystem),
			Kind:      errors.CodeForbidden,
			Message:   "no filesystem directories are granted to this run",
		}
	}
	if !s.allowed(cleaned) {
		return "", &errors.BlockError{
			BlockType: string(workflow.BlockFilesystem),
			Kind:      errors.CodeForbidden,
			Message:   fmt.Sprintf("path %s is outside the directories granted to this run", path),
		}
	}
	return cleaned, nil
}

// allowed reports whether a cleaned absolute path sits under one of the
// granted roots.
func (s *sandbox) allowed(cleaned string) bool {
	target := filepath.ToSlash(cleaned)
	for _, root := range s.roots {
		if cleaned == root {
			return true
		}
		matched, err := doublestar.Match(filepath.ToSlash(root)+"/**", target)
		if err == nil && matched {
			return true
		}
	}
	return false
}
