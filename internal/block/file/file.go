// Package file implements the filesystem block: read, write, list and
// delete confined to the platform directories exposed through the paths
// scope. Operand paths are canonicalized and checked against those
// roots before any I/O happens, so workflow logic can never reach
// outside what the platform granted.
package file

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/tombee/baton/internal/block"
	"github.com/tombee/baton/pkg/errors"
	"github.com/tombee/baton/pkg/workflow"
	"github.com/tombee/baton/pkg/workflow/reference"
)

// DefaultMaxFileBytes caps file reads and writes at 10MB.
const DefaultMaxFileBytes = 10 << 20

// Config tunes the filesystem handler.
type Config struct {
	// MaxFileBytes bounds the size of a single read or write.
	MaxFileBytes int64
}

// DefaultConfig returns the production configuration.
func DefaultConfig() Config {
	return Config{MaxFileBytes: DefaultMaxFileBytes}
}

type handler struct {
	maxFileBytes int64
}

// New creates the filesystem block handler.
func New(cfg Config) block.Handler {
	maxBytes := cfg.MaxFileBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxFileBytes
	}
	return &handler{maxFileBytes: maxBytes}
}

func (h *handler) Type() workflow.BlockType { return workflow.BlockFilesystem }

func (h *handler) Execute(ctx context.Context, blk *workflow.Block, wc *workflow.Context) (*block.Result, error) {
	logic := reference.ResolveMap(block.NormalizeLogic(blk.Type, blk.Logic), wc)

	op, err := block.RequireString(logic, "filesystem_operation")
	if err != nil {
		return nil, err
	}
	path, err := block.RequireString(logic, "filesystem_path")
	if err != nil {
		return nil, err
	}

	sb := newSandbox(wc.Paths)

	var value any
	switch op {
	case "read":
		value, err = h.read(sb, path)
	case "write":
		value, err = h.write(sb, path, logic)
	case "list":
		value, err = h.list(sb, path, logic)
	case "delete":
		value, err = h.remove(sb, path, logic)
	default:
		return nil, &errors.ValidationError{
			Field:       "filesystem_operation",
			Message:     fmt.Sprintf("unknown operation %q", op),
			SuggestText: "use one of read, write, list, delete",
		}
	}
	if err != nil {
		return nil, err
	}
	return block.Bound(blk, value), nil
}

// read returns the file content, parsed when the extension advertises a
// structured format.
func (h *handler) read(sb *sandbox, path string) (any, error) {
	resolved, err := sb.resolve(path)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(resolved)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &errors.NotFoundError{Resource: "file", ID: path}
		}
		return nil, fmt.Errorf("stat %s: %w", resolved, err)
	}
	if info.IsDir() {
		return nil, &errors.ValidationError{
			Field:       "filesystem_path",
			Message:     "path is a directory",
			SuggestText: "use the list operation for directories",
		}
	}
	if info.Size() > h.maxFileBytes {
		return nil, &errors.BlockError{
			BlockType: string(workflow.BlockFilesystem),
			Kind:      errors.CodeUnprocessable,
			Message:   fmt.Sprintf("file exceeds %d byte read limit", h.maxFileBytes),
		}
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", resolved, err)
	}
	data = stripBOM(data)

	content, err := decodeByExtension(resolved, data)
	if err != nil {
		return nil, &errors.BlockError{
			BlockType: string(workflow.BlockFilesystem),
			Kind:      errors.CodeUnprocessable,
			Message:   err.Error(),
			Cause:     err,
		}
	}

	return map[string]any{
		"path":    resolved,
		"content": content,
		"size":    len(data),
	}, nil
}

func (h *handler) write(sb *sandbox, path string, logic map[string]any) (any, error) {
	content, ok := logic["filesystem_content"]
	if !ok {
		return nil, &errors.ValidationError{
			Field:       "filesystem_content",
			Message:     "required field is missing",
			SuggestText: "set filesystem_content to the value to write",
		}
	}

	resolved, err := sb.resolve(path)
	if err != nil {
		return nil, err
	}

	data, err := encodeByExtension(resolved, content)
	if err != nil {
		return nil, &errors.ValidationError{
			Field:       "filesystem_content",
			Message:     err.Error(),
			SuggestText: "use a .json or .yaml path for structured content",
		}
	}
	if int64(len(data)) > h.maxFileBytes {
		return nil, &errors.BlockError{
			BlockType: string(workflow.BlockFilesystem),
			Kind:      errors.CodeUnprocessable,
			Message:   fmt.Sprintf("content exceeds %d byte write limit", h.maxFileBytes),
		}
	}

	if err := writeAtomic(resolved, data); err != nil {
		return nil, err
	}

	return map[string]any{
		"path":  resolved,
		"bytes": len(data),
	}, nil
}

// writeAtomic lands the content in a temp file beside the target and
// renames it into place; readers never observe a half-written file.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create parent directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".baton-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if tmp != nil {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	if err := tmp.Chmod(0o600); err != nil {
		return fmt.Errorf("set temp file permissions: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	tmp = nil

	if err := os.Chmod(tmpPath, 0o644); err != nil {
		return fmt.Errorf("set permissions: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}

func (h *handler) list(sb *sandbox, path string, logic map[string]any) (any, error) {
	pattern, _ := block.GetString(logic, "filesystem_pattern")
	recursive, _ := block.GetBool(logic, "filesystem_recursive")

	resolved, err := sb.resolve(path)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(resolved)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &errors.NotFoundError{Resource: "path", ID: path}
		}
		return nil, fmt.Errorf("stat %s: %w", resolved, err)
	}

	if !info.IsDir() {
		return map[string]any{
			"path":    resolved,
			"entries": []any{entryFor(resolved, info)},
			"count":   1,
		}, nil
	}

	glob := filepath.Join(resolved, "*")
	switch {
	case pattern != "" && recursive:
		glob = filepath.Join(resolved, "**", pattern)
	case pattern != "":
		glob = filepath.Join(resolved, pattern)
	case recursive:
		glob = filepath.Join(resolved, "**", "*")
	}

	matches, err := doublestar.FilepathGlob(glob)
	if err != nil {
		return nil, &errors.ValidationError{
			Field:       "filesystem_pattern",
			Message:     fmt.Sprintf("invalid glob pattern: %v", err),
			SuggestText: "use doublestar syntax, like *.json or **/*.csv",
		}
	}

	entries := make([]any, 0, len(matches))
	for _, match := range matches {
		// Join cleans the pattern, so a crafted ../ could point the glob
		// above the root; matches are re-checked instead of trusting it.
		if !sb.allowed(filepath.Clean(match)) {
			continue
		}
		mi, err := os.Stat(match)
		if err != nil {
			continue
		}
		entries = append(entries, entryFor(match, mi))
	}

	return map[string]any{
		"path":    resolved,
		"entries": entries,
		"count":   len(entries),
	}, nil
}

func entryFor(path string, info os.FileInfo) map[string]any {
	return map[string]any{
		"path":    path,
		"name":    info.Name(),
		"size":    info.Size(),
		"mode":    info.Mode().String(),
		"modTime": info.ModTime().UTC().Format(time.RFC3339),
		"isDir":   info.IsDir(),
	}
}

// remove deletes the target. A missing target is not an error; the
// bound result records whether anything was deleted.
func (h *handler) remove(sb *sandbox, path string, logic map[string]any) (any, error) {
	recursive, _ := block.GetBool(logic, "filesystem_recursive")

	resolved, err := sb.resolve(path)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(resolved)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]any{"path": resolved, "deleted": false}, nil
		}
		return nil, fmt.Errorf("stat %s: %w", resolved, err)
	}

	if info.IsDir() && !recursive {
		return nil, &errors.ValidationError{
			Field:       "filesystem_recursive",
			Message:     "path is a directory",
			SuggestText: "set filesystem_recursive to true to delete directories",
		}
	}

	if info.IsDir() {
		err = os.RemoveAll(resolved)
	} else {
		err = os.Remove(resolved)
	}
	if err != nil {
		return nil, fmt.Errorf("delete %s: %w", resolved, err)
	}

	return map[string]any{"path": resolved, "deleted": true}, nil
}
