// Package examples ships starter workflow definitions embedded in the
// binary. Every example is a valid pack file; `baton pack init` copies
// one into the working directory as a starting point.
package examples

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tombee/baton/internal/pack"
)

//go:embed *.yaml
var embeddedFS embed.FS

// Example is one embedded starter workflow.
type Example struct {
	Name        string
	Description string
	FilePath    string
}

// List returns the embedded examples sorted by name. Descriptions come
// from the files themselves, which also proves each one parses.
func List() ([]Example, error) {
	entries, err := embeddedFS.ReadDir(".")
	if err != nil {
		return nil, fmt.Errorf("failed to read embedded examples: %w", err)
	}

	var examples []Example
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yaml") {
			continue
		}

		name := strings.TrimSuffix(entry.Name(), ".yaml")
		data, err := embeddedFS.ReadFile(entry.Name())
		if err != nil {
			return nil, fmt.Errorf("failed to read example %q: %w", name, err)
		}
		f, err := pack.Parse(data)
		if err != nil {
			return nil, fmt.Errorf("example %q is not a valid workflow file: %w", name, err)
		}

		examples = append(examples, Example{
			Name:        name,
			Description: f.Description,
			FilePath:    entry.Name(),
		})
	}

	return examples, nil
}

// Get returns the raw content of one example by name.
func Get(name string) ([]byte, error) {
	content, err := embeddedFS.ReadFile(name + ".yaml")
	if err != nil {
		return nil, fmt.Errorf("example %q not found: %w", name, err)
	}
	return content, nil
}

// Exists reports whether an example with the given name is embedded.
func Exists(name string) bool {
	_, err := embeddedFS.ReadFile(name + ".yaml")
	return err == nil
}

// CopyTo writes an example to destPath, creating parent directories as
// needed.
func CopyTo(name string, destPath string) error {
	content, err := Get(name)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return fmt.Errorf("failed to create destination directory: %w", err)
	}
	if err := os.WriteFile(destPath, content, 0644); err != nil {
		return fmt.Errorf("failed to write example file: %w", err)
	}
	return nil
}
