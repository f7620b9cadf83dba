package definition

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Metadata is the subset of a workflow definition the backend cares about.
type Metadata struct {
	Name       string
	WorkflowID string
	Version    string
}

// Loader reads workflow definition files from a static directory.
type Loader struct {
	dir string
}

func NewLoader(dir string) *Loader {
	return &Loader{dir: dir}
}

// ReadJSON loads one definition file. Filenames are sanitized so callers can
// pass user-supplied names.
func (l *Loader) ReadJSON(filename string) (map[string]interface{}, error) {
	if err := sanitizeFilename(filename); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filepath.Join(l.dir, filename))
	if err != nil {
		return nil, fmt.Errorf("failed to read workflow file %s: %w", filename, err)
	}

	var doc map[string]interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("workflow file %s is not valid JSON: %w", filename, err)
	}
	return doc, nil
}

// ListFiles returns the JSON files available in the static directory.
func (l *Loader) ListFiles() ([]string, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list static directory: %w", err)
	}

	files := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		files = append(files, entry.Name())
	}
	return files, nil
}

func sanitizeFilename(filename string) error {
	if filename == "" {
		return fmt.Errorf("filename must not be empty")
	}
	if strings.HasPrefix(filename, "/") || strings.HasPrefix(filename, "\\") {
		return fmt.Errorf("absolute paths not allowed: %s", filename)
	}
	if strings.Contains(filename, "..") || strings.HasPrefix(filename, ".") {
		return fmt.Errorf("path traversal not allowed: %s", filename)
	}
	if strings.ContainsRune(filename, 0) {
		return fmt.Errorf("null bytes not allowed in filename")
	}
	return nil
}

// ExtractMetadata pulls the engine workflow id, display name, and version tag
// out of a definition document. The id is mandatory: without it the backend
// cannot address the workflow in the engine.
func ExtractMetadata(definition map[string]interface{}) (Metadata, error) {
	meta := Metadata{Name: "Default workflow"}

	if name, ok := definition["name"].(string); ok && name != "" {
		meta.Name = name
	}
	if version, ok := definition["versionId"].(string); ok {
		meta.Version = version
	}

	id, ok := definition["id"].(string)
	if !ok || id == "" {
		return Metadata{}, fmt.Errorf("workflow definition must contain an 'id' field with the engine workflow id")
	}
	meta.WorkflowID = id

	return meta, nil
}
