package file

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// stripBOM removes a UTF-8 byte order mark.
func stripBOM(content []byte) []byte {
	if len(content) >= 3 && content[0] == 0xEF && content[1] == 0xBB && content[2] == 0xBF {
		return content[3:]
	}
	return content
}

// decodeByExtension parses file content based on the path's extension.
// Unknown extensions read as plain text.
func decodeByExtension(path string, data []byte) (any, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		var v any
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("parse %s as JSON: %w", filepath.Base(path), err)
		}
		return v, nil
	case ".yaml", ".yml":
		v, err := decodeYAML(data)
		if err != nil {
			return nil, fmt.Errorf("parse %s as YAML: %w", filepath.Base(path), err)
		}
		return v, nil
	case ".csv":
		v, err := decodeCSV(data)
		if err != nil {
			return nil, fmt.Errorf("parse %s as CSV: %w", filepath.Base(path), err)
		}
		return v, nil
	default:
		return string(data), nil
	}
}

// decodeYAML reads every document in the stream. One document decodes to
// its value, several to a slice, none to nil.
func decodeYAML(data []byte) (any, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	var docs []any
	for {
		var doc any
		if err := dec.Decode(&doc); err != nil {
			if err == io.EOF {
				break
			}
			return nil, err
		}
		docs = append(docs, doc)
	}
	switch len(docs) {
	case 0:
		return nil, nil
	case 1:
		return docs[0], nil
	default:
		return docs, nil
	}
}

// decodeCSV reads the first row as headers and returns the remaining
// rows as objects keyed by header. Duplicate headers get a numeric
// suffix so no column is silently dropped.
func decodeCSV(data []byte) ([]any, error) {
	rd := csv.NewReader(bytes.NewReader(data))
	rd.TrimLeadingSpace = true

	records, err := rd.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return []any{}, nil
	}

	headers := records[0]
	unique := make([]string, len(headers))
	seen := make(map[string]int, len(headers))
	for i, h := range headers {
		n := seen[h]
		seen[h]++
		if n == 0 {
			unique[i] = h
		} else {
			unique[i] = fmt.Sprintf("%s_%d", h, n+1)
		}
	}

	rows := make([]any, 0, len(records)-1)
	for _, rec := range records[1:] {
		obj := make(map[string]any, len(unique))
		for i, h := range unique {
			if i < len(rec) {
				obj[h] = rec[i]
			} else {
				obj[h] = ""
			}
		}
		rows = append(rows, obj)
	}
	return rows, nil
}

// encodeByExtension serializes content for writing based on the path's
// extension. Structured values need a .json or .yaml target; everything
// else must already be a string.
func encodeByExtension(path string, content any) ([]byte, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		data, err := json.MarshalIndent(content, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("encode as JSON: %w", err)
		}
		return append(data, '\n'), nil
	case ".yaml", ".yml":
		var buf bytes.Buffer
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(content); err != nil {
			return nil, fmt.Errorf("encode as YAML: %w", err)
		}
		if err := enc.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	default:
		s, ok := content.(string)
		if !ok {
			return nil, fmt.Errorf("content must be a string unless the target is .json or .yaml")
		}
		return []byte(s), nil
	}
}
