package fetch

import (
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tombee/baton/pkg/workflow"
)

// response is one attempt's outcome, body fully read and capped.
type response struct {
	status      int
	headers     map[string]any
	contentType string
	body        []byte
}

type bodyKind int

const (
	bodyEmpty bodyKind = iota
	bodyJSON
	bodyText
	bodyBinary
)

// bind shapes the response into the bound value {status, headers, body}.
// JSON bodies parse to structured values, textual bodies bind as
// strings, and binary bodies are written out as artifacts with a
// reference left in state.
func (h *handler) bind(resp *response, blk *workflow.Block, wc *workflow.Context) (map[string]any, []workflow.Artifact, error) {
	value := map[string]any{
		"status":  resp.status,
		"headers": resp.headers,
	}

	switch classify(resp.contentType, resp.body) {
	case bodyEmpty:
		value["body"] = nil

	case bodyJSON:
		var parsed any
		if err := json.Unmarshal(resp.body, &parsed); err != nil {
			// Advertised JSON that does not parse binds raw.
			value["body"] = string(resp.body)
		} else {
			value["body"] = parsed
		}

	case bodyText:
		value["body"] = string(resp.body)

	case bodyBinary:
		artifact, err := h.storeArtifact(resp, blk, wc)
		if err != nil {
			return nil, nil, err
		}
		value["body"] = map[string]any{
			"artifactId": artifact.ID,
			"mimeType":   artifact.MimeType,
			"size":       artifact.FileSize,
		}
		return value, []workflow.Artifact{artifact}, nil
	}

	return value, nil, nil
}

// classify decides how to bind a body, preferring the declared media
// type and sniffing only when the server did not declare one.
func classify(contentType string, body []byte) bodyKind {
	if len(body) == 0 {
		return bodyEmpty
	}

	mediaType := contentType
	if parsed, _, err := mime.ParseMediaType(contentType); err == nil {
		mediaType = parsed
	}
	if mediaType == "" {
		mediaType, _, _ = mime.ParseMediaType(http.DetectContentType(body))
	}
	mediaType = strings.ToLower(mediaType)

	switch {
	case mediaType == "application/json",
		mediaType == "text/json",
		strings.HasSuffix(mediaType, "+json"):
		return bodyJSON
	case strings.HasPrefix(mediaType, "text/"),
		mediaType == "application/xml",
		mediaType == "application/javascript",
		mediaType == "application/x-www-form-urlencoded",
		strings.HasSuffix(mediaType, "+xml"):
		return bodyText
	default:
		return bodyBinary
	}
}

// storeArtifact writes a binary body under the artifact directory and
// returns its record for the run's artifact list.
func (h *handler) storeArtifact(resp *response, blk *workflow.Block, wc *workflow.Context) (workflow.Artifact, error) {
	mediaType := resp.contentType
	if parsed, _, err := mime.ParseMediaType(resp.contentType); err == nil && parsed != "" {
		mediaType = parsed
	}
	if mediaType == "" {
		mediaType = "application/octet-stream"
	}

	id := workflow.NewID()
	if err := os.MkdirAll(h.artifactDir, 0o755); err != nil {
		return workflow.Artifact{}, fmt.Errorf("create artifact dir: %w", err)
	}

	path := filepath.Join(h.artifactDir, id+extensionFor(mediaType))
	if err := os.WriteFile(path, resp.body, 0o644); err != nil {
		return workflow.Artifact{}, fmt.Errorf("write artifact: %w", err)
	}

	name := blk.Name
	if name == "" {
		name = blk.ID
	}

	return workflow.Artifact{
		ID:         id,
		RunID:      wc.Run.ID,
		WorkflowID: wc.Run.WorkflowID,
		Type:       artifactTypeFor(mediaType),
		Name:       name + " response",
		FilePath:   path,
		FileSize:   int64(len(resp.body)),
		MimeType:   mediaType,
		Source:     string(workflow.BlockFetch),
		BlockID:    blk.ID,
		CreatedAt:  time.Now().UTC(),
	}, nil
}

func artifactTypeFor(mediaType string) workflow.ArtifactType {
	switch {
	case strings.HasPrefix(mediaType, "image/"):
		return workflow.ArtifactImage
	case strings.HasPrefix(mediaType, "video/"):
		return workflow.ArtifactVideo
	case strings.HasPrefix(mediaType, "audio/"):
		return workflow.ArtifactAudio
	case mediaType == "application/pdf":
		return workflow.ArtifactDocument
	default:
		return workflow.ArtifactData
	}
}

func extensionFor(mediaType string) string {
	exts, err := mime.ExtensionsByType(mediaType)
	if err != nil || len(exts) == 0 {
		return ".bin"
	}
	return exts[0]
}
