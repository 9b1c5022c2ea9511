// Package persistence stores board snapshots on disk. The primary format is
// a versioned JSON envelope written atomically; legacy unversioned files are
// migrated on first load. A SQLite backend is available as an alternative.
package persistence

import (
	"bytes"
	"fmt"

	json "github.com/goccy/go-json"

	"github.com/vanderheijden86/boardstate/pkg/model"
)

// Known document formats.
const (
	FormatV1 = 1 // collections at the top level, no envelope
	FormatV2 = 2 // {version, metadata, data}
)

// Document is the V2 on-disk envelope.
type Document struct {
	Version  int            `json:"version"`
	Metadata model.Metadata `json:"metadata"`
	Data     model.Snapshot `json:"data"`
}

// DetectVersion inspects raw bytes for a top-level "version" field. Its
// absence means the legacy V1 layout.
func DetectVersion(data []byte) (int, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return 0, fmt.Errorf("not a JSON object: %w", err)
	}
	raw, ok := top["version"]
	if !ok {
		return FormatV1, nil
	}
	var v int
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0, fmt.Errorf("invalid version field: %w", err)
	}
	return v, nil
}

// EncodeDocument renders snap and meta as an indented V2 document.
func EncodeDocument(snap model.Snapshot, meta model.Metadata) ([]byte, error) {
	snap.Normalize()
	doc := Document{Version: FormatV2, Metadata: meta, Data: snap}
	doc.Metadata.FormatVersion = FormatV2
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, &SerializationError{Err: err}
	}
	return append(data, '\n'), nil
}

// DecodeDocument parses a V2 document and validates its envelope.
func DecodeDocument(data []byte) (Document, error) {
	var doc Document
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&doc); err != nil {
		return Document{}, err
	}
	if doc.Version != FormatV2 {
		return Document{}, fmt.Errorf("unsupported document version %d", doc.Version)
	}
	if doc.Metadata.FormatVersion != FormatV2 {
		return Document{}, fmt.Errorf("metadata format_version %d does not match document version", doc.Metadata.FormatVersion)
	}
	doc.Data.Normalize()
	return doc, nil
}

// decodeV1 parses the legacy layout where collections sit at the top level.
func decodeV1(data []byte) (model.Snapshot, error) {
	var snap model.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return model.Snapshot{}, err
	}
	snap.Normalize()
	return snap, nil
}

// DecodeAny parses a document of either format without migrating it. A V1
// document comes back with Version FormatV1 and zero Metadata.
func DecodeAny(data []byte) (Document, error) {
	version, err := DetectVersion(data)
	if err != nil {
		return Document{}, err
	}
	switch version {
	case FormatV1:
		snap, err := decodeV1(data)
		if err != nil {
			return Document{}, err
		}
		return Document{Version: FormatV1, Data: snap}, nil
	case FormatV2:
		return DecodeDocument(data)
	default:
		return Document{}, fmt.Errorf("unsupported version %d", version)
	}
}
