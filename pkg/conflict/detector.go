package conflict

import (
	"bytes"
	"fmt"
	"os"

	json "github.com/goccy/go-json"

	"github.com/vanderheijden86/boardstate/pkg/model"
)

// Status classifies the on-disk file relative to the last observation.
type Status int

const (
	Unchanged Status = iota
	ChangedBySelf
	ChangedExternally
)

func (s Status) String() string {
	switch s {
	case Unchanged:
		return "unchanged"
	case ChangedBySelf:
		return "changed_by_self"
	case ChangedExternally:
		return "changed_externally"
	default:
		return "unknown"
	}
}

// Detector compares the file on disk against the last fingerprint this
// process observed and attributes changes by instance id.
type Detector struct {
	instanceID string
}

// NewDetector returns a detector for the process identified by instanceID.
func NewDetector(instanceID string) *Detector {
	return &Detector{instanceID: instanceID}
}

// InstanceID returns the id this detector treats as self.
func (d *Detector) InstanceID() string { return d.instanceID }

// Result is the outcome of a Check.
type Result struct {
	Status      Status
	Current     Fingerprint
	Remote      model.Metadata
	HasMetadata bool
}

// Check fingerprints path and compares it with lastKnown. When the content
// differs the stored instance id decides between self and external. Files
// without V2 metadata, or whose metadata cannot be parsed, are always
// external.
func (d *Detector) Check(path string, lastKnown Fingerprint) (Result, error) {
	current, err := Compute(path)
	if err != nil {
		return Result{}, err
	}
	res := Result{Status: Unchanged, Current: current}
	if current.SameContent(lastKnown) {
		return res, nil
	}
	if !current.Exists {
		// deleted by someone else
		res.Status = ChangedExternally
		return res, nil
	}

	meta, ok, err := PeekMetadata(path)
	if err != nil {
		// unreadable or half-written content cannot be ours
		res.Status = ChangedExternally
		return res, nil
	}
	res.Remote = meta
	res.HasMetadata = ok
	if ok && meta.InstanceID != "" && meta.InstanceID == d.instanceID {
		res.Status = ChangedBySelf
	} else {
		res.Status = ChangedExternally
	}
	return res, nil
}

type envelopeHead struct {
	Version  *int            `json:"version"`
	Metadata *model.Metadata `json:"metadata"`
}

// PeekMetadata reads only the metadata block of a stored document. ok is
// false for legacy documents, which carry no metadata.
func PeekMetadata(path string) (model.Metadata, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.Metadata{}, false, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return ParseMetadata(data)
}

// ParseMetadata is PeekMetadata over bytes already in memory.
func ParseMetadata(data []byte) (model.Metadata, bool, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return model.Metadata{}, false, nil
	}
	var head envelopeHead
	if err := json.Unmarshal(data, &head); err != nil {
		return model.Metadata{}, false, fmt.Errorf("failed to parse metadata: %w", err)
	}
	if head.Version == nil || head.Metadata == nil {
		return model.Metadata{}, false, nil
	}
	return *head.Metadata, true, nil
}
