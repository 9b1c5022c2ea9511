package model

import (
	"fmt"
	"time"
)

// CurrentFormatVersion is the on-disk format written by this package.
const CurrentFormatVersion = 2

// Metadata describes who wrote a stored document and when.
type Metadata struct {
	FormatVersion int       `json:"format_version"`
	InstanceID    string    `json:"instance_id"`
	SavedAt       time.Time `json:"saved_at"`
}

// NewMetadata stamps the current format version and time for instanceID.
func NewMetadata(instanceID string) Metadata {
	return Metadata{
		FormatVersion: CurrentFormatVersion,
		InstanceID:    instanceID,
		SavedAt:       Now(),
	}
}

// Validate checks that metadata was written by a compatible writer.
func (m Metadata) Validate() error {
	if m.FormatVersion != CurrentFormatVersion {
		return fmt.Errorf("unsupported format version %d", m.FormatVersion)
	}
	if m.InstanceID == "" {
		return fmt.Errorf("instance ID cannot be empty")
	}
	return nil
}
