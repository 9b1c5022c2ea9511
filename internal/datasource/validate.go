package datasource

import (
	"context"
	"fmt"
	"os"

	"github.com/vanderheijden86/boardstate/pkg/model"
	"github.com/vanderheijden86/boardstate/pkg/persistence"
)

// ValidateSource checks that a source can be read and fills in its counts,
// format version and writer. It sets Valid and ValidationError and also
// returns the failure.
func ValidateSource(ctx context.Context, source *DataSource) error {
	source.Valid = false
	source.ValidationError = ""

	var err error
	switch source.Type {
	case SourceTypeSQLite:
		err = validateSQLite(ctx, source)
	case SourceTypeJSON:
		err = validateJSON(source)
	default:
		err = fmt.Errorf("unknown source type: %s", source.Type)
	}
	if err != nil {
		source.ValidationError = err.Error()
		return err
	}
	source.Valid = true
	return nil
}

func validateJSON(source *DataSource) error {
	data, err := os.ReadFile(source.Path)
	if err != nil {
		return fmt.Errorf("cannot read file: %w", err)
	}
	if len(data) == 0 {
		return fmt.Errorf("file is empty")
	}
	doc, err := persistence.DecodeAny(data)
	if err != nil {
		return fmt.Errorf("not a board document: %w", err)
	}
	if err := doc.Data.Validate(); err != nil {
		return fmt.Errorf("invalid board data: %w", err)
	}
	source.FormatVersion = doc.Version
	source.WriterID = doc.Metadata.InstanceID
	source.BoardCount = len(doc.Data.Boards)
	source.CardCount = len(doc.Data.Cards)
	return nil
}

func validateSQLite(ctx context.Context, source *DataSource) error {
	reader, err := NewSQLiteReader(*source)
	if err != nil {
		return err
	}
	defer reader.Close()

	meta, _, found, err := reader.Metadata(ctx)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("database holds no saved board")
	}
	if meta.FormatVersion != model.CurrentFormatVersion {
		return fmt.Errorf("unsupported format version %d", meta.FormatVersion)
	}
	if source.BoardCount, err = reader.Count(ctx, "boards"); err != nil {
		return err
	}
	if source.CardCount, err = reader.Count(ctx, "cards"); err != nil {
		return err
	}
	source.FormatVersion = meta.FormatVersion
	source.WriterID = meta.InstanceID
	return nil
}
