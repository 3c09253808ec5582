package regmint

import "strings"

// Tables that opted out of central tracking but still need local uniqueness
// for drive identifiers are probed against this fixed location when the
// descriptor carries no table name of its own.
const (
	DocumentDriveTable  = "documents"
	DocumentDriveColumn = "drive_uuid"
)

// TableDescriptor tells the engine where identifiers live in one table.
// It is caller-supplied configuration, never persisted by itself (the
// relevant fields are copied into every registry entry at issuance).
//
// A non-empty Vertical selects the composite-key backfill strategy: rows
// sharing identical values across the Vertical columns form one group and
// share one identifier. An empty Vertical means one identifier per row.
type TableDescriptor struct {
	Table    string   `json:"table_name"`
	IDColumn string   `json:"id_column_name,omitempty"` // defaults to "id"
	Vertical []string `json:"table_vertical,omitempty"`

	// TrackingDisabled skips the central registry entirely: no registry
	// probe, no registry entry. Uniqueness against the target table is
	// still enforced.
	TrackingDisabled bool `json:"tracking_disabled,omitempty"`

	Namespace        string `json:"external_namespace_tag,omitempty"`
	DocumentDrive    bool   `json:"document_drive,omitempty"`
	ExternallyMapped bool   `json:"externally_mapped,omitempty"`
}

func (d *TableDescriptor) SetDefaults() {
	if d.IDColumn == "" {
		d.IDColumn = "id"
	}
}

// Validate checks the descriptor for allocation use. Backfill additionally
// requires a table name, see ValidateForBackfill.
func (d *TableDescriptor) Validate() error {
	if d.Table == "" && !d.DocumentDrive {
		return ErrBadDescriptor
	}
	if badName(d.Table) || badName(d.IDColumn) {
		return ErrBadDescriptor
	}
	for _, col := range d.Vertical {
		if col == "" || badName(col) {
			return ErrBadDescriptor
		}
	}
	return nil
}

func (d *TableDescriptor) ValidateForBackfill() error {
	if d.Table == "" {
		return ErrBadDescriptor
	}
	return d.Validate()
}

// probeTarget is where local (non-registry) uniqueness is checked.
func (d *TableDescriptor) probeTarget() (table, column string) {
	if d.DocumentDrive && d.Table == "" {
		return DocumentDriveTable, DocumentDriveColumn
	}
	return d.Table, d.IDColumn
}

// Table and column names end up inside keyspace keys, which use NUL as the
// separator.
func badName(name string) bool {
	return strings.ContainsRune(name, 0)
}
