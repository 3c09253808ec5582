package regmint

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEngine(t *testing.T, opts Options) *Engine {
	t.Helper()
	e, err := Open(t.TempDir(), opts)
	require.Nil(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func TestOpenClose(t *testing.T) {
	e, err := Open(t.TempDir(), Options{})
	assert.Nil(t, err)
	assert.Nil(t, e.Close())
	assert.Equal(t, ErrClosed, e.Close())
}

func TestRowRoundTrip(t *testing.T) {
	e := testEngine(t, Options{})

	cols := map[string]string{"name": "insulin", "dose": "10", "note": "am\x00pm"}
	assert.Nil(t, e.PutRow("prescriptions", "42", cols))

	got, err := e.GetRow("prescriptions", "42")
	assert.Nil(t, err)
	assert.Equal(t, cols, got)

	missing, err := e.GetRow("prescriptions", "43")
	assert.Nil(t, err)
	assert.Nil(t, missing)

	assert.Nil(t, e.DeleteRow("prescriptions", "42"))
	gone, err := e.GetRow("prescriptions", "42")
	assert.Nil(t, err)
	assert.Nil(t, gone)
}

func TestScanTableOrdered(t *testing.T) {
	e := testEngine(t, Options{})
	for _, row := range []string{"c", "a", "b"} {
		require.Nil(t, e.PutRow("t", row, map[string]string{"v": row}))
	}
	// a second table must not leak into the scan
	require.Nil(t, e.PutRow("t2", "z", map[string]string{"v": "z"}))

	var rows []string
	err := ScanTable(e.db, "t", func(row string, cols map[string]string) error {
		rows = append(rows, row)
		return nil
	})
	assert.Nil(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, rows)
}

func TestDescriptorDefaultsAndValidation(t *testing.T) {
	d := TableDescriptor{Table: "patients"}
	d.SetDefaults()
	assert.Equal(t, "id", d.IDColumn)

	bad := TableDescriptor{}
	bad.SetDefaults()
	assert.Equal(t, ErrBadDescriptor, bad.Validate())
	assert.Equal(t, ErrBadDescriptor, bad.ValidateForBackfill())

	// document-drive descriptors may omit the table for allocation...
	drive := TableDescriptor{DocumentDrive: true, TrackingDisabled: true}
	drive.SetDefaults()
	assert.Nil(t, drive.Validate())
	// ...but not for backfill
	assert.Equal(t, ErrBadDescriptor, drive.ValidateForBackfill())

	table, column := drive.probeTarget()
	assert.Equal(t, DocumentDriveTable, table)
	assert.Equal(t, DocumentDriveColumn, column)

	nul := TableDescriptor{Table: "bad\x00name"}
	nul.SetDefaults()
	assert.Equal(t, ErrBadDescriptor, nul.Validate())
}

func TestIdentifierMissingPredicate(t *testing.T) {
	valid := "0190163d-8694-7af0-8000-7b2d31a5b2f0"
	cases := []struct {
		cols    map[string]string
		missing bool
	}{
		{map[string]string{}, true},
		{map[string]string{"id": ""}, true},
		{map[string]string{"id": "00000000-0000-0000-0000-000000000000"}, true},
		{map[string]string{"id": valid}, false},
		{map[string]string{"id": "garbage"}, false}, // malformed is not "missing"
	}
	for _, c := range cases {
		assert.Equal(t, c.missing, identifierMissing(c.cols, "id"), "%v", c.cols)
	}
}
