package regmint

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/regmint/regmint/uid"
)

func seedRows(t *testing.T, e *Engine, table string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		require.Nil(t, e.PutRow(table, fmt.Sprintf("row%03d", i),
			map[string]string{"payload": fmt.Sprintf("p%d", i)}))
	}
}

func collectIDs(t *testing.T, e *Engine, table, idcol string) map[string]string {
	t.Helper()
	ids := map[string]string{}
	err := ScanTable(e.db, table, func(row string, cols map[string]string) error {
		ids[row] = cols[idcol]
		return nil
	})
	require.Nil(t, err)
	return ids
}

func TestBackfillRowKeyed(t *testing.T) {
	// MaxBatch 2 over 5 rows forces ceil(5/2) = 3 allocation rounds
	e := testEngine(t, Options{MaxBatch: 2})
	seedRows(t, e, "patients", 5)

	desc := TableDescriptor{Table: "patients"}
	count, err := e.CreateMissingIdentifiers(context.Background(), desc)
	assert.Nil(t, err)
	assert.Equal(t, 5, count)

	seen := map[string]bool{}
	for row, value := range collectIDs(t, e, "patients", "id") {
		u, err := uid.ParseUID(value)
		require.Nil(t, err, "row %s", row)
		assert.False(t, u.IsZero())
		assert.False(t, seen[value], "duplicate id %s", value)
		seen[value] = true

		entry, err := e.RegistryEntry(u)
		assert.Nil(t, err)
		require.NotNil(t, entry)
		assert.Equal(t, "patients", entry.Table)
		assert.Equal(t, "id", entry.IDColumn)
	}
	assert.Len(t, seen, 5)
}

func TestBackfillIdempotent(t *testing.T) {
	e := testEngine(t, Options{})
	seedRows(t, e, "patients", 3)
	desc := TableDescriptor{Table: "patients"}

	count, err := e.CreateMissingIdentifiers(context.Background(), desc)
	require.Nil(t, err)
	require.Equal(t, 3, count)
	before := collectIDs(t, e, "patients", "id")

	count, err = e.CreateMissingIdentifiers(context.Background(), desc)
	assert.Nil(t, err)
	assert.Equal(t, 0, count)
	assert.Equal(t, before, collectIDs(t, e, "patients", "id"))
}

func TestBackfillSentinelEquivalence(t *testing.T) {
	e := testEngine(t, Options{})
	require.Nil(t, e.PutRow("t", "absent", map[string]string{"v": "1"}))
	require.Nil(t, e.PutRow("t", "empty", map[string]string{"v": "2", "id": ""}))
	require.Nil(t, e.PutRow("t", "zero", map[string]string{"v": "3", "id": uid.Zero.String()}))
	assigned := "0190163d-8694-7af0-8000-7b2d31a5b2f0"
	require.Nil(t, e.PutRow("t", "done", map[string]string{"v": "4", "id": assigned}))

	count, err := e.CreateMissingIdentifiers(context.Background(), TableDescriptor{Table: "t"})
	assert.Nil(t, err)
	assert.Equal(t, 3, count)

	ids := collectIDs(t, e, "t", "id")
	assert.Equal(t, assigned, ids["done"])
	for _, row := range []string{"absent", "empty", "zero"} {
		u, err := uid.ParseUID(ids[row])
		require.Nil(t, err, row)
		assert.False(t, u.IsZero(), row)
	}
}

func TestBackfillTrackingDisabled(t *testing.T) {
	e := testEngine(t, Options{})
	seedRows(t, e, "docs", 3)

	desc := TableDescriptor{Table: "docs", TrackingDisabled: true}
	count, err := e.CreateMissingIdentifiers(context.Background(), desc)
	assert.Nil(t, err)
	assert.Equal(t, 3, count)

	for _, value := range collectIDs(t, e, "docs", "id") {
		u, err := uid.ParseUID(value)
		require.Nil(t, err)
		entry, err := e.RegistryEntry(u)
		assert.Nil(t, err)
		assert.Nil(t, entry, "no registry entry for untracked table")
	}
}

func TestBackfillVerticalWholeGroups(t *testing.T) {
	e := testEngine(t, Options{})
	// group (X=1, Y=2): three rows, none labeled
	for i, row := range []string{"a", "b", "c"} {
		require.Nil(t, e.PutRow("vert", row,
			map[string]string{"X": "1", "Y": "2", "seq": fmt.Sprint(i)}))
	}
	// second group (X=9, Y=2): one row
	require.Nil(t, e.PutRow("vert", "d", map[string]string{"X": "9", "Y": "2"}))

	desc := TableDescriptor{Table: "vert", Vertical: []string{"X", "Y"}}
	count, err := e.CreateMissingIdentifiers(context.Background(), desc)
	assert.Nil(t, err)
	assert.Equal(t, 2, count) // two groups seeded

	ids := collectIDs(t, e, "vert", "id")
	assert.Equal(t, ids["a"], ids["b"])
	assert.Equal(t, ids["b"], ids["c"])
	assert.NotEqual(t, ids["a"], ids["d"])

	for _, value := range []string{ids["a"], ids["d"]} {
		u, err := uid.ParseUID(value)
		require.Nil(t, err)
		entry, err := e.RegistryEntry(u)
		assert.Nil(t, err)
		require.NotNil(t, entry)
		assert.Equal(t, []string{"X", "Y"}, entry.Vertical)
	}
}

func TestBackfillVerticalPartialGroup(t *testing.T) {
	e := testEngine(t, Options{})
	var g uid.Generator
	existing := g.Batch(1)[0]

	require.Nil(t, e.PutRow("vert", "a", map[string]string{"X": "1", "Y": "2", "id": existing.String()}))
	require.Nil(t, e.PutRow("vert", "b", map[string]string{"X": "1", "Y": "2", "id": existing.String()}))
	require.Nil(t, e.PutRow("vert", "c", map[string]string{"X": "1", "Y": "2"}))

	desc := TableDescriptor{Table: "vert", Vertical: []string{"X", "Y"}}
	count, err := e.CreateMissingIdentifiers(context.Background(), desc)
	assert.Nil(t, err)
	assert.Equal(t, 1, count) // one group repaired

	ids := collectIDs(t, e, "vert", "id")
	assert.Equal(t, existing.String(), ids["c"])

	// repairing copies the existing identifier, it never mints a new entry
	entry, err := e.RegistryEntry(existing)
	assert.Nil(t, err)
	assert.Nil(t, entry)
}

func TestBackfillVerticalMixed(t *testing.T) {
	e := testEngine(t, Options{MaxBatch: 1})
	var g uid.Generator
	existing := g.Batch(1)[0]

	// partial group, whole-missing group, and an untouched labeled group
	require.Nil(t, e.PutRow("vert", "a", map[string]string{"X": "1", "id": existing.String()}))
	require.Nil(t, e.PutRow("vert", "b", map[string]string{"X": "1"}))
	require.Nil(t, e.PutRow("vert", "c", map[string]string{"X": "2"}))
	require.Nil(t, e.PutRow("vert", "d", map[string]string{"X": "2"}))
	done := g.Batch(1)[0]
	require.Nil(t, e.PutRow("vert", "e", map[string]string{"X": "3", "id": done.String()}))

	desc := TableDescriptor{Table: "vert", Vertical: []string{"X"}}
	count, err := e.CreateMissingIdentifiers(context.Background(), desc)
	assert.Nil(t, err)
	assert.Equal(t, 2, count) // group X=2 seeded, group X=1 repaired

	ids := collectIDs(t, e, "vert", "id")
	assert.Equal(t, existing.String(), ids["b"])
	assert.Equal(t, ids["c"], ids["d"])
	assert.Equal(t, done.String(), ids["e"])

	u, err := uid.ParseUID(ids["c"])
	require.Nil(t, err)
	entry, err := e.RegistryEntry(u)
	assert.Nil(t, err)
	assert.NotNil(t, entry)
}

func TestBackfillEmptyTable(t *testing.T) {
	e := testEngine(t, Options{})
	count, err := e.CreateMissingIdentifiers(context.Background(), TableDescriptor{Table: "nothing"})
	assert.Nil(t, err)
	assert.Equal(t, 0, count)
}

func TestBackfillBadDescriptor(t *testing.T) {
	e := testEngine(t, Options{})
	_, err := e.CreateMissingIdentifiers(context.Background(), TableDescriptor{})
	assert.Equal(t, ErrBadDescriptor, err)
}

func TestBackfillCancelled(t *testing.T) {
	e := testEngine(t, Options{})
	seedRows(t, e, "t", 2)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := e.CreateMissingIdentifiers(ctx, TableDescriptor{Table: "t"})
	assert.Equal(t, context.Canceled, err)

	// nothing may have been committed
	for _, value := range collectIDs(t, e, "t", "id") {
		assert.Equal(t, "", value)
	}
}

func TestBackfillClosedEngine(t *testing.T) {
	e, err := Open(t.TempDir(), Options{})
	require.Nil(t, err)
	require.Nil(t, e.Close())
	_, err = e.CreateMissingIdentifiers(context.Background(), TableDescriptor{Table: "t"})
	assert.Equal(t, ErrClosed, err)
}
