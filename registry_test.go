package regmint

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/regmint/regmint/uid"
)

func TestEntryCodec(t *testing.T) {
	desc := TableDescriptor{
		Table:            "immunizations",
		IDColumn:         "uuid",
		Vertical:         []string{"patient", "visit"},
		Namespace:        "couch",
		DocumentDrive:    true,
		ExternallyMapped: true,
	}
	now := time.Unix(1700000000, 123456789)
	var g uid.Generator
	u := g.Batch(1)[0]

	entry, err := decodeEntry(u, encodeEntry(desc, now))
	assert.Nil(t, err)
	assert.Equal(t, u, entry.UID)
	assert.Equal(t, desc.Table, entry.Table)
	assert.Equal(t, desc.IDColumn, entry.IDColumn)
	assert.Equal(t, desc.Vertical, entry.Vertical)
	assert.Equal(t, desc.Namespace, entry.Namespace)
	assert.True(t, entry.DocumentDrive)
	assert.True(t, entry.ExternallyMapped)
	assert.True(t, entry.CreatedAt.Equal(now))
}

func TestEntryCodecMinimal(t *testing.T) {
	desc := TableDescriptor{Table: "patients", IDColumn: "id"}
	entry, err := decodeEntry(uid.Zero, encodeEntry(desc, time.Now()))
	assert.Nil(t, err)
	assert.Nil(t, entry.Vertical)
	assert.Equal(t, "", entry.Namespace)
	assert.False(t, entry.DocumentDrive)

	_, err = decodeEntry(uid.Zero, []byte("junk that is not tlv"))
	assert.NotNil(t, err)
}

func TestRecordBatchAndGet(t *testing.T) {
	e := testEngine(t, Options{})
	desc := TableDescriptor{Table: "patients", IDColumn: "id"}

	var g uid.Generator
	ids := g.Batch(3)
	now := time.Now()

	b := e.db.NewIndexedBatch()
	require.Nil(t, e.reg.RecordBatch(b, ids, desc, now))
	require.Nil(t, b.Commit(e.opts.PebbleWriteOptions))

	for _, u := range ids {
		has, err := e.reg.Has(e.db, u)
		assert.Nil(t, err)
		assert.True(t, has)

		entry, err := e.RegistryEntry(u)
		assert.Nil(t, err)
		require.NotNil(t, entry)
		assert.Equal(t, "patients", entry.Table)
	}

	unknown := g.Batch(1)[0]
	has, err := e.reg.Has(e.db, unknown)
	assert.Nil(t, err)
	assert.False(t, has)

	entry, err := e.RegistryEntry(unknown)
	assert.Nil(t, err)
	assert.Nil(t, entry)
}

func TestRecordBatchConstraint(t *testing.T) {
	e := testEngine(t, Options{})
	desc := TableDescriptor{Table: "patients", IDColumn: "id"}

	var g uid.Generator
	ids := g.Batch(2)

	b := e.db.NewIndexedBatch()
	require.Nil(t, e.reg.RecordBatch(b, ids, desc, time.Now()))
	require.Nil(t, b.Commit(e.opts.PebbleWriteOptions))

	// a second insert of the same identifier hits the primary-key backstop
	b = e.db.NewIndexedBatch()
	err := e.reg.RecordBatch(b, ids[1:], desc, time.Now())
	assert.Equal(t, ErrConstraintViolation, err)
	_ = b.Close()
}
