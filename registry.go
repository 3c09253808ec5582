package regmint

import (
	"encoding/binary"
	"encoding/json"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/learn-decentralized-systems/toytlv"
	"github.com/pkg/errors"

	"github.com/regmint/regmint/uid"
)

// Entry is one registry row: the permanent record of a single issuance.
// Entries are written exactly once and never mutated or deleted.
type Entry struct {
	UID              uid.UID
	Table            string
	IDColumn         string
	Vertical         []string
	Namespace        string
	DocumentDrive    bool
	ExternallyMapped bool
	CreatedAt        time.Time
}

// Registry records every identifier ever issued. It is an injected
// collaborator of the engine, never package state; writes go into the
// caller's batch so they commit (or roll back) with the rest of the
// invocation.
type Registry interface {
	// RecordBatch inserts one entry per identifier. A key that already
	// exists is ErrConstraintViolation: the registry primary key is the
	// uniqueness backstop of last resort.
	RecordBatch(rw ReadWriter, ids []uid.UID, desc TableDescriptor, now time.Time) error
	Has(r pebble.Reader, u uid.UID) (bool, error)
	Get(r pebble.Reader, u uid.UID) (*Entry, error)
}

func RKey(u uid.UID) (key []byte) {
	key = append(key, 'R')
	key = append(key, u[:]...)
	return
}

const (
	flagDocumentDrive    = 1 << 0
	flagExternallyMapped = 1 << 1
)

func encodeEntry(desc TableDescriptor, now time.Time) []byte {
	var vertical []byte
	if len(desc.Vertical) > 0 {
		vertical, _ = json.Marshal(desc.Vertical)
	}
	var flags byte
	if desc.DocumentDrive {
		flags |= flagDocumentDrive
	}
	if desc.ExternallyMapped {
		flags |= flagExternallyMapped
	}
	var at [8]byte
	binary.BigEndian.PutUint64(at[:], uint64(now.UnixNano()))

	return toytlv.Concat(
		toytlv.Record('T', []byte(desc.Table)),
		toytlv.Record('C', []byte(desc.IDColumn)),
		toytlv.Record('V', vertical),
		toytlv.Record('N', []byte(desc.Namespace)),
		toytlv.Record('F', []byte{flags}),
		toytlv.Record('A', at[:]),
	)
}

func decodeEntry(u uid.UID, data []byte) (*Entry, error) {
	entry := &Entry{UID: u}
	rest := data
	for len(rest) > 0 {
		lit, body, r := toytlv.TakeAny(rest)
		switch lit {
		case 'T':
			entry.Table = string(body)
		case 'C':
			entry.IDColumn = string(body)
		case 'V':
			if len(body) > 0 {
				if err := json.Unmarshal(body, &entry.Vertical); err != nil {
					return nil, ErrBadRecord
				}
			}
		case 'N':
			entry.Namespace = string(body)
		case 'F':
			if len(body) != 1 {
				return nil, ErrBadRecord
			}
			entry.DocumentDrive = body[0]&flagDocumentDrive != 0
			entry.ExternallyMapped = body[0]&flagExternallyMapped != 0
		case 'A':
			if len(body) != 8 {
				return nil, ErrBadRecord
			}
			entry.CreatedAt = time.Unix(0, int64(binary.BigEndian.Uint64(body)))
		default:
			return nil, ErrBadRecord
		}
		rest = r
	}
	if entry.Table == "" && !entry.DocumentDrive {
		return nil, ErrBadRecord
	}
	return entry, nil
}

type pebbleRegistry struct {
	wo *pebble.WriteOptions
}

func NewRegistry(wo *pebble.WriteOptions) Registry {
	return &pebbleRegistry{wo: wo}
}

func (pr *pebbleRegistry) RecordBatch(rw ReadWriter, ids []uid.UID, desc TableDescriptor, now time.Time) error {
	value := encodeEntry(desc, now)
	for _, u := range ids {
		taken, err := pr.Has(rw, u)
		if err != nil {
			return err
		}
		if taken {
			return ErrConstraintViolation
		}
		if err := rw.Set(RKey(u), value, pr.wo); err != nil {
			return errors.Wrap(err, "regmint: registry insert")
		}
	}
	return nil
}

func (pr *pebbleRegistry) Has(r pebble.Reader, u uid.UID) (bool, error) {
	_, closer, err := r.Get(RKey(u))
	if err == pebble.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(err, "regmint: registry read")
	}
	_ = closer.Close()
	return true, nil
}

func (pr *pebbleRegistry) Get(r pebble.Reader, u uid.UID) (*Entry, error) {
	value, closer, err := r.Get(RKey(u))
	if err == pebble.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "regmint: registry read")
	}
	entry, err := decodeEntry(u, value)
	_ = closer.Close()
	return entry, err
}

// RegistryEntry reads one issuance record back, nil when unknown.
func (e *Engine) RegistryEntry(u uid.UID) (*Entry, error) {
	if e.db == nil {
		return nil, ErrClosed
	}
	return e.reg.Get(e.db, u)
}
