package regmint

import (
	"sort"

	"github.com/cockroachdb/pebble"
	"github.com/learn-decentralized-systems/toytlv"
	"github.com/pkg/errors"

	"github.com/regmint/regmint/uid"
)

// Keyspace layout, one letter per keyspace (ToyKV convention):
//
//	T <table> \0 <rowkey>  ->  row record (C fields)
//	R <uid:16>             ->  registry entry
func TKey(table, row string) (key []byte) {
	key = append(key, 'T')
	key = append(key, table...)
	key = append(key, 0)
	key = append(key, row...)
	return
}

// TableBounds returns the [lo, hi) iterator bounds covering one table.
func TableBounds(table string) (lo, hi []byte) {
	lo = append(lo, 'T')
	lo = append(lo, table...)
	lo = append(lo, 0)
	hi = append(hi, 'T')
	hi = append(hi, table...)
	hi = append(hi, 1)
	return
}

func tKeyRow(key []byte, table string) string {
	return string(key[len(table)+2:])
}

// A row is a sequence of C records, one per column:
// C( N(column-name) V(column-value) ). Columns are sorted by name so the
// encoding is deterministic.
func encodeRow(cols map[string]string) []byte {
	names := make([]string, 0, len(cols))
	for name := range cols {
		names = append(names, name)
	}
	sort.Strings(names)

	var ret []byte
	for _, name := range names {
		ret = append(ret, toytlv.Record('C',
			toytlv.Record('N', []byte(name)),
			toytlv.Record('V', []byte(cols[name])),
		)...)
	}
	return ret
}

func decodeRow(data []byte) (map[string]string, error) {
	cols := make(map[string]string)
	rest := data
	for len(rest) > 0 {
		lit, body, r := toytlv.TakeAny(rest)
		if lit != 'C' {
			return nil, ErrBadRecord
		}
		name, vrest := toytlv.Take('N', body)
		if name == nil {
			return nil, ErrBadRecord
		}
		value, _ := toytlv.Take('V', vrest)
		if value == nil {
			return nil, ErrBadRecord
		}
		cols[string(name)] = string(value)
		rest = r
	}
	return cols, nil
}

// PutRow writes (or replaces) one row. It is the seeding path for callers
// that own the table data; the engine itself only ever touches the
// identifier column.
func (e *Engine) PutRow(table, row string, cols map[string]string) error {
	if e.db == nil {
		return ErrClosed
	}
	if table == "" || badName(table) {
		return ErrBadDescriptor
	}
	err := e.db.Set(TKey(table, row), encodeRow(cols), e.opts.PebbleWriteOptions)
	return errors.Wrap(err, "regmint: put row")
}

// GetRow returns nil when the row does not exist.
func (e *Engine) GetRow(table, row string) (map[string]string, error) {
	if e.db == nil {
		return nil, ErrClosed
	}
	return readRow(e.db, table, row)
}

func (e *Engine) DeleteRow(table, row string) error {
	if e.db == nil {
		return ErrClosed
	}
	err := e.db.Delete(TKey(table, row), e.opts.PebbleWriteOptions)
	return errors.Wrap(err, "regmint: delete row")
}

func readRow(r pebble.Reader, table, row string) (map[string]string, error) {
	value, closer, err := r.Get(TKey(table, row))
	if err == pebble.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "regmint: read row")
	}
	cols, err := decodeRow(value)
	_ = closer.Close()
	return cols, err
}

// errStopScan stops ScanTable early without reporting a failure.
var errStopScan = errors.New("stop scan")

// ScanTable walks one table in row-key order.
func ScanTable(r pebble.Reader, table string, fn func(row string, cols map[string]string) error) error {
	lo, hi := TableBounds(table)
	it, err := r.NewIter(&pebble.IterOptions{
		LowerBound: lo,
		UpperBound: hi,
	})
	if err != nil {
		return errors.Wrap(err, "regmint: scan "+table)
	}
	defer it.Close()

	for it.First(); it.Valid(); it.Next() {
		cols, err := decodeRow(it.Value())
		if err != nil {
			return err
		}
		if err := fn(tKeyRow(it.Key(), table), cols); err != nil {
			if err == errStopScan {
				return nil
			}
			return err
		}
	}
	return errors.Wrap(it.Error(), "regmint: scan "+table)
}

// identifierMissing is the single definition of "this row has no
// identifier": the cell is absent, the empty string, or the all-zero
// sentinel. Every counting, selection and labeled-group check goes
// through here.
func identifierMissing(cols map[string]string, idcol string) bool {
	value, ok := cols[idcol]
	if !ok || value == "" {
		return true
	}
	u, err := uid.ParseUID(value)
	return err == nil && u.IsZero()
}

// currentID returns the row's valid assigned identifier, if any.
func currentID(cols map[string]string, idcol string) (uid.UID, bool) {
	value, ok := cols[idcol]
	if !ok {
		return uid.Zero, false
	}
	u, err := uid.ParseUID(value)
	if err != nil || u.IsZero() {
		return uid.Zero, false
	}
	return u, true
}
