package regmint

import (
	"encoding/binary"

	"github.com/learn-decentralized-systems/toyqueue"
	"github.com/learn-decentralized-systems/toytlv"
)

// Audit events. After a successful backfill or live allocation the engine
// broadcasts one TLV record to every attached sink, fire-and-forget: a
// failing sink is dropped, never retried, and never blocks the engine.
//
// Record layout: B( T(table) S(strategy byte) N(count, 8 bytes BE) ).

type Event struct {
	Table    string
	Strategy byte
	Count    int64
}

func (ev Event) Record() []byte {
	var count [8]byte
	binary.BigEndian.PutUint64(count[:], uint64(ev.Count))
	return toytlv.Record('B',
		toytlv.Record('T', []byte(ev.Table)),
		toytlv.Record('S', []byte{ev.Strategy}),
		toytlv.Record('N', count[:]),
	)
}

func ParseEvent(rec []byte) (ev Event, err error) {
	body, _ := toytlv.Take('B', rec)
	if body == nil {
		return ev, ErrBadEvent
	}
	table, rest := toytlv.Take('T', body)
	if table == nil {
		return ev, ErrBadEvent
	}
	strategy, rest := toytlv.Take('S', rest)
	if len(strategy) != 1 {
		return ev, ErrBadEvent
	}
	count, _ := toytlv.Take('N', rest)
	if len(count) != 8 {
		return ev, ErrBadEvent
	}
	ev.Table = string(table)
	ev.Strategy = strategy[0]
	ev.Count = int64(binary.BigEndian.Uint64(count))
	return ev, nil
}

// AddSink attaches a drain under a name, replacing (and closing) any
// previous sink of that name.
func (e *Engine) AddSink(name string, sink toyqueue.DrainCloser) {
	e.outlock.Lock()
	old := e.outq[name]
	e.outq[name] = sink
	e.outlock.Unlock()
	if old != nil {
		_ = old.Close()
	}
}

func (e *Engine) RemoveSink(name string) {
	e.outlock.Lock()
	sink := e.outq[name]
	delete(e.outq, name)
	e.outlock.Unlock()
	if sink != nil {
		_ = sink.Close()
	}
}

// AddEventHose attaches a queue sink and returns its feeding end.
func (e *Engine) AddEventHose(name string) toyqueue.FeedCloser {
	queue := toyqueue.RecordQueue{Limit: e.opts.SinkQueueLimit}
	e.AddSink(name, &queue)
	return queue.Blocking()
}

func (e *Engine) emit(strategy byte, table string, count int) {
	recs := toyqueue.Records{Event{Table: table, Strategy: strategy, Count: int64(count)}.Record()}
	e.outlock.Lock()
	for name, sink := range e.outq {
		if err := sink.Drain(recs); err != nil {
			e.log.Warn("dropping audit sink", "sink", name, "err", err)
			delete(e.outq, name)
		}
	}
	e.outlock.Unlock()
}
