package events

import (
	"errors"
	"testing"
	"time"
)

type recording struct {
	calls []string
}

func (r *recording) QueryStart(sql string, args []any) { r.calls = append(r.calls, "start:"+sql) }
func (r *recording) QueryEnd(sql string, d time.Duration, rows int64, err error) {
	r.calls = append(r.calls, "end:"+sql)
}
func (r *recording) FlushStart(n int)                      { r.calls = append(r.calls, "flush.start") }
func (r *recording) FlushEnd(d time.Duration, err error)   { r.calls = append(r.calls, "flush.end") }
func (r *recording) N1Detected(table string, count int)    { r.calls = append(r.calls, "n1:"+table) }
func (r *recording) TxBegin()                              { r.calls = append(r.calls, "tx.begin") }
func (r *recording) TxCommit()                             { r.calls = append(r.calls, "tx.commit") }
func (r *recording) TxRollback()                           { r.calls = append(r.calls, "tx.rollback") }

func TestMultiObserverFansOutInOrder(t *testing.T) {
	a := &recording{}
	b := &recording{}
	m := MultiObserver{a, b}

	m.QueryStart("SELECT 1", nil)
	m.QueryEnd("SELECT 1", time.Millisecond, 1, nil)
	m.FlushStart(2)
	m.FlushEnd(time.Millisecond, errors.New("x"))
	m.N1Detected("users", 10)
	m.TxBegin()
	m.TxCommit()
	m.TxRollback()

	want := []string{"start:SELECT 1", "end:SELECT 1", "flush.start", "flush.end", "n1:users", "tx.begin", "tx.commit", "tx.rollback"}
	for _, rec := range []*recording{a, b} {
		if len(rec.calls) != len(want) {
			t.Fatalf("calls = %v", rec.calls)
		}
		for i := range want {
			if rec.calls[i] != want[i] {
				t.Fatalf("call %d = %q, want %q", i, rec.calls[i], want[i])
			}
		}
	}
}

func TestNopObserverIsSafe(t *testing.T) {
	var o Observer = NopObserver{}
	o.QueryStart("", nil)
	o.QueryEnd("", 0, 0, nil)
	o.FlushStart(0)
	o.FlushEnd(0, nil)
	o.N1Detected("", 0)
	o.TxBegin()
	o.TxCommit()
	o.TxRollback()
}
