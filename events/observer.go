// Package events defines the structured observer hooks fired by the
// query layer and the session: an interface with one method per
// lifecycle event, a null-object default, and a fan-out composite.
package events

import "time"

// Observer receives session and query lifecycle events.
type Observer interface {
	QueryStart(sql string, args []any)
	QueryEnd(sql string, duration time.Duration, rowsAffected int64, err error)
	FlushStart(pendingOps int)
	FlushEnd(duration time.Duration, err error)
	N1Detected(table string, count int)
	TxBegin()
	TxCommit()
	TxRollback()
}

// NopObserver discards every event; it is the zero-configuration
// default.
type NopObserver struct{}

func (NopObserver) QueryStart(sql string, args []any)                                {}
func (NopObserver) QueryEnd(sql string, duration time.Duration, rowsAffected int64, err error) {}
func (NopObserver) FlushStart(pendingOps int)                                         {}
func (NopObserver) FlushEnd(duration time.Duration, err error)                        {}
func (NopObserver) N1Detected(table string, count int)                                {}
func (NopObserver) TxBegin()                                                          {}
func (NopObserver) TxCommit()                                                         {}
func (NopObserver) TxRollback()                                                       {}

// MultiObserver fans one event out to several observers in order.
type MultiObserver []Observer

func (m MultiObserver) QueryStart(sql string, args []any) {
	for _, o := range m {
		o.QueryStart(sql, args)
	}
}

func (m MultiObserver) QueryEnd(sql string, duration time.Duration, rowsAffected int64, err error) {
	for _, o := range m {
		o.QueryEnd(sql, duration, rowsAffected, err)
	}
}

func (m MultiObserver) FlushStart(pendingOps int) {
	for _, o := range m {
		o.FlushStart(pendingOps)
	}
}

func (m MultiObserver) FlushEnd(duration time.Duration, err error) {
	for _, o := range m {
		o.FlushEnd(duration, err)
	}
}

func (m MultiObserver) N1Detected(table string, count int) {
	for _, o := range m {
		o.N1Detected(table, count)
	}
}

func (m MultiObserver) TxBegin() {
	for _, o := range m {
		o.TxBegin()
	}
}

func (m MultiObserver) TxCommit() {
	for _, o := range m {
		o.TxCommit()
	}
}

func (m MultiObserver) TxRollback() {
	for _, o := range m {
		o.TxRollback()
	}
}
