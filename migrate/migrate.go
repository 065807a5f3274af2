// Package migrate implements the versioned migration runner: named
// Up/Down steps over the cancellable conn.Connection/cx.Cx contract,
// recorded in a checksummed tracking table.
package migrate

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"time"

	"github.com/sqlmodel/sqlmodel/conn"
	"github.com/sqlmodel/sqlmodel/cx"
	"github.com/sqlmodel/sqlmodel/dberr"
	"github.com/sqlmodel/sqlmodel/events"
	"github.com/sqlmodel/sqlmodel/query"
	"github.com/sqlmodel/sqlmodel/sqlval"
)

// Migration is one versioned schema change: an id in "YYYYMMDDHHMMSS"
// form (optionally suffixed for same-second collisions, see
// NextVersion), a human description, and the forward/rollback steps.
// Up/Down receive the transaction-scoped connection the Runner opened,
// so migration bodies issue statements through the ordinary
// conn.Connection contract rather than a separate schema-builder DSL.
type Migration struct {
	ID          string
	Description string
	Up          func(c cx.Cx, tx conn.Connection) cx.Outcome[struct{}]
	Down        func(c cx.Cx, tx conn.Connection) cx.Outcome[struct{}]
	upSQL       string // raw source of Up, for the checksum persisted alongside ID
}

// NewSQLMigration builds a Migration whose Up/Down each run one SQL
// statement (the common case) while still checksumming the exact
// bytes of the up statement.
func NewSQLMigration(id, description, upSQL, downSQL string) Migration {
	return Migration{
		ID:          id,
		Description: description,
		Up: func(c cx.Cx, tx conn.Connection) cx.Outcome[struct{}] {
			return execStruct(c, tx, upSQL)
		},
		Down: func(c cx.Cx, tx conn.Connection) cx.Outcome[struct{}] {
			if downSQL == "" {
				return cx.Err[struct{}](dberr.New(dberr.KindCustom, "migration "+id+" has no down step"))
			}
			return execStruct(c, tx, downSQL)
		},
		upSQL: upSQL,
	}
}

func execStruct(c cx.Cx, tx conn.Connection, sql string) cx.Outcome[struct{}] {
	out := tx.Execute(c, sql, nil)
	switch out.State() {
	case cx.StateOk:
		return cx.Ok(struct{}{})
	case cx.StateCancelled:
		reason, _ := out.Reason()
		return cx.Cancelled[struct{}](reason)
	case cx.StatePanicked:
		info, _ := out.PanicInfo()
		return cx.Panicked[struct{}](info)
	default:
		err, _ := out.Error()
		return cx.Err[struct{}](err)
	}
}

func (m Migration) checksum() string {
	sum := sha256.Sum256([]byte(m.upSQL))
	return hex.EncodeToString(sum[:])
}

// DefaultTrackingTable is the default migration record table name.
const DefaultTrackingTable = "schema_migrations"

// Runner applies and reverts Migrations against one connection,
// recording progress in a tracking table: id (text PK),
// description, applied_at, and a checksum of the up statement's bytes.
type Runner struct {
	table    string
	dialect  query.Dialect
	observer events.Observer
}

type Option func(*Runner)

func WithTrackingTable(name string) Option { return func(r *Runner) { r.table = name } }
func WithObserver(o events.Observer) Option {
	return func(r *Runner) { r.observer = o }
}

// NewRunner builds a Runner. The dialect determines bind-placeholder
// spelling for the tracking table's own INSERT/DELETE statements,
// since the tracking table is just an ordinary table from the
// driver's point of view.
func NewRunner(d query.Dialect, opts ...Option) *Runner {
	r := &Runner{table: DefaultTrackingTable, dialect: d, observer: events.NopObserver{}}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// EnsureTrackingTable creates the tracking table if absent. The
// caller supplies dialect-appropriate DDL; this module doesn't guess
// dialect from the Connection, since conn.Connection is
// dialect-blind.
func (r *Runner) EnsureTrackingTable(c cx.Cx, db conn.Connection, createDDL string) cx.Outcome[struct{}] {
	return execStruct(c, db, createDDL)
}

// Applied returns the ids already recorded in the tracking table, in
// ascending order.
func (r *Runner) Applied(c cx.Cx, db conn.Connection) cx.Outcome[[]string] {
	sql := fmt.Sprintf("SELECT id FROM %s ORDER BY id ASC", r.table)
	out := db.Query(c, sql, nil)
	switch out.State() {
	case cx.StateOk:
		rows, _ := out.Value()
		ids := make([]string, 0, len(rows))
		for _, row := range rows {
			v, err := row.GetNamed("id")
			if err != nil {
				return cx.Err[[]string](dberr.Wrap(dberr.KindData, "reading migration id", err))
			}
			s, _ := v.AsString()
			ids = append(ids, s)
		}
		return cx.Ok(ids)
	case cx.StateCancelled:
		reason, _ := out.Reason()
		return cx.Cancelled[[]string](reason)
	case cx.StatePanicked:
		info, _ := out.PanicInfo()
		return cx.Panicked[[]string](info)
	default:
		err, _ := out.Error()
		return cx.Err[[]string](err)
	}
}

// Report describes the outcome of an Apply or Revert run.
type Report struct {
	Applied []string // ids, in the order they ran
	Failed  string   // not set by Apply or Revert: a failing run returns an error naming the migration instead of a Report
}

// Apply runs every migration in migrations whose id is not already in
// the tracking table, in ascending id order, each inside its own
// transaction. A failure halts the run immediately and
// reports which migration failed; migrations already committed before
// the failure remain applied.
func (r *Runner) Apply(c cx.Cx, db conn.Connection, migrations []Migration) cx.Outcome[Report] {
	sorted := append([]Migration(nil), migrations...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	appliedOut := r.Applied(c, db)
	if !appliedOut.IsOk() {
		return carryFailure[[]string](appliedOut, "")
	}
	applied, _ := appliedOut.Value()
	already := make(map[string]bool, len(applied))
	for _, id := range applied {
		already[id] = true
	}

	var report Report
	placeholders := [4]string{r.dialect.Placeholder(1), r.dialect.Placeholder(2), r.dialect.Placeholder(3), r.dialect.Placeholder(4)}
	insertSQL := fmt.Sprintf("INSERT INTO %s (id, description, applied_at, checksum) VALUES (%s, %s, %s, %s)",
		r.table, placeholders[0], placeholders[1], placeholders[2], placeholders[3])

	for _, m := range sorted {
		if already[m.ID] {
			continue
		}
		if c.Cancelled() {
			return cx.Cancelled[Report]("apply: cancelled before migration " + m.ID)
		}

		txOut := db.Begin(c, conn.Serializable)
		if !txOut.IsOk() {
			return carryFailure[conn.Tx](txOut, m.ID)
		}
		tx, _ := txOut.Value()
		r.observer.TxBegin()

		upOut := m.Up(c, tx)
		if !upOut.IsOk() {
			tx.Rollback(c)
			r.observer.TxRollback()
			return carryFailure[struct{}](upOut, m.ID)
		}

		insertOut := tx.Execute(c, insertSQL, insertParams(m, timeNow()))
		if !insertOut.IsOk() {
			tx.Rollback(c)
			r.observer.TxRollback()
			return carryFailure[int64](insertOut, m.ID)
		}

		commitOut := tx.Commit(c)
		if !commitOut.IsOk() {
			return carryFailure[struct{}](commitOut, m.ID)
		}
		r.observer.TxCommit()
		report.Applied = append(report.Applied, m.ID)
	}
	return cx.Ok(report)
}

// Revert applies Down for the n most-recently-applied migrations, in
// descending id order.
func (r *Runner) Revert(c cx.Cx, db conn.Connection, migrations []Migration, n int) cx.Outcome[Report] {
	byID := make(map[string]Migration, len(migrations))
	for _, m := range migrations {
		byID[m.ID] = m
	}

	appliedOut := r.Applied(c, db)
	if !appliedOut.IsOk() {
		return carryFailure[[]string](appliedOut, "")
	}
	applied, _ := appliedOut.Value()
	sort.Sort(sort.Reverse(sort.StringSlice(applied)))
	if n < len(applied) {
		applied = applied[:n]
	}

	deleteSQL := fmt.Sprintf("DELETE FROM %s WHERE id = %s", r.table, r.dialect.Placeholder(1))

	var report Report
	for _, id := range applied {
		m, ok := byID[id]
		if !ok {
			return cx.Err[Report](dberr.New(dberr.KindCustom, "revert: migration "+id+" not found among supplied migrations"))
		}
		if c.Cancelled() {
			return cx.Cancelled[Report]("revert: cancelled before migration " + id)
		}

		txOut := db.Begin(c, conn.Serializable)
		if !txOut.IsOk() {
			return carryFailure[conn.Tx](txOut, id)
		}
		tx, _ := txOut.Value()
		r.observer.TxBegin()

		downOut := m.Down(c, tx)
		if !downOut.IsOk() {
			tx.Rollback(c)
			r.observer.TxRollback()
			return carryFailure[struct{}](downOut, id)
		}

		delOut := tx.Execute(c, deleteSQL, []sqlval.Value{sqlval.Text(id)})
		if !delOut.IsOk() {
			tx.Rollback(c)
			r.observer.TxRollback()
			return carryFailure[int64](delOut, id)
		}

		commitOut := tx.Commit(c)
		if !commitOut.IsOk() {
			return carryFailure[struct{}](commitOut, id)
		}
		r.observer.TxCommit()
		report.Applied = append(report.Applied, id)
	}
	return cx.Ok(report)
}

// NextVersion formats now as "YYYYMMDDHHMMSS". When that id is
// already present in existing (a prior migration generated in the
// same second), a monotonic ".N" suffix is appended until the result
// is unique.
func NextVersion(now time.Time, existing map[string]bool) string {
	base := now.UTC().Format("20060102150405")
	if !existing[base] {
		return base
	}
	for n := 1; ; n++ {
		candidate := fmt.Sprintf("%s.%d", base, n)
		if !existing[candidate] {
			return candidate
		}
	}
}

func timeNow() time.Time { return time.Now().UTC() }

// carryFailure translates a non-Ok Outcome of any value type into an
// Outcome[Report], preserving which migration id was in flight in the
// wrapped error's message. Cancelled/Panicked states pass through
// unchanged since those aren't ordinary errors.
func carryFailure[T any](out cx.Outcome[T], migrationID string) cx.Outcome[Report] {
	switch out.State() {
	case cx.StateCancelled:
		reason, _ := out.Reason()
		return cx.Cancelled[Report](reason)
	case cx.StatePanicked:
		info, _ := out.PanicInfo()
		return cx.Panicked[Report](info)
	default:
		err, _ := out.Error()
		if migrationID != "" {
			err = fmt.Errorf("migration %s: %w", migrationID, err)
		}
		return cx.Err[Report](err)
	}
}

func insertParams(m Migration, appliedAt time.Time) []sqlval.Value {
	return []sqlval.Value{
		sqlval.Text(m.ID),
		sqlval.Text(m.Description),
		sqlval.TimestampTz(appliedAt.UnixMicro()),
		sqlval.Text(m.checksum()),
	}
}
