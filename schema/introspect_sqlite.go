package schema

import (
	"fmt"
	"strings"

	"github.com/sqlmodel/sqlmodel/conn"
	"github.com/sqlmodel/sqlmodel/cx"
	"github.com/sqlmodel/sqlmodel/model"
	"github.com/sqlmodel/sqlmodel/sqlval"
)

// unwrapRows translates a Query outcome into plain (rows, error)
// ergonomics for introspection code, which runs outside any Cx-aware
// caller and always wants to fail fast rather than distinguish
// cancellation from error.
func unwrapRows(outcome cx.Outcome[[]sqlval.Row]) ([]sqlval.Row, error) {
	switch outcome.State() {
	case cx.StateOk:
		rows, _ := outcome.Value()
		return rows, nil
	case cx.StateCancelled:
		reason, _ := outcome.Reason()
		return nil, fmt.Errorf("schema: introspection query cancelled: %s", reason)
	case cx.StatePanicked:
		info, _ := outcome.PanicInfo()
		return nil, fmt.Errorf("schema: introspection query panicked: %v", info)
	default:
		e, _ := outcome.Error()
		return nil, e
	}
}

// IntrospectSQLite reads the live schema of a SQLite database via
// sqlite_master plus the PRAGMA family.
func IntrospectSQLite(c cx.Cx, connection conn.Connection) (DatabaseSchema, error) {
	rowsOutcome := connection.Query(c, `SELECT name, sql FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`, nil)
	rows, err := unwrapRows(rowsOutcome)
	if err != nil {
		return DatabaseSchema{}, err
	}

	var tables []Table
	for _, row := range rows {
		nameV, _ := row.Get(0)
		name, _ := nameV.AsString()
		ddlV, _ := row.Get(1)
		ddl, _ := ddlV.AsString()

		t := Table{Name: name}

		cols, err := sqliteColumns(c, connection, name)
		if err != nil {
			return DatabaseSchema{}, err
		}
		t.Columns = cols
		for _, col := range cols {
			if col.PrimaryKey {
				t.PrimaryKey = append(t.PrimaryKey, col.Name)
			}
		}

		fks, err := sqliteForeignKeys(c, connection, name)
		if err != nil {
			return DatabaseSchema{}, err
		}
		t.ForeignKeys = fks

		indexes, uniques, err := sqliteIndexes(c, connection, name)
		if err != nil {
			return DatabaseSchema{}, err
		}
		t.Indexes = indexes
		t.Uniques = uniques

		t.Checks = extractChecks(ddl)

		tables = append(tables, t)
	}
	return DatabaseSchema{Tables: tables}, nil
}

func sqliteColumns(c cx.Cx, connection conn.Connection, table string) ([]Column, error) {
	sqlText := fmt.Sprintf("PRAGMA table_info(%s)", quoteSQLiteIdent(table))
	rows, err := unwrapRows(connection.Query(c, sqlText, nil))
	if err != nil {
		return nil, err
	}
	var cols []Column
	for _, row := range rows {
		nameV, _ := row.GetNamed("name")
		name, _ := nameV.AsString()
		typeV, _ := row.GetNamed("type")
		sqlType, _ := typeV.AsString()
		notNullV, _ := row.GetNamed("notnull")
		notNull, _ := notNullV.AsInt64()
		dfltV, _ := row.GetNamed("dflt_value")
		dflt, _ := dfltV.AsString()
		pkV, _ := row.GetNamed("pk")
		pk, _ := pkV.AsInt64()

		autoIncrement := pk > 0 && strings.EqualFold(sqlType, "INTEGER")
		cols = append(cols, Column{
			Name:          name,
			SQLType:       sqlType,
			Nullable:      notNull == 0,
			Default:       dflt,
			PrimaryKey:    pk > 0,
			AutoIncrement: autoIncrement,
		})
	}
	return cols, nil
}

func sqliteForeignKeys(c cx.Cx, connection conn.Connection, table string) ([]ForeignKey, error) {
	sqlText := fmt.Sprintf("PRAGMA foreign_key_list(%s)", quoteSQLiteIdent(table))
	rows, err := unwrapRows(connection.Query(c, sqlText, nil))
	if err != nil {
		return nil, err
	}
	var fks []ForeignKey
	for _, row := range rows {
		fromV, _ := row.GetNamed("from")
		from, _ := fromV.AsString()
		tableV, _ := row.GetNamed("table")
		remoteTable, _ := tableV.AsString()
		toV, _ := row.GetNamed("to")
		remoteColumn, _ := toV.AsString()
		onDeleteV, _ := row.GetNamed("on_delete")
		onDelete, _ := onDeleteV.AsString()
		onUpdateV, _ := row.GetNamed("on_update")
		onUpdate, _ := onUpdateV.AsString()

		fks = append(fks, ForeignKey{
			Column:       from,
			RemoteTable:  remoteTable,
			RemoteColumn: remoteColumn,
			OnDelete:     parseReferentialAction(onDelete),
			OnUpdate:     parseReferentialAction(onUpdate),
		})
	}
	return fks, nil
}

func sqliteIndexes(c cx.Cx, connection conn.Connection, table string) ([]Index, []Unique, error) {
	listSQL := fmt.Sprintf("PRAGMA index_list(%s)", quoteSQLiteIdent(table))
	listRows, err := unwrapRows(connection.Query(c, listSQL, nil))
	if err != nil {
		return nil, nil, err
	}

	var indexes []Index
	var uniques []Unique
	for _, row := range listRows {
		nameV, _ := row.GetNamed("name")
		name, _ := nameV.AsString()
		uniqueV, _ := row.GetNamed("unique")
		unique, _ := uniqueV.AsInt64()
		originV, _ := row.GetNamed("origin")
		origin, _ := originV.AsString()
		if origin == "pk" {
			continue // backing index for the PK, not a user-visible index
		}

		infoSQL := fmt.Sprintf("PRAGMA index_info(%s)", quoteSQLiteIdent(name))
		infoRows, err := unwrapRows(connection.Query(c, infoSQL, nil))
		if err != nil {
			return nil, nil, err
		}
		var columns []string
		for _, infoRow := range infoRows {
			colV, _ := infoRow.GetNamed("name")
			col, _ := colV.AsString()
			columns = append(columns, col)
		}

		if unique != 0 {
			uniques = append(uniques, Unique{Name: name, Columns: columns})
		} else {
			indexes = append(indexes, Index{Name: name, Columns: columns, Unique: false})
		}
	}
	return indexes, uniques, nil
}

// extractChecks scans a CREATE TABLE statement's text for CHECK(...)
// sub-expressions via balanced-paren scanning, normalising to the
// inner expression.
func extractChecks(createTableSQL string) []Check {
	var checks []Check
	upper := strings.ToUpper(createTableSQL)
	searchFrom := 0
	for {
		idx := strings.Index(upper[searchFrom:], "CHECK")
		if idx < 0 {
			break
		}
		idx += searchFrom
		rest := createTableSQL[idx+len("CHECK"):]
		trimmed := strings.TrimLeft(rest, " \t\n")
		if len(trimmed) == 0 || trimmed[0] != '(' {
			searchFrom = idx + len("CHECK")
			continue
		}
		skipped := len(rest) - len(trimmed)
		open := idx + len("CHECK") + skipped

		depth := 0
		end := -1
		for i := open; i < len(createTableSQL); i++ {
			switch createTableSQL[i] {
			case '(':
				depth++
			case ')':
				depth--
				if depth == 0 {
					end = i
				}
			}
			if end != -1 {
				break
			}
		}
		if end == -1 {
			break
		}
		inner := createTableSQL[open+1 : end]
		checks = append(checks, Check{
			Name:       checkNameBefore(createTableSQL, idx),
			Expression: normaliseCheckExpr(inner),
		})
		searchFrom = end + 1
	}
	return checks
}

// checkNameBefore recovers the constraint name when the CHECK at
// byte offset idx was introduced as `CONSTRAINT <name> CHECK(...)`,
// returning "" for an anonymous check.
func checkNameBefore(createTableSQL string, idx int) string {
	head := strings.TrimRight(createTableSQL[:idx], " \t\n")
	cut := strings.LastIndexAny(head, " \t\n")
	if cut < 0 {
		return ""
	}
	name := head[cut+1:]
	rest := strings.TrimRight(head[:cut], " \t\n")
	if !strings.HasSuffix(strings.ToUpper(rest), "CONSTRAINT") {
		return ""
	}
	name = strings.Trim(name, "`\"[]")
	return name
}

func normaliseCheckExpr(expr string) string {
	expr = strings.TrimSpace(expr)
	expr = strings.ReplaceAll(expr, `"`, "")
	expr = strings.ReplaceAll(expr, "`", "")
	return expr
}

func quoteSQLiteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func parseReferentialAction(s string) model.ReferentialAction {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "RESTRICT":
		return model.Restrict
	case "CASCADE":
		return model.Cascade
	case "SET NULL":
		return model.SetNull
	case "SET DEFAULT":
		return model.SetDefault
	default:
		return model.NoAction
	}
}

