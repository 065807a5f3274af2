package schema

import (
	"strings"

	"github.com/sqlmodel/sqlmodel/conn"
	"github.com/sqlmodel/sqlmodel/cx"
	"github.com/sqlmodel/sqlmodel/model"
	"github.com/sqlmodel/sqlmodel/sqlval"
)

// IntrospectPostgres reads the live schema of a PostgreSQL database
// from the system catalogs (pg_class/pg_attribute/pg_constraint/
// pg_index/pg_attrdef).
func IntrospectPostgres(c cx.Cx, connection conn.Connection) (DatabaseSchema, error) {
	tableRows, err := unwrapRows(connection.Query(c, `
		SELECT c.oid, c.relname
		FROM pg_class c
		JOIN pg_namespace n ON n.oid = c.relnamespace
		WHERE c.relkind = 'r' AND n.nspname = 'public'
		ORDER BY c.relname`, nil))
	if err != nil {
		return DatabaseSchema{}, err
	}

	var tables []Table
	for _, row := range tableRows {
		oidV, _ := row.Get(0)
		oid, _ := oidV.AsInt64()
		nameV, _ := row.Get(1)
		name, _ := nameV.AsString()

		t := Table{Name: name}

		cols, pk, err := pgColumns(c, connection, oid)
		if err != nil {
			return DatabaseSchema{}, err
		}
		t.Columns = cols
		t.PrimaryKey = pk

		fks, err := pgForeignKeys(c, connection, oid)
		if err != nil {
			return DatabaseSchema{}, err
		}
		t.ForeignKeys = fks

		uniques, indexes, err := pgUniquesAndIndexes(c, connection, oid)
		if err != nil {
			return DatabaseSchema{}, err
		}
		t.Uniques = uniques
		t.Indexes = indexes

		checks, err := pgChecks(c, connection, oid)
		if err != nil {
			return DatabaseSchema{}, err
		}
		t.Checks = checks

		tables = append(tables, t)
	}
	return DatabaseSchema{Tables: tables}, nil
}

func pgColumns(c cx.Cx, connection conn.Connection, oid int64) ([]Column, []string, error) {
	rows, err := unwrapRows(connection.Query(c, `
		SELECT a.attname,
		       format_type(a.atttypid, a.atttypmod) AS sql_type,
		       a.attnotnull,
		       COALESCE(pg_get_expr(ad.adbin, ad.adrelid), '') AS col_default,
		       COALESCE(pk.is_pk, false) AS is_pk,
		       COALESCE(a.attidentity <> '', false) AS is_identity
		FROM pg_attribute a
		LEFT JOIN pg_attrdef ad ON ad.adrelid = a.attrelid AND ad.adnum = a.attnum
		LEFT JOIN (
		    SELECT unnest(i.indkey) AS attnum, true AS is_pk
		    FROM pg_index i
		    WHERE i.indrelid = $1 AND i.indisprimary
		) pk ON pk.attnum = a.attnum
		WHERE a.attrelid = $1 AND a.attnum > 0 AND NOT a.attisdropped
		ORDER BY a.attnum`, []sqlval.Value{sqlval.BigInt(oid)}))
	if err != nil {
		return nil, nil, err
	}

	var cols []Column
	var pk []string
	for _, row := range rows {
		nameV, _ := row.GetNamed("attname")
		name, _ := nameV.AsString()
		typeV, _ := row.GetNamed("sql_type")
		sqlType, _ := typeV.AsString()
		notNullV, _ := row.GetNamed("attnotnull")
		notNull, _ := notNullV.AsBool()
		defV, _ := row.GetNamed("col_default")
		def, _ := defV.AsString()
		pkV, _ := row.GetNamed("is_pk")
		isPK, _ := pkV.AsBool()
		identV, _ := row.GetNamed("is_identity")
		isIdentity, _ := identV.AsBool()

		cols = append(cols, Column{
			Name:          name,
			SQLType:       sqlType,
			Nullable:      !notNull,
			Default:       def,
			PrimaryKey:    isPK,
			AutoIncrement: isIdentity || strings.Contains(def, "nextval("),
		})
		if isPK {
			pk = append(pk, name)
		}
	}
	return cols, pk, nil
}

func pgForeignKeys(c cx.Cx, connection conn.Connection, oid int64) ([]ForeignKey, error) {
	rows, err := unwrapRows(connection.Query(c, `
		SELECT con.conname,
		       att2.attname AS local_column,
		       cl2.relname AS remote_table,
		       att1.attname AS remote_column,
		       con.confdeltype,
		       con.confupdtype
		FROM pg_constraint con
		JOIN pg_class cl2 ON cl2.oid = con.confrelid
		JOIN pg_attribute att2 ON att2.attrelid = con.conrelid AND att2.attnum = con.conkey[1]
		JOIN pg_attribute att1 ON att1.attrelid = con.confrelid AND att1.attnum = con.confkey[1]
		WHERE con.conrelid = $1 AND con.contype = 'f'`, []sqlval.Value{sqlval.BigInt(oid)}))
	if err != nil {
		return nil, err
	}

	var fks []ForeignKey
	for _, row := range rows {
		nameV, _ := row.GetNamed("conname")
		fkName, _ := nameV.AsString()
		localV, _ := row.GetNamed("local_column")
		local, _ := localV.AsString()
		remoteTableV, _ := row.GetNamed("remote_table")
		remoteTable, _ := remoteTableV.AsString()
		remoteColV, _ := row.GetNamed("remote_column")
		remoteCol, _ := remoteColV.AsString()
		onDeleteV, _ := row.GetNamed("confdeltype")
		onDelete, _ := onDeleteV.AsString()
		onUpdateV, _ := row.GetNamed("confupdtype")
		onUpdate, _ := onUpdateV.AsString()

		fks = append(fks, ForeignKey{
			Name:         fkName,
			Column:       local,
			RemoteTable:  remoteTable,
			RemoteColumn: remoteCol,
			OnDelete:     parsePgAction(onDelete),
			OnUpdate:     parsePgAction(onUpdate),
		})
	}
	return fks, nil
}

// parsePgAction maps pg_constraint's single-character confdeltype/
// confupdtype code ('a' no action, 'r' restrict, 'c' cascade, 'n' set
// null, 'd' set default) to a ReferentialAction.
func parsePgAction(code string) model.ReferentialAction {
	if len(code) == 0 {
		return model.NoAction
	}
	switch code[0] {
	case 'r':
		return model.Restrict
	case 'c':
		return model.Cascade
	case 'n':
		return model.SetNull
	case 'd':
		return model.SetDefault
	default:
		return model.NoAction
	}
}

func pgUniquesAndIndexes(c cx.Cx, connection conn.Connection, oid int64) ([]Unique, []Index, error) {
	rows, err := unwrapRows(connection.Query(c, `
		SELECT ic.relname AS index_name, i.indisunique, array_agg(a.attname ORDER BY x.ord) AS columns
		FROM pg_index i
		JOIN pg_class ic ON ic.oid = i.indexrelid
		JOIN unnest(i.indkey) WITH ORDINALITY AS x(attnum, ord) ON true
		JOIN pg_attribute a ON a.attrelid = i.indrelid AND a.attnum = x.attnum
		WHERE i.indrelid = $1 AND NOT i.indisprimary
		GROUP BY ic.relname, i.indisunique`, []sqlval.Value{sqlval.BigInt(oid)}))
	if err != nil {
		return nil, nil, err
	}

	var uniques []Unique
	var indexes []Index
	for _, row := range rows {
		nameV, _ := row.GetNamed("index_name")
		name, _ := nameV.AsString()
		uniqueV, _ := row.GetNamed("indisunique")
		unique, _ := uniqueV.AsBool()
		colsV, _ := row.GetNamed("columns")
		colsArr, _ := colsV.AsArray()
		cols := make([]string, 0, len(colsArr))
		for _, cv := range colsArr {
			s, _ := cv.AsString()
			cols = append(cols, s)
		}
		if unique {
			uniques = append(uniques, Unique{Name: name, Columns: cols})
		} else {
			indexes = append(indexes, Index{Name: name, Columns: cols})
		}
	}
	return uniques, indexes, nil
}

func pgChecks(c cx.Cx, connection conn.Connection, oid int64) ([]Check, error) {
	rows, err := unwrapRows(connection.Query(c, `
		SELECT conname, pg_get_constraintdef(oid)
		FROM pg_constraint
		WHERE conrelid = $1 AND contype = 'c'`, []sqlval.Value{sqlval.BigInt(oid)}))
	if err != nil {
		return nil, err
	}
	var checks []Check
	for _, row := range rows {
		nameV, _ := row.Get(0)
		name, _ := nameV.AsString()
		defV, _ := row.Get(1)
		def, _ := defV.AsString()
		checks = append(checks, Check{Name: name, Expression: normaliseCheckExpr(stripCheckWrapper(def))})
	}
	return checks, nil
}

// stripCheckWrapper removes the "CHECK (...)" wrapper
// pg_get_constraintdef renders the definition with, leaving the inner
// predicate to match the sqlite/mysql introspectors' convention.
func stripCheckWrapper(def string) string {
	trimmed := strings.TrimSpace(def)
	upper := strings.ToUpper(trimmed)
	if !strings.HasPrefix(upper, "CHECK") {
		return trimmed
	}
	rest := strings.TrimSpace(trimmed[len("CHECK"):])
	if len(rest) >= 2 && rest[0] == '(' && rest[len(rest)-1] == ')' {
		return rest[1 : len(rest)-1]
	}
	return rest
}
