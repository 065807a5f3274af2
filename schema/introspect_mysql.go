package schema

import (
	"strings"

	"github.com/sqlmodel/sqlmodel/conn"
	"github.com/sqlmodel/sqlmodel/cx"
	"github.com/sqlmodel/sqlmodel/sqlval"
)

// IntrospectMySQL reads the live schema of a MySQL database from
// information_schema.
func IntrospectMySQL(c cx.Cx, connection conn.Connection) (DatabaseSchema, error) {
	tableRows, err := unwrapRows(connection.Query(c, `
		SELECT table_name FROM information_schema.tables
		WHERE table_schema = DATABASE() AND table_type = 'BASE TABLE'
		ORDER BY table_name`, nil))
	if err != nil {
		return DatabaseSchema{}, err
	}

	var tables []Table
	for _, row := range tableRows {
		nameV, _ := row.Get(0)
		name, _ := nameV.AsString()

		t := Table{Name: name}

		cols, pk, err := mysqlColumns(c, connection, name)
		if err != nil {
			return DatabaseSchema{}, err
		}
		t.Columns = cols
		t.PrimaryKey = pk

		fks, err := mysqlForeignKeys(c, connection, name)
		if err != nil {
			return DatabaseSchema{}, err
		}
		t.ForeignKeys = fks

		uniques, indexes, err := mysqlUniquesAndIndexes(c, connection, name)
		if err != nil {
			return DatabaseSchema{}, err
		}
		t.Uniques = uniques
		t.Indexes = indexes

		checks, err := mysqlChecks(c, connection, name)
		if err != nil {
			return DatabaseSchema{}, err
		}
		t.Checks = checks

		tables = append(tables, t)
	}
	return DatabaseSchema{Tables: tables}, nil
}

func mysqlColumns(c cx.Cx, connection conn.Connection, table string) ([]Column, []string, error) {
	rows, err := unwrapRows(connection.Query(c, `
		SELECT column_name, column_type, is_nullable, column_default,
		       column_key, extra
		FROM information_schema.columns
		WHERE table_schema = DATABASE() AND table_name = ?
		ORDER BY ordinal_position`, []sqlval.Value{sqlval.Text(table)}))
	if err != nil {
		return nil, nil, err
	}

	var cols []Column
	var pk []string
	for _, row := range rows {
		nameV, _ := row.Get(0)
		name, _ := nameV.AsString()
		typeV, _ := row.Get(1)
		sqlType, _ := typeV.AsString()
		nullV, _ := row.Get(2)
		nullable, _ := nullV.AsString()
		defV, _ := row.Get(3)
		def, _ := defV.AsString()
		keyV, _ := row.Get(4)
		key, _ := keyV.AsString()
		extraV, _ := row.Get(5)
		extra, _ := extraV.AsString()

		isPK := key == "PRI"
		cols = append(cols, Column{
			Name:          name,
			SQLType:       sqlType,
			Nullable:      strings.EqualFold(nullable, "YES"),
			Default:       def,
			PrimaryKey:    isPK,
			AutoIncrement: strings.Contains(strings.ToLower(extra), "auto_increment"),
		})
		if isPK {
			pk = append(pk, name)
		}
	}
	return cols, pk, nil
}

func mysqlForeignKeys(c cx.Cx, connection conn.Connection, table string) ([]ForeignKey, error) {
	rows, err := unwrapRows(connection.Query(c, `
		SELECT k.constraint_name, k.column_name, k.referenced_table_name, k.referenced_column_name,
		       r.delete_rule, r.update_rule
		FROM information_schema.key_column_usage k
		JOIN information_schema.referential_constraints r
		  ON r.constraint_schema = k.table_schema AND r.constraint_name = k.constraint_name
		WHERE k.table_schema = DATABASE() AND k.table_name = ? AND k.referenced_table_name IS NOT NULL`,
		[]sqlval.Value{sqlval.Text(table)}))
	if err != nil {
		return nil, err
	}

	var fks []ForeignKey
	for _, row := range rows {
		nameV, _ := row.Get(0)
		name, _ := nameV.AsString()
		colV, _ := row.Get(1)
		col, _ := colV.AsString()
		remoteTableV, _ := row.Get(2)
		remoteTable, _ := remoteTableV.AsString()
		remoteColV, _ := row.Get(3)
		remoteCol, _ := remoteColV.AsString()
		onDeleteV, _ := row.Get(4)
		onDelete, _ := onDeleteV.AsString()
		onUpdateV, _ := row.Get(5)
		onUpdate, _ := onUpdateV.AsString()

		fks = append(fks, ForeignKey{
			Name:         name,
			Column:       col,
			RemoteTable:  remoteTable,
			RemoteColumn: remoteCol,
			OnDelete:     parseReferentialAction(onDelete),
			OnUpdate:     parseReferentialAction(onUpdate),
		})
	}
	return fks, nil
}

func mysqlUniquesAndIndexes(c cx.Cx, connection conn.Connection, table string) ([]Unique, []Index, error) {
	rows, err := unwrapRows(connection.Query(c, `
		SELECT index_name, non_unique, column_name
		FROM information_schema.statistics
		WHERE table_schema = DATABASE() AND table_name = ? AND index_name <> 'PRIMARY'
		ORDER BY index_name, seq_in_index`, []sqlval.Value{sqlval.Text(table)}))
	if err != nil {
		return nil, nil, err
	}

	type acc struct {
		unique  bool
		columns []string
	}
	order := []string{}
	byName := map[string]*acc{}
	for _, row := range rows {
		nameV, _ := row.Get(0)
		name, _ := nameV.AsString()
		nonUniqueV, _ := row.Get(1)
		nonUnique, _ := nonUniqueV.AsInt64()
		colV, _ := row.Get(2)
		col, _ := colV.AsString()

		e, ok := byName[name]
		if !ok {
			e = &acc{unique: nonUnique == 0}
			byName[name] = e
			order = append(order, name)
		}
		e.columns = append(e.columns, col)
	}

	var uniques []Unique
	var indexes []Index
	for _, name := range order {
		e := byName[name]
		if e.unique {
			uniques = append(uniques, Unique{Name: name, Columns: e.columns})
		} else {
			indexes = append(indexes, Index{Name: name, Columns: e.columns})
		}
	}
	return uniques, indexes, nil
}

func mysqlChecks(c cx.Cx, connection conn.Connection, table string) ([]Check, error) {
	rows, err := unwrapRows(connection.Query(c, `
		SELECT cc.constraint_name, cc.check_clause
		FROM information_schema.check_constraints cc
		JOIN information_schema.table_constraints tc
		  ON tc.constraint_schema = cc.constraint_schema AND tc.constraint_name = cc.constraint_name
		WHERE tc.table_schema = DATABASE() AND tc.table_name = ?`, []sqlval.Value{sqlval.Text(table)}))
	if err != nil {
		return nil, err
	}
	var checks []Check
	for _, row := range rows {
		nameV, _ := row.Get(0)
		name, _ := nameV.AsString()
		clauseV, _ := row.Get(1)
		clause, _ := clauseV.AsString()
		checks = append(checks, Check{Name: name, Expression: normaliseCheckExpr(clause)})
	}
	return checks, nil
}
