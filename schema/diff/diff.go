// Package diff computes the ordered sequence of SchemaOperations that
// transform an actual (introspected) DatabaseSchema into an expected
// one: a two-schema comparison that derives the operations
// automatically.
package diff

import (
	"sort"

	"github.com/sqlmodel/sqlmodel/schema"
)

// Kind names the variant of a SchemaOperation.
type Kind int

const (
	CreateTable Kind = iota
	DropTable
	RenameTable
	AddColumn
	DropColumn
	AlterColumnType
	AlterColumnNullable
	AlterColumnDefault
	RenameColumn
	AddPrimaryKey
	DropPrimaryKey
	AddForeignKey
	DropForeignKey
	AddUnique
	DropUnique
	CreateIndex
	DropIndex
)

func (k Kind) String() string {
	switch k {
	case CreateTable:
		return "CreateTable"
	case DropTable:
		return "DropTable"
	case RenameTable:
		return "RenameTable"
	case AddColumn:
		return "AddColumn"
	case DropColumn:
		return "DropColumn"
	case AlterColumnType:
		return "AlterColumnType"
	case AlterColumnNullable:
		return "AlterColumnNullable"
	case AlterColumnDefault:
		return "AlterColumnDefault"
	case RenameColumn:
		return "RenameColumn"
	case AddPrimaryKey:
		return "AddPrimaryKey"
	case DropPrimaryKey:
		return "DropPrimaryKey"
	case AddForeignKey:
		return "AddForeignKey"
	case DropForeignKey:
		return "DropForeignKey"
	case AddUnique:
		return "AddUnique"
	case DropUnique:
		return "DropUnique"
	case CreateIndex:
		return "CreateIndex"
	case DropIndex:
		return "DropIndex"
	default:
		return "Unknown"
	}
}

// SchemaOperation is one atomic change from the actual schema toward
// the expected one. Only the fields relevant to Kind are populated.
type SchemaOperation struct {
	Kind Kind
	Table string
	NewTableName string // RenameTable

	NewTable schema.Table // CreateTable: columns, PK and checks; FKs/uniques/indexes follow as their own ops

	Column     schema.Column // AddColumn/AlterColumn*
	ColumnName string        // DropColumn/AlterColumn*/RenameColumn (old name)
	NewColumnName string     // RenameColumn

	PrimaryKey []string // AddPrimaryKey/DropPrimaryKey

	ForeignKey schema.ForeignKey // AddForeignKey
	ConstraintName string        // DropForeignKey/DropUnique/DropIndex

	Unique schema.Unique // AddUnique
	Index  schema.Index  // CreateIndex
}

// inverse returns the operation that undoes this one, and whether one
// exists: dropping a table or column has no inverse without the prior
// definition, so rollback generation should skip those.
func (op SchemaOperation) inverse(actual schema.Table) (SchemaOperation, bool) {
	switch op.Kind {
	case CreateTable:
		return SchemaOperation{Kind: DropTable, Table: op.Table}, true
	case DropTable:
		return SchemaOperation{}, false
	case RenameTable:
		return SchemaOperation{Kind: RenameTable, Table: op.NewTableName, NewTableName: op.Table}, true
	case AddColumn:
		return SchemaOperation{Kind: DropColumn, Table: op.Table, ColumnName: op.Column.Name}, true
	case DropColumn:
		if col, ok := actual.ColumnByName(op.ColumnName); ok {
			return SchemaOperation{Kind: AddColumn, Table: op.Table, Column: col}, true
		}
		return SchemaOperation{}, false
	case AlterColumnType, AlterColumnNullable, AlterColumnDefault:
		if col, ok := actual.ColumnByName(op.ColumnName); ok {
			return SchemaOperation{Kind: op.Kind, Table: op.Table, ColumnName: op.ColumnName, Column: col}, true
		}
		return SchemaOperation{}, false
	case RenameColumn:
		return SchemaOperation{Kind: RenameColumn, Table: op.Table, ColumnName: op.NewColumnName, NewColumnName: op.ColumnName}, true
	case AddPrimaryKey:
		return SchemaOperation{Kind: DropPrimaryKey, Table: op.Table, PrimaryKey: op.PrimaryKey}, true
	case DropPrimaryKey:
		if len(actual.PrimaryKey) > 0 {
			return SchemaOperation{Kind: AddPrimaryKey, Table: op.Table, PrimaryKey: actual.PrimaryKey}, true
		}
		return SchemaOperation{}, false
	case AddForeignKey:
		return SchemaOperation{Kind: DropForeignKey, Table: op.Table, ConstraintName: op.ForeignKey.Name, ColumnName: op.ForeignKey.Column}, true
	case DropForeignKey:
		return SchemaOperation{}, false
	case AddUnique:
		return SchemaOperation{Kind: DropUnique, Table: op.Table, ConstraintName: op.Unique.Name}, true
	case DropUnique:
		return SchemaOperation{}, false
	case CreateIndex:
		return SchemaOperation{Kind: DropIndex, Table: op.Table, ConstraintName: op.Index.Name}, true
	case DropIndex:
		return SchemaOperation{}, false
	default:
		return SchemaOperation{}, false
	}
}

// Inverse is the exported form of inverse, taking the actual schema
// the forward operation ran against (needed to recover a dropped
// definition for the reverse direction).
func Inverse(op SchemaOperation, actual schema.DatabaseSchema) (SchemaOperation, bool) {
	t, _ := actual.TableByName(op.Table)
	return op.inverse(t)
}

// Diff computes the ordered operations transforming actual into
// expected. Rename detection is off by default: a
// dropped table/column and an added one with a different name are
// never inferred to be the same object; they are emitted as a
// drop+add pair; unless the caller supplies explicit rename hints.
func Diff(actual, expected schema.DatabaseSchema, hints RenameHints) []SchemaOperation {
	var ops []SchemaOperation

	actualNames := sortedNames(actual.TableNames())
	expectedNames := sortedNames(expected.TableNames())

	actualSet := toSet(actualNames)
	expectedSet := toSet(expectedNames)

	renamedFrom := map[string]bool{}
	for _, r := range hints.TableRenames {
		if actualSet[r.From] && expectedSet[r.To] {
			ops = append(ops, SchemaOperation{Kind: RenameTable, Table: r.From, NewTableName: r.To})
			renamedFrom[r.From] = true
		}
	}

	for _, name := range expectedNames {
		if renamedForTarget(hints, name) {
			continue
		}
		if !actualSet[name] {
			t, _ := expected.TableByName(name)
			bare := t
			bare.ForeignKeys, bare.Uniques, bare.Indexes = nil, nil, nil
			ops = append(ops, SchemaOperation{Kind: CreateTable, Table: name, NewTable: bare})
			ops = append(ops, tableBootstrapOps(t)...)
		}
	}

	for _, name := range actualNames {
		if renamedFrom[name] {
			continue
		}
		if !expectedSet[name] {
			ops = append(ops, SchemaOperation{Kind: DropTable, Table: name})
		}
	}

	for _, name := range expectedNames {
		if !actualSet[name] {
			continue // already handled by CreateTable + bootstrap ops above
		}
		et, _ := expected.TableByName(name)
		at, _ := actual.TableByName(name)
		ops = append(ops, diffTable(at, et, hints.ColumnRenames[name])...)
	}

	return ops
}

// RenameHints supplies the explicit rename mapping required before a
// drop+add pair is reinterpreted as a rename.
type RenameHints struct {
	TableRenames  []Rename
	ColumnRenames map[string][]Rename // table name -> renames within it
}

// Rename maps an old name to a new one.
type Rename struct {
	From string
	To   string
}

func renamedForTarget(hints RenameHints, newName string) bool {
	for _, r := range hints.TableRenames {
		if r.To == newName {
			return true
		}
	}
	return false
}

// tableBootstrapOps emits the FK/unique/index operations a freshly
// created table also needs, in a fixed order:
// columns are part of CreateTable itself, but constraints beyond the
// inline primary key are represented as their own operations so DDL
// generation and diff share one code path.
func tableBootstrapOps(t schema.Table) []SchemaOperation {
	var ops []SchemaOperation
	for _, fk := range t.ForeignKeys {
		ops = append(ops, SchemaOperation{Kind: AddForeignKey, Table: t.Name, ForeignKey: fk})
	}
	for _, u := range t.Uniques {
		ops = append(ops, SchemaOperation{Kind: AddUnique, Table: t.Name, Unique: u})
	}
	for _, idx := range t.Indexes {
		ops = append(ops, SchemaOperation{Kind: CreateIndex, Table: t.Name, Index: idx})
	}
	return ops
}

// diffTable compares one table's columns and constraints in the fixed
// order: columns, primary key, foreign keys,
// uniques, indexes.
func diffTable(actual, expected schema.Table, columnRenames []Rename) []SchemaOperation {
	var ops []SchemaOperation

	actualCols := colMap(actual.Columns)
	expectedCols := colMap(expected.Columns)

	renamedFrom := map[string]string{} // old -> new
	renamedTo := map[string]bool{}
	for _, r := range columnRenames {
		if _, hasOld := actualCols[r.From]; hasOld {
			if _, hasNew := expectedCols[r.To]; hasNew {
				ops = append(ops, SchemaOperation{Kind: RenameColumn, Table: expected.Name, ColumnName: r.From, NewColumnName: r.To})
				renamedFrom[r.From] = r.To
				renamedTo[r.To] = true
			}
		}
	}

	for _, name := range sortedColumnNames(expected.Columns) {
		if renamedTo[name] {
			continue
		}
		ec := expectedCols[name]
		ac, exists := actualCols[name]
		if !exists {
			ops = append(ops, SchemaOperation{Kind: AddColumn, Table: expected.Name, Column: ec})
			continue
		}
		if ac.SQLType != ec.SQLType {
			ops = append(ops, SchemaOperation{Kind: AlterColumnType, Table: expected.Name, ColumnName: name, Column: ec})
		}
		if ac.Nullable != ec.Nullable {
			ops = append(ops, SchemaOperation{Kind: AlterColumnNullable, Table: expected.Name, ColumnName: name, Column: ec})
		}
		if ac.Default != ec.Default {
			ops = append(ops, SchemaOperation{Kind: AlterColumnDefault, Table: expected.Name, ColumnName: name, Column: ec})
		}
	}

	for _, name := range sortedColumnNames(actual.Columns) {
		if _, renamed := renamedFrom[name]; renamed {
			continue
		}
		if _, exists := expectedCols[name]; !exists {
			ops = append(ops, SchemaOperation{Kind: DropColumn, Table: expected.Name, ColumnName: name})
		}
	}

	if !stringsEqual(actual.PrimaryKey, expected.PrimaryKey) {
		if len(actual.PrimaryKey) > 0 {
			ops = append(ops, SchemaOperation{Kind: DropPrimaryKey, Table: expected.Name, PrimaryKey: actual.PrimaryKey})
		}
		if len(expected.PrimaryKey) > 0 {
			ops = append(ops, SchemaOperation{Kind: AddPrimaryKey, Table: expected.Name, PrimaryKey: expected.PrimaryKey})
		}
	}

	ops = append(ops, diffForeignKeys(actual, expected)...)
	ops = append(ops, diffUniques(actual, expected)...)
	ops = append(ops, diffIndexes(actual, expected)...)

	return ops
}

func diffForeignKeys(actual, expected schema.Table) []SchemaOperation {
	var ops []SchemaOperation
	actualByCol := map[string]schema.ForeignKey{}
	for _, fk := range actual.ForeignKeys {
		actualByCol[fk.Column] = fk
	}
	expectedByCol := map[string]schema.ForeignKey{}
	for _, fk := range expected.ForeignKeys {
		expectedByCol[fk.Column] = fk
	}

	for _, col := range sortedFKColumns(expected.ForeignKeys) {
		efk := expectedByCol[col]
		afk, exists := actualByCol[col]
		if !exists || afk.RemoteTable != efk.RemoteTable || afk.RemoteColumn != efk.RemoteColumn ||
			afk.OnDelete != efk.OnDelete || afk.OnUpdate != efk.OnUpdate {
			if exists {
				ops = append(ops, SchemaOperation{Kind: DropForeignKey, Table: expected.Name, ConstraintName: afk.Name, ColumnName: col})
			}
			ops = append(ops, SchemaOperation{Kind: AddForeignKey, Table: expected.Name, ForeignKey: efk})
		}
	}
	for _, col := range sortedFKColumns(actual.ForeignKeys) {
		if _, exists := expectedByCol[col]; !exists {
			ops = append(ops, SchemaOperation{Kind: DropForeignKey, Table: expected.Name, ConstraintName: actualByCol[col].Name, ColumnName: col})
		}
	}
	return ops
}

func diffUniques(actual, expected schema.Table) []SchemaOperation {
	var ops []SchemaOperation
	actualByKey := map[string]schema.Unique{}
	for _, u := range actual.Uniques {
		actualByKey[columnsKey(u.Columns)] = u
	}
	expectedByKey := map[string]schema.Unique{}
	for _, u := range expected.Uniques {
		expectedByKey[columnsKey(u.Columns)] = u
	}
	for _, key := range sortedKeys(expectedByKey) {
		if _, exists := actualByKey[key]; !exists {
			ops = append(ops, SchemaOperation{Kind: AddUnique, Table: expected.Name, Unique: expectedByKey[key]})
		}
	}
	for _, key := range sortedKeys(actualByKey) {
		if _, exists := expectedByKey[key]; !exists {
			ops = append(ops, SchemaOperation{Kind: DropUnique, Table: expected.Name, ConstraintName: actualByKey[key].Name})
		}
	}
	return ops
}

func diffIndexes(actual, expected schema.Table) []SchemaOperation {
	var ops []SchemaOperation
	actualByKey := map[string]schema.Index{}
	for _, idx := range actual.Indexes {
		actualByKey[columnsKey(idx.Columns)] = idx
	}
	expectedByKey := map[string]schema.Index{}
	for _, idx := range expected.Indexes {
		expectedByKey[columnsKey(idx.Columns)] = idx
	}
	for _, key := range sortedKeys(expectedByKey) {
		if _, exists := actualByKey[key]; !exists {
			ops = append(ops, SchemaOperation{Kind: CreateIndex, Table: expected.Name, Index: expectedByKey[key]})
		}
	}
	for _, key := range sortedKeys(actualByKey) {
		if _, exists := expectedByKey[key]; !exists {
			ops = append(ops, SchemaOperation{Kind: DropIndex, Table: expected.Name, ConstraintName: actualByKey[key].Name})
		}
	}
	return ops
}

func colMap(cols []schema.Column) map[string]schema.Column {
	m := make(map[string]schema.Column, len(cols))
	for _, c := range cols {
		m[c.Name] = c
	}
	return m
}

func sortedColumnNames(cols []schema.Column) []string {
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Name
	}
	sort.Strings(names)
	return names
}

func sortedFKColumns(fks []schema.ForeignKey) []string {
	cols := make([]string, len(fks))
	for i, fk := range fks {
		cols[i] = fk.Column
	}
	sort.Strings(cols)
	return cols
}

func sortedNames(names []string) []string {
	out := append([]string(nil), names...)
	sort.Strings(out)
	return out
}

func toSet(names []string) map[string]bool {
	m := make(map[string]bool, len(names))
	for _, n := range names {
		m[n] = true
	}
	return m
}

func columnsKey(cols []string) string {
	key := ""
	for _, c := range cols {
		key += c + ","
	}
	return key
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func stringsEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
