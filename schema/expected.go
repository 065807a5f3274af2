package schema

import (
	"sort"

	"github.com/sqlmodel/sqlmodel/model"
)

// Expected builds the DatabaseSchema a model.Registry declares, for
// diffing against an introspected one. Dialect-neutral:
// column SQL type strings come from FieldInfo.EffectiveSQLType, which
// is itself dialect-neutral text (e.g. "VARCHAR(255)", "NUMERIC(10,2)");
// schema/ddl is responsible for dialect-specific spelling when it
// renders the diff.
func Expected(registry *model.Registry) DatabaseSchema {
	infos := registry.AllTables()
	tables := make([]Table, 0, len(infos))
	for _, info := range infos {
		tables = append(tables, expectedTable(info))
	}
	sort.Slice(tables, func(i, j int) bool { return tables[i].Name < tables[j].Name })
	return DatabaseSchema{Tables: tables}
}

func expectedTable(info model.TableInfo) Table {
	t := Table{Name: info.Name, PrimaryKey: append([]string(nil), info.PrimaryKey...)}

	uniqueSingle := map[string]bool{}
	for _, f := range info.Fields {
		if f.Skip {
			continue
		}
		t.Columns = append(t.Columns, Column{
			Name:          f.Column,
			SQLType:       f.EffectiveSQLType().String(),
			Nullable:      f.Nullable,
			Default:       f.Default,
			PrimaryKey:    f.PrimaryKey,
			AutoIncrement: f.AutoIncrement,
		})
		if f.ForeignKey != nil {
			t.ForeignKeys = append(t.ForeignKeys, ForeignKey{
				Column:       f.Column,
				RemoteTable:  f.ForeignKey.Table,
				RemoteColumn: f.ForeignKey.Column,
				OnDelete:     f.ForeignKey.OnDelete,
				OnUpdate:     f.ForeignKey.OnUpdate,
			})
		}
		if f.Unique {
			uniqueSingle[f.Column] = true
			t.Uniques = append(t.Uniques, Unique{Name: "uq_" + info.Name + "_" + f.Column, Columns: []string{f.Column}})
		}
		if f.IndexName != "" {
			t.Indexes = append(t.Indexes, Index{Name: f.IndexName, Columns: []string{f.Column}})
		}
	}
	return t
}
