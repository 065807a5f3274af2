package main

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/sqlmodel/sqlmodel/model"
	"github.com/sqlmodel/sqlmodel/schema"
)

// schemaFile is the YAML shape schema:diff expects for the target
// schema. A minimal example:
//
//	tables:
//	  - name: users
//	    primary_key: [id]
//	    columns:
//	      - {name: id, type: BIGINT, auto_increment: true}
//	      - {name: email, type: VARCHAR(255), unique: true}
//	      - {name: team_id, type: BIGINT, nullable: true,
//	         references: teams.id, on_delete: SET NULL}
type schemaFile struct {
	Tables []tableFile `yaml:"tables"`
}

type tableFile struct {
	Name       string       `yaml:"name"`
	PrimaryKey []string     `yaml:"primary_key"`
	Columns    []columnFile `yaml:"columns"`
	Indexes    []indexFile  `yaml:"indexes"`
}

type columnFile struct {
	Name          string `yaml:"name"`
	Type          string `yaml:"type"`
	Nullable      bool   `yaml:"nullable"`
	Default       string `yaml:"default"`
	AutoIncrement bool   `yaml:"auto_increment"`
	Unique        bool   `yaml:"unique"`
	References    string `yaml:"references"` // "table.column"
	OnDelete      string `yaml:"on_delete"`
	OnUpdate      string `yaml:"on_update"`
}

type indexFile struct {
	Name    string   `yaml:"name"`
	Columns []string `yaml:"columns"`
	Unique  bool     `yaml:"unique"`
}

func loadExpectedSchema(path string) (schema.DatabaseSchema, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return schema.DatabaseSchema{}, fmt.Errorf("reading expected schema: %w", err)
	}
	var sf schemaFile
	if err := yaml.Unmarshal(raw, &sf); err != nil {
		return schema.DatabaseSchema{}, fmt.Errorf("parsing expected schema: %w", err)
	}

	var out schema.DatabaseSchema
	for _, tf := range sf.Tables {
		t := schema.Table{Name: tf.Name, PrimaryKey: tf.PrimaryKey}
		pkSet := make(map[string]bool, len(tf.PrimaryKey))
		for _, pk := range tf.PrimaryKey {
			pkSet[pk] = true
		}
		for _, cf := range tf.Columns {
			t.Columns = append(t.Columns, schema.Column{
				Name:          cf.Name,
				SQLType:       cf.Type,
				Nullable:      cf.Nullable,
				Default:       cf.Default,
				PrimaryKey:    pkSet[cf.Name],
				AutoIncrement: cf.AutoIncrement,
			})
			if cf.Unique {
				t.Uniques = append(t.Uniques, schema.Unique{
					Name:    "uq_" + tf.Name + "_" + cf.Name,
					Columns: []string{cf.Name},
				})
			}
			if cf.References != "" {
				remoteTable, remoteColumn, ok := strings.Cut(cf.References, ".")
				if !ok {
					return schema.DatabaseSchema{}, fmt.Errorf("table %s column %s: references must be table.column, got %q", tf.Name, cf.Name, cf.References)
				}
				t.ForeignKeys = append(t.ForeignKeys, schema.ForeignKey{
					Column:       cf.Name,
					RemoteTable:  remoteTable,
					RemoteColumn: remoteColumn,
					OnDelete:     parseAction(cf.OnDelete),
					OnUpdate:     parseAction(cf.OnUpdate),
				})
			}
		}
		for _, idx := range tf.Indexes {
			if idx.Unique {
				t.Uniques = append(t.Uniques, schema.Unique{Name: idx.Name, Columns: idx.Columns})
			} else {
				t.Indexes = append(t.Indexes, schema.Index{Name: idx.Name, Columns: idx.Columns})
			}
		}
		out.Tables = append(out.Tables, t)
	}
	return out, nil
}

func parseAction(s string) model.ReferentialAction {
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
