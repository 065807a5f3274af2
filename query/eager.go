package query

import (
	"fmt"

	"github.com/sqlmodel/sqlmodel/model"
)

// IncludePath names one relationship to eager-load, by its
// RelationshipInfo.Name on the root record's table.
type IncludePath struct {
	Relationship string
}

// EagerLoader attaches a list of IncludePaths to a query and, given
// the root table's metadata and a way to resolve related tables'
// metadata, rewrites the query to add the necessary JOINs: one for
// Many/One-to-One, a single JOIN for One-to-Many, and two JOINs
// through the link table for Many-to-Many, aliasing every included
// column as `<table>__<column>` so the result decoder can rebuild
// nested records.
type EagerLoader struct {
	root     model.TableInfo
	registry *model.Registry
	paths    []IncludePath
}

func NewEagerLoader(root model.TableInfo, registry *model.Registry) *EagerLoader {
	return &EagerLoader{root: root, registry: registry}
}

func (e *EagerLoader) Include(paths ...string) *EagerLoader {
	for _, p := range paths {
		e.paths = append(e.paths, IncludePath{Relationship: p})
	}
	return e
}

// Paths exposes the configured include list, e.g. for the session's
// nested-row decoder.
func (e *EagerLoader) Paths() []IncludePath { return e.paths }

// Apply rewrites q in place: selecting the root table's own columns
// aliased `<table>__<column>`, adding one JOIN per relationship with
// its columns aliased the same way.
func (e *EagerLoader) Apply(q *SelectQuery) error {
	q.Select() // adds nothing; addAliasedColumns below makes the projection explicit, not `*`
	addAliasedColumns(q, e.root)

	for _, path := range e.paths {
		rel, ok := findRelationship(e.root, path.Relationship)
		if !ok {
			return fmt.Errorf("query: eager-load %q: no such relationship on table %q", path.Relationship, e.root.Name)
		}
		related, ok := e.registry.TableInfoByName(rel.RelatedTable)
		if !ok {
			return fmt.Errorf("query: eager-load %q: related table %q is not registered", path.Relationship, rel.RelatedTable)
		}

		switch rel.Kind {
		case model.OneToOne, model.ManyToOne, model.OneToMany:
			on := TableColumn(e.root.Name, rel.LocalColumn).Eq(TableColumn(rel.RelatedTable, rel.RemoteColumn))
			q.JoinAs(JoinLeft, rel.RelatedTable, rel.RelatedTable, on)
			addAliasedColumns(q, related)
		case model.ManyToMany:
			if rel.Link == nil {
				return fmt.Errorf("query: eager-load %q: ManyToMany relationship missing link table", path.Relationship)
			}
			linkAlias := rel.Link.Table
			onLink := TableColumn(e.root.Name, rel.LocalColumn).Eq(TableColumn(linkAlias, rel.Link.LocalColumn))
			q.JoinAs(JoinLeft, rel.Link.Table, linkAlias, onLink)
			onTarget := TableColumn(linkAlias, rel.Link.RemoteColumn).Eq(TableColumn(rel.RelatedTable, rel.RemoteColumn))
			q.JoinAs(JoinLeft, rel.RelatedTable, rel.RelatedTable, onTarget)
			addAliasedColumns(q, related)
		}
	}
	return nil
}

// addAliasedColumns projects every non-skipped column of a table
// aliased `<table>__<column>`.
func addAliasedColumns(q *SelectQuery, t model.TableInfo) {
	for _, f := range t.Fields {
		if f.Skip {
			continue
		}
		q.SelectAs(TableColumn(t.Name, f.Column), t.Name+"__"+f.Column)
	}
}

func findRelationship(t model.TableInfo, name string) (model.RelationshipInfo, bool) {
	for _, r := range t.Relationships {
		if r.Name == name {
			return r, true
		}
	}
	return model.RelationshipInfo{}, false
}
