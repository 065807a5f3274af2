package session

import (
	"fmt"
	"sort"

	"github.com/sqlmodel/sqlmodel/model"
)

// PlannedStep is one statement-shaped unit of the flush order: either
// a PendingOp to execute as-is, or (for a cyclic FK edge) a
// synthetic follow-up update setting the real FK value after both
// rows exist.
type PlannedStep struct {
	Op           *PendingOp
	DeferColumns []string // for a synthetic post-insert FK fix-up step
	DeferTable   string
	DeferPK      []string
}

// tableGraph is the FK dependency graph used to order inserts/deletes:
// an edge child -> parent exists for every non-nullable or nullable
// FK from child to parent.
type tableGraph struct {
	registry *model.Registry
	// dependsOn[table] = set of tables `table` has a FK into.
	dependsOn map[string]map[string]bool
}

func buildTableGraph(registry *model.Registry, tables []string) *tableGraph {
	g := &tableGraph{registry: registry, dependsOn: make(map[string]map[string]bool)}
	for _, t := range tables {
		g.dependsOn[t] = make(map[string]bool)
		info, ok := registry.TableInfoByName(t)
		if !ok {
			continue
		}
		for _, f := range info.Fields {
			if f.Skip || f.ForeignKey == nil {
				continue
			}
			if f.ForeignKey.Table == t {
				continue // self-referential: not an inter-table ordering constraint
			}
			g.dependsOn[t][f.ForeignKey.Table] = true
		}
	}
	return g
}

// topoOrder returns tables ordered parent-before-child (insert order).
// Tables involved in a cycle are returned in the trailing cycleTables
// slice, in no particular order, for the caller to handle specially.
func (g *tableGraph) topoOrder() (order []string, cycleTables []string) {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(g.dependsOn))
	tables := make([]string, 0, len(g.dependsOn))
	for t := range g.dependsOn {
		tables = append(tables, t)
	}
	sort.Strings(tables)

	inCycle := make(map[string]bool)
	var visit func(t string, stack []string) bool
	visit = func(t string, stack []string) bool {
		color[t] = gray
		deps := make([]string, 0, len(g.dependsOn[t]))
		for d := range g.dependsOn[t] {
			deps = append(deps, d)
		}
		sort.Strings(deps)
		for _, d := range deps {
			if _, known := g.dependsOn[d]; !known {
				continue
			}
			switch color[d] {
			case white:
				if visit(d, append(stack, t)) {
					inCycle[t] = true
				}
			case gray:
				inCycle[t] = true
				inCycle[d] = true
			}
		}
		color[t] = black
		if !inCycle[t] {
			order = append(order, t)
		}
		return inCycle[t]
	}
	for _, t := range tables {
		if color[t] == white {
			visit(t, nil)
		}
	}
	for _, t := range tables {
		if inCycle[t] {
			cycleTables = append(cycleTables, t)
		}
	}
	return order, cycleTables
}

// planFlush orders pending ops:
//  1. Inserts in FK order (parents before children).
//  2. Updates (emitted in the same relative order as scheduled).
//  3. Deletes in reverse FK order (children before parents).
//  4. Link-table ops scheduled among updates, cascade deletes
//     immediately before their parent's delete.
//
// Cyclic FK graphs: each cycle edge's child row is first
// inserted with that FK column NULL (the FK must be nullable), then a
// synthetic PlannedStep updates it once every row in the cycle exists.
// A non-nullable cyclic FK is a plan-time error.
func planFlush(registry *model.Registry, ops []*PendingOp) ([]PlannedStep, error) {
	var inserts, updates, deletes []*PendingOp
	for _, op := range ops {
		switch op.Kind {
		case OpInsert:
			inserts = append(inserts, op)
		case OpUpdate:
			updates = append(updates, op)
		case OpDelete:
			deletes = append(deletes, op)
		case OpLinkAdd, OpLinkRemove:
			updates = append(updates, op)
		}
	}

	tableSet := map[string]bool{}
	for _, op := range ops {
		if op.Table != "" {
			tableSet[op.Table] = true
		}
	}
	tables := make([]string, 0, len(tableSet))
	for t := range tableSet {
		tables = append(tables, t)
	}
	graph := buildTableGraph(registry, tables)
	order, cycleTables := graph.topoOrder()

	rank := make(map[string]int, len(order))
	for i, t := range order {
		rank[t] = i
	}
	inCycle := make(map[string]bool, len(cycleTables))
	for _, t := range cycleTables {
		inCycle[t] = true
	}

	var steps []PlannedStep

	sortStable(inserts, rank)
	for _, op := range inserts {
		if !inCycle[op.Table] {
			steps = append(steps, PlannedStep{Op: op})
			continue
		}
		// Cyclic table: insert with its cycle-edge FK column(s) forced
		// NULL, schedule a synthetic fix-up update afterward.
		info, _ := registry.TableInfoByName(op.Table)
		var deferCols []string
		for _, f := range info.Fields {
			if f.Skip || f.ForeignKey == nil || f.ForeignKey.Table == op.Table {
				continue
			}
			if !inCycle[f.ForeignKey.Table] {
				continue
			}
			if !f.Nullable {
				return nil, fmt.Errorf("session: cyclic foreign key %s.%s -> %s is not nullable, cannot break the cycle", op.Table, f.Column, f.ForeignKey.Table)
			}
			deferCols = append(deferCols, f.Column)
		}
		steps = append(steps, PlannedStep{Op: op, DeferColumns: deferCols, DeferTable: op.Table})
	}
	// Emit the deferred fix-up updates after every cyclic insert has
	// run, so every referenced row already exists.
	for _, st := range steps {
		if len(st.DeferColumns) == 0 || st.Op == nil {
			continue
		}
		fixup := &PendingOp{Kind: OpUpdate, Handle: st.Op.Handle, Table: st.DeferTable, Columns: st.DeferColumns}
		steps = append(steps, PlannedStep{Op: fixup})
	}

	sortStable(updates, rank)
	for _, op := range updates {
		steps = append(steps, PlannedStep{Op: op})
	}

	// Deletes run children-before-parents: reverse of the insert rank.
	sortStableReverse(deletes, rank)
	for _, op := range deletes {
		steps = append(steps, PlannedStep{Op: op})
	}

	return steps, nil
}

func opPKString(op *PendingOp) string {
	if op.Handle == nil {
		return ""
	}
	var s string
	op.Handle.With(func(rec model.Record) {
		pk, err := rec.PrimaryKeyValues()
		if err != nil {
			return
		}
		for _, v := range pk {
			s += v.String() + "|"
		}
	})
	return s
}

// sortStable orders ops by FK rank, then ties break by
// (table name, PK string) for determinism.
func sortStable(ops []*PendingOp, rank map[string]int) {
	sort.SliceStable(ops, func(i, j int) bool {
		ri, rj := rank[ops[i].Table], rank[ops[j].Table]
		if ri != rj {
			return ri < rj
		}
		if ops[i].Table != ops[j].Table {
			return ops[i].Table < ops[j].Table
		}
		return opPKString(ops[i]) < opPKString(ops[j])
	})
}

func sortStableReverse(ops []*PendingOp, rank map[string]int) {
	sort.SliceStable(ops, func(i, j int) bool {
		ri, rj := rank[ops[i].Table], rank[ops[j].Table]
		if ri != rj {
			return ri > rj
		}
		if ops[i].Table != ops[j].Table {
			return ops[i].Table < ops[j].Table
		}
		return opPKString(ops[i]) < opPKString(ops[j])
	})
}
