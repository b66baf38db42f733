// Package backref resolves back-reference expressions in specification
// values against the results of calls that already ran.
//
// Two forms are recognised inside string values:
//
//	${{ jq-expression }}   evaluated with gojq
//	{{ .dotted.path }}     shorthand for the jq path of the same name
//
// Both run against the lookup document of a Table:
//
//	{
//	  "self":     <snapshot of the current call>,
//	  "parent":   <snapshot of the enclosing call>,
//	  "children": {"<name>": <snapshot>, ...},
//	  "siblings": {"<name>": <snapshot>, ...}
//	}
package backref

import (
	"github.com/tombee/apiscenario/pkg/tree"
)

// Table is an immutable view of the snapshots visible from one call.
// The With* methods return modified copies.
type Table struct {
	self     tree.Value
	parent   tree.Value
	children *tree.Map
	siblings *tree.Map
}

// Empty returns a table with nothing in scope.
func Empty() Table {
	return Table{children: tree.NewMap(), siblings: tree.NewMap()}
}

// WithSelf returns a copy of t with the current call's snapshot set.
func (t Table) WithSelf(snapshot tree.Value) Table {
	t.self = snapshot
	return t
}

// WithChild returns a copy of t with a completed child call added under
// name. A repeated name replaces the earlier snapshot.
func (t Table) WithChild(name string, snapshot tree.Value) Table {
	t.children = cloneOrNew(t.children)
	t.children.Set(name, snapshot)
	return t
}

// ForChild returns the view a dependent call of t's owner gets: the owner
// becomes the parent and the owner's completed children become siblings.
func (t Table) ForChild() Table {
	return Table{
		parent:   t.self,
		children: tree.NewMap(),
		siblings: cloneOrNew(t.children),
	}
}

// Child returns the snapshot of a completed child call.
func (t Table) Child(name string) (tree.Value, bool) {
	if t.children == nil {
		return tree.Null(), false
	}
	return t.children.Get(name)
}

// Document returns the lookup document expressions run against.
func (t Table) Document() tree.Value {
	doc := tree.NewMap()
	doc.Set("self", t.self)
	doc.Set("parent", t.parent)
	doc.Set("children", tree.MapOf(cloneOrNew(t.children)))
	doc.Set("siblings", tree.MapOf(cloneOrNew(t.siblings)))
	return tree.MapOf(doc)
}

func cloneOrNew(m *tree.Map) *tree.Map {
	if m == nil {
		return tree.NewMap()
	}
	return m.Clone()
}
