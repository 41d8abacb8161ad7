package transpose

// Invalid is the field-projection tree's sentinel parent/child id
// (spec.md §4.4.5).
const Invalid uint32 = 1<<32 - 1

// IncludeType says how much of a projected path's terminal field the
// decoder should materialize.
type IncludeType byte

const (
	// Fully includes the field and (if it is a submessage) everything
	// beneath it.
	Fully IncludeType = iota
	// ChildOnly includes the field only insofar as narrower paths below
	// it say to; the field itself carries no direct inclusion.
	ChildOnly
	// ExistenceOnly includes the field as a zero-valued placeholder,
	// proving it was present without reproducing its value.
	ExistenceOnly
)

type projectionKey struct {
	parent uint32
	field  uint32
}

type projectionNode struct {
	id      uint32
	include IncludeType
}

// FieldProjection is a set of field-number paths, each optionally
// terminated by ExistenceOnly, forming a tree keyed by
// (parent_id, field_number) -> (child_id, include_type) (spec.md
// §4.4.5). The zero value means "include everything."
type FieldProjection struct {
	nodes  map[projectionKey]projectionNode
	nextID uint32
}

// NewFieldProjection returns an empty projection tree.
func NewFieldProjection() *FieldProjection {
	return &FieldProjection{nodes: map[projectionKey]projectionNode{}}
}

// Empty reports whether the projection has no paths at all, in which
// case every field is included.
func (p *FieldProjection) Empty() bool {
	return p == nil || len(p.nodes) == 0
}

// AddPath records one path of field numbers as fully included, or, if
// existenceOnly is true, included only to prove the terminal field's
// presence.
func (p *FieldProjection) AddPath(fields []uint32, existenceOnly bool) {
	parent := Invalid
	for i, f := range fields {
		key := projectionKey{parent: parent, field: f}
		last := i == len(fields)-1
		want := Fully
		if last && existenceOnly {
			want = ExistenceOnly
		} else if !last {
			want = ChildOnly
		}
		n, ok := p.nodes[key]
		if !ok {
			n = projectionNode{id: p.nextID}
			p.nextID++
		}
		// A later, more permissive request (Fully) upgrades an earlier
		// ChildOnly placeholder created by a longer sibling path.
		if !ok || want == Fully || (want == ExistenceOnly && n.include == ChildOnly) {
			n.include = want
		}
		p.nodes[key] = n
		parent = n.id
	}
}

// Resolve looks up how field f should be treated given the current
// submessage path's projection node id (Invalid at the root).
func (p *FieldProjection) Resolve(parent uint32, f uint32) (childID uint32, include IncludeType, found bool) {
	if p.Empty() {
		return Invalid, Fully, true
	}
	n, ok := p.nodes[projectionKey{parent: parent, field: f}]
	if !ok {
		return Invalid, 0, false
	}
	return n.id, n.include, true
}
