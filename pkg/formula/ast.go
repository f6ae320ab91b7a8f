package formula

// Node is a formula AST node. Every node records its byte offset in the
// source so type and reference errors can point at the offending spot.
type Node interface {
	Pos() int
}

// NumberLit is a numeric literal.
type NumberLit struct {
	pos   int
	Value string
}

// Pos returns the node's source offset.
func (n *NumberLit) Pos() int { return n.pos }

// StringLit is a double-quoted string literal.
type StringLit struct {
	pos   int
	Value string
}

// Pos returns the node's source offset.
func (n *StringLit) Pos() int { return n.pos }

// BoolLit is TRUE or FALSE.
type BoolLit struct {
	pos   int
	Value bool
}

// Pos returns the node's source offset.
func (n *BoolLit) Pos() int { return n.pos }

// FieldRef is a bare identifier resolved against the table's fields,
// including the implicit system fields.
type FieldRef struct {
	pos  int
	Name string
}

// Pos returns the node's source offset.
func (n *FieldRef) Pos() int { return n.pos }

// Unary is a prefix operator application: unary minus or NOT.
type Unary struct {
	pos int
	Op  string
	X   Node
}

// Pos returns the node's source offset.
func (n *Unary) Pos() int { return n.pos }

// Binary is an infix operator application.
type Binary struct {
	pos int
	Op  string
	X   Node
	Y   Node
}

// Pos returns the node's source offset.
func (n *Binary) Pos() int { return n.pos }

// Call applies one of the built-in functions.
type Call struct {
	pos  int
	Name string
	Args []Node
}

// Pos returns the node's source offset.
func (n *Call) Pos() int { return n.pos }

// walkRefs calls fn for every field reference in the tree.
func walkRefs(n Node, fn func(*FieldRef)) {
	switch x := n.(type) {
	case *FieldRef:
		fn(x)
	case *Unary:
		walkRefs(x.X, fn)
	case *Binary:
		walkRefs(x.X, fn)
		walkRefs(x.Y, fn)
	case *Call:
		for _, arg := range x.Args {
			walkRefs(arg, fn)
		}
	}
}
