// Package tree renders plans as indented trees.
package tree

// Property is a key-value pair printed next to the name of a [Node], as
// `key=value` or, for multi-value properties, `key=(value1, value2)`.
type Property struct {
	Key          string
	Values       []any
	IsMultiValue bool
}

// NewProperty returns a property. multi controls whether the values are
// printed as a parenthesised list even when there is only one.
func NewProperty(key string, multi bool, values ...any) Property {
	return Property{Key: key, Values: values, IsMultiValue: multi}
}

// Node is an element of a printable tree.
type Node struct {
	ID         string
	Name       string
	Properties []Property
	Children   []*Node
	// Comments are printed one level deeper than Children, directly below
	// the node. Plans use them to show the expressions of a node.
	Comments []*Node
}

// NewNode returns a node without children.
func NewNode(name, id string, properties ...Property) *Node {
	return &Node{ID: id, Name: name, Properties: properties}
}

// AddChild creates a node and appends it to the children of n.
func (n *Node) AddChild(name, id string, properties []Property) *Node {
	child := NewNode(name, id, properties...)
	n.Children = append(n.Children, child)
	return child
}

// AddComment creates a node and appends it to the comments of n.
func (n *Node) AddComment(name, id string, properties []Property) *Node {
	node := NewNode(name, id, properties...)
	n.Comments = append(n.Comments, node)
	return node
}
