// Package tree renders hierarchical structures, such as parsed plans, as
// human-readable text.
package tree

// Property is a key-value pair attached to a [Node]. Multi-value properties
// are printed as `key=(v1, v2)`, single values as `key=value`.
type Property struct {
	Key          string
	Values       []any
	IsMultiValue bool
}

// NewProperty creates a new Property. The multi parameter marks the property
// as a multi-value property.
func NewProperty(key string, multi bool, values ...any) Property {
	return Property{
		Key:          key,
		Values:       values,
		IsMultiValue: multi,
	}
}

// Node is a vertex of a printable tree.
type Node struct {
	// ID uniquely identifies the node. It is not printed.
	ID string
	// Name is printed first on the node's line.
	Name       string
	Properties []Property
	Children   []*Node
}

// NewNode creates a new node with the given name, identifier and properties.
func NewNode(name, id string, properties ...Property) *Node {
	return &Node{
		ID:         id,
		Name:       name,
		Properties: properties,
	}
}

// AddChild creates a new node and appends it to the children of n.
func (n *Node) AddChild(name, id string, properties []Property) *Node {
	child := NewNode(name, id, properties...)
	n.Children = append(n.Children, child)
	return child
}
