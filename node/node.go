// Package node provides the in-memory protocol tree exchanged with the
// outer messaging client.
//
// A Node is a tagged element with string attributes, optional binary
// content and child elements. The outer client parses inbound control
// messages into this form and serializes outbound ones; this package only
// covers construction and lookup, never the wire format.
package node

import (
	"fmt"
	"strconv"
)

// Node is a single tagged element of a control message tree.
type Node struct {
	Tag      string
	Attrs    map[string]string
	Content  []byte
	Children []*Node
}

// New creates a node with the given tag and no attributes, content or
// children. Builder-style methods return the node itself so trees can be
// assembled in one expression.
func New(tag string) *Node {
	return &Node{
		Tag:   tag,
		Attrs: make(map[string]string),
	}
}

// Attr sets a string attribute and returns the node.
func (n *Node) Attr(key, value string) *Node {
	n.Attrs[key] = value
	return n
}

// Bytes sets the binary content and returns the node. Content and
// children are mutually exclusive on the wire; callers set one or the
// other.
func (n *Node) Bytes(content []byte) *Node {
	n.Content = content
	return n
}

// Child appends child nodes and returns the node.
func (n *Node) Child(children ...*Node) *Node {
	n.Children = append(n.Children, children...)
	return n
}

// GetAttr returns the attribute value, or def when the attribute is
// absent.
func (n *Node) GetAttr(key, def string) string {
	if v, ok := n.Attrs[key]; ok {
		return v
	}
	return def
}

// RequiredAttr returns the attribute value or an error when it is absent.
// Callers handling inbound messages treat the error as a malformed
// message and abort only that message's handling.
func (n *Node) RequiredAttr(key string) (string, error) {
	v, ok := n.Attrs[key]
	if !ok {
		return "", fmt.Errorf("node %q: missing required attribute %q", n.Tag, key)
	}
	return v, nil
}

// HasAttr reports whether the attribute is present, regardless of value.
func (n *Node) HasAttr(key string) bool {
	_, ok := n.Attrs[key]
	return ok
}

// AttrEquals reports whether the attribute is present with exactly the
// given value.
func (n *Node) AttrEquals(key, value string) bool {
	v, ok := n.Attrs[key]
	return ok && v == value
}

// GetAttrInt64 returns the attribute parsed as a base-10 integer, or def
// when the attribute is absent or not numeric.
func (n *Node) GetAttrInt64(key string, def int64) int64 {
	v, ok := n.Attrs[key]
	if !ok {
		return def
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return def
	}
	return i
}

// GetChild returns the first child with the given tag.
func (n *Node) GetChild(tag string) (*Node, bool) {
	for _, c := range n.Children {
		if c.Tag == tag {
			return c, true
		}
	}
	return nil, false
}

// GetChildren returns every child with the given tag, in document order.
func (n *Node) GetChildren(tag string) []*Node {
	var out []*Node
	for _, c := range n.Children {
		if c.Tag == tag {
			out = append(out, c)
		}
	}
	return out
}

// HasChild reports whether a child with the given tag exists.
func (n *Node) HasChild(tag string) bool {
	_, ok := n.GetChild(tag)
	return ok
}

// FirstChild returns the first child of the node, if any.
func (n *Node) FirstChild() (*Node, bool) {
	if len(n.Children) == 0 {
		return nil, false
	}
	return n.Children[0], true
}

// ContentBytes returns the binary content, or false when the node has
// none.
func (n *Node) ContentBytes() ([]byte, bool) {
	if n.Content == nil {
		return nil, false
	}
	return n.Content, true
}

// ContentString returns the content interpreted as text, or false when
// the node has none.
func (n *Node) ContentString() (string, bool) {
	if n.Content == nil {
		return "", false
	}
	return string(n.Content), true
}
