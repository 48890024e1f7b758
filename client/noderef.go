package client

import (
	"fmt"

	"github.com/gopcua/opcua/ua"
)

// NodeKind selects how a NodeRef identifies its node.
type NodeKind int32

const (
	NodeKindNumeric NodeKind = 1
	NodeKindString  NodeKind = 2
	NodeKindText    NodeKind = 3
)

// NodeRef is a node id as the host passes it: a kind tag plus a namespace
// and either a numeric or a string identifier. Kind 3 carries a complete
// textual node id such as "ns=1;s=Temp" in Text.
type NodeRef struct {
	Text      string
	Kind      NodeKind
	Numeric   uint32
	Namespace uint16
}

// NumericNode refers to a numeric node id.
func NumericNode(ns uint16, id uint32) NodeRef {
	return NodeRef{Kind: NodeKindNumeric, Namespace: ns, Numeric: id}
}

// StringNode refers to a string node id.
func StringNode(ns uint16, id string) NodeRef {
	return NodeRef{Kind: NodeKindString, Namespace: ns, Text: id}
}

// TextNode refers to a node by its textual form.
func TextNode(s string) NodeRef {
	return NodeRef{Kind: NodeKindText, Text: s}
}

// NodeID resolves the reference.
func (r NodeRef) NodeID() (*ua.NodeID, error) {
	switch r.Kind {
	case NodeKindNumeric:
		return ua.NewNumericNodeID(r.Namespace, r.Numeric), nil
	case NodeKindString:
		return ua.NewStringNodeID(r.Namespace, r.Text), nil
	case NodeKindText:
		id, err := ua.ParseNodeID(r.Text)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %w", ErrInvalidNodeID, r.Text, err)
		}
		return id, nil
	}
	return nil, fmt.Errorf("%w: got %d", ErrInvalidNodeKind, r.Kind)
}

func (r NodeRef) String() string {
	id, err := r.NodeID()
	if err != nil {
		return fmt.Sprintf("invalid(%d)", r.Kind)
	}
	return id.String()
}
