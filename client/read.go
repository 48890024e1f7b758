package client

import (
	"context"
	"fmt"
	"strings"

	"github.com/gopcua/opcua/ua"

	"github.com/wippyai/opcua-bridge/scalar"
)

func (s *Session) resolve(ref NodeRef) (*ua.NodeID, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	return ref.NodeID()
}

func (s *Session) read(ctx context.Context, id *ua.NodeID, attrs ...ua.AttributeID) ([]*ua.DataValue, error) {
	nodes := make([]*ua.ReadValueID, len(attrs))
	for i, a := range attrs {
		nodes[i] = &ua.ReadValueID{NodeID: id, AttributeID: a}
	}
	resp, err := s.transport.Read(ctx, &ua.ReadRequest{
		NodesToRead:        nodes,
		TimestampsToReturn: ua.TimestampsToReturnBoth,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrReadFailed, id, err)
	}
	if resp == nil || len(resp.Results) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoResult, id)
	}
	return resp.Results, nil
}

// ReadValue reads the Value attribute of a node.
func (s *Session) ReadValue(ctx context.Context, ref NodeRef) (*ua.DataValue, error) {
	id, err := s.resolve(ref)
	if err != nil {
		return nil, err
	}
	results, err := s.read(ctx, id, ua.AttributeIDValue)
	if err != nil {
		return nil, err
	}
	dv := results[0]
	if dv == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoResult, id)
	}
	if dv.Status != ua.StatusOK {
		return nil, fmt.Errorf("%w: %s: status 0x%08X", ErrReadFailed, id, uint32(dv.Status))
	}
	if dv.Value == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoValue, id)
	}
	return dv, nil
}

// ReadScalar reads a node's value as exactly type t. A stored value of any
// other type fails with scalar.ErrTypeMismatch; nothing is coerced.
func (s *Session) ReadScalar(ctx context.Context, ref NodeRef, t scalar.Type) (any, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("%w: %d", scalar.ErrInvalidType, uint8(t))
	}
	dv, err := s.ReadValue(ctx, ref)
	if err != nil {
		return nil, err
	}
	return scalar.FromVariant(ref.String(), dv.Value, t)
}

// Read reads a node's value as T.
func Read[T scalar.Value](ctx context.Context, s *Session, ref NodeRef) (T, error) {
	var zero T
	v, err := s.ReadScalar(ctx, ref, scalar.TypeOf[T]())
	if err != nil {
		return zero, err
	}
	return scalar.As[T](v)
}

// WriteScalar writes v, which must have Go type matching t, to a node's
// Value attribute.
func (s *Session) WriteScalar(ctx context.Context, ref NodeRef, t scalar.Type, v any) error {
	id, err := s.resolve(ref)
	if err != nil {
		return err
	}
	variant, err := scalar.Variant(v, t)
	if err != nil {
		return err
	}

	resp, err := s.transport.Write(ctx, &ua.WriteRequest{
		NodesToWrite: []*ua.WriteValue{{
			NodeID:      id,
			AttributeID: ua.AttributeIDValue,
			Value: &ua.DataValue{
				EncodingMask: ua.DataValueValue,
				Value:        variant,
			},
		}},
	})
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrWriteFailed, id, err)
	}
	if resp == nil || len(resp.Results) == 0 {
		return fmt.Errorf("%w: %s", ErrNoResult, id)
	}
	if st := resp.Results[0]; st != ua.StatusOK {
		return fmt.Errorf("%w: %s: status 0x%08X", ErrWriteFailed, id, uint32(st))
	}
	return nil
}

// Write writes v to a node's Value attribute.
func Write[T scalar.Value](ctx context.Context, s *Session, ref NodeRef, v T) error {
	return s.WriteScalar(ctx, ref, scalar.TypeOf[T](), v)
}

var infoAttributes = []struct {
	name string
	id   ua.AttributeID
}{
	{"Value", ua.AttributeIDValue},
	{"DisplayName", ua.AttributeIDDisplayName},
	{"BrowseName", ua.AttributeIDBrowseName},
}

// NodeInfo reads the Value, DisplayName and BrowseName attributes and
// renders one line per attribute. A failing attribute is reported on its
// own line; only a failed request fails the call.
func (s *Session) NodeInfo(ctx context.Context, ref NodeRef) (string, error) {
	id, err := s.resolve(ref)
	if err != nil {
		return "", err
	}
	attrs := make([]ua.AttributeID, len(infoAttributes))
	for i, a := range infoAttributes {
		attrs[i] = a.id
	}
	results, err := s.read(ctx, id, attrs...)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Node: %s\n", id)
	for i, a := range infoAttributes {
		b.WriteString(a.name)
		b.WriteString(": ")
		if i >= len(results) || results[i] == nil {
			b.WriteString("<no result>\n")
			continue
		}
		dv := results[i]
		if dv.Status != ua.StatusOK {
			fmt.Fprintf(&b, "<error: status 0x%08X>\n", uint32(dv.Status))
			continue
		}
		b.WriteString(formatVariant(dv.Value))
		b.WriteByte('\n')
	}
	return b.String(), nil
}

func formatVariant(v *ua.Variant) string {
	if v == nil || v.Value() == nil {
		return "<empty>"
	}
	switch x := v.Value().(type) {
	case *ua.LocalizedText:
		return x.Text
	case *ua.QualifiedName:
		return fmt.Sprintf("%d:%s", x.NamespaceIndex, x.Name)
	case string:
		return fmt.Sprintf("%q (String)", x)
	}
	if t, ok := scalar.FromTypeID(v.Type()); ok {
		return fmt.Sprintf("%v (%s)", v.Value(), t)
	}
	return fmt.Sprintf("%v", v.Value())
}
