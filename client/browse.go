package client

import (
	"context"
	"fmt"

	"github.com/gopcua/opcua/id"
	"github.com/gopcua/opcua/ua"

	opcuabridge "github.com/wippyai/opcua-bridge"
)

// MaxReferencesPerNode caps each Browse and BrowseNext page.
const MaxReferencesPerNode = 1000

// Reference is one child returned by Browse.
type Reference struct {
	DisplayName string
	BrowseName  string
	NodeID      string
	Class       ua.NodeClass
}

// Record converts the reference to the host record layout.
func (r Reference) Record() opcuabridge.Record {
	return opcuabridge.Record{
		Class:       uint32(r.Class),
		DisplayName: r.DisplayName,
		NodeID:      r.NodeID,
	}
}

func hierarchical(node *ua.NodeID) *ua.BrowseDescription {
	return &ua.BrowseDescription{
		NodeID:          node,
		BrowseDirection: ua.BrowseDirectionForward,
		ReferenceTypeID: ua.NewNumericNodeID(0, id.HierarchicalReferences),
		IncludeSubtypes: true,
		NodeClassMask:   0,
		ResultMask:      uint32(ua.BrowseResultMaskAll),
	}
}

// Browse lists the forward hierarchical references of a node, following
// continuation points until the server has returned every child. A node
// with no children yields an empty, non-nil slice.
func (s *Session) Browse(ctx context.Context, ref NodeRef) ([]Reference, error) {
	node, err := s.resolve(ref)
	if err != nil {
		return nil, err
	}

	resp, err := s.transport.Browse(ctx, &ua.BrowseRequest{
		View:                          &ua.ViewDescription{ViewID: ua.NewTwoByteNodeID(0)},
		RequestedMaxReferencesPerNode: MaxReferencesPerNode,
		NodesToBrowse:                 []*ua.BrowseDescription{hierarchical(node)},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrBrowseFailed, node, err)
	}
	if resp == nil || len(resp.Results) == 0 || resp.Results[0] == nil {
		return nil, fmt.Errorf("%w: %s: empty response", ErrBrowseFailed, node)
	}

	refs := make([]Reference, 0)
	res := resp.Results[0]
	for {
		if res.StatusCode != ua.StatusOK {
			return nil, fmt.Errorf("%w: %s: status 0x%08X", ErrBrowseFailed, node, uint32(res.StatusCode))
		}
		refs = appendReferences(refs, res.References)
		if len(res.ContinuationPoint) == 0 {
			return refs, nil
		}

		next, err := s.transport.BrowseNext(ctx, &ua.BrowseNextRequest{
			ContinuationPoints: [][]byte{res.ContinuationPoint},
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %s: browse next: %w", ErrBrowseFailed, node, err)
		}
		if next == nil || len(next.Results) == 0 || next.Results[0] == nil {
			return nil, fmt.Errorf("%w: %s: empty browse next response", ErrBrowseFailed, node)
		}
		res = next.Results[0]
	}
}

func appendReferences(out []Reference, refs []*ua.ReferenceDescription) []Reference {
	for _, rd := range refs {
		if rd == nil {
			continue
		}
		r := Reference{Class: rd.NodeClass}
		if rd.DisplayName != nil {
			r.DisplayName = rd.DisplayName.Text
		}
		if rd.BrowseName != nil {
			r.BrowseName = rd.BrowseName.Name
		}
		if rd.NodeID != nil && rd.NodeID.NodeID != nil {
			r.NodeID = rd.NodeID.NodeID.String()
		}
		if r.DisplayName == "" {
			r.DisplayName = r.BrowseName
		}
		out = append(out, r)
	}
	return out
}
