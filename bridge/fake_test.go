package bridge

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gopcua/opcua"
	"github.com/gopcua/opcua/ua"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/opcua-bridge/client"
	"github.com/wippyai/opcua-bridge/config"
)

const statusBadNodeIDUnknown = ua.StatusCode(0x80340000)

// memTransport serves a flat map of node values and folder children.
type memTransport struct {
	values   map[string]*ua.Variant
	children map[string][]*ua.NodeID
	subs     map[uint32]*memSubscription
	mu       sync.Mutex
	nextSub  uint32
	state    opcua.ConnState
}

func newMemTransport() *memTransport {
	return &memTransport{
		values:   make(map[string]*ua.Variant),
		children: make(map[string][]*ua.NodeID),
		subs:     make(map[uint32]*memSubscription),
		state:    opcua.Disconnected,
	}
}

func (m *memTransport) set(id *ua.NodeID, v any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[id.String()] = ua.MustVariant(v)
}

func (m *memTransport) folder(id *ua.NodeID, children ...*ua.NodeID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.children[id.String()] = children
}

func (m *memTransport) Connect(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = opcua.Connected
	return nil
}

func (m *memTransport) Close(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = opcua.Closed
	return nil
}

func (m *memTransport) State() opcua.ConnState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *memTransport) Read(_ context.Context, req *ua.ReadRequest) (*ua.ReadResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	resp := &ua.ReadResponse{}
	for _, rv := range req.NodesToRead {
		v, ok := m.values[rv.NodeID.String()]
		switch {
		case !ok:
			resp.Results = append(resp.Results, &ua.DataValue{Status: statusBadNodeIDUnknown})
		case rv.AttributeID == ua.AttributeIDValue:
			resp.Results = append(resp.Results, &ua.DataValue{Value: v})
		case rv.AttributeID == ua.AttributeIDDisplayName:
			resp.Results = append(resp.Results, &ua.DataValue{Value: ua.MustVariant(&ua.LocalizedText{Text: rv.NodeID.StringID()})})
		default:
			resp.Results = append(resp.Results, &ua.DataValue{
				Value: ua.MustVariant(&ua.QualifiedName{NamespaceIndex: rv.NodeID.Namespace(), Name: rv.NodeID.StringID()}),
			})
		}
	}
	return resp, nil
}

func (m *memTransport) Write(_ context.Context, req *ua.WriteRequest) (*ua.WriteResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	resp := &ua.WriteResponse{}
	for _, wv := range req.NodesToWrite {
		m.values[wv.NodeID.String()] = wv.Value.Value
		resp.Results = append(resp.Results, ua.StatusOK)
	}
	return resp, nil
}

func (m *memTransport) Browse(_ context.Context, req *ua.BrowseRequest) (*ua.BrowseResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	resp := &ua.BrowseResponse{}
	for _, d := range req.NodesToBrowse {
		kids, ok := m.children[d.NodeID.String()]
		if !ok {
			resp.Results = append(resp.Results, &ua.BrowseResult{StatusCode: statusBadNodeIDUnknown})
			continue
		}
		res := &ua.BrowseResult{StatusCode: ua.StatusOK}
		for _, c := range kids {
			res.References = append(res.References, &ua.ReferenceDescription{
				NodeID:      &ua.ExpandedNodeID{NodeID: c},
				DisplayName: &ua.LocalizedText{Text: c.StringID()},
				BrowseName:  &ua.QualifiedName{NamespaceIndex: c.Namespace(), Name: c.StringID()},
				NodeClass:   ua.NodeClassVariable,
			})
		}
		resp.Results = append(resp.Results, res)
	}
	return resp, nil
}

func (m *memTransport) BrowseNext(context.Context, *ua.BrowseNextRequest) (*ua.BrowseNextResponse, error) {
	return nil, errors.New("no continuation points issued")
}

func (m *memTransport) Subscribe(_ context.Context, _ *opcua.SubscriptionParameters, _ chan<- *opcua.PublishNotificationData) (client.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextSub++
	sub := &memSubscription{id: m.nextSub}
	m.subs[sub.id] = sub
	return sub, nil
}

type memSubscription struct {
	id uint32
}

func (s *memSubscription) ID() uint32 { return s.id }

func (s *memSubscription) Monitor(_ context.Context, _ ua.TimestampsToReturn, items ...*ua.MonitoredItemCreateRequest) (*ua.CreateMonitoredItemsResponse, error) {
	resp := &ua.CreateMonitoredItemsResponse{}
	for range items {
		resp.Results = append(resp.Results, &ua.MonitoredItemCreateResult{StatusCode: ua.StatusOK})
	}
	return resp, nil
}

func (s *memSubscription) Cancel(context.Context) error { return nil }

const memURL = "opc.tcp://plc.local:4840"

// newMemBridge returns a bridge whose clients talk to mt.
func newMemBridge(t *testing.T, mt *memTransport, opts ...Option) *Bridge {
	t.Helper()
	opts = append([]Option{
		WithEngineConfig(config.Engine{ShutdownGrace: config.Duration(time.Millisecond)}),
		WithClientOptions(
			client.WithDiscoverer(func(_ context.Context, url string) ([]*ua.EndpointDescription, error) {
				return []*ua.EndpointDescription{{
					EndpointURL:        url,
					SecurityPolicyURI:  ua.SecurityPolicyURINone,
					SecurityMode:       ua.MessageSecurityModeNone,
					UserIdentityTokens: []*ua.UserTokenPolicy{{TokenType: ua.UserTokenTypeAnonymous}},
				}}, nil
			}),
			client.WithDialer(func(context.Context, string, *ua.EndpointDescription, config.Client) (client.Transport, error) {
				return mt, nil
			}),
		),
	}, opts...)
	b := New(opts...)
	t.Cleanup(func() { _ = b.Close(context.Background()) })
	return b
}

// session opens a running session on mt and returns the engine, session and
// loop handles.
func session(t *testing.T, b *Bridge) (eng, sess, loop Handle) {
	t.Helper()
	var cl Handle
	require.Equal(t, Status(0), b.CreateEngine(&eng))
	require.Equal(t, Status(0), b.BuildClient("", &cl))
	require.Equal(t, Status(0), b.ConnectSimple(eng, cl, memURL, &sess, &loop))
	return eng, sess, loop
}
