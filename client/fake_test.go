package client

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gopcua/opcua"
	"github.com/gopcua/opcua/ua"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/opcua-bridge/config"
	"github.com/wippyai/opcua-bridge/engine"
)

const statusBadNodeIDUnknown = ua.StatusCode(0x80340000)

type fakeNode struct {
	value    *ua.Variant
	display  string
	browse   string
	children []*ua.NodeID
	status   ua.StatusCode
	class    ua.NodeClass
}

// fakeTransport is an in-memory address space behind the Transport interface.
type fakeTransport struct {
	nodes      map[string]*fakeNode
	subs       map[uint32]*fakeSubscription
	notify     chan<- *opcua.PublishNotificationData
	connectErr error
	writes     []*ua.WriteValue
	mu         sync.Mutex
	pageSize   int
	nextSub    uint32
	state      opcua.ConnState
	stuck      bool
	closed     bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		nodes:    make(map[string]*fakeNode),
		subs:     make(map[uint32]*fakeSubscription),
		state:    opcua.Disconnected,
		pageSize: MaxReferencesPerNode,
	}
}

func (f *fakeTransport) add(id *ua.NodeID, n *fakeNode) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if n.browse == "" {
		n.browse = id.String()
	}
	if n.display == "" {
		n.display = n.browse
	}
	f.nodes[id.String()] = n
}

func (f *fakeTransport) addChild(parent, child *ua.NodeID, n *fakeNode) {
	f.add(child, n)
	f.mu.Lock()
	defer f.mu.Unlock()
	p := f.nodes[parent.String()]
	p.children = append(p.children, child)
}

func (f *fakeTransport) Connect(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.connectErr != nil {
		return f.connectErr
	}
	if f.stuck {
		f.state = opcua.Connecting
	} else {
		f.state = opcua.Connected
	}
	return nil
}

func (f *fakeTransport) Close(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.state = opcua.Closed
	return nil
}

func (f *fakeTransport) State() opcua.ConnState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeTransport) Read(ctx context.Context, req *ua.ReadRequest) (*ua.ReadResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	resp := &ua.ReadResponse{}
	for _, rv := range req.NodesToRead {
		n := f.nodes[rv.NodeID.String()]
		if n == nil {
			resp.Results = append(resp.Results, &ua.DataValue{Status: statusBadNodeIDUnknown})
			continue
		}
		switch rv.AttributeID {
		case ua.AttributeIDValue:
			if n.status != ua.StatusOK {
				resp.Results = append(resp.Results, &ua.DataValue{Status: n.status})
			} else {
				resp.Results = append(resp.Results, &ua.DataValue{Value: n.value})
			}
		case ua.AttributeIDDisplayName:
			resp.Results = append(resp.Results, &ua.DataValue{
				Value: ua.MustVariant(&ua.LocalizedText{Text: n.display}),
			})
		case ua.AttributeIDBrowseName:
			resp.Results = append(resp.Results, &ua.DataValue{
				Value: ua.MustVariant(&ua.QualifiedName{NamespaceIndex: rv.NodeID.Namespace(), Name: n.browse}),
			})
		default:
			resp.Results = append(resp.Results, &ua.DataValue{Status: ua.StatusCode(0x80350000)})
		}
	}
	return resp, nil
}

func (f *fakeTransport) Write(ctx context.Context, req *ua.WriteRequest) (*ua.WriteResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	resp := &ua.WriteResponse{}
	for _, wv := range req.NodesToWrite {
		f.writes = append(f.writes, wv)
		n := f.nodes[wv.NodeID.String()]
		if n == nil {
			resp.Results = append(resp.Results, statusBadNodeIDUnknown)
			continue
		}
		n.value = wv.Value.Value
		resp.Results = append(resp.Results, ua.StatusOK)
	}
	return resp, nil
}

func (f *fakeTransport) page(key string, offset int) *ua.BrowseResult {
	n := f.nodes[key]
	if n == nil {
		return &ua.BrowseResult{StatusCode: statusBadNodeIDUnknown}
	}
	res := &ua.BrowseResult{StatusCode: ua.StatusOK}
	end := min(offset+f.pageSize, len(n.children))
	for _, c := range n.children[offset:end] {
		child := f.nodes[c.String()]
		res.References = append(res.References, &ua.ReferenceDescription{
			NodeID:      &ua.ExpandedNodeID{NodeID: c},
			DisplayName: &ua.LocalizedText{Text: child.display},
			BrowseName:  &ua.QualifiedName{NamespaceIndex: c.Namespace(), Name: child.browse},
			NodeClass:   child.class,
		})
	}
	if end < len(n.children) {
		res.ContinuationPoint = []byte(fmt.Sprintf("%s#%d", key, end))
	}
	return res
}

func (f *fakeTransport) Browse(ctx context.Context, req *ua.BrowseRequest) (*ua.BrowseResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	resp := &ua.BrowseResponse{}
	for _, d := range req.NodesToBrowse {
		resp.Results = append(resp.Results, f.page(d.NodeID.String(), 0))
	}
	return resp, nil
}

func (f *fakeTransport) BrowseNext(ctx context.Context, req *ua.BrowseNextRequest) (*ua.BrowseNextResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	resp := &ua.BrowseNextResponse{}
	for _, cp := range req.ContinuationPoints {
		s := string(cp)
		i := strings.LastIndexByte(s, '#')
		offset, err := strconv.Atoi(s[i+1:])
		if err != nil {
			return nil, err
		}
		resp.Results = append(resp.Results, f.page(s[:i], offset))
	}
	return resp, nil
}

func (f *fakeTransport) Subscribe(ctx context.Context, params *opcua.SubscriptionParameters, notify chan<- *opcua.PublishNotificationData) (Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextSub++
	f.notify = notify
	sub := &fakeSubscription{id: f.nextSub, params: params}
	f.subs[sub.id] = sub
	return sub, nil
}

// publish pushes a data change as the gopcua publish loop would.
func (f *fakeTransport) publish(subID, handle uint32, v any) {
	f.mu.Lock()
	ch := f.notify
	f.mu.Unlock()
	ch <- &opcua.PublishNotificationData{
		SubscriptionID: subID,
		Value: &ua.DataChangeNotification{
			MonitoredItems: []*ua.MonitoredItemNotification{{
				ClientHandle: handle,
				Value:        &ua.DataValue{Value: ua.MustVariant(v), SourceTimestamp: time.Unix(1700000000, 0)},
			}},
		},
	}
}

type fakeSubscription struct {
	params    *opcua.SubscriptionParameters
	items     []*ua.MonitoredItemCreateRequest
	mu        sync.Mutex
	id        uint32
	cancelled bool
}

func (s *fakeSubscription) ID() uint32 { return s.id }

func (s *fakeSubscription) Monitor(ctx context.Context, ts ua.TimestampsToReturn, items ...*ua.MonitoredItemCreateRequest) (*ua.CreateMonitoredItemsResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(s.items, items...)
	resp := &ua.CreateMonitoredItemsResponse{}
	for range items {
		resp.Results = append(resp.Results, &ua.MonitoredItemCreateResult{StatusCode: ua.StatusOK})
	}
	return resp, nil
}

func (s *fakeSubscription) Cancel(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancelled {
		return errors.New("subscription already cancelled")
	}
	s.cancelled = true
	return nil
}

func anonymousEndpoint(url string) *ua.EndpointDescription {
	return &ua.EndpointDescription{
		EndpointURL:       url,
		SecurityPolicyURI: ua.SecurityPolicyURINone,
		SecurityMode:      ua.MessageSecurityModeNone,
		UserIdentityTokens: []*ua.UserTokenPolicy{
			{TokenType: ua.UserTokenTypeAnonymous},
		},
	}
}

func testClientConfig() config.Client {
	return config.Client{
		PollInterval:      config.Duration(time.Millisecond),
		ConnectTimeout:    config.Duration(200 * time.Millisecond),
		DisconnectTimeout: config.Duration(200 * time.Millisecond),
	}
}

func newTestClient(t *testing.T, ft *fakeTransport, cfg config.Client) *Client {
	t.Helper()
	return New(cfg,
		WithDiscoverer(func(ctx context.Context, url string) ([]*ua.EndpointDescription, error) {
			return []*ua.EndpointDescription{anonymousEndpoint(url)}, nil
		}),
		WithDialer(func(ctx context.Context, url string, ep *ua.EndpointDescription, cfg config.Client) (Transport, error) {
			return ft, nil
		}),
	)
}

func newTestEngine(t *testing.T) *engine.Engine {
	t.Helper()
	e, err := engine.New(engine.Config{ShutdownGrace: time.Millisecond})
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Shutdown(context.Background()) })
	return e
}

const testURL = "opc.tcp://localhost:4855"

// connectTest opens a running session on a fake address space.
func connectTest(t *testing.T, ft *fakeTransport) (*Session, *EventLoop) {
	t.Helper()
	c := newTestClient(t, ft, testClientConfig())
	s, loop, err := c.ConnectSimple(context.Background(), newTestEngine(t), testURL)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Disconnect(context.Background(), loop) })
	return s, loop
}
