package server

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/gopcua/opcua/id"
	"github.com/gopcua/opcua/ua"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	opcuabridge "github.com/wippyai/opcua-bridge"
	"github.com/wippyai/opcua-bridge/client"
	"github.com/wippyai/opcua-bridge/config"
	"github.com/wippyai/opcua-bridge/engine"
	"github.com/wippyai/opcua-bridge/errors"
	"github.com/wippyai/opcua-bridge/scalar"
)

func buildTest(t *testing.T, cfg config.Server) (*Server, *Handle, *NodeManager) {
	t.Helper()
	s, h, nodes, err := Build(cfg)
	require.NoError(t, err)
	return s, h, nodes
}

func TestBuild_DeclaredNodes(t *testing.T) {
	s, h, nodes, err := Load("testdata/server.yaml")
	require.NoError(t, err)

	assert.Equal(t, StateBuilt, s.State())
	assert.Equal(t, "opc.tcp://127.0.0.1:48400", h.Endpoint())
	assert.Equal(t, "line-4", h.BuildInfo().ProductName)
	assert.True(t, nodes.HasFolder(nodes.NodeID("Line4")))

	v, typ, err := nodes.ReadValue(nodes.NodeID("Speed"))
	require.NoError(t, err)
	assert.Equal(t, scalar.Float, typ)
	assert.Equal(t, float32(0), v)

	v, typ, err = nodes.ReadValue(nodes.NodeID("Running"))
	require.NoError(t, err)
	assert.Equal(t, scalar.Boolean, typ)
	assert.Equal(t, false, v)
}

func TestBuild_InvalidConfig(t *testing.T) {
	cfg := config.DefaultServer()
	cfg.Folders = []config.Folder{{ID: "A", Variables: []config.Variable{{ID: "x", Type: "text"}}}}

	_, _, _, err := Build(cfg)
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
	assert.Equal(t, errors.StatusInvalidServerConfig, errors.StatusOf(err))
}

func TestAddVariable(t *testing.T) {
	_, _, nodes := buildTest(t, config.DefaultServer())

	demo, err := nodes.AddFolder("Demo", "Demo", "Demo Folder")
	require.NoError(t, err)
	assert.Equal(t, nodes.Namespace(), demo.Namespace())

	for _, typ := range scalar.All() {
		id, err := nodes.AddVariable(demo, "v"+typ.String(), "", "", typ)
		require.NoError(t, err, typ.String())

		v, got, err := nodes.ReadValue(id)
		require.NoError(t, err)
		assert.Equal(t, typ, got)
		assert.Equal(t, typ.Zero(), v)
	}

	_, err = nodes.AddVariable(demo, "bad", "", "", scalar.Type(12))
	assert.ErrorIs(t, err, scalar.ErrInvalidType)
	assert.Equal(t, errors.StatusInvalidType, errors.StatusOf(err))

	_, err = nodes.AddVariable(nodes.NodeID("Nope"), "orphan", "", "", scalar.Double)
	assert.ErrorIs(t, err, ErrUnknownFolder)
	assert.Equal(t, errors.StatusInvalidServerRef, errors.StatusOf(err))

	_, err = nodes.AddVariable(demo, "Demo", "", "", scalar.Double)
	assert.ErrorIs(t, err, ErrDuplicateNode)

	_, err = nodes.AddFolder("Demo", "", "")
	assert.ErrorIs(t, err, ErrDuplicateNode)
}

func TestWriteValue(t *testing.T) {
	_, _, nodes := buildTest(t, config.DefaultServer())
	demo, err := nodes.AddFolder("Demo", "", "")
	require.NoError(t, err)
	count, err := nodes.AddVariable(demo, "Count", "", "", scalar.Int32)
	require.NoError(t, err)
	temp, err := nodes.AddVariable(demo, "Temp", "", "", scalar.Double)
	require.NoError(t, err)

	var changes []Change
	nodes.OnChange(func(c Change) { changes = append(changes, c) })

	require.NoError(t, nodes.WriteValue(count, int32(42)))
	require.NoError(t, nodes.WriteValue(temp, 36.6))

	v, _, err := nodes.ReadValue(count)
	require.NoError(t, err)
	assert.Equal(t, int32(42), v)

	require.Len(t, changes, 2)
	assert.Equal(t, count.String(), changes[0].NodeID)
	assert.Equal(t, 36.6, changes[1].Value)
	assert.False(t, changes[1].Time.IsZero())

	err = nodes.WriteValue(count, "42")
	assert.ErrorIs(t, err, scalar.ErrTypeMismatch)
	assert.Equal(t, errors.StatusTypeMismatch, errors.StatusOf(err))

	err = nodes.WriteValue(count, int64(42))
	assert.ErrorIs(t, err, scalar.ErrTypeMismatch)

	err = nodes.WriteValue(nodes.NodeID("Missing"), int32(1))
	assert.ErrorIs(t, err, ErrUnknownVariable)
	assert.Equal(t, errors.StatusInvalidServerRef, errors.StatusOf(err))

	snap := nodes.Snapshot()
	require.Len(t, snap, 2)
	assert.Less(t, snap[0].NodeID, snap[1].NodeID)
}

func TestAddFolder_FolderNode(t *testing.T) {
	_, _, nodes := buildTest(t, config.DefaultServer())

	demo, err := nodes.AddFolder("Demo", "Demo", "Demo Folder")
	require.NoError(t, err)

	n := nodes.ns.Node(demo)
	require.NotNil(t, n)
	assert.Equal(t, ua.NodeClassObject, n.NodeClass())
	assert.Equal(t, "Demo", n.BrowseName().Name)
	assert.Equal(t, "Demo Folder", n.DisplayName().Text)
	assert.Equal(t, uint32(id.FolderType), n.DataType().NodeID.IntID())

	plain, err := nodes.AddFolder("Plain", "", "")
	require.NoError(t, err)
	assert.Equal(t, "Plain", nodes.ns.Node(plain).DisplayName().Text)
}

func TestWriteValue_BeforeStart(t *testing.T) {
	_, _, nodes := buildTest(t, config.DefaultServer())
	demo, err := nodes.AddFolder("Demo", "", "")
	require.NoError(t, err)
	temp, err := nodes.AddVariable(demo, "Temp", "", "", scalar.Double)
	require.NoError(t, err)

	assert.False(t, nodes.Live())
	require.NotPanics(t, func() {
		require.NoError(t, nodes.WriteValue(temp, 36.6))
	})

	dv := nodes.ns.Node(temp).Value()
	require.NotNil(t, dv)
	assert.Equal(t, 36.6, dv.Value.Value())
}

func TestStart_RuntimeMismatch(t *testing.T) {
	rt := newRuntime(t)
	s, _, nodes, err := Build(config.DefaultServer(), WithRuntime(rt))
	require.NoError(t, err)
	assert.Same(t, rt, s.Runtime())
	assert.Same(t, rt, nodes.Runtime())

	_, err = Start(newRuntime(t), s)
	assert.ErrorIs(t, err, ErrRuntimeMismatch)
	assert.Equal(t, errors.StatusInvalidRuntime, errors.StatusOf(err))
	assert.Equal(t, StateBuilt, s.State())
}

// TestLiveWrites covers both directions while serving: a server-side write
// reaches a subscribed client, and a client write reaches the node manager.
func TestLiveWrites(t *testing.T) {
	if testing.Short() {
		t.Skip("starts a listener")
	}
	rt := newRuntime(t)
	cfg := config.DefaultServer()
	cfg.Host = "127.0.0.1"
	cfg.Port = freePort(t)
	s, h, nodes := buildTest(t, cfg)

	demo, err := nodes.AddFolder("Demo", "", "")
	require.NoError(t, err)
	temp, err := nodes.AddVariable(demo, "Temp", "", "", scalar.Double)
	require.NoError(t, err)
	count, err := nodes.AddVariable(demo, "Count", "", "", scalar.Int32)
	require.NoError(t, err)

	changes := make(chan Change, 8)
	nodes.OnChange(func(c Change) { changes <- c })

	th, err := Start(rt, s)
	require.NoError(t, err)
	defer func() {
		h.Stop()
		_ = th.Join(context.Background())
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	sess, loop, err := client.New(config.Client{}).ConnectSimple(ctx, newRuntime(t), h.Endpoint())
	require.NoError(t, err)
	defer func() { _ = sess.Disconnect(context.Background(), loop) }()

	events := make(chan opcuabridge.Event, 16)
	sink := opcuabridge.EventSinkFunc(func(e opcuabridge.Event) error {
		select {
		case events <- e:
		default:
		}
		return nil
	})
	_, err = sess.Subscribe(ctx, client.SubscriptionParams{Interval: 50 * time.Millisecond},
		[]client.NodeRef{client.StringNode(h.Namespace(), "Temp")}, sink)
	require.NoError(t, err)

	require.NoError(t, nodes.WriteValue(temp, 36.6))
	require.Equal(t, 36.6, (<-changes).Value)

	got := false
	for !got {
		select {
		case e := <-events:
			got = e.Value == 36.6
		case <-ctx.Done():
			t.Fatal("no notification for the server-side write")
		}
	}

	require.NoError(t, client.Write(ctx, sess, client.StringNode(h.Namespace(), "Count"), int32(7)))
	select {
	case c := <-changes:
		assert.Equal(t, count.String(), c.NodeID)
		assert.Equal(t, int32(7), c.Value)
	case <-ctx.Done():
		t.Fatal("client write not picked up")
	}
	v, _, err := nodes.ReadValue(count)
	require.NoError(t, err)
	assert.Equal(t, int32(7), v)

	h.Stop()
	require.NoError(t, th.Join(ctx))
	assert.False(t, nodes.Live())
	assert.NoError(t, nodes.WriteValue(temp, 1.5))
}

func TestWriteValue_LockReleasedAfterPanic(t *testing.T) {
	_, _, nodes := buildTest(t, config.DefaultServer())
	demo, err := nodes.AddFolder("Demo", "", "")
	require.NoError(t, err)
	count, err := nodes.AddVariable(demo, "Count", "", "", scalar.Int32)
	require.NoError(t, err)

	nodes.OnChange(func(c Change) {
		if c.Value == int32(13) {
			panic("unlucky")
		}
	})

	assert.Panics(t, func() { _ = nodes.WriteValue(count, int32(13)) })

	done := make(chan error, 1)
	go func() { done <- nodes.WriteValue(count, int32(14)) }()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("write blocked after panic")
	}
}

func TestWriteValue_Concurrent(t *testing.T) {
	_, _, nodes := buildTest(t, config.DefaultServer())
	demo, err := nodes.AddFolder("Demo", "", "")
	require.NoError(t, err)
	count, err := nodes.AddVariable(demo, "Count", "", "", scalar.Int32)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int32) {
			defer wg.Done()
			assert.NoError(t, nodes.WriteValue(count, i))
			_, _, _ = nodes.ReadValue(count)
		}(int32(i))
	}
	wg.Wait()
}

func TestStart_Twice(t *testing.T) {
	if testing.Short() {
		t.Skip("starts a listener")
	}
	rt := newRuntime(t)
	cfg := config.DefaultServer()
	cfg.Host = "127.0.0.1"
	cfg.Port = freePort(t)
	s, h, _ := buildTest(t, cfg)

	th, err := Start(rt, s)
	require.NoError(t, err)
	assert.True(t, th.Running())
	assert.Equal(t, StateRunning, h.State())

	_, err = Start(rt, s)
	assert.ErrorIs(t, err, ErrAlreadyStarted)
	assert.Equal(t, errors.StatusStartFailed, errors.StatusOf(err))

	h.Stop()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, th.Join(ctx))
	assert.False(t, th.Running())
}

func TestStart_ClosedRuntime(t *testing.T) {
	rt, err := engine.New(engine.Config{Serialized: true, ShutdownGrace: time.Millisecond})
	require.NoError(t, err)
	require.NoError(t, rt.Shutdown(context.Background()))

	s, _, _ := buildTest(t, config.DefaultServer())
	_, err = Start(rt, s)
	assert.ErrorIs(t, err, engine.ErrClosed)
	assert.Equal(t, StateBuilt, s.State())
}

func TestHandleStop_NotStarted(t *testing.T) {
	s, h, _ := buildTest(t, config.DefaultServer())
	h.Stop()
	assert.Equal(t, StateBuilt, s.State())
}

// TestDemoScenario runs a real server and reads it back through an
// independently connected client session.
func TestDemoScenario(t *testing.T) {
	if testing.Short() {
		t.Skip("starts a listener")
	}
	rt := newRuntime(t)
	cfg := config.DefaultServer()
	cfg.Host = "127.0.0.1"
	cfg.Port = freePort(t)
	s, h, nodes := buildTest(t, cfg)

	demo, err := nodes.AddFolder("Demo", "Demo", "Demo")
	require.NoError(t, err)
	temp, err := nodes.AddVariable(demo, "Temp", "Temp", "Temp", scalar.Double)
	require.NoError(t, err)
	count, err := nodes.AddVariable(demo, "Count", "Count", "Count", scalar.Int32)
	require.NoError(t, err)
	_, err = nodes.AddFolder("Empty", "Empty", "Empty")
	require.NoError(t, err)

	assert.False(t, nodes.Live())
	require.NoError(t, nodes.WriteValue(count, int32(42)))

	th, err := Start(rt, s)
	require.NoError(t, err)
	defer func() {
		h.Stop()
		_ = th.Join(context.Background())
	}()

	assert.True(t, nodes.Live())
	require.NoError(t, nodes.WriteValue(temp, 36.6))

	e := newRuntime(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	c := client.New(config.Client{})
	sess, loop, err := c.ConnectSimple(ctx, e, h.Endpoint())
	require.NoError(t, err)
	defer func() { _ = sess.Disconnect(context.Background(), loop) }()

	ns := h.Namespace()
	v, err := client.Read[float64](ctx, sess, client.StringNode(ns, "Temp"))
	require.NoError(t, err)
	assert.Equal(t, 36.6, v)

	n, err := client.Read[int32](ctx, sess, client.StringNode(ns, "Count"))
	require.NoError(t, err)
	assert.Equal(t, int32(42), n)

	_, err = client.Read[int32](ctx, sess, client.StringNode(ns, "Temp"))
	assert.ErrorIs(t, err, scalar.ErrTypeMismatch)

	children, err := sess.Browse(ctx, client.StringNode(ns, "Demo"))
	require.NoError(t, err)
	require.Len(t, children, 2)
	assert.Equal(t, ua.NodeClassVariable, children[0].Class)

	top, err := sess.Browse(ctx, client.NumericNode(0, id.ObjectsFolder))
	require.NoError(t, err)
	var found bool
	for _, r := range top {
		if r.BrowseName == "Demo" {
			found = true
			assert.Equal(t, ua.NodeClassObject, r.Class)
		}
	}
	assert.True(t, found, "Demo organized by Objects")

	refs, err := sess.Browse(ctx, client.StringNode(ns, "Empty"))
	require.NoError(t, err)
	assert.Empty(t, refs)
}

func newRuntime(t *testing.T) *engine.Engine {
	t.Helper()
	rt, err := engine.New(engine.Config{Serialized: true, ShutdownGrace: time.Millisecond})
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Shutdown(context.Background()) })
	return rt
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}
