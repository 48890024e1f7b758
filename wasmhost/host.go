package wasmhost

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/opcua-bridge/bridge"
	"github.com/wippyai/opcua-bridge/client"
	"github.com/wippyai/opcua-bridge/errors"
)

// ModuleName is the import module guests link against.
const ModuleName = "opcua"

const ok = errors.StatusOK

var (
	i32 = api.ValueTypeI32
	i64 = api.ValueTypeI64
)

// nodeRef is the five words a guest uses to name a node:
// kind, namespace, numeric id, text ptr, text len.
var nodeRef = []api.ValueType{i32, i32, i32, i32, i32}

// Host exposes a Bridge to WebAssembly guests. Every export returns an
// i32 status; outputs go through guest pointers that must be non-zero.
type Host struct {
	b   *bridge.Bridge
	log *zap.Logger
}

// Option configures a Host.
type Option func(*Host)

// WithLogger sets the host logger.
func WithLogger(l *zap.Logger) Option {
	return func(h *Host) { h.log = l }
}

// New creates a host over b.
func New(b *bridge.Bridge, opts ...Option) *Host {
	h := &Host{b: b, log: Logger()}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

type export struct {
	name   string
	params []api.ValueType
	fn     func(c *call) errors.Status
}

func params(groups ...[]api.ValueType) []api.ValueType {
	var out []api.ValueType
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}

func words(n int) []api.ValueType {
	out := make([]api.ValueType, n)
	for i := range out {
		out[i] = i32
	}
	return out
}

func (h *Host) exports() []export {
	return []export{
		{"create_engine", words(1), h.createEngine},
		{"create_server_runtime", words(1), h.createServerRuntime},
		{"shutdown_engine", words(1), h.shutdownEngine},
		{"release", words(1), h.release},

		{"build_client", words(3), h.buildClient},
		{"connect", words(6), h.connect},
		{"connect_simple", words(6), h.connectSimple},
		{"start_event_loop", words(2), h.startEventLoop},
		{"event_loop_running", words(2), h.eventLoopRunning},
		{"disconnect", words(3), h.disconnect},
		{"read", params(words(2), nodeRef, words(2)), h.read},
		{"write", params(words(2), nodeRef, words(1), []api.ValueType{i64}), h.write},
		{"node_info", params(words(2), nodeRef, words(1)), h.nodeInfo},
		{"browse", params(words(2), nodeRef, words(2)), h.browse},
		{"delete_subscription", words(3), h.deleteSubscription},

		{"build_server", words(6), h.buildServer},
		{"start_server", words(4), h.startServer},
		{"stop_server", words(3), h.stopServer},
		{"stop_run", words(1), h.stopRun},
		{"is_server_running", words(3), h.isServerRunning},
		{"server_namespace", words(2), h.serverNamespace},
		{"server_endpoint", words(2), h.serverEndpoint},
		{"add_folder", words(8), h.addFolder},
		{"add_variable", words(10), h.addVariable},
		{"read_variable", words(4), h.readVariable},
		{"write_variable", params(words(3), []api.ValueType{i64}), h.writeVariable},
	}
}

// Exports returns the names of every host function.
func (h *Host) Exports() []string {
	ex := h.exports()
	names := make([]string, len(ex))
	for i, e := range ex {
		names[i] = e.name
	}
	return names
}

// Instantiate registers the host module in r under ModuleName.
func (h *Host) Instantiate(ctx context.Context, r wazero.Runtime) (api.Module, error) {
	builder := r.NewHostModuleBuilder(ModuleName)
	for _, e := range h.exports() {
		builder.NewFunctionBuilder().
			WithGoModuleFunction(h.handler(e), e.params, []api.ValueType{i32}).
			Export(e.name)
	}
	mod, err := builder.Instantiate(ctx)
	if err != nil {
		return nil, fmt.Errorf("instantiate %s host module: %w", ModuleName, err)
	}
	return mod, nil
}

func (h *Host) handler(e export) api.GoModuleFunc {
	return func(ctx context.Context, mod api.Module, stack []uint64) {
		c := &call{guest: NewGuest(ctx, mod), stack: stack, op: e.name}
		st := e.fn(c)
		if st != ok {
			h.log.Debug("guest call failed", zap.String("op", e.name), zap.Stringer("status", st))
		}
		stack[0] = api.EncodeI32(int32(st))
	}
}

// call decodes one invocation's parameters.
type call struct {
	guest *Guest
	op    string
	stack []uint64
}

func (c *call) u32(i int) uint32           { return api.DecodeU32(c.stack[i]) }
func (c *call) i32(i int) int32            { return api.DecodeI32(c.stack[i]) }
func (c *call) handle(i int) bridge.Handle { return bridge.Handle(c.u32(i)) }

func (c *call) str(i int) (string, errors.Status) {
	s, err := c.guest.String(c.op, c.u32(i), c.u32(i+1))
	return s, errors.StatusOf(err)
}

func (c *call) ref(i int) (client.NodeRef, errors.Status) {
	text, st := c.str(i + 3)
	if st != ok {
		return client.NodeRef{}, st
	}
	return client.NodeRef{
		Kind:      client.NodeKind(c.i32(i)),
		Namespace: uint16(c.u32(i + 1)),
		Numeric:   c.u32(i + 2),
		Text:      text,
	}, ok
}

// check validates output pointers before the bridge runs, so a bad
// pointer never strands a freshly created handle.
func (c *call) check(ptrs ...uint32) errors.Status {
	if c.guest.Mem == nil {
		return ErrNoMemory.Status
	}
	for _, p := range ptrs {
		if p == 0 {
			return errors.StatusNullPointer
		}
		if _, err := c.guest.Mem.Read(p, 4); err != nil {
			return errors.StatusBufferFailed
		}
	}
	return ok
}

func (c *call) put(ptr, v uint32) errors.Status {
	return errors.StatusOf(c.guest.PutU32(ptr, v))
}

// emit stores hs at ptrs and returns st. Handles are written even when st
// reports a failure, so the guest always reads zero for a failed output.
func (c *call) emit(st errors.Status, ptrs []uint32, hs ...bridge.Handle) errors.Status {
	for i, p := range ptrs {
		var h bridge.Handle
		if i < len(hs) {
			h = hs[i]
		}
		if err := c.guest.PutU32(p, uint32(h)); err != nil && st == ok {
			st = errors.StatusOf(err)
		}
	}
	return st
}

func (c *call) putBool(ptr uint32, v bool) errors.Status {
	var w uint32
	if v {
		w = 1
	}
	return c.put(ptr, w)
}

func (h *Host) createEngine(c *call) errors.Status {
	out := c.u32(0)
	if st := c.check(out); st != ok {
		return st
	}
	var eng bridge.Handle
	return c.emit(h.b.CreateEngine(&eng), []uint32{out}, eng)
}

func (h *Host) createServerRuntime(c *call) errors.Status {
	out := c.u32(0)
	if st := c.check(out); st != ok {
		return st
	}
	var rt bridge.Handle
	return c.emit(h.b.CreateServerRuntime(&rt), []uint32{out}, rt)
}

func (h *Host) shutdownEngine(c *call) errors.Status {
	return h.b.ShutdownEngine(c.handle(0))
}

func (h *Host) release(c *call) errors.Status {
	return h.b.Release(c.handle(0))
}

func (h *Host) buildClient(c *call) errors.Status {
	out := c.u32(2)
	if st := c.check(out); st != ok {
		return st
	}
	path, st := c.str(0)
	if st != ok {
		return c.emit(st, []uint32{out})
	}
	var cl bridge.Handle
	return c.emit(h.b.BuildClient(path, &cl), []uint32{out}, cl)
}

type connectFunc func(eng, cl bridge.Handle, url string, sessOut, loopOut *bridge.Handle) errors.Status

func (h *Host) connectWith(c *call, fn connectFunc) errors.Status {
	outs := []uint32{c.u32(4), c.u32(5)}
	if st := c.check(outs...); st != ok {
		return st
	}
	url, st := c.str(2)
	if st != ok {
		return c.emit(st, outs)
	}
	var sess, loop bridge.Handle
	return c.emit(fn(c.handle(0), c.handle(1), url, &sess, &loop), outs, sess, loop)
}

func (h *Host) connect(c *call) errors.Status {
	return h.connectWith(c, h.b.Connect)
}

func (h *Host) connectSimple(c *call) errors.Status {
	return h.connectWith(c, h.b.ConnectSimple)
}

func (h *Host) startEventLoop(c *call) errors.Status {
	return h.b.StartEventLoop(c.handle(0), c.handle(1))
}

func (h *Host) eventLoopRunning(c *call) errors.Status {
	out := c.u32(1)
	if st := c.check(out); st != ok {
		return st
	}
	var running bool
	if st := h.b.EventLoopRunning(c.handle(0), &running); st != ok {
		return st
	}
	return c.putBool(out, running)
}

func (h *Host) disconnect(c *call) errors.Status {
	return h.b.Disconnect(c.handle(0), c.handle(1), c.handle(2))
}

func (h *Host) read(c *call) errors.Status {
	out := c.u32(8)
	if st := c.check(out); st != ok {
		return st
	}
	cd, st := codecOf(c.i32(7))
	if st != ok {
		return st
	}
	ref, st := c.ref(2)
	if st != ok {
		return st
	}
	data, st := cd.read(h.b, c.handle(0), c.handle(1), ref)
	if st != ok {
		return st
	}
	return errors.StatusOf(c.guest.Put(out, data))
}

func (h *Host) write(c *call) errors.Status {
	cd, st := codecOf(c.i32(7))
	if st != ok {
		return st
	}
	ref, st := c.ref(2)
	if st != ok {
		return st
	}
	return cd.write(h.b, c.handle(0), c.handle(1), ref, c.stack[8])
}

func (h *Host) nodeInfo(c *call) errors.Status {
	slot := c.u32(7)
	if st := c.check(slot); st != ok {
		return st
	}
	ref, st := c.ref(2)
	if st != ok {
		return st
	}
	return h.b.NodeInfo(c.handle(0), c.handle(1), ref, NewBuffer(c.guest, slot))
}

func (h *Host) browse(c *call) errors.Status {
	slot, out := c.u32(7), c.u32(8)
	if st := c.check(slot, out); st != ok {
		return st
	}
	if st := c.put(out, 0); st != ok {
		return st
	}
	ref, st := c.ref(2)
	if st != ok {
		return st
	}
	var count int32
	if st := h.b.Browse(c.handle(0), c.handle(1), ref, NewRecords(c.guest, slot), &count); st != ok {
		return st
	}
	return c.put(out, uint32(count))
}

func (h *Host) deleteSubscription(c *call) errors.Status {
	return h.b.DeleteSubscription(c.handle(0), c.handle(1), c.u32(2))
}

func (h *Host) buildServer(c *call) errors.Status {
	outs := []uint32{c.u32(3), c.u32(4), c.u32(5)}
	if st := c.check(outs...); st != ok {
		return st
	}
	path, st := c.str(0)
	if st != ok {
		return c.emit(st, outs)
	}
	var srv, handle, nodes bridge.Handle
	return c.emit(h.b.BuildServer(path, c.handle(2), &srv, &handle, &nodes), outs, srv, handle, nodes)
}

func (h *Host) startServer(c *call) errors.Status {
	outs := []uint32{c.u32(2), c.u32(3)}
	if st := c.check(outs...); st != ok {
		return st
	}
	var token, thread bridge.Handle
	return c.emit(h.b.StartServer(c.handle(0), c.handle(1), &token, &thread), outs, token, thread)
}

func (h *Host) stopServer(c *call) errors.Status {
	return h.b.StopServer(c.handle(0), c.handle(1), c.handle(2))
}

func (h *Host) stopRun(c *call) errors.Status {
	return h.b.StopRun(c.handle(0))
}

func (h *Host) isServerRunning(c *call) errors.Status {
	out := c.u32(2)
	if st := c.check(out); st != ok {
		return st
	}
	var running bool
	if st := h.b.IsServerRunning(c.handle(0), c.handle(1), &running); st != ok {
		return st
	}
	return c.putBool(out, running)
}

func (h *Host) serverNamespace(c *call) errors.Status {
	out := c.u32(1)
	if st := c.check(out); st != ok {
		return st
	}
	var ns uint16
	if st := h.b.ServerNamespace(c.handle(0), &ns); st != ok {
		return st
	}
	return c.put(out, uint32(ns))
}

func (h *Host) serverEndpoint(c *call) errors.Status {
	slot := c.u32(1)
	if st := c.check(slot); st != ok {
		return st
	}
	return h.b.ServerEndpoint(c.handle(0), NewBuffer(c.guest, slot))
}

// names reads the id, browse name and display name strings starting at i.
func (c *call) names(i int) (id, browse, display string, st errors.Status) {
	if id, st = c.str(i); st != ok {
		return
	}
	if browse, st = c.str(i + 2); st != ok {
		return
	}
	display, st = c.str(i + 4)
	return
}

func (h *Host) addFolder(c *call) errors.Status {
	out := c.u32(7)
	if st := c.check(out); st != ok {
		return st
	}
	id, browse, display, st := c.names(1)
	if st != ok {
		return c.emit(st, []uint32{out})
	}
	var folder bridge.Handle
	return c.emit(h.b.AddFolder(c.handle(0), id, browse, display, &folder), []uint32{out}, folder)
}

func (h *Host) addVariable(c *call) errors.Status {
	out := c.u32(9)
	if st := c.check(out); st != ok {
		return st
	}
	id, browse, display, st := c.names(2)
	if st != ok {
		return c.emit(st, []uint32{out})
	}
	var node bridge.Handle
	return c.emit(h.b.AddVariable(c.handle(0), c.handle(1), id, browse, display, c.i32(8), &node), []uint32{out}, node)
}

func (h *Host) readVariable(c *call) errors.Status {
	out := c.u32(3)
	if st := c.check(out); st != ok {
		return st
	}
	cd, st := codecOf(c.i32(2))
	if st != ok {
		return st
	}
	data, st := cd.readVariable(h.b, c.handle(0), c.handle(1))
	if st != ok {
		return st
	}
	return errors.StatusOf(c.guest.Put(out, data))
}

func (h *Host) writeVariable(c *call) errors.Status {
	cd, st := codecOf(c.i32(2))
	if st != ok {
		return st
	}
	return cd.writeVariable(h.b, c.handle(0), c.handle(1), c.stack[3])
}
