package server

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gopcua/opcua/id"
	"github.com/gopcua/opcua/server"
	"github.com/gopcua/opcua/server/attrs"
	"github.com/gopcua/opcua/ua"
	"go.uber.org/zap"

	"github.com/wippyai/opcua-bridge/engine"
	"github.com/wippyai/opcua-bridge/scalar"
)

// externalQueue buffers network writes until the watcher picks them up.
// gopcua drops a notification when the queue is full.
const externalQueue = 64

// Change is a variable update published by the node manager.
type Change struct {
	Time   time.Time
	Value  any
	NodeID string
	Type   scalar.Type
}

// Observer is called after every successful WriteValue and after a client
// write over the network has been picked up.
type Observer func(Change)

type variable struct {
	updated time.Time
	value   any
	node    *server.Node
	folder  string
	typ     scalar.Type
}

// NodeManager owns the folders and variables of the server's node namespace.
// Every mutation holds the write lock for its whole critical section and
// releases it on all exit paths.
type NodeManager struct {
	ns        *server.NodeNameSpace
	objects   *server.Node
	rt        *engine.Engine
	log       *zap.Logger
	folders   map[string]*server.Node
	vars      map[string]*variable
	observers []Observer
	mu        sync.RWMutex
	obsMu     sync.RWMutex
	live      atomic.Bool
}

func newNodeManager(ns *server.NodeNameSpace, objects *server.Node, rt *engine.Engine, log *zap.Logger) *NodeManager {
	ns.ExternalNotification = make(chan *ua.NodeID, externalQueue)
	return &NodeManager{
		ns:      ns,
		objects: objects,
		rt:      rt,
		log:     log,
		folders: make(map[string]*server.Node),
		vars:    make(map[string]*variable),
	}
}

// Runtime returns the server runtime the manager was built for, or nil.
func (m *NodeManager) Runtime() *engine.Engine { return m.rt }

// Live reports whether the server is serving. Subscribers are only notified
// of writes while it is.
func (m *NodeManager) Live() bool { return m.live.Load() }

// Namespace returns the namespace index the manager creates nodes in.
func (m *NodeManager) Namespace() uint16 { return m.ns.ID() }

// NodeID builds a string node id in the manager's namespace.
func (m *NodeManager) NodeID(name string) *ua.NodeID {
	return ua.NewStringNodeID(m.ns.ID(), name)
}

func setDisplayName(n *server.Node, display string) {
	n.SetAttribute(ua.AttributeIDDisplayName, &ua.DataValue{
		EncodingMask: ua.DataValueValue,
		Value:        ua.MustVariant(ua.NewLocalizedText(display)),
	})
}

// newFolderNode builds an Object of type FolderType.
func newFolderNode(nodeID *ua.NodeID, browse, display string) *server.Node {
	return server.NewNode(
		nodeID,
		server.Attributes{
			ua.AttributeIDNodeClass:     server.DataValueFromValue(uint32(ua.NodeClassObject)),
			ua.AttributeIDBrowseName:    server.DataValueFromValue(&ua.QualifiedName{NamespaceIndex: nodeID.Namespace(), Name: browse}),
			ua.AttributeIDDisplayName:   server.DataValueFromValue(attrs.DisplayName(display, "")),
			ua.AttributeIDEventNotifier: server.DataValueFromValue(uint8(0)),
		},
		server.References{{
			ReferenceTypeID: ua.NewNumericNodeID(0, id.HasTypeDefinition),
			IsForward:       true,
			NodeID:          ua.NewNumericExpandedNodeID(0, id.FolderType),
			BrowseName:      &ua.QualifiedName{Name: "FolderType"},
			DisplayName:     &ua.LocalizedText{EncodingMask: ua.LocalizedTextText, Text: "FolderType"},
			NodeClass:       ua.NodeClassObjectType,
			TypeDefinition:  ua.NewNumericExpandedNodeID(0, id.FolderType),
		}},
		nil,
	)
}

// AddFolder creates a folder organized by the Objects folder.
func (m *NodeManager) AddFolder(name, browse, display string) (*ua.NodeID, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: empty folder id", ErrDuplicateNode)
	}
	if browse == "" {
		browse = name
	}
	nodeID := m.NodeID(name)
	key := nodeID.String()

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.exists(key) {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateNode, key)
	}

	if display == "" {
		display = browse
	}
	n := m.ns.AddNode(newFolderNode(nodeID, browse, display))
	m.objects.AddRef(n, id.Organizes, true)
	m.folders[key] = n

	m.log.Debug("folder added", zap.String("node", key))
	return nodeID, nil
}

// AddVariable creates a writable variable of type t, holding t's zero value,
// organized by folder.
func (m *NodeManager) AddVariable(folder *ua.NodeID, name, browse, display string, t scalar.Type) (*ua.NodeID, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("%w: %d", scalar.ErrInvalidType, uint8(t))
	}
	if folder == nil {
		return nil, fmt.Errorf("%w: nil folder", ErrUnknownFolder)
	}
	if name == "" {
		return nil, fmt.Errorf("%w: empty variable id", ErrDuplicateNode)
	}
	if browse == "" {
		browse = name
	}
	nodeID := m.NodeID(name)
	key := nodeID.String()

	m.mu.Lock()
	defer m.mu.Unlock()

	parent, ok := m.folders[folder.String()]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownFolder, folder)
	}
	if m.exists(key) {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateNode, key)
	}

	zero := t.Zero()
	n := m.ns.AddNode(server.NewVariableNode(nodeID, browse, zero))
	if display != "" && display != browse {
		setDisplayName(n, display)
	}
	parent.AddRef(n, id.Organizes, true)
	m.vars[key] = &variable{
		node:    n,
		folder:  folder.String(),
		typ:     t,
		value:   zero,
		updated: time.Now(),
	}

	m.log.Debug("variable added", zap.String("node", key), zap.Stringer("type", t))
	return nodeID, nil
}

// exists reports whether key is taken. Caller holds m.mu.
func (m *NodeManager) exists(key string) bool {
	if _, ok := m.folders[key]; ok {
		return true
	}
	_, ok := m.vars[key]
	return ok
}

// WriteValue stores v in a variable. v must have exactly the variable's type.
// The new value is timestamped; once the server is serving it is also
// published to subscribed clients.
func (m *NodeManager) WriteValue(nodeID *ua.NodeID, v any) error {
	if nodeID == nil {
		return fmt.Errorf("%w: nil node id", ErrUnknownVariable)
	}
	change, err := m.store(nodeID.String(), v)
	if err != nil {
		return err
	}
	if m.live.Load() {
		m.ns.ChangeNotification(nodeID)
	}
	m.notify(change)
	return nil
}

// watch keeps the cached values in step with writes clients make over the
// network. It returns when ctx ends.
func (m *NodeManager) watch(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case nodeID := <-m.ns.ExternalNotification:
			if nodeID == nil {
				continue
			}
			if change, ok := m.refresh(nodeID.String()); ok {
				m.notify(change)
			}
		}
	}
}

// refresh reloads a variable's cached value from its node.
func (m *NodeManager) refresh(key string) (Change, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	vr, ok := m.vars[key]
	if !ok {
		return Change{}, false
	}
	dv := vr.node.Value()
	if dv == nil || dv.Value == nil {
		return Change{}, false
	}
	v, err := scalar.FromVariant(key, dv.Value, vr.typ)
	if err != nil {
		m.log.Warn("external write ignored", zap.String("node", key), zap.Error(err))
		return Change{}, false
	}

	now := time.Now()
	vr.value = v
	vr.updated = now
	return Change{NodeID: key, Value: v, Type: vr.typ, Time: now}, true
}

func (m *NodeManager) store(key string, v any) (Change, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	vr, ok := m.vars[key]
	if !ok {
		return Change{}, fmt.Errorf("%w: %s", ErrUnknownVariable, key)
	}
	variant, err := scalar.Variant(v, vr.typ)
	if err != nil {
		return Change{}, fmt.Errorf("write %s: %w", key, err)
	}

	now := time.Now()
	vr.node.SetAttribute(ua.AttributeIDValue, &ua.DataValue{
		EncodingMask:    ua.DataValueValue | ua.DataValueSourceTimestamp | ua.DataValueServerTimestamp,
		Value:           variant,
		SourceTimestamp: now,
		ServerTimestamp: now,
	})
	vr.value = v
	vr.updated = now

	return Change{NodeID: key, Value: v, Type: vr.typ, Time: now}, nil
}

// ReadValue returns a variable's current value and type.
func (m *NodeManager) ReadValue(nodeID *ua.NodeID) (any, scalar.Type, error) {
	if nodeID == nil {
		return nil, scalar.Invalid, fmt.Errorf("%w: nil node id", ErrUnknownVariable)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	vr, ok := m.vars[nodeID.String()]
	if !ok {
		return nil, scalar.Invalid, fmt.Errorf("%w: %s", ErrUnknownVariable, nodeID)
	}
	return vr.value, vr.typ, nil
}

// HasFolder reports whether nodeID is a folder created by AddFolder.
func (m *NodeManager) HasFolder(nodeID *ua.NodeID) bool {
	if nodeID == nil {
		return false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.folders[nodeID.String()]
	return ok
}

// Snapshot returns the current value of every variable, ordered by node id.
func (m *NodeManager) Snapshot() []Change {
	m.mu.RLock()
	out := make([]Change, 0, len(m.vars))
	for key, vr := range m.vars {
		out = append(out, Change{NodeID: key, Value: vr.value, Type: vr.typ, Time: vr.updated})
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].NodeID < out[j].NodeID })
	return out
}

// OnChange registers an observer for variable writes.
func (m *NodeManager) OnChange(fn Observer) {
	m.obsMu.Lock()
	defer m.obsMu.Unlock()
	m.observers = append(m.observers, fn)
}

func (m *NodeManager) notify(c Change) {
	m.obsMu.RLock()
	defer m.obsMu.RUnlock()
	for _, fn := range m.observers {
		fn(c)
	}
}
