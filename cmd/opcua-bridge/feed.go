package main

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/wippyai/opcua-bridge/metrics"
	"github.com/wippyai/opcua-bridge/server"
)

// FeedMessage is one variable value pushed to feed clients.
type FeedMessage struct {
	Time   time.Time `json:"time"`
	Value  any       `json:"value"`
	NodeID string    `json:"node_id"`
	Type   string    `json:"type"`
}

func feedMessage(c server.Change) FeedMessage {
	return FeedMessage{NodeID: c.NodeID, Type: c.Type.String(), Value: c.Value, Time: c.Time}
}

// Feed streams node manager changes to WebSocket clients. A new client
// first receives the current value of every variable.
type Feed struct {
	nodes    *server.NodeManager
	metrics  *metrics.Metrics
	log      *zap.Logger
	clients  map[*websocket.Conn]*sync.Mutex
	mu       sync.RWMutex
	upgrader websocket.Upgrader
}

// NewFeed creates a feed and registers it as an observer of nodes.
func NewFeed(nodes *server.NodeManager, m *metrics.Metrics, log *zap.Logger) *Feed {
	f := &Feed{
		nodes:   nodes,
		metrics: m,
		log:     log,
		clients: make(map[*websocket.Conn]*sync.Mutex),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
	nodes.OnChange(f.broadcast)
	return f
}

// ServeHTTP upgrades the connection and keeps it until the client leaves.
func (f *Feed) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		f.log.Debug("feed upgrade failed", zap.Error(err))
		return
	}

	wmu := &sync.Mutex{}
	for _, c := range f.nodes.Snapshot() {
		if err := f.send(conn, wmu, feedMessage(c)); err != nil {
			conn.Close()
			return
		}
	}

	f.mu.Lock()
	f.clients[conn] = wmu
	f.mu.Unlock()
	f.metrics.FeedConnected()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	f.drop(conn)
}

func (f *Feed) send(conn *websocket.Conn, wmu *sync.Mutex, msg FeedMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	wmu.Lock()
	defer wmu.Unlock()
	return conn.WriteMessage(websocket.TextMessage, data)
}

func (f *Feed) broadcast(c server.Change) {
	msg := feedMessage(c)

	f.mu.RLock()
	type client struct {
		conn *websocket.Conn
		wmu  *sync.Mutex
	}
	clients := make([]client, 0, len(f.clients))
	for conn, wmu := range f.clients {
		clients = append(clients, client{conn, wmu})
	}
	f.mu.RUnlock()

	for _, cl := range clients {
		if err := f.send(cl.conn, cl.wmu, msg); err != nil {
			f.drop(cl.conn)
		}
	}
}

func (f *Feed) drop(conn *websocket.Conn) {
	f.mu.Lock()
	_, ok := f.clients[conn]
	delete(f.clients, conn)
	f.mu.Unlock()
	if ok {
		f.metrics.FeedDisconnected()
	}
	conn.Close()
}

// ClientCount returns the number of connected clients.
func (f *Feed) ClientCount() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.clients)
}

// Close disconnects every client.
func (f *Feed) Close() {
	f.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(f.clients))
	for conn := range f.clients {
		conns = append(conns, conn)
	}
	f.mu.Unlock()
	for _, conn := range conns {
		f.drop(conn)
	}
}
