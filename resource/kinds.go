package resource

// Kind identifies the type of object behind a handle.
type Kind uint32

const (
	KindInvalid Kind = iota
	KindEngine
	KindServerRuntime
	KindClient
	KindSession
	KindEventLoop
	KindServer
	KindServerHandle
	KindNodeManager
	KindServerThread
	KindRunToken
	KindNode
)

var kindNames = [...]string{
	KindInvalid:       "invalid",
	KindEngine:        "engine",
	KindServerRuntime: "server_runtime",
	KindClient:        "client",
	KindSession:       "session",
	KindEventLoop:     "event_loop",
	KindServer:        "server",
	KindServerHandle:  "server_handle",
	KindNodeManager:   "node_manager",
	KindServerThread:  "server_thread",
	KindRunToken:      "run_token",
	KindNode:          "node",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}
