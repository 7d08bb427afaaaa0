// Package inspect serves live engine diagnostics over JSON-RPC: the
// current node tree and the recent foreign-call trace. The server is an
// opt-in development tool; the engine never depends on it.
package inspect

import (
	"context"
	"net"
	"sync"

	"github.com/sourcegraph/jsonrpc2"

	"github.com/go-loom/loom/pkg/errors"
	"github.com/go-loom/loom/pkg/host"
	"github.com/go-loom/loom/pkg/trace"
)

// TreeFunc produces the current tree snapshot. It runs on the inspector's
// goroutine, so implementations must marshal through the engine's loop or
// hand out loop-independent data.
type TreeFunc func() []host.TreeNode

// Server answers tree/snapshot and trace/dump requests on a listener.
type Server struct {
	ln    net.Listener
	tree  TreeFunc
	trace *trace.Buffer

	mu     sync.Mutex
	conns  map[*jsonrpc2.Conn]struct{}
	closed bool
}

// TraceDump carries a serialized trace timeline; Data is the msgpack
// payload, base64 in transit.
type TraceDump struct {
	Data []byte `json:"data"`
}

// Serve starts answering requests on ln until Close.
func Serve(ln net.Listener, tree TreeFunc, traceBuf *trace.Buffer) *Server {
	s := &Server{
		ln:    ln,
		tree:  tree,
		trace: traceBuf,
		conns: map[*jsonrpc2.Conn]struct{}{},
	}
	go s.acceptLoop()
	return s
}

// Addr returns the listener address.
func (s *Server) Addr() net.Addr { return s.ln.Addr() }

func (s *Server) acceptLoop() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		s.serveConn(conn)
	}
}

func (s *Server) serveConn(conn net.Conn) {
	stream := jsonrpc2.NewBufferedStream(conn, jsonrpc2.VSCodeObjectCodec{})
	rpc := jsonrpc2.NewConn(context.Background(), stream, jsonrpc2.HandlerWithError(s.handle))

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		rpc.Close()
		return
	}
	s.conns[rpc] = struct{}{}
	s.mu.Unlock()

	go func() {
		<-rpc.DisconnectNotify()
		s.mu.Lock()
		delete(s.conns, rpc)
		s.mu.Unlock()
	}()
}

func (s *Server) handle(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) (any, error) {
	switch req.Method {
	case "tree/snapshot":
		if s.tree == nil {
			return []host.TreeNode{}, nil
		}
		return s.tree(), nil
	case "trace/dump":
		if s.trace == nil {
			return TraceDump{}, nil
		}
		data, err := s.trace.Dump()
		if err != nil {
			errors.Report(err)
			return nil, &jsonrpc2.Error{Code: jsonrpc2.CodeInternalError, Message: err.Error()}
		}
		return TraceDump{Data: data}, nil
	default:
		return nil, &jsonrpc2.Error{
			Code:    jsonrpc2.CodeMethodNotFound,
			Message: "unknown method " + req.Method,
		}
	}
}

// Close stops accepting and drops live connections.
func (s *Server) Close() error {
	s.mu.Lock()
	s.closed = true
	conns := make([]*jsonrpc2.Conn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.conns = map[*jsonrpc2.Conn]struct{}{}
	s.mu.Unlock()

	for _, c := range conns {
		c.Close()
	}
	return s.ln.Close()
}
