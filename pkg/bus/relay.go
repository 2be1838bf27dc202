package bus

import (
	"bufio"
	"encoding/json"
	"net"
	"os"
	"sync"

	"github.com/google/uuid"
)

// frame is the wire format of a relayed event: one JSON object per line.
// Sender carries the originating bus ID so a bus never re-delivers its
// own publishes when they echo back through the hub.
type frame struct {
	Sender string `json:"sender"`
	Topic  string `json:"topic"`
	Event  Event  `json:"event"`
}

// relay connects a bus to its siblings through a unix-domain socket.
//
// The first bus to bind the socket becomes the hub: it accepts
// connections from later buses and rebroadcasts every frame to all peers
// except the one it arrived on. Every other bus dials in as a client.
// There is no election: if the hub process exits, surviving clients
// degrade to local-only delivery and the per-scope polling fallback
// bounds staleness, per the consistency contract. All failures in this
// file are deliberately silent.
type relay struct {
	id      string
	deliver func(topic string, event Event)

	mu     sync.Mutex
	ln     net.Listener        // hub mode
	peers  map[net.Conn]bool   // hub mode: connected clients
	conn   net.Conn            // client mode
	closed bool
}

// newRelay attaches to the socket at path, as hub or client. Returns nil
// when neither is possible; the caller then runs local-only.
func newRelay(path string, deliver func(string, Event)) *relay {
	r := &relay{
		id:      uuid.NewString(),
		deliver: deliver,
		peers:   make(map[net.Conn]bool),
	}

	if ln, err := net.Listen("unix", path); err == nil {
		r.ln = ln
		go r.acceptLoop(ln)
		return r
	}

	if conn, err := net.Dial("unix", path); err == nil {
		r.conn = conn
		go r.readLoop(conn, nil)
		return r
	}

	// The socket file may be left over from a crashed hub: not bindable,
	// not dialable. Reclaim it once.
	if err := os.Remove(path); err == nil {
		if ln, err := net.Listen("unix", path); err == nil {
			r.ln = ln
			go r.acceptLoop(ln)
			return r
		}
	}

	return nil
}

// healthy reports whether the relay still has a live endpoint.
func (r *relay) healthy() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return false
	}
	return r.ln != nil || r.conn != nil
}

// send relays one event to sibling processes. Best effort: a failed
// write drops the peer (client mode: drops the relay link entirely).
func (r *relay) send(topic string, event Event) {
	line, err := json.Marshal(frame{Sender: r.id, Topic: topic, Event: event})
	if err != nil {
		return
	}
	line = append(line, '\n')

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}

	if r.ln != nil {
		for peer := range r.peers {
			if _, err := peer.Write(line); err != nil {
				peer.Close()
				delete(r.peers, peer)
			}
		}
		return
	}

	if r.conn != nil {
		if _, err := r.conn.Write(line); err != nil {
			r.conn.Close()
			r.conn = nil
		}
	}
}

// acceptLoop runs in hub mode, admitting sibling buses.
func (r *relay) acceptLoop(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		r.mu.Lock()
		if r.closed {
			r.mu.Unlock()
			conn.Close()
			return
		}
		r.peers[conn] = true
		r.mu.Unlock()
		go r.readLoop(conn, conn)
	}
}

// readLoop consumes frames from one connection. In hub mode (origin !=
// nil) every frame is also rebroadcast to the other peers, so clients see
// each other's events without a full mesh.
func (r *relay) readLoop(conn net.Conn, origin net.Conn) {
	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		var f frame
		if err := json.Unmarshal(scanner.Bytes(), &f); err != nil {
			continue
		}
		if f.Sender != r.id {
			r.deliver(f.Topic, f.Event)
		}
		if origin != nil {
			r.rebroadcast(scanner.Bytes(), origin)
		}
	}

	r.mu.Lock()
	if origin != nil {
		delete(r.peers, origin)
	} else if r.conn == conn {
		r.conn = nil
	}
	r.mu.Unlock()
	conn.Close()
}

// rebroadcast forwards a raw frame to every hub peer except its origin.
func (r *relay) rebroadcast(raw []byte, origin net.Conn) {
	line := make([]byte, 0, len(raw)+1)
	line = append(line, raw...)
	line = append(line, '\n')

	r.mu.Lock()
	defer r.mu.Unlock()
	for peer := range r.peers {
		if peer == origin {
			continue
		}
		if _, err := peer.Write(line); err != nil {
			peer.Close()
			delete(r.peers, peer)
		}
	}
}

// close shuts the relay down and, in hub mode, removes the socket file.
func (r *relay) close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	ln := r.ln
	conn := r.conn
	peers := r.peers
	r.ln = nil
	r.conn = nil
	r.peers = make(map[net.Conn]bool)
	r.mu.Unlock()

	if ln != nil {
		addr := ln.Addr().String()
		ln.Close()
		os.Remove(addr)
	}
	if conn != nil {
		conn.Close()
	}
	for peer := range peers {
		peer.Close()
	}
}
