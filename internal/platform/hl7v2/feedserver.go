package hl7v2

import (
	"fmt"
	"net"
	"sync"
	"time"
)

// FeedServer plays the hospital side of the MLLP handshake: it accepts a
// client session, sends each queued message as one MLLP frame, and waits for
// the client's acknowledgment before sending the next. It exists for tests
// and local simulation of the upstream feed.
type FeedServer struct {
	listener net.Listener
	mu       sync.Mutex
	queue    [][]byte
	acks     [][]byte
	conns    map[net.Conn]struct{}
	done     chan struct{}
	wg       sync.WaitGroup
}

// NewFeedServer starts a feed server listening on addr (use "127.0.0.1:0"
// for an OS-assigned port in tests). messages are raw HL7v2 payloads; they
// are framed before sending.
func NewFeedServer(addr string, messages [][]byte) (*FeedServer, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("mllp: failed to listen on %s: %w", addr, err)
	}

	s := &FeedServer{
		listener: ln,
		queue:    messages,
		conns:    make(map[net.Conn]struct{}),
		done:     make(chan struct{}),
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.acceptLoop()
	}()

	return s, nil
}

// Addr returns the listener address string.
func (s *FeedServer) Addr() string {
	return s.listener.Addr().String()
}

// Acks returns the raw acknowledgment payloads received so far, in order.
func (s *FeedServer) Acks() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.acks))
	copy(out, s.acks)
	return out
}

// Stop closes the listener and all tracked connections and waits for the
// serving goroutines to finish.
func (s *FeedServer) Stop() error {
	close(s.done)
	err := s.listener.Close()

	s.mu.Lock()
	for conn := range s.conns {
		conn.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()
	return err
}

func (s *FeedServer) acceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.done:
			default:
			}
			return
		}

		s.trackConn(conn, true)

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.trackConn(conn, false)
			defer conn.Close()
			s.serveSession(conn)
		}()
	}
}

func (s *FeedServer) trackConn(conn net.Conn, add bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if add {
		s.conns[conn] = struct{}{}
	} else {
		delete(s.conns, conn)
	}
}

// serveSession sends every queued message, waiting for one ACK frame after
// each, then closes the session.
func (s *FeedServer) serveSession(conn net.Conn) {
	s.mu.Lock()
	queue := s.queue
	s.mu.Unlock()

	buf := make([]byte, 0, 4096)
	readBuf := make([]byte, 4096)

	for _, payload := range queue {
		select {
		case <-s.done:
			return
		default:
		}

		conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if _, err := conn.Write(FrameMessage(payload)); err != nil {
			return
		}

		// Wait for exactly one ACK frame.
		for {
			ack, rest, found := UnframeMessage(buf)
			if found {
				buf = append(buf[:0], rest...)
				s.mu.Lock()
				s.acks = append(s.acks, ack)
				s.mu.Unlock()
				break
			}

			conn.SetReadDeadline(time.Now().Add(10 * time.Second))
			n, err := conn.Read(readBuf)
			if n > 0 {
				buf = append(buf, readBuf[:n]...)
				continue
			}
			if err != nil {
				return
			}
		}
	}
}
