package hl7v2

import (
	"context"
	"fmt"
	"net"
	"time"
)

// Client reads MLLP-framed messages from a single TCP session with the
// upstream feed and writes one acknowledgment per message. The feed's
// handshake contract requires the ACK before the next message is sent, so
// Read/Ack calls alternate strictly.
type Client struct {
	conn        net.Conn
	buf         []byte
	readTimeout time.Duration
}

// Dial connects to the MLLP feed at addr. The context bounds the connection
// attempt; readTimeout bounds each subsequent read.
func Dial(ctx context.Context, addr string, readTimeout time.Duration) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("mllp: dial %s: %w", addr, err)
	}
	return &Client{
		conn:        conn,
		buf:         make([]byte, 0, 4096),
		readTimeout: readTimeout,
	}, nil
}

// ReadMessage blocks until one complete MLLP frame has been received and
// returns the unframed HL7v2 bytes. It returns an error when the session is
// closed by the peer, the read deadline expires with no partial frame
// pending, or the buffered frame exceeds MLLPMaxMessageSize.
func (c *Client) ReadMessage() ([]byte, error) {
	readBuf := make([]byte, 4096)

	for {
		if msg, rest, found := UnframeMessage(c.buf); found {
			c.buf = append(c.buf[:0], rest...)
			return msg, nil
		}

		c.conn.SetReadDeadline(time.Now().Add(c.readTimeout))
		n, err := c.conn.Read(readBuf)
		if n > 0 {
			c.buf = append(c.buf, readBuf[:n]...)
			if len(c.buf) > MLLPMaxMessageSize {
				return nil, fmt.Errorf("mllp: message exceeds max size")
			}
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("mllp: read: %w", err)
		}
	}
}

// Ack writes a framed acknowledgment back to the feed.
func (c *Client) Ack(framed []byte) error {
	c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if _, err := c.conn.Write(framed); err != nil {
		return fmt.Errorf("mllp: write ack: %w", err)
	}
	return nil
}

// Close terminates the session.
func (c *Client) Close() error {
	return c.conn.Close()
}
