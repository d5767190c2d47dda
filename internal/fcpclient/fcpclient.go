// Package fcpclient drives the client side of the C8 socket protocol:
// connect to a card's UNIX socket, send one request, and read the
// PROGRESS*/ERROR|SUCCESS response stream back (spec §4.7, §7 "user-visible
// client behavior").
package fcpclient

import (
	"encoding/binary"
	"fmt"
	"net"
	"time"

	"github.com/fcp-project/fcpd/internal/socket"
)

// Client holds one connection to a card's daemon socket.
type Client struct {
	conn net.Conn
}

// Dial connects to the daemon socket at path.
func Dial(path string) (*Client, error) {
	conn, err := net.DialTimeout("unix", path, 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("fcpclient: dial %s: %w", path, err)
	}
	return &Client{conn: conn}, nil
}

// Close releases the connection.
func (c *Client) Close() error { return c.conn.Close() }

// ProgressFunc is invoked once per PROGRESS frame with its percent value.
type ProgressFunc func(percent uint8)

// Run sends one request and drains the response stream, invoking onProgress
// for every PROGRESS frame, returning nil on SUCCESS or the ErrorCode on
// ERROR.
func (c *Client) Run(reqType socket.RequestType, payload []byte, onProgress ProgressFunc) error {
	if _, err := c.conn.Write(socket.RequestFrame(reqType, payload).Encode()); err != nil {
		return fmt.Errorf("fcpclient: write request: %w", err)
	}
	for {
		frame, err := socket.ReadFrame(c.conn)
		if err != nil {
			return fmt.Errorf("fcpclient: read response: %w", err)
		}
		if frame.Magic != socket.MagicResponse {
			return fmt.Errorf("fcpclient: unexpected response magic %#x", frame.Magic)
		}
		switch socket.ResponseType(frame.Type) {
		case socket.RespProgress:
			if len(frame.Payload) >= 1 && onProgress != nil {
				onProgress(frame.Payload[0])
			}
		case socket.RespSuccess:
			return nil
		case socket.RespError:
			code := socket.ErrorCode(0)
			if len(frame.Payload) >= 2 {
				code = socket.ErrorCode(binary.LittleEndian.Uint16(frame.Payload))
			}
			return code
		default:
			return fmt.Errorf("fcpclient: unknown response type %d", frame.Type)
		}
	}
}

// Reboot issues REBOOT, waits for the SUCCESS response, then waits for the
// daemon to close the socket as the device restarts (spec §4.7, §8 scenario
// 6: "awaits socket EOF").
func (c *Client) Reboot() error {
	if err := c.Run(socket.ReqReboot, nil, nil); err != nil {
		return err
	}
	buf := make([]byte, 1)
	_ = c.conn.SetReadDeadline(time.Now().Add(1 * time.Second))
	if _, err := c.conn.Read(buf); err == nil {
		return fmt.Errorf("fcpclient: expected EOF after reboot, got data")
	}
	return nil
}
