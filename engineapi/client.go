package engineapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/mdlayher/vsock"
)

// Client sends one request per connection to an auction daemon.
type Client struct {
	// Network is "tcp" (default) or "vsock".
	Network string
	// Address is host:port for tcp.
	Address string
	// CID and Port address the daemon over vsock.
	CID  uint32
	Port uint32
	// Timeout bounds the whole exchange. Zero means 30 seconds.
	Timeout time.Duration
}

type halfCloser interface {
	CloseWrite() error
}

func (c *Client) dial(ctx context.Context) (net.Conn, error) {
	switch c.Network {
	case "", "tcp":
		var d net.Dialer
		return d.DialContext(ctx, "tcp", c.Address)
	case "vsock":
		return vsock.Dial(c.CID, c.Port, nil)
	default:
		return nil, fmt.Errorf("unsupported network %q", c.Network)
	}
}

// Do writes req as JSON, half-closes the connection so the daemon sees EOF,
// and decodes the response. A response with Success false is returned
// without error; callers inspect ErrorKind and Message.
func (c *Client) Do(ctx context.Context, req any) (*Response, error) {
	timeout := c.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, err := c.dial(ctx)
	if err != nil {
		return nil, fmt.Errorf("dial daemon: %w", err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			return nil, fmt.Errorf("set deadline: %w", err)
		}
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	if _, err := io.Copy(conn, bytes.NewReader(body)); err != nil {
		return nil, fmt.Errorf("write request: %w", err)
	}
	if hc, ok := conn.(halfCloser); ok {
		if err := hc.CloseWrite(); err != nil {
			return nil, fmt.Errorf("close write side: %w", err)
		}
	}

	var resp Response
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &resp, nil
}
