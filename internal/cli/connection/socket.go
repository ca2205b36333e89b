package connection

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/sudheendrakatikar/exsim/internal/server/localserver"
	"github.com/sudheendrakatikar/exsim/internal/server/management"
)

// DefaultTimeout bounds one request when the context has no deadline.
const DefaultTimeout = 10 * time.Second

// SocketClient talks to the local management socket. Commands are sent
// one per line and each reply is one JSON line.
type SocketClient struct {
	path string

	mu     sync.Mutex
	conn   net.Conn
	reader *bufio.Reader
}

// NewSocketClient creates a client for the socket at path. It connects
// lazily.
func NewSocketClient(path string) *SocketClient {
	return &SocketClient{path: path}
}

// Connect connects to the socket.
func (c *SocketClient) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectLocked(ctx)
}

func (c *SocketClient) connectLocked(ctx context.Context) error {
	if c.conn != nil {
		return nil
	}
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", c.path)
	if err != nil {
		return fmt.Errorf("connect %s: %w", c.path, err)
	}
	c.conn = conn
	c.reader = bufio.NewReader(conn)
	return nil
}

// Close closes the connection. It is a no-op when not connected.
func (c *SocketClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	c.conn.Write([]byte("quit\n"))
	err := c.conn.Close()
	c.conn = nil
	c.reader = nil
	return err
}

// Execute sends one command and decodes the reply data into out.
func (c *SocketClient) Execute(ctx context.Context, cmd string, out any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.connectLocked(ctx); err != nil {
		return err
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(DefaultTimeout)
	}
	if err := c.conn.SetDeadline(deadline); err != nil {
		return err
	}

	if _, err := c.conn.Write([]byte(cmd + "\n")); err != nil {
		return fmt.Errorf("send %q: %w", cmd, err)
	}
	line, err := c.reader.ReadBytes('\n')
	if err != nil {
		return fmt.Errorf("read reply: %w", err)
	}

	var resp struct {
		OK    bool            `json:"ok"`
		Error string          `json:"error"`
		Data  json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(line, &resp); err != nil {
		return fmt.Errorf("parse reply: %w", err)
	}
	if !resp.OK {
		if resp.Error == "" {
			return errors.New("command failed")
		}
		return errors.New(resp.Error)
	}
	if out == nil || len(resp.Data) == 0 {
		return nil
	}
	return json.Unmarshal(resp.Data, out)
}

func (c *SocketClient) List(ctx context.Context) ([]management.ObjectInfo, error) {
	var objects []management.ObjectInfo
	if err := c.Execute(ctx, "list", &objects); err != nil {
		return nil, err
	}
	return objects, nil
}

func (c *SocketClient) Get(ctx context.Context, name string) (*management.ObjectInfo, error) {
	var info management.ObjectInfo
	if err := c.Execute(ctx, "get "+name, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

func (c *SocketClient) Status(ctx context.Context) (*localserver.Status, error) {
	var st localserver.Status
	if err := c.Execute(ctx, "status", &st); err != nil {
		return nil, err
	}
	return &st, nil
}
