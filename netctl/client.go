package netctl

import (
	"bufio"
	"context"
	"io"
	"net"
	"strings"
	"time"

	"github.com/ardnew/soundbooster/config"
)

// Client speaks the control protocol to a booster.
type Client struct {
	conn net.Conn
	r    *bufio.Reader
}

// Dial connects to the control port at addr ("host:port").
func Dial(ctx context.Context, addr string) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn, r: bufio.NewReader(conn)}, nil
}

// Raw sends one line and returns the reply line without terminator.
func (c *Client) Raw(ctx context.Context, line string) (string, error) {
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Time{}
	}
	_ = c.conn.SetDeadline(deadline)

	if _, err := io.WriteString(c.conn, strings.TrimRight(line, "\r\n")+"\n"); err != nil {
		return "", err
	}
	return c.ReadLine()
}

// ReadLine reads one reply line without terminator.
func (c *Client) ReadLine() (string, error) {
	reply, err := c.r.ReadString('\n')
	if err != nil && (err != io.EOF || reply == "") {
		return "", err
	}
	return strings.TrimRight(reply, "\r\n"), nil
}

// Do sends cmd and decodes the status reply.
func (c *Client) Do(ctx context.Context, cmd Command) (config.Configuration, error) {
	reply, err := c.Raw(ctx, cmd.String())
	if err != nil {
		return config.Configuration{}, err
	}
	return ParseStatus(reply)
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}
