// Package stdio serves a single host over newline-delimited JSON: one
// command per input line, one event per output line. End of input is
// treated as the host going away.
package stdio

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"sync"

	"github.com/specialistvlad/liveresolver/internal/protocol"
	"github.com/specialistvlad/liveresolver/internal/registry"
	"github.com/specialistvlad/liveresolver/internal/transport"
)

// MaxLineSize bounds a single command line.
const MaxLineSize = 16 << 20

type line struct {
	data []byte
	err  error
}

// Conn implements transport.Conn over a reader and a writer.
type Conn struct {
	lines chan line

	mu sync.Mutex
	w  io.Writer
}

// NewConn starts reading commands from r. Events are written to w.
func NewConn(r io.Reader, w io.Writer) *Conn {
	c := &Conn{lines: make(chan line), w: w}
	go c.read(r)
	return c
}

func (c *Conn) read(r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), MaxLineSize)
	for scanner.Scan() {
		data := bytes.TrimSpace(scanner.Bytes())
		if len(data) == 0 {
			continue
		}
		c.lines <- line{data: append([]byte(nil), data...)}
	}
	if err := scanner.Err(); err != nil {
		c.lines <- line{err: err}
	}
	close(c.lines)
}

// Recv implements transport.Conn.
func (c *Conn) Recv(ctx context.Context) ([]byte, error) {
	select {
	case l, ok := <-c.lines:
		if !ok {
			return nil, io.EOF
		}
		return l.data, l.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Send implements transport.Conn.
func (c *Conn) Send(_ context.Context, ev protocol.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	c.mu.Lock()
	defer c.mu.Unlock()
	_, err = c.w.Write(data)
	return err
}

// Serve runs one worker over r and w until r is exhausted or ctx is done.
func Serve(ctx context.Context, r io.Reader, w io.Writer, reg *registry.Registry) error {
	return transport.Serve(ctx, NewConn(r, w), reg)
}
