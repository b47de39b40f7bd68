package transport

import (
	"io"
	"net"
	"sync"

	"github.com/dkoosis/goarpc/internal/framing"
	"github.com/dkoosis/goarpc/internal/logging"
	"github.com/dkoosis/goarpc/internal/rpcclient"
)

// DefaultClientMaxMessageBytes is the declared-length ceiling the client
// applies to inbound frames (see internal/framing).
const DefaultClientMaxMessageBytes = 64 * 1024

// Client owns one TCP connection to a server, framing outbound call/notify
// bodies and feeding decoded inbound frames to an rpcclient.Client. It
// implements rpcclient.Sender.
type Client struct {
	nc  net.Conn
	dec *framing.Decoder
	log logging.Logger

	writeMu sync.Mutex
}

// Dial connects to addr and returns a Client ready to be handed to
// rpcclient.New as its Sender. Callers are expected to do:
//
//	t, _ := transport.Dial(addr, log)
//	rc := rpcclient.New(t, log)
//	go t.ReadLoop(rc.HandleMessage)
func Dial(addr string, log logging.Logger) (*Client, error) {
	nc, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = logging.GetNoopLogger()
	}
	return &Client{
		nc:  nc,
		dec: framing.NewDecoder(DefaultClientMaxMessageBytes),
		log: log.WithField("component", "transport_client"),
	}, nil
}

// Send implements rpcclient.Sender: it frames and writes one outbound body.
func (c *Client) Send(body []byte) error {
	frame := framing.Encode(body)
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_, err := c.nc.Write(frame)
	return err
}

// ReadLoop blocks reading frames off the connection and calls onMessage
// with each decoded body until the connection closes or a protocol
// violation forces it shut. Run this on its own goroutine.
func (c *Client) ReadLoop(onMessage func(body []byte)) error {
	buf := make([]byte, 4096)
	for {
		n, err := c.nc.Read(buf)
		if n > 0 {
			c.dec.Feed(buf[:n])
			for {
				body, ok, derr := c.dec.Next()
				if derr != nil {
					c.log.Warn("client frame decode error, closing connection", "error", derr)
					_ = c.nc.Close()
					return derr
				}
				if !ok {
					break
				}
				onMessage(body)
			}
		}
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
	}
}

// Close shuts down the underlying connection.
func (c *Client) Close() error {
	return c.nc.Close()
}

var _ rpcclient.Sender = (*Client)(nil)
