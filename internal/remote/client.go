package remote

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ErrClosed is returned when the connection has ended.
var ErrClosed = errors.New("remote connection closed")

// Client is a controller-side participant.
type Client struct {
	conn *websocket.Conn
	wmu  sync.Mutex
	msgs chan Message
	done chan struct{}
	once sync.Once
}

// Dial connects to a hub at url (ws:// or wss://).
func Dial(ctx context.Context, url string) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	c := &Client{conn: conn, msgs: make(chan Message, 16), done: make(chan struct{})}
	go c.readLoop()
	return c, nil
}

func (c *Client) readLoop() {
	defer close(c.msgs)
	for {
		var m Message
		if err := c.conn.ReadJSON(&m); err != nil {
			return
		}
		select {
		case c.msgs <- m:
		case <-c.done:
			return
		}
	}
}

// Send writes m to the hub.
func (c *Client) Send(m Message) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteJSON(m); err != nil {
		return fmt.Errorf("send %s: %w", m.Type, err)
	}
	return nil
}

// Messages returns the channel of messages from other participants. It is
// closed when the connection ends.
func (c *Client) Messages() <-chan Message {
	return c.msgs
}

// Request sends m and waits for the first message of type want. An error
// message from the engine is returned as an error.
func (c *Client) Request(ctx context.Context, m Message, want string) (Message, error) {
	if err := c.Send(m); err != nil {
		return Message{}, err
	}
	for {
		select {
		case <-ctx.Done():
			return Message{}, ctx.Err()
		case reply, ok := <-c.msgs:
			if !ok {
				return Message{}, ErrClosed
			}
			switch reply.Type {
			case want:
				return reply, nil
			case TypeError:
				var p ErrorPayload
				if err := reply.Decode(&p); err != nil {
					return Message{}, err
				}
				return Message{}, errors.New(p.Message)
			}
		}
	}
}

// Close says goodbye and closes the connection.
func (c *Client) Close() error {
	var err error
	c.once.Do(func() {
		close(c.done)
		c.wmu.Lock()
		c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		c.wmu.Unlock()
		err = c.conn.Close()
	})
	return err
}
