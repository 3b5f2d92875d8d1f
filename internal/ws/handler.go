package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"nhooyr.io/websocket"
)

const (
	writeTimeout = 10 * time.Second
	pingPeriod   = 30 * time.Second
	sendBuffer   = 64
)

// ServeHTTP upgrades the request and serves the client until it disconnects
// or the hub closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: h.allowAnyOrigin,
	})
	if err != nil {
		h.logger.Error("websocket accept failed", "error", err)
		return
	}

	c := &Client{hub: h, send: make(chan []byte, sendBuffer), conn: conn}
	select {
	case h.register <- c:
	case <-h.done:
		conn.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}

	c.sendRecords()
	go c.writeLoop(r.Context())
	c.readLoop(r.Context())
}

// reply queues a message for this client only.
func (c *Client) reply(typ MessageType, payload any) {
	data, err := NewMessage(typ, payload)
	if err != nil {
		c.hub.logger.Error("encoding websocket reply", "type", typ, "error", err)
		return
	}
	select {
	case c.hub.events <- event{to: c, data: data}:
	case <-c.hub.done:
	}
}

func (c *Client) sendRecords() {
	if c.hub.records == nil {
		return
	}
	data, err := c.hub.records()
	if err != nil {
		c.reply(MsgError, ErrorEvent{Message: err.Error()})
		return
	}
	c.reply(MsgFullState, json.RawMessage(data))
}

// handle answers one client request.
func (c *Client) handle(msg Message) {
	switch msg.Type {
	case MsgSync:
		c.sendRecords()

	case MsgSubscribe:
		var sub Subscription
		if len(msg.Payload) > 0 {
			if err := json.Unmarshal(msg.Payload, &sub); err != nil {
				c.reply(MsgError, ErrorEvent{Message: "invalid subscribe payload"})
				return
			}
		}
		c.subscribe(sub.Clusters)

	case MsgCancel:
		var ref ClusterRef
		if err := json.Unmarshal(msg.Payload, &ref); err != nil || ref.ClusterID == "" {
			c.reply(MsgError, ErrorEvent{Message: "cancel needs a clusterId"})
			return
		}
		if c.hub.cancel == nil {
			c.reply(MsgError, ErrorEvent{ClusterID: ref.ClusterID, Message: "cancel is not available"})
			return
		}
		if err := c.hub.cancel(ref.ClusterID); err != nil {
			c.reply(MsgError, ErrorEvent{ClusterID: ref.ClusterID, Message: err.Error()})
			return
		}
		c.hub.logger.Info("operation cancelled from websocket", "cluster", ref.ClusterID)
		c.reply(MsgCancelAccepted, ref)

	default:
		c.reply(MsgError, ErrorEvent{Message: "unknown message type " + string(msg.Type)})
	}
}

func (c *Client) readLoop(ctx context.Context) {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				c.hub.logger.Debug("websocket client closed the connection")
			}
			return
		}
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.reply(MsgError, ErrorEvent{Message: "invalid message"})
			continue
		}
		c.handle(msg)
	}
}

func (c *Client) writeLoop(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				c.conn.Close(websocket.StatusNormalClosure, "")
				return
			}
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := c.conn.Write(wctx, websocket.MessageText, data)
			cancel()
			if err != nil {
				return
			}

		case <-ticker.C:
			pctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := c.conn.Ping(pctx)
			cancel()
			if err != nil {
				return
			}

		case <-ctx.Done():
			return
		}
	}
}
