package ws

import "encoding/json"

// MessageType identifies the kind of WebSocket message.
type MessageType string

// Server to client.
const (
	MsgFullState      MessageType = "full_state"
	MsgRecordsChanged MessageType = "records_changed"
	MsgProgress       MessageType = "progress"
	MsgResult         MessageType = "result"
	MsgCancelAccepted MessageType = "cancel_accepted"
	MsgError          MessageType = "error"
)

// Client to server.
const (
	MsgSync      MessageType = "sync"
	MsgSubscribe MessageType = "subscribe"
	MsgCancel    MessageType = "cancel"
)

// Message is the envelope for all WebSocket messages.
type Message struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ProgressEvent is one step of a running cluster operation.
type ProgressEvent struct {
	ClusterID string `json:"clusterId"`
	Operation string `json:"operation"`
	Step      string `json:"step"`
}

// ResultEvent ends a cluster operation started through the API.
type ResultEvent struct {
	ClusterID string         `json:"clusterId"`
	Operation string         `json:"operation"`
	OK        bool           `json:"ok"`
	Error     string         `json:"error,omitempty"`
	Result    map[string]any `json:"result,omitempty"`
}

// Subscription limits progress and result events to the listed clusters.
// An empty list follows every cluster.
type Subscription struct {
	Clusters []string `json:"clusters"`
}

// ClusterRef names the cluster a cancel request or its answer is about.
type ClusterRef struct {
	ClusterID string `json:"clusterId"`
}

// ErrorEvent reports a failed client request.
type ErrorEvent struct {
	ClusterID string `json:"clusterId,omitempty"`
	Message   string `json:"message"`
}

// NewMessage creates a new Message with the given type and payload.
func NewMessage(typ MessageType, payload any) ([]byte, error) {
	var p json.RawMessage
	if payload != nil {
		var err error
		p, err = json.Marshal(payload)
		if err != nil {
			return nil, err
		}
	}
	return json.Marshal(Message{Type: typ, Payload: p})
}
