package models

import "encoding/json"

// Frame types sent by the client over the WebSocket.
const (
	FrameSessionRequest = "session.request"
	FrameSessionEnd     = "session.end"
	FrameSessionSend    = "session.send"
	FrameSessionConnect = "session.connect"
	FrameChatOpen       = "chat.open"
	FrameChatClose      = "chat.close"
	FrameChatSend       = "chat.send"
	FrameChatSeen       = "chat.seen"
	FrameInputFocus     = "input.focus"
	FrameInputBlur      = "input.blur"
	FrameAppForeground  = "app.foreground"
	FrameAppBackground  = "app.background"
)

// Frame types pushed to the client.
const (
	FrameSessionState    = "session.state"
	FrameSessionTick     = "session.tick"
	FrameSessionMessages = "session.messages"
	FrameChatMessages    = "chat.messages"
	FramePeerStatus      = "peer.status"
	FrameCue             = "cue"
	FrameDraftCleared    = "draft.cleared"
	FrameNotice          = "notice"
	FrameConnections     = "connections"
)

// ClientCommand is a frame received from a connected client. SenderID is
// filled in by the server from the authenticated connection.
type ClientCommand struct {
	Type       string   `json:"type"`
	SenderID   string   `json:"-"`
	PeerID     string   `json:"peer_id,omitempty"`
	Text       string   `json:"text,omitempty"`
	ImageRef   string   `json:"image_ref,omitempty"`
	MessageIDs []string `json:"message_ids,omitempty"`
}

// ServerFrame is a frame pushed to a connected client.
type ServerFrame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// NewServerFrame marshals data into a frame of the given type.
func NewServerFrame(frameType string, data any) (ServerFrame, error) {
	if data == nil {
		return ServerFrame{Type: frameType}, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return ServerFrame{}, err
	}
	return ServerFrame{Type: frameType, Data: raw}, nil
}

// PeerStatus is what a viewer sees about the peer they are talking to.
type PeerStatus struct {
	PeerID string `json:"peer_id"`
	Online bool   `json:"online"`
	Typing bool   `json:"typing"`
}

// Notice is a user-facing message for a failed action.
type Notice struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ConnectionsView is the user's pending requests and partner list, pushed
// whenever either changes.
type ConnectionsView struct {
	Requests []ConnectionRequest `json:"requests"`
	Partners []PartnerEdge       `json:"partners"`
}
