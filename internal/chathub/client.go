package chathub

import "blindchat/backend/internal/models"

// Client is one live connection of a user. It abstracts the transport so
// the hub can be driven by a WebSocket or by a test double.
type Client interface {
	// GetUserID returns the authenticated user behind the connection.
	GetUserID() string

	// GetSendChannel returns the channel the hub pushes frames into. The
	// hub never blocks on it.
	GetSendChannel() chan<- models.ServerFrame

	// Run starts the client's read and write pumps.
	Run()
	// Close shuts the connection down. The hub calls it exactly once, after
	// it stopped using the send channel.
	Close()
}
