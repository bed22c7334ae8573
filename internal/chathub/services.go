package chathub

import (
	"blindchat/backend/internal/models"
	"blindchat/backend/internal/pubsub"
	"blindchat/backend/internal/storage"
)

// Services bundles the collaborators shared by every connected user.
type Services struct {
	Store       storage.Storage
	Bus         pubsub.Bus
	Clock       *SessionClock
	Channel     *MessageChannel
	Presence    *PresenceTracker
	Matcher     *MatcherService
	Reaper      *Reaper
	Connections ConnectionRequester
	// Scheduler is optional; without it expiry relies on the clients and
	// the sweeper.
	Scheduler ExpiryScheduler
	// Notices turns a failed action into the text shown to the user.
	Notices func(error) models.Notice
}

func NewServices(s storage.Storage, bus pubsub.Bus, connections ConnectionRequester) *Services {
	return &Services{
		Store:       s,
		Bus:         bus,
		Clock:       NewSessionClock(s),
		Channel:     NewMessageChannel(s, bus),
		Presence:    NewPresenceTracker(s, bus),
		Matcher:     NewMatcherService(s),
		Reaper:      NewReaper(s, bus),
		Connections: connections,
		Notices:     defaultNotice,
	}
}

func defaultNotice(err error) models.Notice {
	return models.Notice{Code: "error", Message: err.Error()}
}
