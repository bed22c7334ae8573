package chathub

import (
	"blindchat/backend/internal/models"
	"context"
	"log"
)

// ManagerService is the registry of connected users. A single goroutine
// (Run) owns the maps; connections talk to it through channels.
type ManagerService struct {
	Clients  map[string]Client
	handlers map[string]*UserHandler

	// Channels
	IncomingCh   chan models.ClientCommand
	RegisterCh   chan Client
	UnregisterCh chan Client

	Services *Services

	done chan struct{}
}

func NewManagerService(svc *Services) *ManagerService {
	return &ManagerService{
		Clients:      make(map[string]Client),
		handlers:     make(map[string]*UserHandler),
		IncomingCh:   make(chan models.ClientCommand),
		RegisterCh:   make(chan Client),
		UnregisterCh: make(chan Client),
		Services:     svc,
		done:         make(chan struct{}),
	}
}

// Run dispatches until ctx is done, then disconnects everyone.
func (m *ManagerService) Run(ctx context.Context) {
	log.Println("INFO: Chat hub started.")
	defer close(m.done)

	for {
		select {
		case <-ctx.Done():
			for _, c := range m.Clients {
				m.unregister(c)
			}
			log.Println("INFO: Chat hub stopped.")
			return

		case c := <-m.RegisterCh:
			m.register(c)

		case c := <-m.UnregisterCh:
			m.unregister(c)

		case cmd := <-m.IncomingCh:
			m.dispatch(cmd)
		}
	}
}

// Register, Unregister and Dispatch hand work to Run. They return at once
// if the hub has stopped.
func (m *ManagerService) Register(c Client) {
	select {
	case m.RegisterCh <- c:
	case <-m.done:
	}
}

func (m *ManagerService) Unregister(c Client) {
	select {
	case m.UnregisterCh <- c:
	case <-m.done:
	}
}

func (m *ManagerService) Dispatch(cmd models.ClientCommand) {
	select {
	case m.IncomingCh <- cmd:
	case <-m.done:
	}
}

// register replaces any previous connection of the same user.
func (m *ManagerService) register(c Client) {
	userID := c.GetUserID()
	if old, ok := m.Clients[userID]; ok && old != c {
		log.Printf("INFO: User %s reconnected, closing previous connection.", userID)
		m.unregister(old)
	}

	h := NewUserHandler(userID, m.Services, c.GetSendChannel())
	m.Clients[userID] = c
	m.handlers[userID] = h
	h.Start()
	log.Printf("INFO: Client %s registered (%d online).", userID, len(m.Clients))
}

func (m *ManagerService) unregister(c Client) {
	userID := c.GetUserID()
	current, ok := m.Clients[userID]
	if !ok || current != c {
		return
	}

	if h, ok := m.handlers[userID]; ok {
		h.Stop()
		delete(m.handlers, userID)
	}
	delete(m.Clients, userID)
	c.Close()
	log.Printf("INFO: Client %s unregistered.", userID)
}

func (m *ManagerService) dispatch(cmd models.ClientCommand) {
	h, ok := m.handlers[cmd.SenderID]
	if !ok {
		log.Printf("WARNING: Command %s from unregistered user %s dropped", cmd.Type, cmd.SenderID)
		return
	}
	if !h.Deliver(cmd) {
		log.Printf("WARNING: Inbox of %s full, dropping %s", cmd.SenderID, cmd.Type)
	}
}
