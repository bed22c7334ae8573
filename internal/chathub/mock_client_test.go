package chathub_test

import (
	"blindchat/backend/internal/models"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

type MockClient struct {
	userID string
	send   chan models.ServerFrame
	closed atomic.Bool

	mu     sync.Mutex
	frames []models.ServerFrame
}

func newMockClient(userID string) *MockClient {
	return &MockClient{userID: userID, send: make(chan models.ServerFrame, 256)}
}

func (c *MockClient) GetUserID() string                         { return c.userID }
func (c *MockClient) GetSendChannel() chan<- models.ServerFrame { return c.send }
func (c *MockClient) Run()                                      {}
func (c *MockClient) Close()                                    { c.closed.Store(true) }

// drain moves everything pushed so far into frames.
func (c *MockClient) drain() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for {
		select {
		case f := <-c.send:
			c.frames = append(c.frames, f)
		default:
			return
		}
	}
}

func (c *MockClient) ofType(frameType string) []models.ServerFrame {
	c.drain()
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []models.ServerFrame
	for _, f := range c.frames {
		if f.Type == frameType {
			out = append(out, f)
		}
	}
	return out
}

// waitFrame waits for a frame of the given type whose payload satisfies ok.
func (c *MockClient) waitFrame(t *testing.T, frameType string, ok func(json.RawMessage) bool) {
	t.Helper()
	require.Eventually(t, func() bool {
		for _, f := range c.ofType(frameType) {
			if ok == nil || ok(f.Data) {
				return true
			}
		}
		return false
	}, waitFor, pollEvery, "no %s frame matched", frameType)
}

func stateIs(state string) func(json.RawMessage) bool {
	return func(data json.RawMessage) bool {
		var view struct {
			State string `json:"state"`
		}
		return json.Unmarshal(data, &view) == nil && view.State == state
	}
}
