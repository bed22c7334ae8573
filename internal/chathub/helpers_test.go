package chathub_test

import (
	"blindchat/backend/internal/chathub"
	"blindchat/backend/internal/models"
	"blindchat/backend/internal/pubsub"
	"blindchat/backend/internal/storage"
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const waitFor = 2 * time.Second
const pollEvery = 10 * time.Millisecond

func openTestStore(t *testing.T) *storage.Service {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, storage.AutoMigrate(db))
	return storage.NewStorageService(db)
}

// testEnv wires the hub's collaborators over an in-memory database and bus.
type testEnv struct {
	store   *storage.Service
	bus     *pubsub.MemoryBus
	svc     *chathub.Services
	conns   *MockConnections
	tickers *tickerFactory
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := openTestStore(t)
	bus := pubsub.NewMemoryBus()
	t.Cleanup(func() { bus.Close() })

	conns := new(MockConnections)
	svc := chathub.NewServices(store, bus, conns)
	tickers := newTickerFactory()
	svc.Clock.NewTicker = tickers.New

	return &testEnv{store: store, bus: bus, svc: svc, conns: conns, tickers: tickers}
}

func (e *testEnv) createUser(t *testing.T, name string, interests ...string) *models.User {
	t.Helper()
	u := &models.User{Name: name, Email: name + "@example.com"}
	u.SetInterests(interests)
	require.NoError(t, e.store.CreateUser(context.Background(), u))
	return u
}

func (e *testEnv) connect(t *testing.T, a, b *models.User) {
	t.Helper()
	ctx := context.Background()
	_, err := e.store.CreateRequest(ctx, &models.ConnectionRequest{
		ToUserID: b.ID, FromUserID: a.ID, Name: a.Name, Email: a.Email, Timestamp: time.Now(),
	})
	require.NoError(t, err)
	require.NoError(t, e.store.AcceptRequest(ctx, b.ID, a.ID, time.Now()))
}

// MockConnections is a testify double for chathub.ConnectionRequester.
type MockConnections struct {
	mock.Mock
}

func (m *MockConnections) SendRequest(ctx context.Context, fromID, toID string) (models.RequestResult, error) {
	args := m.Called(ctx, fromID, toID)
	return args.Get(0).(models.RequestResult), args.Error(1)
}

// MockScheduler is a testify double for chathub.ExpiryScheduler.
type MockScheduler struct {
	mock.Mock
}

func (m *MockScheduler) ScheduleExpiry(ctx context.Context, sessionID string, at time.Time) error {
	args := m.Called(ctx, sessionID, at)
	return args.Error(0)
}

// fakeTicker only fires when the test says so.
type fakeTicker struct {
	ch      chan time.Time
	once    sync.Once
	stopped chan struct{}
}

func newFakeTicker() *fakeTicker {
	return &fakeTicker{ch: make(chan time.Time, 16), stopped: make(chan struct{})}
}

func (f *fakeTicker) C() <-chan time.Time { return f.ch }
func (f *fakeTicker) Stop()               { f.once.Do(func() { close(f.stopped) }) }
func (f *fakeTicker) Tick()               { f.ch <- time.Now() }

// tickerFactory hands out fake tickers and remembers them in creation order.
type tickerFactory struct {
	created chan *fakeTicker
}

func newTickerFactory() *tickerFactory {
	return &tickerFactory{created: make(chan *fakeTicker, 16)}
}

func (f *tickerFactory) New(time.Duration) chathub.Ticker {
	t := newFakeTicker()
	f.created <- t
	return t
}

func (f *tickerFactory) Next(t *testing.T) *fakeTicker {
	t.Helper()
	select {
	case tk := <-f.created:
		return tk
	case <-time.After(waitFor):
		t.Fatal("no countdown was started")
		return nil
	}
}

// recorder captures emitted frames.
type recorder struct {
	mu     sync.Mutex
	frames []recordedFrame
}

type recordedFrame struct {
	Type string
	Data any
}

func (r *recorder) Emit(frameType string, data any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, recordedFrame{Type: frameType, Data: data})
}

func (r *recorder) all() []recordedFrame {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]recordedFrame(nil), r.frames...)
}

func (r *recorder) ofType(frameType string) []any {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []any
	for _, f := range r.frames {
		if f.Type == frameType {
			out = append(out, f.Data)
		}
	}
	return out
}

func (r *recorder) states() []chathub.LifecycleState {
	var out []chathub.LifecycleState
	for _, d := range r.ofType(models.FrameSessionState) {
		out = append(out, d.(chathub.SessionView).State)
	}
	return out
}
