package pubsub

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const pgChangesChannel = "blindchat_changes"

// PostgresBus uses LISTEN/NOTIFY on the primary database as the change
// feed, for deployments without Redis.
type PostgresBus struct {
	pool   *pgxpool.Pool
	local  *MemoryBus
	cancel context.CancelFunc
	done   chan struct{}
}

func NewPostgresBus(ctx context.Context, pool *pgxpool.Pool) (*PostgresBus, error) {
	conn, err := listenConn(ctx, pool)
	if err != nil {
		return nil, err
	}

	lctx, cancel := context.WithCancel(context.Background())
	b := &PostgresBus{
		pool:   pool,
		local:  NewMemoryBus(),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go b.listen(lctx, conn)
	return b, nil
}

func listenConn(ctx context.Context, pool *pgxpool.Pool) (*pgxpool.Conn, error) {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire listen connection: %w", err)
	}
	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{pgChangesChannel}.Sanitize()); err != nil {
		conn.Release()
		return nil, fmt.Errorf("listen %s: %w", pgChangesChannel, err)
	}
	return conn, nil
}

func (b *PostgresBus) listen(ctx context.Context, conn *pgxpool.Conn) {
	defer close(b.done)
	defer func() {
		if conn != nil {
			conn.Release()
		}
	}()

	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err == nil {
			b.local.Notify(n.Payload)
			continue
		}
		if ctx.Err() != nil {
			return
		}

		log.Printf("WARNING: Postgres change feed interrupted: %v", err)
		conn.Release()
		conn = nil
		for conn == nil {
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			c, err := listenConn(ctx, b.pool)
			if err != nil {
				log.Printf("WARNING: Postgres change feed reconnect failed: %v", err)
				continue
			}
			conn = c
		}
		// Signals sent while disconnected are lost; make everyone re-read.
		b.local.NotifyAll()
	}
}

func (b *PostgresBus) Publish(ctx context.Context, topic string) error {
	_, err := b.pool.Exec(ctx, "SELECT pg_notify($1, $2)", pgChangesChannel, topic)
	return err
}

func (b *PostgresBus) Subscribe(topic string) (<-chan struct{}, func()) {
	return b.local.Subscribe(topic)
}

func (b *PostgresBus) Close() error {
	b.cancel()
	<-b.done
	return b.local.Close()
}
