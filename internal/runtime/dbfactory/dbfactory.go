// Package dbfactory implements the HandlerContext's database-client
// factory: a lazily-connected, container-lifetime-cached *sql.DB handed
// to user handlers that need to talk to the external status/application
// database.
package dbfactory

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/lib/pq" // postgres driver
)

const (
	defaultMaxOpenConns    = 10
	defaultMaxIdleConns    = 5
	defaultConnMaxLifetime = 5 * time.Minute
)

// Factory returns a pooled database connection for the current
// invocation's configured URL, reusing the connection across warm
// container invocations the way the platform's container reuse expects.
type Factory func(ctx context.Context) (*sql.DB, error)

// Pool caches one *sql.DB per connection string so repeated invocations
// inside the same warm container reuse it instead of reopening.
type Pool struct {
	mu    sync.Mutex
	conns map[string]*sql.DB
}

// NewPool returns an empty connection pool.
func NewPool() *Pool {
	return &Pool{conns: make(map[string]*sql.DB)}
}

// Get returns the cached *sql.DB for url, opening and pinging it on first
// use.
func (p *Pool) Get(ctx context.Context, url string) (*sql.DB, error) {
	if url == "" {
		return nil, fmt.Errorf("dbfactory: database url is required")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if db, ok := p.conns[url]; ok {
		return db, nil
	}

	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("dbfactory: open %q: %w", url, err)
	}
	db.SetMaxOpenConns(defaultMaxOpenConns)
	db.SetMaxIdleConns(defaultMaxIdleConns)
	db.SetConnMaxLifetime(defaultConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("dbfactory: ping %q: %w", url, err)
	}

	p.conns[url] = db
	return db, nil
}

// Factory binds url to the Pool, returning the closure form exposed on
// HandlerContext.
func (p *Pool) Factory(url string) Factory {
	return func(ctx context.Context) (*sql.DB, error) {
		return p.Get(ctx, url)
	}
}

// CloseAll closes every cached connection, used at process shutdown in
// long-lived local test harnesses; Lambda containers are simply frozen or
// recycled rather than shut down cleanly.
func (p *Pool) CloseAll() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var firstErr error
	for url, db := range p.conns {
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("dbfactory: close %q: %w", url, err)
		}
	}
	p.conns = make(map[string]*sql.DB)
	return firstErr
}
