package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// ErrPoolClosed is returned by Acquire once the pool has been shut
// down. While the pool is open, exhaustion is never an error: Acquire
// degrades to an emergency connection instead.
var ErrPoolClosed = errors.New("storage: connection pool is closed")

// Conn is an exclusively checked-out store connection. Emergency
// connections bypass the pool under exhaustion pressure and are always
// closed on release, never recycled.
type Conn struct {
	DB        *sql.DB
	emergency bool
}

// Emergency reports whether this connection was fabricated outside the
// pool.
func (c *Conn) Emergency() bool {
	return c.emergency
}

// Pool is a bounded pool of reusable store connections. Checkout is
// exclusive until explicit release.
type Pool struct {
	path string
	size int
	free chan *Conn

	mu            sync.Mutex
	closed        bool
	emergencyOpen int
}

// NewPool opens size pooled connections against the store file.
func NewPool(path string, size int) (*Pool, error) {
	if size < 1 {
		size = 1
	}
	p := &Pool{
		path: path,
		size: size,
		free: make(chan *Conn, size),
	}
	for i := 0; i < size; i++ {
		db, err := openConn(path)
		if err != nil {
			p.Close()
			return nil, fmt.Errorf("failed to open pooled connection %d: %v", i, err)
		}
		p.free <- &Conn{DB: db}
	}
	return p, nil
}

func openConn(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path+"?_journal=WAL&_synchronous=NORMAL&_busy_timeout=30000&_foreign_keys=on")
	if err != nil {
		return nil, err
	}
	// Each pooled connection is a single exclusive handle.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)
	return db, nil
}

// Acquire checks out a connection, waiting up to timeout for one to
// free up. On exhaustion it fabricates an emergency connection rather
// than failing; only a closed pool is a hard error.
func (p *Pool) Acquire(timeout time.Duration) (*Conn, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPoolClosed
	}
	p.mu.Unlock()

	select {
	case conn := <-p.free:
		return conn, nil
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case conn := <-p.free:
		return conn, nil
	case <-timer.C:
		log.Printf("Pool: exhausted after %v, fabricating emergency connection", timeout)
		db, err := openConn(p.path)
		if err != nil {
			return nil, fmt.Errorf("failed to open emergency connection: %v", err)
		}
		p.mu.Lock()
		p.emergencyOpen++
		p.mu.Unlock()
		return &Conn{DB: db, emergency: true}, nil
	}
}

// Release returns a pooled connection to the pool. Emergency
// connections, releases after Close, and releases into a full pool all
// close the connection instead.
func (p *Pool) Release(conn *Conn) {
	if conn == nil {
		return
	}

	if conn.emergency {
		p.mu.Lock()
		p.emergencyOpen--
		p.mu.Unlock()
		if err := conn.DB.Close(); err != nil {
			log.Printf("Warning: failed to close emergency connection: %v", err)
		}
		return
	}

	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		if err := conn.DB.Close(); err != nil {
			log.Printf("Warning: failed to close connection after pool shutdown: %v", err)
		}
		return
	}

	select {
	case p.free <- conn:
	default:
		if err := conn.DB.Close(); err != nil {
			log.Printf("Warning: failed to close surplus connection: %v", err)
		}
	}
}

// Available returns the number of idle pooled connections.
func (p *Pool) Available() int {
	return len(p.free)
}

// Close shuts the pool down. Outstanding emergency connections are
// logged loudly; they will still be closed on release.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	leaked := p.emergencyOpen
	p.mu.Unlock()

	if leaked > 0 {
		log.Printf("Warning: %d emergency connection(s) still outstanding at pool close", leaked)
	}

	closedCount := 0
	for {
		select {
		case conn := <-p.free:
			if err := conn.DB.Close(); err != nil {
				log.Printf("Warning: failed to close pooled connection: %v", err)
			}
			closedCount++
		default:
			log.Printf("Pool: closed %d pooled connection(s)", closedCount)
			return
		}
	}
}
