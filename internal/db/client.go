package db

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/clearcite/reportd/internal/metrics"
)

// Config holds database configuration
type Config struct {
	Driver          string // "postgres" or "sqlite3"
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	Path            string // sqlite3 file path
	MaxConnections  int
	IdleConnections int
	MaxLifetime     time.Duration
	SSLMode         string
}

// Client manages database connections and operations
type Client struct {
	db     *sqlx.DB
	logger *zap.Logger
	config *Config

	// Write queue for async operations
	writeQueue chan WriteRequest
	workers    int
	stopCh     chan struct{}
	workerWg   sync.WaitGroup // Track worker goroutines for graceful shutdown
}

// WriteRequest represents an async write operation
type WriteRequest struct {
	Type     WriteType
	Data     interface{}
	Callback func(error)
}

type WriteType int

const (
	WriteTypeReport WriteType = iota
	WriteTypeRenderEvent
)

// String returns the string representation of WriteType
func (wt WriteType) String() string {
	switch wt {
	case WriteTypeReport:
		return "Report"
	case WriteTypeRenderEvent:
		return "RenderEvent"
	default:
		return "Unknown"
	}
}

// NewClient creates a new database client with connection pool
func NewClient(config *Config, logger *zap.Logger) (*Client, error) {
	if config.Driver == "" {
		config.Driver = "postgres"
	}
	if config.MaxConnections == 0 {
		config.MaxConnections = 25
	}
	if config.IdleConnections == 0 {
		config.IdleConnections = 5
	}
	if config.MaxLifetime == 0 {
		config.MaxLifetime = 5 * time.Minute
	}
	if config.SSLMode == "" {
		config.SSLMode = "require"
	}

	dsn, err := buildDSN(config)
	if err != nil {
		return nil, err
	}

	// Open database connection
	db, err := sqlx.Open(config.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(config.MaxConnections)
	db.SetMaxIdleConns(config.IdleConnections)
	db.SetConnMaxLifetime(config.MaxLifetime)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	client := &Client{
		db:         db,
		logger:     logger,
		config:     config,
		writeQueue: make(chan WriteRequest, 1000),
		workers:    3,
		stopCh:     make(chan struct{}),
	}

	// Start async write workers
	client.startWorkers()

	// Start health check routine
	go client.healthCheck()

	logger.Info("Database client initialized",
		zap.String("driver", config.Driver),
		zap.String("database", config.Database),
		zap.Int("max_connections", config.MaxConnections),
		zap.Int("write_workers", client.workers),
	)

	return client, nil
}

func buildDSN(config *Config) (string, error) {
	switch config.Driver {
	case "postgres":
		return fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			config.Host, config.Port, config.User, config.Password, config.Database, config.SSLMode,
		), nil
	case "sqlite3":
		if config.Path == "" {
			return "", fmt.Errorf("sqlite3 driver requires a file path")
		}
		// Serialized access keeps the async writers safe on a single file.
		return fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", config.Path), nil
	default:
		return "", fmt.Errorf("unsupported database driver: %q", config.Driver)
	}
}

// startWorkers starts the async write workers
func (c *Client) startWorkers() {
	for i := 0; i < c.workers; i++ {
		c.workerWg.Add(1)
		go c.writeWorker(i)
	}
}

// writeWorker processes async write requests
func (c *Client) writeWorker(id int) {
	defer c.workerWg.Done()
	c.logger.Debug("Write worker started", zap.Int("worker_id", id))

	for {
		select {
		case req := <-c.writeQueue:
			c.processWrite(req)
			metrics.DBWriteQueueDepth.Set(float64(len(c.writeQueue)))
		case <-c.stopCh:
			// Drain remaining writes before stopping
			c.drainQueue()
			c.logger.Debug("Write worker stopped", zap.Int("worker_id", id))
			return
		}
	}
}

// drainQueue processes remaining writes during shutdown
func (c *Client) drainQueue() {
	for {
		select {
		case req := <-c.writeQueue:
			c.processWrite(req)
		default:
			return
		}
	}
}

// processWrite handles a single write request
func (c *Client) processWrite(req WriteRequest) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var err error
	switch req.Type {
	case WriteTypeReport:
		if report, ok := req.Data.(*Report); ok {
			err = c.SaveReport(ctx, report)
		} else {
			err = fmt.Errorf("invalid data type for report write: %T", req.Data)
		}
	case WriteTypeRenderEvent:
		if event, ok := req.Data.(*RenderEvent); ok {
			err = c.SaveRenderEvent(ctx, event)
		} else {
			err = fmt.Errorf("invalid data type for render event write: %T", req.Data)
		}
	default:
		err = fmt.Errorf("unknown write type: %v", req.Type)
	}

	if err != nil {
		c.logger.Error("Async write failed",
			zap.String("type", req.Type.String()),
			zap.Error(err),
		)
	}

	if req.Callback != nil {
		req.Callback(err)
	}
}

// QueueWrite queues an async write operation. Falls back to a synchronous
// write when the queue is full so records are not silently dropped.
func (c *Client) QueueWrite(req WriteRequest) {
	select {
	case c.writeQueue <- req:
		metrics.DBWriteQueueDepth.Set(float64(len(c.writeQueue)))
	default:
		c.logger.Warn("Write queue full, executing synchronously",
			zap.String("type", req.Type.String()),
		)
		c.processWrite(req)
	}
}

// healthCheck periodically verifies database connectivity
func (c *Client) healthCheck() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := c.db.PingContext(ctx); err != nil {
				c.logger.Error("Database health check failed", zap.Error(err))
			}
			cancel()
		case <-c.stopCh:
			return
		}
	}
}

// Close gracefully shuts down the client, draining pending writes first
func (c *Client) Close() error {
	close(c.stopCh)
	c.workerWg.Wait()
	return c.db.Close()
}

// GetDB returns the underlying sqlx handle for direct queries
func (c *Client) GetDB() *sqlx.DB {
	return c.db
}

// WithTransaction executes fn within a transaction, rolling back on error
func (c *Client) WithTransaction(ctx context.Context, fn func(*sqlx.Tx) error) error {
	tx, err := c.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			c.logger.Error("Transaction rollback failed", zap.Error(rbErr))
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}
