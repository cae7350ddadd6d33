package rabbitmq

import (
	"context"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/marminbh/journey-logger-svc/internal/config"
)

const (
	initialConnectAttempts = 5
	maxReconnectBackoff    = 30 * time.Second
	publishAttempts        = 3
)

// Connection owns one AMQP connection and channel used for publishing.
// A monitor goroutine re-dials when the broker drops either of them.
type Connection struct {
	cfg    *config.RabbitMQConfig
	logger *zap.Logger

	mu      sync.RWMutex
	conn    *amqp.Connection
	channel *amqp.Channel

	reconnectMu  sync.Mutex
	reconnecting bool

	stopOnce sync.Once
	stop     chan struct{}
}

// NewConnection creates a new Connection instance
func NewConnection(cfg *config.RabbitMQConfig, logger *zap.Logger) *Connection {
	return &Connection{
		cfg:    cfg,
		logger: logger,
		stop:   make(chan struct{}),
	}
}

// Connect dials the broker, declares the events exchange and starts the
// reconnect monitor. The initial dial is retried with backoff.
func (c *Connection) Connect() error {
	backoff := time.Second
	var err error
	for attempt := 1; attempt <= initialConnectAttempts; attempt++ {
		if err = c.dial(); err == nil {
			break
		}
		c.logger.Warn("RabbitMQ connection attempt failed",
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff),
			zap.Error(err),
		)
		if attempt == initialConnectAttempts {
			return fmt.Errorf("failed to connect to RabbitMQ after %d attempts: %w", initialConnectAttempts, err)
		}
		time.Sleep(backoff)
		backoff = min(backoff*2, maxReconnectBackoff)
	}

	go c.monitor()
	return nil
}

func (c *Connection) dial() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.channel != nil && !c.channel.IsClosed() {
		c.channel.Close()
	}
	if c.conn != nil && !c.conn.IsClosed() {
		c.conn.Close()
	}

	conn, err := amqp.DialConfig(c.cfg.ConnectionURL(), amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
		Vhost:     c.cfg.VHost,
		Properties: amqp.Table{
			"connection_name": "journey-logger",
		},
	})
	if err != nil {
		return fmt.Errorf("failed to dial RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to open channel: %w", err)
	}

	if err := ch.ExchangeDeclare(c.cfg.Exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("failed to declare exchange %s: %w", c.cfg.Exchange, err)
	}

	c.conn = conn
	c.channel = ch

	c.logger.Info("Connected to RabbitMQ",
		zap.String("host", c.cfg.Host),
		zap.String("vhost", c.cfg.VHost),
		zap.String("exchange", c.cfg.Exchange),
	)
	return nil
}

// monitor waits for the connection or channel to close and re-dials
func (c *Connection) monitor() {
	for {
		c.mu.RLock()
		if c.conn == nil || c.channel == nil {
			c.mu.RUnlock()
			return
		}
		connClosed := c.conn.NotifyClose(make(chan *amqp.Error, 1))
		chanClosed := c.channel.NotifyClose(make(chan *amqp.Error, 1))
		c.mu.RUnlock()

		var reason *amqp.Error
		select {
		case <-c.stop:
			return
		case reason = <-connClosed:
		case reason = <-chanClosed:
		}
		if reason == nil {
			// Graceful close initiated by Close
			return
		}

		c.logger.Error("RabbitMQ connection lost, reconnecting",
			zap.String("reason", reason.Reason),
			zap.Int("code", reason.Code),
		)
		c.reconnect()
	}
}

func (c *Connection) reconnect() {
	c.reconnectMu.Lock()
	if c.reconnecting {
		c.reconnectMu.Unlock()
		return
	}
	c.reconnecting = true
	c.reconnectMu.Unlock()

	defer func() {
		c.reconnectMu.Lock()
		c.reconnecting = false
		c.reconnectMu.Unlock()
	}()

	backoff := time.Second
	for attempt := 1; ; attempt++ {
		select {
		case <-c.stop:
			return
		default:
		}

		if err := c.dial(); err != nil {
			c.logger.Warn("RabbitMQ reconnect failed",
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			time.Sleep(backoff)
			backoff = min(backoff*2, maxReconnectBackoff)
			continue
		}

		c.logger.Info("Reconnected to RabbitMQ", zap.Int("attempt", attempt))
		return
	}
}

// Close stops the monitor and closes the channel and connection
func (c *Connection) Close() {
	c.stopOnce.Do(func() { close(c.stop) })

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.channel != nil {
		c.channel.Close()
		c.channel = nil
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
		c.logger.Info("RabbitMQ connection closed")
	}
}

// PublishMessage publishes a persistent JSON message, retrying briefly
// while a reconnect is in progress
func (c *Connection) PublishMessage(ctx context.Context, routingKey string, body []byte) error {
	delay := 100 * time.Millisecond

	for attempt := 1; attempt <= publishAttempts; attempt++ {
		c.mu.RLock()
		ch := c.channel
		c.mu.RUnlock()

		if ch == nil || ch.IsClosed() {
			if attempt == publishAttempts {
				break
			}
			time.Sleep(delay)
			delay *= 2
			continue
		}

		err := ch.PublishWithContext(ctx, c.cfg.Exchange, routingKey, false, false, amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
			Body:         body,
		})
		if err == nil {
			return nil
		}
		if !ch.IsClosed() || attempt == publishAttempts {
			return fmt.Errorf("failed to publish message: %w", err)
		}

		c.logger.Warn("Publish failed on closed channel, retrying",
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		time.Sleep(delay)
		delay *= 2
	}

	return fmt.Errorf("RabbitMQ channel unavailable after %d attempts", publishAttempts)
}

// IsHealthy checks if the connection and channel are open
func (c *Connection) IsHealthy() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn != nil && !c.conn.IsClosed() && c.channel != nil && !c.channel.IsClosed()
}
