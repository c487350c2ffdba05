package natsclient

import (
	"fmt"
	"log/slog"
	"time"
)

// ClientOption is a functional option for configuring the Client
type ClientOption func(*Client) error

func positive(name string, d time.Duration, set func(time.Duration)) ClientOption {
	return func(*Client) error {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, d)
		}
		set(d)
		return nil
	}
}

// WithMaxReconnects sets the maximum number of reconnection attempts (-1 for infinite)
func WithMaxReconnects(maxReconnects int) ClientOption {
	return func(c *Client) error {
		c.maxReconnects = maxReconnects
		return nil
	}
}

// WithReconnectWait sets the wait between reconnection attempts. Zero
// reconnects immediately.
func WithReconnectWait(d time.Duration) ClientOption {
	return func(c *Client) error {
		if d < 0 {
			return fmt.Errorf("reconnect wait cannot be negative, got %s", d)
		}
		c.reconnectWait = d
		return nil
	}
}

// WithPingInterval sets the server ping interval
func WithPingInterval(d time.Duration) ClientOption {
	return func(c *Client) error {
		return positive("ping interval", d, func(d time.Duration) { c.pingInterval = d })(c)
	}
}

// WithTimeout sets the dial timeout and the default KV operation timeout
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) error {
		return positive("timeout", d, func(d time.Duration) { c.timeout = d })(c)
	}
}

// WithDrainTimeout bounds how long Close drains before closing
func WithDrainTimeout(d time.Duration) ClientOption {
	return func(c *Client) error {
		return positive("drain timeout", d, func(d time.Duration) { c.drainTimeout = d })(c)
	}
}

// WithLogger sets the logger. A nil logger keeps slog.Default.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) error {
		if logger != nil {
			c.logger = logger
		}
		return nil
	}
}

// WithCircuitBreakerThreshold sets how many consecutive connect or bucket
// failures open the circuit. Values below one use the default of 5.
func WithCircuitBreakerThreshold(threshold int32) ClientOption {
	return func(c *Client) error {
		c.circuitThreshold = threshold
		if threshold < 1 {
			c.circuitThreshold = 5
		}
		return nil
	}
}

// WithMaxBackoff caps the circuit breaker backoff. Values under a second use
// the default of one minute.
func WithMaxBackoff(d time.Duration) ClientOption {
	return func(c *Client) error {
		c.maxBackoff = d
		if d < time.Second {
			c.maxBackoff = time.Minute
		}
		return nil
	}
}

// WithCredentials authenticates with a username and password
func WithCredentials(username, password string) ClientOption {
	return func(c *Client) error {
		if username == "" {
			return fmt.Errorf("credentials require a username")
		}
		c.username, c.password = username, password
		return nil
	}
}

// WithToken authenticates with a token
func WithToken(token string) ClientOption {
	return func(c *Client) error {
		c.token = token
		return nil
	}
}

// WithName sets the connection name reported to the server
func WithName(name string) ClientOption {
	return func(c *Client) error {
		c.clientName = name
		return nil
	}
}
