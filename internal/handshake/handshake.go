// internal/handshake/handshake.go
package handshake

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tamzrod/mightywatt/internal/protocol"
	"github.com/tamzrod/mightywatt/internal/status"
	"github.com/tamzrod/mightywatt/internal/transport"
)

// Link is what the handshake needs from the transport.
type Link interface {
	Write(b []byte) error
	ReadLine(timeout time.Duration) (string, error)
}

// Config holds per-instance retry settings.
type Config struct {
	IdentifyTries   int
	PropertiesTries int
	RetryDelay      time.Duration // negative disables the pause
	LineTimeout     time.Duration

	// OnAttempt is called before every attempt (optional).
	OnAttempt func(phase string, attempt int)
}

const (
	DefaultTries       = 20
	DefaultRetryDelay  = 100 * time.Millisecond
	DefaultLineTimeout = 100 * time.Millisecond

	PhaseIdentify   = "identify"
	PhaseProperties = "properties"
)

func (c Config) withDefaults() Config {
	if c.IdentifyTries <= 0 {
		c.IdentifyTries = DefaultTries
	}
	if c.PropertiesTries <= 0 {
		c.PropertiesTries = DefaultTries
	}
	if c.RetryDelay < 0 {
		c.RetryDelay = 0
	} else if c.RetryDelay == 0 {
		c.RetryDelay = DefaultRetryDelay
	}
	if c.LineTimeout <= 0 {
		c.LineTimeout = DefaultLineTimeout
	}
	return c
}

// Identify sends the identify query until the exact identity line comes back.
func Identify(ctx context.Context, link Link, cfg Config, log logrus.FieldLogger) (string, error) {
	cfg = cfg.withDefaults()

	id, err := Retry(ctx, cfg.IdentifyTries, cfg.RetryDelay, func(attempt int) (string, error) {
		cfg.attempt(PhaseIdentify, attempt)

		if err := link.Write([]byte{protocol.IdentifyQuery}); err != nil {
			return "", err
		}
		line, err := link.ReadLine(cfg.LineTimeout)
		if err != nil {
			log.WithField("attempt", attempt).Debugf("identify: %v", err)
			return "", err
		}
		if !protocol.IsIdentity(line) {
			log.WithField("attempt", attempt).Debugf("identify: not a valid response: %q", line)
			return "", fmt.Errorf("%w: identify reply %q", protocol.ErrProtocol, line)
		}
		return protocol.Identity, nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: no identify response: %w", transport.ErrComm, err)
	}
	return id, nil
}

// ReadProperties sends the property query and parses the 11-line reply.
func ReadProperties(ctx context.Context, link Link, cfg Config, log logrus.FieldLogger) (status.Properties, error) {
	cfg = cfg.withDefaults()

	props, err := Retry(ctx, cfg.PropertiesTries, cfg.RetryDelay, func(attempt int) (status.Properties, error) {
		cfg.attempt(PhaseProperties, attempt)

		if err := link.Write([]byte{protocol.PropertyQuery}); err != nil {
			return status.Properties{}, err
		}

		lines := make([]string, 0, protocol.PropertyLines)
		for i := 0; i < protocol.PropertyLines; i++ {
			line, err := link.ReadLine(cfg.LineTimeout)
			if err != nil {
				log.WithField("attempt", attempt).Debugf("properties: line %d: %v", i, err)
				return status.Properties{}, err
			}
			lines = append(lines, line)
		}

		p, err := protocol.ParseProperties(lines)
		if err != nil {
			log.WithField("attempt", attempt).Debugf("properties: not a valid response: %q", lines)
			return status.Properties{}, err
		}
		return p, nil
	})
	if err != nil {
		return status.Properties{}, fmt.Errorf("%w: no property response: %w", transport.ErrComm, err)
	}
	return props, nil
}

func (c Config) attempt(phase string, n int) {
	if c.OnAttempt != nil {
		c.OnAttempt(phase, n)
	}
}
