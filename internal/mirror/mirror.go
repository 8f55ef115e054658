// internal/mirror/mirror.go
package mirror

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tamzrod/mightywatt/internal/poller"
	"github.com/tamzrod/mightywatt/internal/status"
)

// Config places one device in the endpoint's register space.
type Config struct {
	UnitID     uint8
	BaseSlot   uint16
	DeviceName string
	StaleAfter time.Duration
}

// Mirror copies poll results into Modbus holding registers.
// Observe never blocks; Run does the network I/O.
type Mirror struct {
	w          *blockWriter
	staleAfter time.Duration
	log        logrus.FieldLogger

	results chan poller.PollResult

	last   status.Snapshot
	lastOK time.Time
	health uint16
	failed bool

	now func() time.Time
}

func New(cfg Config, cli endpointClient, log logrus.FieldLogger) *Mirror {
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = time.Second
	}
	return &Mirror{
		w:          newBlockWriter(cli, cfg.UnitID, cfg.BaseSlot, cfg.DeviceName),
		staleAfter: cfg.StaleAfter,
		log:        log.WithField("component", "mirror"),
		results:    make(chan poller.PollResult, 1),
		health:     status.HealthUnknown,
		now:        time.Now,
	}
}

// Observe keeps only the newest result.
func (m *Mirror) Observe(res poller.PollResult) {
	for {
		select {
		case m.results <- res:
			return
		default:
		}
		select {
		case <-m.results:
		default:
		}
	}
}

// Run writes results until ctx is done.
func (m *Mirror) Run(ctx context.Context) {
	t := time.NewTicker(m.staleAfter / 2)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case res := <-m.results:
			m.apply(res)
		case <-t.C:
			if m.lastOK.IsZero() || m.now().Sub(m.lastOK) <= m.staleAfter {
				continue
			}
			if m.health == status.HealthStale {
				continue
			}
			m.health = status.HealthStale
			m.flush()
		}
	}
}

func (m *Mirror) apply(res poller.PollResult) {
	if res.Err != nil {
		m.health = status.HealthError
	} else {
		m.health = status.HealthOK
		m.last = res.Snapshot
		m.lastOK = res.At
		if m.lastOK.IsZero() {
			m.lastOK = m.now()
		}
	}
	m.flush()
}

func (m *Mirror) flush() {
	err := m.w.write(status.Encode(m.last, m.health))
	switch {
	case err != nil && !m.failed:
		m.failed = true
		m.log.Warnf("register write failed: %v", err)
	case err != nil:
		m.log.Debugf("register write failed: %v", err)
	case m.failed:
		m.failed = false
		m.log.Info("register writes recovered")
	}
}
