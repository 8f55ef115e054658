// internal/poller/poller.go
package poller

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/atomic"

	"github.com/tamzrod/mightywatt/internal/protocol"
	"github.com/tamzrod/mightywatt/internal/transport"
)

// Link abstracts the transport operations needed by the poller.
type Link interface {
	Write(b []byte) error
	Read(n int, timeout time.Duration) ([]byte, error)
}

// Rate limits. Rates at or below MinRate are rejected, as are intervals
// shorter than MinInterval.
const (
	DefaultRate        = 10.0
	MinRate            = 1.2
	MinInterval        = 5 * time.Millisecond
	DefaultReadTimeout = 100 * time.Millisecond
)

// Config is the runtime config the poller needs.
type Config struct {
	Interval           time.Duration
	ReadTimeout        time.Duration
	DVMInputResistance int
}

// Poller is a clock-driven exchange loop: one write, one status read per tick.
type Poller struct {
	cfg      Config
	link     Link
	mailbox  Mailbox
	interval *atomic.Duration
	now      func() time.Time
}

// New creates a poller.
func New(cfg Config, link Link) (*Poller, error) {
	if link == nil {
		return nil, errors.New("poller: link required")
	}
	if cfg.Interval == 0 {
		cfg.Interval = RateInterval(DefaultRate)
	}
	if err := checkInterval(cfg.Interval); err != nil {
		return nil, err
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}
	return &Poller{
		cfg:      cfg,
		link:     link,
		interval: atomic.NewDuration(cfg.Interval),
		now:      time.Now,
	}, nil
}

// RateInterval converts a rate in Hz to a tick period.
func RateInterval(hz float64) time.Duration {
	return time.Duration(float64(time.Second) / hz)
}

// ValidateRate rejects rates the device loop cannot honour.
func ValidateRate(hz float64) error {
	if !(hz > MinRate) {
		return fmt.Errorf("%w: update rate %v Hz must be above %v Hz", protocol.ErrValidation, hz, MinRate)
	}
	if RateInterval(hz) < MinInterval {
		return fmt.Errorf("%w: update rate %v Hz exceeds the %v minimum period", protocol.ErrValidation, hz, MinInterval)
	}
	return nil
}

func checkInterval(d time.Duration) error {
	if d < MinInterval || d >= RateInterval(MinRate) {
		return fmt.Errorf("%w: poll interval %v outside [%v, %v)", protocol.ErrValidation, d, MinInterval, RateInterval(MinRate))
	}
	return nil
}

// SetRate changes the tick rate. It takes effect on the next schedule.
func (p *Poller) SetRate(hz float64) error {
	if err := ValidateRate(hz); err != nil {
		return err
	}
	p.interval.Store(RateInterval(hz))
	return nil
}

// Interval returns the current tick period.
func (p *Poller) Interval() time.Duration {
	return p.interval.Load()
}

// Enqueue hands cmd to the next tick, superseding any unsent command.
func (p *Poller) Enqueue(cmd []byte) {
	p.mailbox.Put(cmd)
}

// PollOnce performs exactly one tick: the pending command, or a poll byte.
func (p *Poller) PollOnce() PollResult {
	cmd, ok := p.mailbox.Take()
	if !ok {
		cmd = []byte{protocol.PollByte}
	}
	return p.Exchange(cmd)
}

// Exchange writes cmd and reads one status record.
// All-or-nothing: any failure aborts the exchange.
func (p *Poller) Exchange(cmd []byte) PollResult {
	res := PollResult{Command: cmd}

	if err := p.link.Write(cmd); err != nil {
		res.At = p.now()
		res.Err = err
		return res
	}

	raw, err := p.link.Read(protocol.RecordSize, p.cfg.ReadTimeout)
	res.At = p.now()
	if err != nil {
		res.Err = err
		return res
	}
	if len(raw) != protocol.RecordSize {
		res.Err = fmt.Errorf("%w: short status read: got %d of %d bytes", transport.ErrComm, len(raw), protocol.RecordSize)
		return res
	}

	snap, err := protocol.DecodeStatus(raw, p.cfg.DVMInputResistance)
	if err != nil {
		res.Err = err
		return res
	}
	snap.At = res.At

	// Commit only if the whole exchange succeeded
	res.Snapshot = snap
	return res
}
