// internal/device/device.go
package device

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"go.uber.org/atomic"

	"github.com/tamzrod/mightywatt/internal/handshake"
	"github.com/tamzrod/mightywatt/internal/poller"
	"github.com/tamzrod/mightywatt/internal/protocol"
	"github.com/tamzrod/mightywatt/internal/status"
	"github.com/tamzrod/mightywatt/internal/transport"
)

// ErrStale is returned by Status when no tick succeeded within StaleAfter.
var ErrStale = errors.New("device: status is stale")

// ErrClosed is returned by setters after Close.
var ErrClosed = errors.New("device: closed")

const DefaultStaleAfter = time.Second

// Link is the transport contract: raw exchange plus line reads for the handshake.
type Link interface {
	Write(b []byte) error
	Read(n int, timeout time.Duration) ([]byte, error)
	ReadLine(timeout time.Duration) (string, error)
	Close() error
}

// Observer receives every poll result on the poller goroutine.
// Implementations must not block.
type Observer interface {
	Observe(res poller.PollResult)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(res poller.PollResult)

func (f ObserverFunc) Observe(res poller.PollResult) { f(res) }

// Option configures a Device.
type Option func(*Device)

// WithLogger sets the logger (default: logrus standard logger).
func WithLogger(l logrus.FieldLogger) Option {
	return func(d *Device) { d.log = l }
}

// WithObserver registers an observer of poll results.
func WithObserver(o Observer) Option {
	return func(d *Device) { d.observers = append(d.observers, o) }
}

// tickFailure carries a failed tick's error until Status reports it.
type tickFailure struct {
	err error
}

// Device is one connected MightyWatt load.
type Device struct {
	cfg   Config
	link  Link
	log   logrus.FieldLogger
	props status.Properties

	poller    *poller.Poller
	observers []Observer

	snap    atomic.Pointer[status.Snapshot]
	tickErr atomic.Pointer[tickFailure]
	closed  atomic.Bool

	opened time.Time
	now    func() time.Time

	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

// Open opens the serial port named in cfg and connects to the device.
func Open(ctx context.Context, cfg Config, opts ...Option) (*Device, error) {
	cfg = cfg.withDefaults()

	link, err := transport.Open(transport.Config{
		Port:        cfg.Port,
		BaudRate:    cfg.BaudRate,
		ReadTimeout: cfg.ReadTimeout,
	})
	if err != nil {
		return nil, err
	}
	return New(ctx, link, cfg, opts...)
}

// New runs the handshake over link, performs one synchronous exchange and
// starts the poll loop. New owns link from here on; it is closed on failure.
func New(ctx context.Context, link Link, cfg Config, opts ...Option) (*Device, error) {
	cfg = cfg.withDefaults()

	d := &Device{
		cfg:  cfg,
		link: link,
		log:  logrus.StandardLogger(),
		now:  time.Now,
		done: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.log = d.log.WithField("port", cfg.Port)
	d.opened = d.now()

	if err := d.connect(ctx); err != nil {
		_ = link.Close()
		return nil, err
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel
	go func() {
		defer close(d.done)
		d.poller.Run(loopCtx, d.publish)
	}()

	return d, nil
}

func (d *Device) connect(ctx context.Context) error {
	if _, err := handshake.Identify(ctx, d.link, d.cfg.Handshake, d.log); err != nil {
		return err
	}

	props, err := handshake.ReadProperties(ctx, d.link, d.cfg.Handshake, d.log)
	if err != nil {
		return err
	}
	d.props = props

	p, err := poller.New(poller.Config{
		Interval:           poller.RateInterval(d.cfg.UpdateRate),
		ReadTimeout:        d.cfg.ReadTimeout,
		DVMInputResistance: props.DVMInputResistance,
	}, d.link)
	if err != nil {
		return err
	}
	d.poller = p

	// status is valid as soon as New returns
	res := p.PollOnce()
	if res.Err != nil {
		return fmt.Errorf("device: initial update: %w", res.Err)
	}
	d.publish(res)

	d.log.WithFields(logrus.Fields{
		"firmware": props.FirmwareVersion,
		"board":    props.BoardRevision,
	}).Info("connected to MightyWatt")
	return nil
}

// publish runs on the poller goroutine (and once from New).
func (d *Device) publish(res poller.PollResult) {
	if res.Err != nil {
		d.tickErr.Store(&tickFailure{err: res.Err})
		d.log.WithField("cmd", commandString(res.Command)).Warnf("poll failed: %v", res.Err)
	} else {
		s := res.Snapshot
		s.Time = s.At.Sub(d.opened).Seconds()
		d.snap.Store(&s)
		res.Snapshot = s
	}

	for _, o := range d.observers {
		o.Observe(res)
	}
}

// ---- setters (non-blocking: the write happens on the next tick) ----

// SetCC sets constant current mode (A).
func (d *Device) SetCC(amps float64) error { return d.setpoint(protocol.ModeCC, amps) }

// SetCV sets constant voltage mode (V).
func (d *Device) SetCV(volts float64) error { return d.setpoint(protocol.ModeCV, volts) }

// SetCP sets constant power mode (W).
func (d *Device) SetCP(watts float64) error { return d.setpoint(protocol.ModeCP, watts) }

// SetCR sets constant resistance mode (Ohm).
func (d *Device) SetCR(ohms float64) error { return d.setpoint(protocol.ModeCR, ohms) }

// SetMode sets any setpoint mode.
func (d *Device) SetMode(m protocol.Mode, value float64) error { return d.setpoint(m, value) }

func (d *Device) setpoint(m protocol.Mode, v float64) error {
	cmd, err := protocol.EncodeSetpoint(m, v)
	if err != nil {
		return err
	}
	return d.enqueue(cmd)
}

// SetRemote selects remote (true) or local (false) voltage sensing.
func (d *Device) SetRemote(remote bool) error {
	return d.enqueue(protocol.EncodeRemote(remote))
}

// SetLocal selects local (true) or remote (false) voltage sensing.
func (d *Device) SetLocal(local bool) error {
	return d.SetRemote(!local)
}

// SetTemperatureThreshold sets the overheat threshold.
func (d *Device) SetTemperatureThreshold(v float64) error {
	cmd, err := protocol.EncodeTemperatureThreshold(v)
	if err != nil {
		return err
	}
	return d.enqueue(cmd)
}

// Stop sets the load current to zero.
func (d *Device) Stop() error {
	return d.SetCC(0)
}

// SetUpdateRate changes the poll rate from the next tick on.
func (d *Device) SetUpdateRate(hz float64) error {
	return d.poller.SetRate(hz)
}

func (d *Device) enqueue(cmd []byte) error {
	if d.closed.Load() {
		return ErrClosed
	}
	d.poller.Enqueue(cmd)
	d.log.WithField("cmd", commandString(cmd)).Debug("command queued")
	return nil
}

// ---- getters ----

// Status returns the latest snapshot.
// A failed tick is reported once by the next call; a snapshot older than
// StaleAfter is ErrStale.
func (d *Device) Status() (status.Snapshot, error) {
	if f := d.tickErr.Swap(nil); f != nil {
		return status.Snapshot{}, fmt.Errorf("device: last poll failed: %w", f.err)
	}

	s := d.snap.Load()
	if s == nil {
		return status.Snapshot{}, ErrStale
	}
	if age := d.now().Sub(s.At); age > d.cfg.StaleAfter {
		return status.Snapshot{}, fmt.Errorf("%w: last update %v ago", ErrStale, age.Round(time.Millisecond))
	}
	out := *s
	out.Faults = slices.Clone(s.Faults)
	return out, nil
}

// MsSinceLastUpdate is the age of the latest snapshot in milliseconds.
func (d *Device) MsSinceLastUpdate() float64 {
	s := d.snap.Load()
	if s == nil {
		return float64(d.now().Sub(d.opened)) / float64(time.Millisecond)
	}
	return float64(d.now().Sub(s.At)) / float64(time.Millisecond)
}

// Properties returns the properties read at handshake.
func (d *Device) Properties() status.Properties {
	return d.props
}

// Port returns the configured port name.
func (d *Device) Port() string {
	return d.cfg.Port
}

// UpdateRate returns the current poll rate in Hz.
func (d *Device) UpdateRate() float64 {
	return float64(time.Second) / float64(d.poller.Interval())
}

// ---- teardown ----

// Close stops the poll loop, forces zero current and local sensing, then
// closes the link. Every step is best-effort; Close never fails and is
// safe to call more than once.
func (d *Device) Close() {
	d.closeOnce.Do(func() {
		d.closed.Store(true)

		d.cancel()
		<-d.done

		zero, _ := protocol.EncodeSetpoint(protocol.ModeCC, 0)
		final := [][]byte{zero, protocol.EncodeRemote(false)}
		for _, cmd := range final {
			if res := d.poller.Exchange(cmd); res.Err != nil {
				d.log.WithField("cmd", commandString(cmd)).Debugf("close: %v", res.Err)
			}
		}

		if err := d.link.Close(); err != nil {
			d.log.Debugf("close: %v", err)
		}
		d.log.Info("disconnected")
	})
}

func commandString(cmd []byte) string {
	c, err := protocol.DecodeCommand(cmd)
	if err != nil {
		return fmt.Sprintf("% x", cmd)
	}
	return c.String()
}
