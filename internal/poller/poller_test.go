// internal/poller/poller_test.go
package poller

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/tamzrod/mightywatt/internal/protocol"
	"github.com/tamzrod/mightywatt/internal/status"
	"github.com/tamzrod/mightywatt/internal/transport"
)

// ---- fake link ----

type fakeLink struct {
	mu      sync.Mutex
	writes  [][]byte
	reply   []byte
	failRd  bool
	failWr  bool
	readCnt int
}

func (f *fakeLink) Write(b []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWr {
		return transport.ErrComm
	}
	f.writes = append(f.writes, append([]byte(nil), b...))
	return nil
}

func (f *fakeLink) Read(n int, _ time.Duration) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.readCnt++
	if f.failRd {
		return nil, transport.ErrComm
	}
	if len(f.reply) > n {
		return f.reply[:n], nil
	}
	return f.reply, nil
}

func (f *fakeLink) written() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.writes...)
}

func okReply() []byte {
	return protocol.EncodeStatus(1000, 5000, 30, 100, false, status.Ready)
}

func newPoller(t *testing.T, link Link) *Poller {
	t.Helper()
	p, err := New(Config{Interval: 10 * time.Millisecond, DVMInputResistance: 330000}, link)
	if err != nil {
		t.Fatalf("New() err=%v", err)
	}
	return p
}

// ---- tests ----

func TestPollOnce_SendsPollByteWhenIdle(t *testing.T) {
	link := &fakeLink{reply: okReply()}
	p := newPoller(t, link)

	res := p.PollOnce()
	if res.Err != nil {
		t.Fatalf("PollOnce err=%v", res.Err)
	}
	if w := link.written(); len(w) != 1 || !bytes.Equal(w[0], []byte{protocol.PollByte}) {
		t.Fatalf("expected poll byte, got %v", w)
	}
	if res.Snapshot.Power != 5.0 || res.Snapshot.At.IsZero() {
		t.Fatalf("unexpected snapshot: %+v", res.Snapshot)
	}
}

func TestPollOnce_SendsLatestCommandOnly(t *testing.T) {
	link := &fakeLink{reply: okReply()}
	p := newPoller(t, link)

	a, _ := protocol.EncodeSetpoint(protocol.ModeCC, 1)
	b, _ := protocol.EncodeSetpoint(protocol.ModeCV, 5)
	p.Enqueue(a)
	p.Enqueue(b)

	p.PollOnce()
	p.PollOnce()

	w := link.written()
	if len(w) != 2 {
		t.Fatalf("expected 2 writes, got %d", len(w))
	}
	if !bytes.Equal(w[0], b) {
		t.Fatalf("first tick should send the latest command, got % x", w[0])
	}
	if !bytes.Equal(w[1], []byte{protocol.PollByte}) {
		t.Fatalf("second tick should poll, got % x", w[1])
	}
}

func TestPollOnce_ShortReadIsCommError(t *testing.T) {
	link := &fakeLink{reply: okReply()[:5]}
	p := newPoller(t, link)

	res := p.PollOnce()
	if !errors.Is(res.Err, transport.ErrComm) {
		t.Fatalf("expected ErrComm, got %v", res.Err)
	}
	if res.Snapshot.At != (time.Time{}) {
		t.Fatalf("failed tick must not carry a snapshot")
	}
}

func TestPollOnce_WriteFailureSkipsRead(t *testing.T) {
	link := &fakeLink{failWr: true}
	p := newPoller(t, link)

	res := p.PollOnce()
	if !errors.Is(res.Err, transport.ErrComm) {
		t.Fatalf("expected ErrComm, got %v", res.Err)
	}
	if link.readCnt != 0 {
		t.Fatalf("read after failed write")
	}
}

func TestRun_KeepsTickingAfterFailures(t *testing.T) {
	link := &fakeLink{failRd: true}
	p := newPoller(t, link)

	ctx, cancel := context.WithCancel(context.Background())
	results := make(chan PollResult, 64)
	done := make(chan struct{})
	go func() {
		p.Run(ctx, func(r PollResult) {
			select {
			case results <- r:
			default:
			}
		})
		close(done)
	}()

	for i := 0; i < 3; i++ {
		select {
		case r := <-results:
			if r.Err == nil {
				t.Fatalf("expected failing tick")
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("poller stopped ticking after %d failures", i)
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not return after cancel")
	}
}

func TestSetRate(t *testing.T) {
	p := newPoller(t, &fakeLink{})

	for _, hz := range []float64{1.2, 1, 0, -5, 201} {
		if err := p.SetRate(hz); !errors.Is(err, protocol.ErrValidation) {
			t.Fatalf("rate %v: expected ErrValidation, got %v", hz, err)
		}
	}

	if err := p.SetRate(200); err != nil {
		t.Fatalf("rate 200: err=%v", err)
	}
	if p.Interval() != 5*time.Millisecond {
		t.Fatalf("interval = %v", p.Interval())
	}
	if err := p.SetRate(2); err != nil || p.Interval() != 500*time.Millisecond {
		t.Fatalf("rate 2: interval=%v err=%v", p.Interval(), err)
	}
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(Config{}, nil); err == nil {
		t.Fatalf("expected error for nil link")
	}
	if _, err := New(Config{Interval: time.Millisecond}, &fakeLink{}); !errors.Is(err, protocol.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}

	p, err := New(Config{}, &fakeLink{})
	if err != nil {
		t.Fatalf("defaults: err=%v", err)
	}
	if p.Interval() != 100*time.Millisecond {
		t.Fatalf("default interval = %v", p.Interval())
	}
}

func TestMailbox_Overwrite(t *testing.T) {
	var m Mailbox

	if _, ok := m.Take(); ok {
		t.Fatalf("empty mailbox returned a command")
	}

	m.Put([]byte{1})
	m.Put([]byte{2})

	got, ok := m.Take()
	if !ok || !bytes.Equal(got, []byte{2}) {
		t.Fatalf("Take() = % x, %v", got, ok)
	}
	if _, ok := m.Take(); ok {
		t.Fatalf("Take() must clear the slot")
	}
}

func TestMailbox_Concurrent(t *testing.T) {
	var m Mailbox
	var wg sync.WaitGroup

	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(v byte) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				m.Put([]byte{v, v})
			}
		}(byte(i))
	}

	stop := make(chan struct{})
	consumed := make(chan struct{})
	go func() {
		defer close(consumed)
		for {
			select {
			case <-stop:
				return
			default:
			}
			if cmd, ok := m.Take(); ok && (len(cmd) != 2 || cmd[0] != cmd[1]) {
				t.Errorf("torn command % x", cmd)
				return
			}
		}
	}()

	wg.Wait()
	close(stop)
	<-consumed
}
