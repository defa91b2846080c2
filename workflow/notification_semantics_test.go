package workflow

import (
	"errors"
	"sync"
	"testing"
	"time"
)

// NOTE: These tests are intentionally DB-free. They validate the intended queue
// and ledger semantics:
// - a job is sent exactly once on success, retried with backoff on failure, and
//   terminal (DEAD) after MaxAttempts
// - a job whose order no longer exists is dropped without retry
// - per-product serialization makes check-then-append safe under concurrency
//
// Full DB integration coverage lives behind INTEGRATION_TESTS=1.

func TestDispatcherDefaults(t *testing.T) {
	d := NewNotificationDispatcher(nil, nil, nil)
	if d.MaxAttempts != 2 {
		t.Fatalf("expected MaxAttempts 2, got %d", d.MaxAttempts)
	}
	if d.InitialBackoff != 3*time.Second {
		t.Fatalf("expected InitialBackoff 3s, got %s", d.InitialBackoff)
	}
	if d.DispatcherID == "" {
		t.Fatalf("expected non-empty dispatcher id")
	}
}

func TestNextBackoffDoublesAndCaps(t *testing.T) {
	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 3 * time.Second},
		{2, 6 * time.Second},
		{3, 12 * time.Second},
		{10, 10 * time.Minute},
	}
	for _, tc := range cases {
		if got := nextBackoff(3*time.Second, tc.attempt); got != tc.want {
			t.Fatalf("attempt=%d expected %s, got %s", tc.attempt, tc.want, got)
		}
	}
}

// fakeQueue mirrors the job state machine: claim bumps attempts, success is
// SENT, failure is FAILED until attempts reach max, then DEAD.
type fakeQueue struct {
	maxAttempts int
	attempts    int
	status      string
	sendCalls   int
	send        func() error
	orderExists bool
}

func (q *fakeQueue) runRound() {
	if q.status != "PENDING" && q.status != "FAILED" {
		return
	}
	q.attempts++
	q.status = "PROCESSING"

	if !q.orderExists {
		// Nothing will ever make this sendable. Terminal, no retry.
		q.status = "DEAD"
		return
	}

	q.sendCalls++
	if err := q.send(); err != nil {
		if q.attempts >= q.maxAttempts {
			q.status = "DEAD"
			return
		}
		q.status = "FAILED"
		return
	}
	q.status = "SENT"
}

func TestJobSentExactlyOnceOnSuccess(t *testing.T) {
	q := &fakeQueue{maxAttempts: 2, status: "PENDING", orderExists: true, send: func() error { return nil }}
	for i := 0; i < 5; i++ {
		q.runRound()
	}
	if q.status != "SENT" || q.sendCalls != 1 {
		t.Fatalf("expected SENT after 1 send, got status=%s sends=%d", q.status, q.sendCalls)
	}
}

func TestJobDeadAfterMaxAttempts(t *testing.T) {
	q := &fakeQueue{maxAttempts: 2, status: "PENDING", orderExists: true, send: func() error { return errors.New("smtp down") }}
	for i := 0; i < 5; i++ {
		q.runRound()
	}
	// Initial attempt plus exactly one retry.
	if q.status != "DEAD" || q.sendCalls != 2 {
		t.Fatalf("expected DEAD after 2 sends, got status=%s sends=%d", q.status, q.sendCalls)
	}
}

func TestJobForMissingOrderDroppedWithoutRetry(t *testing.T) {
	q := &fakeQueue{maxAttempts: 2, status: "PENDING", orderExists: false, send: func() error { return nil }}
	for i := 0; i < 5; i++ {
		q.runRound()
	}
	if q.status != "DEAD" || q.sendCalls != 0 {
		t.Fatalf("expected DEAD with 0 sends, got status=%s sends=%d", q.status, q.sendCalls)
	}
}

// fakeLedger mirrors the stock ledger: availability is derived by aggregation,
// and check-then-append runs under a per-product lock.
type fakeLedger struct {
	mu        sync.Mutex
	productMu map[int]*sync.Mutex
	incoming  map[int][]int
	outgoing  map[int][]int
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		productMu: map[int]*sync.Mutex{},
		incoming:  map[int][]int{},
		outgoing:  map[int][]int{},
	}
}

var errNoStockRecord = errors.New("no stock record")
var errShort = errors.New("insufficient stock")

func (l *fakeLedger) addStock(productId, qty int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.incoming[productId] = append(l.incoming[productId], qty)
}

func (l *fakeLedger) available(productId int) (int, error) {
	in, ok := l.incoming[productId]
	if !ok {
		return 0, errNoStockRecord
	}
	total := 0
	for _, q := range in {
		total += q
	}
	for _, q := range l.outgoing[productId] {
		total -= q
	}
	return total, nil
}

func (l *fakeLedger) place(productId, qty int) error {
	l.mu.Lock()
	pm := l.productMu[productId]
	if pm == nil {
		pm = &sync.Mutex{}
		l.productMu[productId] = pm
	}
	l.mu.Unlock()

	// Serialize per product (models AcquireStockPostingLock).
	pm.Lock()
	defer pm.Unlock()

	avail, err := l.available(productId)
	if err != nil {
		return err
	}
	if avail < qty {
		return errShort
	}
	l.outgoing[productId] = append(l.outgoing[productId], qty)
	return nil
}

func TestLedgerAvailabilitySemantics(t *testing.T) {
	l := newFakeLedger()

	if _, err := l.available(1); !errors.Is(err, errNoStockRecord) {
		t.Fatalf("expected no-record error for unseen product, got %v", err)
	}

	l.addStock(1, 100)
	if err := l.place(1, 30); err != nil {
		t.Fatalf("place 30 of 100: %v", err)
	}
	avail, err := l.available(1)
	if err != nil || avail != 70 {
		t.Fatalf("expected 70 available, got %d (%v)", avail, err)
	}

	if err := l.place(1, 80); !errors.Is(err, errShort) {
		t.Fatalf("expected insufficient stock for 80 of 70, got %v", err)
	}
	if err := l.place(1, 70); err != nil {
		t.Fatalf("place 70 of 70: %v", err)
	}
	avail, err = l.available(1)
	if err != nil || avail != 0 {
		// Fully dispatched is zero, not missing.
		t.Fatalf("expected 0 available, got %d (%v)", avail, err)
	}
}

func TestLedgerConcurrentPlacementAllowsExactlyOne(t *testing.T) {
	for run := 0; run < 100; run++ {
		l := newFakeLedger()
		l.addStock(1, 100)
		if err := l.place(1, 30); err != nil {
			t.Fatalf("seed dispatch: %v", err)
		}

		var wg sync.WaitGroup
		var mu sync.Mutex
		successes := 0
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := l.place(1, 70); err == nil {
					mu.Lock()
					successes++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		if successes != 1 {
			t.Fatalf("run=%d expected exactly 1 successful placement, got %d", run, successes)
		}
		if avail, _ := l.available(1); avail != 0 {
			t.Fatalf("run=%d expected 0 remaining, got %d", run, avail)
		}
	}
}
