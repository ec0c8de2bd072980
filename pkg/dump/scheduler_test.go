package dump_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"

	"github.com/indexlake/indexlake/pkg/dump"
	"github.com/indexlake/indexlake/pkg/table"
)

// blockingOpener counts how many times it is invoked and blocks until
// release is closed, letting a test observe exactly how many dump runs a
// burst of Enqueue calls produces.
type blockingOpener struct {
	calls   int32
	started chan struct{}
	release chan struct{}
}

func newBlockingOpener() *blockingOpener {
	return &blockingOpener{started: make(chan struct{}), release: make(chan struct{})}
}

func (o *blockingOpener) open(ctx context.Context, tableID int64) (*table.Table, error) {
	if atomic.AddInt32(&o.calls, 1) == 1 {
		close(o.started)
	}
	<-o.release
	return nil, errors.New("stub opener: no table backs this run")
}

func TestSchedulerEnqueueIsNoOpWhileRunInFlight(t *testing.T) {
	opener := newBlockingOpener()
	s := dump.NewScheduler(opener.open)

	s.Enqueue(1)
	<-opener.started

	// Table 1's dump is still blocked in openTable; concurrent Enqueues for
	// the same table must not start a second run (§4.4 step 7).
	s.Enqueue(1)
	s.Enqueue(1)
	require.EqualValues(t, 1, atomic.LoadInt32(&opener.calls))

	close(opener.release)
	require.Eventually(t, func() bool { return atomic.LoadInt32(&opener.calls) == 1 }, time.Second, time.Millisecond)
}

func TestSchedulerEnqueueStartsFreshRunAfterPriorCompletes(t *testing.T) {
	opener := newBlockingOpener()
	s := dump.NewScheduler(opener.open)

	s.Enqueue(2)
	<-opener.started
	close(opener.release)
	require.Eventually(t, func() bool { return atomic.LoadInt32(&opener.calls) == 1 }, time.Second, time.Millisecond)

	// Give run's deferred inFlight.Delete a moment to land before the next
	// Enqueue, since completion of openTable races the scheduler's own
	// bookkeeping.
	time.Sleep(10 * time.Millisecond)

	opener.started = make(chan struct{})
	opener.release = make(chan struct{})
	s.Enqueue(2)
	<-opener.started
	close(opener.release)
	require.Eventually(t, func() bool { return atomic.LoadInt32(&opener.calls) == 2 }, time.Second, time.Millisecond)
}

func TestSchedulerTracksTablesIndependently(t *testing.T) {
	opener := newBlockingOpener()
	s := dump.NewScheduler(opener.open)

	s.Enqueue(1)
	<-opener.started
	// A different table_id is not blocked by table 1's in-flight dump; the
	// scheduler's in-flight set is keyed per table.
	s.Enqueue(2)
	require.Eventually(t, func() bool { return atomic.LoadInt32(&opener.calls) == 2 }, time.Second, time.Millisecond)
	close(opener.release)
}
