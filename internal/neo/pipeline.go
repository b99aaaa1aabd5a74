package neo

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/banshee-data/neo.lidar/internal/monitoring"
	"github.com/banshee-data/neo.lidar/internal/protocol"
	"github.com/banshee-data/neo.lidar/internal/queue"
	"github.com/banshee-data/neo.lidar/internal/timeutil"
)

// result is a queue element: a completed scan or the error that ended the
// pipeline.
type result struct {
	scan Scan
	err  error
}

// accumulator splits a sample stream into rotations.
//
// A sample starts a new rotation when its sync flag is set, or, unless
// syncOnly is set, when at least two samples are buffered and its angle is
// below the previous sample's. Either condition alone is enough. The
// boundary sample seeds the next rotation. An empty buffer is never emitted.
type accumulator struct {
	syncOnly bool
	limit    int
	buf      []Sample
}

func newAccumulator(limit int, syncOnly bool) *accumulator {
	return &accumulator{syncOnly: syncOnly, limit: limit}
}

// add appends s and returns the completed rotation when s starts a new one.
func (a *accumulator) add(s Sample, sync bool) ([]Sample, error) {
	n := len(a.buf)
	wrapped := !a.syncOnly && n >= 2 && s.Angle < a.buf[n-1].Angle

	var done []Sample
	if (sync || wrapped) && n > 0 {
		done = a.buf
		a.buf = make([]Sample, 0, len(done))
	}

	if len(a.buf) >= a.limit {
		return nil, fmt.Errorf("%w: more than %d samples without a rotation boundary", protocol.ErrFraming, a.limit)
	}
	a.buf = append(a.buf, s)
	return done, nil
}

// pending returns the number of samples in the unfinished rotation.
func (a *accumulator) pending() int {
	return len(a.buf)
}

// pipelineCounters are shared with the owning Device for Stats.
type pipelineCounters struct {
	scans      atomic.Uint64
	samples    atomic.Uint64
	commErrors atomic.Uint64
}

// pipeline reads sample packets until cancelled or until the link fails,
// handing completed rotations to the queue.
type pipeline struct {
	codec    *protocol.Codec
	queue    *queue.Bounded[result]
	clock    timeutil.Clock
	session  uuid.UUID
	acc      *accumulator
	counters *pipelineCounters
	seq      uint64
}

func (p *pipeline) run(ctx context.Context) {
	monitoring.Debugf("neo: scan pipeline started, session %s", p.session)
	for {
		err := p.step(ctx)
		if err == nil {
			continue
		}
		if ctx.Err() != nil {
			monitoring.Debugf("neo: scan pipeline stopped, session %s, %d samples discarded", p.session, p.acc.pending())
			return
		}
		p.fail(ctx, err)
		return
	}
}

func (p *pipeline) step(ctx context.Context) error {
	pkt, err := p.codec.ReadResponseScan(ctx)
	if err != nil {
		return err
	}

	s := Sample{
		Angle:     pkt.AngleDegrees(),
		Distance:  pkt.Distance(),
		CommError: pkt.CommError(),
	}
	p.counters.samples.Add(1)
	if s.CommError {
		p.counters.commErrors.Add(1)
	}

	done, err := p.acc.add(s, pkt.Sync())
	if err != nil || done == nil {
		return err
	}

	p.seq++
	scan := Scan{
		Session:    p.session,
		Sequence:   p.seq,
		CapturedAt: p.clock.Now(),
		Samples:    done,
	}
	if err := p.queue.Enqueue(ctx, result{scan: scan}); err != nil {
		return err
	}
	p.counters.scans.Add(1)
	monitoring.Debugf("neo: scan %d complete, %d samples", scan.Sequence, len(done))
	return nil
}

// fail delivers err as the terminal queue element and ends the queue.
func (p *pipeline) fail(ctx context.Context, err error) {
	monitoring.Logf("neo: scan pipeline failed, session %s: %v", p.session, err)
	wrapped := fmt.Errorf("%w: %w", ErrPipelineFailed, err)
	if qerr := p.queue.Enqueue(ctx, result{err: wrapped}); qerr != nil {
		monitoring.Debugf("neo: dropping pipeline error: %v", qerr)
	}
	p.queue.Close()
}
