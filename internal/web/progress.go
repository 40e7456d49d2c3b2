package web

import (
	"context"
	"io"
	"sync/atomic"
	"time"
)

const progressInterval = 100 * time.Millisecond

// progressWriter counts bytes and reports a percentage at most every
// progressInterval.
type progressWriter struct {
	size       int64
	total      atomic.Int64
	lastUpdate atomic.Int64
	report     func(percent float64)
}

func newProgressWriter(size int64, report func(float64)) *progressWriter {
	pw := &progressWriter{size: size, report: report}
	pw.lastUpdate.Store(time.Now().UnixNano())
	return pw
}

func (p *progressWriter) Write(b []byte) (int, error) {
	n := len(b)
	total := p.total.Add(int64(n))
	if p.report == nil || p.size <= 0 {
		return n, nil
	}
	now := time.Now().UnixNano()
	last := p.lastUpdate.Load()
	if now-last >= progressInterval.Nanoseconds() && p.lastUpdate.CompareAndSwap(last, now) {
		p.report(percentOf(total, p.size))
	}
	return n, nil
}

// Finish reports the final percentage.
func (p *progressWriter) Finish() {
	if p.report != nil && p.size > 0 {
		p.report(percentOf(p.total.Load(), p.size))
	}
}

func percentOf(current, size int64) float64 {
	if size <= 0 {
		return 0
	}
	pct := float64(current) / float64(size) * 100
	if pct > 100 {
		pct = 100
	}
	return pct
}

type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (r *contextReader) Read(p []byte) (int, error) {
	select {
	case <-r.ctx.Done():
		return 0, r.ctx.Err()
	default:
		return r.r.Read(p)
	}
}

func copyWithContext(ctx context.Context, dst io.Writer, src io.Reader) (int64, error) {
	return io.Copy(dst, &contextReader{ctx: ctx, r: src})
}
