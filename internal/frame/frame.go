// Package frame implements the FrameGenerator of spec.md §4.7: the ordered,
// interval-aligned sequence of simulated "now" timestamps a backtest driver
// walks.
package frame

import (
	"github.com/tripolskypetr/backtest-kit-sub002/internal/signal"
)

// Frame is a finite, restartable sequence of aligned timestamps spanning
// [start, end] inclusive, spaced by interval.
type Frame struct {
	timestamps []int64
}

// Generate builds a Frame from (start, end, interval). Both bounds are
// ms-since-epoch; the first timestamp is start rounded up to the next
// interval boundary (start itself when already aligned), so no timestamp
// is ever floored below start.
func Generate(start, end int64, interval signal.Interval) Frame {
	step := interval.Millis()
	if step <= 0 || end < start {
		return Frame{}
	}

	aligned := start - (start % step)
	if aligned < start {
		aligned += step
	}

	timestamps := make([]int64, 0, (end-aligned)/step+1)
	for t := aligned; t <= end; t += step {
		timestamps = append(timestamps, t)
	}
	return Frame{timestamps: timestamps}
}

// Len returns the number of timestamps in the frame.
func (f Frame) Len() int { return len(f.timestamps) }

// Timestamps returns a copy of the underlying timestamp slice.
func (f Frame) Timestamps() []int64 {
	out := make([]int64, len(f.timestamps))
	copy(out, f.timestamps)
	return out
}

// Iterator produces a fresh, independent cursor over the frame so the same
// Frame can be walked more than once (spec.md §4.7, "restartable").
func (f Frame) Iterator() *Iterator {
	return &Iterator{frame: f, pos: 0}
}

// Iterator is a restartable, skip-capable cursor over a Frame's timestamps.
// Driver.Backtest uses SkipTo to fast-forward past timestamps already
// covered by a StrategyCore.Backtest fast-path run.
type Iterator struct {
	frame Frame
	pos   int
}

// Next returns the next timestamp and true, or (0, false) once exhausted.
func (it *Iterator) Next() (int64, bool) {
	if it.pos >= len(it.frame.timestamps) {
		return 0, false
	}
	t := it.frame.timestamps[it.pos]
	it.pos++
	return t, true
}

// SkipTo advances the cursor past every timestamp strictly less than target,
// so the next Next() call returns the first timestamp >= target.
func (it *Iterator) SkipTo(target int64) {
	for it.pos < len(it.frame.timestamps) && it.frame.timestamps[it.pos] < target {
		it.pos++
	}
}
