// Package stats accumulates lookup durations and answers min, max and
// percentile queries over them.
package stats

import (
	"math"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
	"github.com/jaxxstorm/dnstiming/internal/model"
)

const (
	lowestMicros  = 1
	highestMicros = int64(time.Hour / time.Microsecond)
	sigFigs       = 3
)

// Histogram is an append-only set of positive duration samples. Samples are
// kept at microsecond resolution; queries answer in milliseconds.
type Histogram struct {
	// MinMillis is the drop threshold: a sample whose duration rounded to
	// whole milliseconds is <= MinMillis is not recorded.
	MinMillis int64

	h       *hdrhistogram.Histogram
	dropped int
}

func NewHistogram(minMillis int64) *Histogram {
	return &Histogram{
		MinMillis: minMillis,
		h:         hdrhistogram.New(lowestMicros, highestMicros, sigFigs),
	}
}

// Record adds d and reports whether it was kept.
func (h *Histogram) Record(d time.Duration) bool {
	if d <= 0 || roundMillis(d) <= h.MinMillis {
		h.dropped++
		return false
	}
	micros := int64(d / time.Microsecond)
	if micros < lowestMicros {
		micros = lowestMicros
	}
	if micros > highestMicros {
		micros = highestMicros
	}
	if err := h.h.RecordValue(micros); err != nil {
		h.dropped++
		return false
	}
	return true
}

func (h *Histogram) Count() int64 { return h.h.TotalCount() }

func (h *Histogram) Dropped() int { return h.dropped }

func (h *Histogram) Min() float64 {
	if h.Count() == 0 {
		return math.NaN()
	}
	return microsToMillis(h.h.Min())
}

func (h *Histogram) Max() float64 {
	if h.Count() == 0 {
		return math.NaN()
	}
	return microsToMillis(h.h.Max())
}

// Percentile returns the value at q, 0 < q <= 100.
func (h *Histogram) Percentile(q float64) float64 {
	if h.Count() == 0 {
		return math.NaN()
	}
	return microsToMillis(h.h.ValueAtQuantile(q))
}

// Summary converts the statistics to seconds.
func (h *Histogram) Summary() model.Summary {
	return model.Summary{
		Count: h.Count(),
		Min:   MillisToSeconds(h.Min()),
		Max:   MillisToSeconds(h.Max()),
		P50:   MillisToSeconds(h.Percentile(50)),
		P90:   MillisToSeconds(h.Percentile(90)),
		P99:   MillisToSeconds(h.Percentile(99)),
	}
}

func MillisToSeconds(ms float64) model.Seconds {
	return model.Seconds(ms / 1000)
}

func roundMillis(d time.Duration) int64 {
	return int64(math.Round(float64(d) / float64(time.Millisecond)))
}

func microsToMillis(us int64) float64 {
	return float64(us) / 1000
}
