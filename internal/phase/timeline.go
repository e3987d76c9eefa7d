package phase

import (
	"sync"
	"time"

	"github.com/jaxxstorm/dnstiming/internal/model"
)

type Event int

const (
	EventStart Event = iota
	EventResolution
	EventTCPConnected
	EventTLSComplete
	EventEnd
	eventCount
)

func (e Event) String() string {
	switch e {
	case EventStart:
		return "start"
	case EventResolution:
		return "resolutionComplete"
	case EventTCPConnected:
		return "tcpConnected"
	case EventTLSComplete:
		return "tlsComplete"
	case EventEnd:
		return "end"
	default:
		return "unknown"
	}
}

// signal fires at most once.
type signal struct {
	once sync.Once
	done chan struct{}
	at   time.Time
	set  bool
}

// Timeline records the lifecycle of exactly one request. Marks may arrive
// from transport goroutines.
type Timeline struct {
	mu      sync.Mutex
	now     func() time.Time
	signals [eventCount]*signal
}

func NewTimeline(now func() time.Time) *Timeline {
	if now == nil {
		now = time.Now
	}
	tl := &Timeline{now: now}
	for i := range tl.signals {
		tl.signals[i] = &signal{done: make(chan struct{})}
	}
	return tl
}

// Mark fires ev at the current time and reports whether this call fired it.
// A timestamp earlier than a preceding present event is raised to it, so
// present timestamps never decrease in event order.
func (tl *Timeline) Mark(ev Event) bool {
	fired := false
	s := tl.signals[ev]
	s.once.Do(func() {
		tl.mu.Lock()
		at := tl.now()
		for prev := ev - 1; prev >= EventStart; prev-- {
			if p, ok := tl.at(prev); ok {
				if at.Before(p) {
					at = p
				}
				break
			}
		}
		s.at = at
		s.set = true
		tl.mu.Unlock()
		close(s.done)
		fired = true
	})
	return fired
}

// Done is closed once ev has fired.
func (tl *Timeline) Done(ev Event) <-chan struct{} {
	return tl.signals[ev].done
}

// Notify calls fn once for every event that fires before stop is closed,
// and returns when stop is closed or all events have fired. Events already
// fired when stop closes are still reported.
func (tl *Timeline) Notify(stop <-chan struct{}, fn func(Event, time.Time)) {
	var wg sync.WaitGroup
	for ev := EventStart; ev < eventCount; ev++ {
		wg.Add(1)
		go func(ev Event) {
			defer wg.Done()
			select {
			case <-tl.Done(ev):
			case <-stop:
				select {
				case <-tl.Done(ev):
				default:
					return
				}
			}
			at, _ := tl.At(ev)
			fn(ev, at)
		}(ev)
	}
	wg.Wait()
}

func (tl *Timeline) At(ev Event) (time.Time, bool) {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	return tl.at(ev)
}

func (tl *Timeline) at(ev Event) (time.Time, bool) {
	s := tl.signals[ev]
	return s.at, s.set
}

// Timings derives phase durations from consecutive present timestamps.
func (tl *Timeline) Timings() model.Timings {
	start, ok := tl.At(EventStart)
	if !ok {
		return model.Timings{}
	}
	var out model.Timings

	resolved, hasResolution := tl.At(EventResolution)
	if hasResolution {
		out.DNSLookup = millis(resolved.Sub(start))
	}

	tcp, hasTCP := tl.At(EventTCPConnected)
	if hasTCP {
		from := start
		if hasResolution {
			from = resolved
		}
		out.TCPConnection = millis(tcp.Sub(from))
	}

	if tlsAt, ok := tl.At(EventTLSComplete); ok && hasTCP {
		out.TLSHandshake = millis(tlsAt.Sub(tcp))
	}

	if end, ok := tl.At(EventEnd); ok {
		out.Total = millis(end.Sub(start))
	}
	return out
}

func millis(d time.Duration) *float64 {
	v := float64(d) / float64(time.Millisecond)
	return &v
}
