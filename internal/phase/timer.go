// Package phase times the DNS, TCP, TLS and total phases of one HTTPS request
// made through an injected lookup strategy.
package phase

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptrace"
	"net/url"
	"os"
	"sync"
	"time"

	"github.com/jaxxstorm/dnstiming/internal/analyze"
	"github.com/jaxxstorm/dnstiming/internal/lookup"
	"github.com/jaxxstorm/dnstiming/internal/model"
	"go.uber.org/zap"
)

var (
	ErrLookup    = errors.New("lookup failed")
	ErrTimeout   = errors.New("ETIMEDOUT")
	ErrTransport = errors.New("transport error")
	ErrCanceled  = errors.New("request canceled")
	ErrInvalid   = errors.New("invalid url")
)

type Config struct {
	Timeout   time.Duration
	Options   lookup.Options
	TLSConfig *tls.Config
	Logger    *zap.Logger
	Now       func() time.Time
}

// Timer issues requests whose name resolution goes through strategy rather
// than any process-wide resolver.
type Timer struct {
	strategy lookup.Strategy
	config   Config
	dialer   *net.Dialer
}

func NewTimer(strategy lookup.Strategy, cfg Config) *Timer {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Timer{strategy: strategy, config: cfg, dialer: &net.Dialer{Timeout: cfg.Timeout}}
}

// request holds the state owned by one in-flight request.
type request struct {
	timeline *Timeline
	mu       sync.Mutex
	addrs    []lookup.Address
}

func (r *request) setAddrs(addrs []lookup.Address) {
	r.mu.Lock()
	r.addrs = addrs
	r.mu.Unlock()
}

func (r *request) addresses() []model.Address {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.addrs) == 0 {
		return nil
	}
	return lookup.ToModel(r.addrs)
}

// Do performs a GET of rawURL and drains the body. The report is returned
// even on failure, carrying whatever part of the timeline was reached.
func (t *Timer) Do(ctx context.Context, rawURL string) (model.PhaseReport, error) {
	report := model.PhaseReport{URL: rawURL, Strategy: t.strategy.Name()}

	target, err := url.Parse(rawURL)
	if err != nil || target.Host == "" {
		err = fmt.Errorf("%w: %q", ErrInvalid, rawURL)
		report.Failure = analyze.Diagnose(analyze.Outcome{Kind: analyze.OutcomeTransport, Summary: err.Error()})
		return report, err
	}

	req := &request{timeline: NewTimeline(t.config.Now)}
	req.timeline.Mark(EventStart)

	ctx, cancel := context.WithTimeout(ctx, t.config.Timeout)
	defer cancel()

	status, err := t.do(ctx, req, target)
	report.StatusCode = status
	report.Addresses = req.addresses()
	report.Timings = req.timeline.Timings()
	if err != nil {
		err = t.classify(ctx, err)
		report.Failure = diagnose(err)
		t.config.Logger.Warn("request failed",
			zap.String("url", rawURL),
			zap.String("strategy", report.Strategy),
			zap.Error(err),
		)
		return report, err
	}
	report.Failure = analyze.Diagnose(analyze.Outcome{Kind: analyze.OutcomeSuccess, Summary: http.StatusText(status)})
	return report, nil
}

func (t *Timer) do(ctx context.Context, req *request, target *url.URL) (int, error) {
	transport := &http.Transport{
		DialContext:         t.dialContext(req),
		TLSClientConfig:     t.config.TLSConfig,
		TLSHandshakeTimeout: t.config.Timeout,
		DisableKeepAlives:   true,
	}
	defer transport.CloseIdleConnections()

	stop := make(chan struct{})
	watched := make(chan struct{})
	go func() {
		defer close(watched)
		req.timeline.Notify(stop, func(ev Event, at time.Time) {
			t.config.Logger.Debug("phase", zap.String("event", ev.String()), zap.Time("at", at), zap.String("host", target.Host))
		})
	}()
	defer func() {
		close(stop)
		<-watched
	}()

	trace := &httptrace.ClientTrace{
		TLSHandshakeDone: func(_ tls.ConnectionState, err error) {
			if err == nil {
				req.timeline.Mark(EventTLSComplete)
			}
		},
		GotFirstResponseByte: func() {
			t.config.Logger.Debug("first response byte", zap.String("host", target.Host))
		},
	}

	httpReq, err := http.NewRequestWithContext(httptrace.WithClientTrace(ctx, trace), http.MethodGet, target.String(), nil)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	resp, err := transport.RoundTrip(httpReq)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	t.config.Logger.Info("response", zap.Int("status", resp.StatusCode), zap.String("proto", resp.Proto))
	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		return resp.StatusCode, err
	}
	req.timeline.Mark(EventEnd)
	return resp.StatusCode, nil
}

// dialContext resolves through the strategy, marking resolution only when a
// lookup actually happened, then connects to each address in turn.
func (t *Timer) dialContext(req *request) func(ctx context.Context, network, addr string) (net.Conn, error) {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		host, port, err := net.SplitHostPort(addr)
		if err != nil {
			return nil, err
		}
		// The transport detaches dials from request cancellation.
		ctx, cancel := context.WithTimeout(ctx, t.config.Timeout)
		defer cancel()

		addrs := []lookup.Address{}
		if literal, ok := lookup.Literal(host); ok {
			addrs = append(addrs, literal)
		} else {
			resolved, err := t.strategy.Lookup(ctx, host, t.config.Options)
			if err != nil {
				return nil, fmt.Errorf("%w: %w", ErrLookup, err)
			}
			req.timeline.Mark(EventResolution)
			t.config.Logger.Debug("lookup", zap.String("host", host), zap.String("strategy", t.strategy.Name()), zap.Any("addresses", resolved))
			addrs = resolved
		}
		req.setAddrs(addrs)

		var lastErr error
		for _, a := range addrs {
			conn, err := t.dialer.DialContext(ctx, network, net.JoinHostPort(a.Address, port))
			if err != nil {
				lastErr = err
				continue
			}
			req.timeline.Mark(EventTCPConnected)
			return conn, nil
		}
		if lastErr == nil {
			lastErr = fmt.Errorf("%s: %w", host, lookup.ErrNoAddresses)
		}
		return nil, lastErr
	}
}

func (t *Timer) classify(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, ErrLookup), errors.Is(err, ErrInvalid):
		return err
	case errors.Is(ctx.Err(), context.Canceled), errors.Is(err, context.Canceled):
		return fmt.Errorf("%w: %w", ErrCanceled, err)
	case errors.Is(ctx.Err(), context.DeadlineExceeded), errors.Is(err, context.DeadlineExceeded), errors.Is(err, os.ErrDeadlineExceeded), isTimeout(err):
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	default:
		return fmt.Errorf("%w: %w", ErrTransport, err)
	}
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func diagnose(err error) model.Failure {
	switch {
	case errors.Is(err, ErrLookup):
		return analyze.Diagnose(analyze.Outcome{Kind: analyze.OutcomeLookupFailure, Summary: err.Error()})
	case errors.Is(err, ErrTimeout):
		return analyze.Diagnose(analyze.Outcome{Kind: analyze.OutcomeTimeout, Summary: err.Error()})
	case errors.Is(err, ErrCanceled):
		return analyze.Diagnose(analyze.Outcome{Kind: analyze.OutcomeCanceled, Summary: err.Error()})
	default:
		return analyze.Diagnose(analyze.Outcome{Kind: analyze.OutcomeTransport, Summary: err.Error()})
	}
}
