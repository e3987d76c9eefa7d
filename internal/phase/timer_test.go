package phase

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/jaxxstorm/dnstiming/internal/lookup"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// staticStrategy maps every host to 127.0.0.1 and counts calls.
func staticStrategy(calls *int) lookup.Strategy {
	return lookup.StrategyFunc("static", func(_ context.Context, _ string, _ lookup.Options) ([]lookup.Address, error) {
		*calls++
		return []lookup.Address{{Address: "127.0.0.1", Family: lookup.FamilyV4}}, nil
	})
}

func tlsConfigFor(srv *httptest.Server) *tls.Config {
	pool := x509.NewCertPool()
	pool.AddCert(srv.Certificate())
	return &tls.Config{RootCAs: pool}
}

func newTLSServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "hello")
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestDoResolvesThroughStrategy(t *testing.T) {
	srv := newTLSServer(t)
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)

	calls := 0
	timer := NewTimer(staticStrategy(&calls), Config{Timeout: 5 * time.Second, TLSConfig: tlsConfigFor(srv)})
	report, err := timer.Do(context.Background(), fmt.Sprintf("https://example.com:%s/", u.Port()))
	require.NoError(t, err)

	assert.Equal(t, 1, calls)
	assert.Equal(t, http.StatusOK, report.StatusCode)
	assert.Equal(t, "static", report.Strategy)
	assert.Equal(t, "SUCCESS", report.Failure.Classification)
	require.Len(t, report.Addresses, 1)
	assert.Equal(t, "127.0.0.1", report.Addresses[0].Address)

	timings := report.Timings
	require.NotNil(t, timings.DNSLookup)
	require.NotNil(t, timings.TCPConnection)
	require.NotNil(t, timings.TLSHandshake)
	require.NotNil(t, timings.Total)
	for _, v := range []float64{*timings.DNSLookup, *timings.TCPConnection, *timings.TLSHandshake, *timings.Total} {
		assert.GreaterOrEqual(t, v, 0.0)
	}
	assert.GreaterOrEqual(t, *timings.Total, *timings.TLSHandshake)
}

func TestDoLiteralAddressSkipsResolution(t *testing.T) {
	srv := newTLSServer(t)

	calls := 0
	timer := NewTimer(staticStrategy(&calls), Config{Timeout: 5 * time.Second, TLSConfig: tlsConfigFor(srv)})
	report, err := timer.Do(context.Background(), srv.URL+"/")
	require.NoError(t, err)

	assert.Equal(t, 0, calls)
	assert.Nil(t, report.Timings.DNSLookup)
	require.NotNil(t, report.Timings.TCPConnection)
	require.NotNil(t, report.Timings.Total)
}

func TestDoPlaintextHasNoTLSPhase(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	calls := 0
	timer := NewTimer(staticStrategy(&calls), Config{Timeout: 5 * time.Second})
	report, err := timer.Do(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, report.StatusCode)
	assert.Nil(t, report.Timings.TLSHandshake)
	assert.NotNil(t, report.Timings.Total)
}

func TestDoTimeoutBeforeTLS(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			accepted <- conn
		}
	}()
	defer func() {
		select {
		case conn := <-accepted:
			conn.Close()
		default:
		}
	}()

	_, port, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)

	calls := 0
	timer := NewTimer(staticStrategy(&calls), Config{Timeout: 200 * time.Millisecond})
	report, err := timer.Do(context.Background(), fmt.Sprintf("https://stall.example.com:%s/", port))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, "TIMEOUT", report.Failure.Classification)

	assert.NotNil(t, report.Timings.DNSLookup)
	assert.NotNil(t, report.Timings.TCPConnection)
	assert.Nil(t, report.Timings.TLSHandshake)
	assert.Nil(t, report.Timings.Total)
}

func TestDoLookupFailure(t *testing.T) {
	failing := lookup.StrategyFunc("broken", func(_ context.Context, host string, _ lookup.Options) ([]lookup.Address, error) {
		return nil, fmt.Errorf("%s: %w", host, lookup.ErrNoAddresses)
	})
	timer := NewTimer(failing, Config{Timeout: time.Second})
	report, err := timer.Do(context.Background(), "https://missing.example.com/")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrLookup)
	assert.ErrorIs(t, err, lookup.ErrNoAddresses)
	assert.Equal(t, "LOOKUP_FAILURE", report.Failure.Classification)
	assert.Nil(t, report.Timings.DNSLookup)
	assert.Nil(t, report.Timings.Total)
}

func TestDoConnectionRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	calls := 0
	timer := NewTimer(staticStrategy(&calls), Config{Timeout: 2 * time.Second})
	report, err := timer.Do(context.Background(), "https://"+addr+"/")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTransport), "got %v", err)
	assert.Equal(t, "TRANSPORT", report.Failure.Classification)
	assert.Nil(t, report.Timings.TCPConnection)
}

func TestDoCanceled(t *testing.T) {
	srv := newTLSServer(t)
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	timer := NewTimer(staticStrategy(&calls), Config{Timeout: 5 * time.Second, TLSConfig: tlsConfigFor(srv)})
	report, err := timer.Do(ctx, fmt.Sprintf("https://example.com:%s/", u.Port()))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCanceled)
	assert.NotErrorIs(t, err, ErrTransport)
	assert.Equal(t, "CANCELED", report.Failure.Classification)
	assert.Nil(t, report.Timings.Total)
}

func TestDoInvalidURL(t *testing.T) {
	calls := 0
	timer := NewTimer(staticStrategy(&calls), Config{})
	_, err := timer.Do(context.Background(), "https://")
	assert.ErrorIs(t, err, ErrInvalid)
}
