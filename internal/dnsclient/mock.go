package dnsclient

import (
	"context"
	"sync"
	"time"

	"github.com/miekg/dns"
)

// MockTransport answers queries from Responder and records the servers asked.
type MockTransport struct {
	Responder func(server string, msg *dns.Msg) (*dns.Msg, time.Duration, error)

	mu    sync.Mutex
	calls []string
}

func (m *MockTransport) Exchange(ctx context.Context, server string, msg *dns.Msg) (*dns.Msg, time.Duration, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	m.mu.Lock()
	m.calls = append(m.calls, server)
	m.mu.Unlock()
	if m.Responder == nil {
		return nil, 0, nil
	}
	return m.Responder(server, msg)
}

func (m *MockTransport) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}
