package lookup

import (
	"context"
	"errors"
	"net"
	"net/netip"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jaxxstorm/dnstiming/internal/dnsclient"
	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeResolver struct {
	network string
	addrs   []netip.Addr
	err     error
}

func (f *fakeResolver) LookupNetIP(_ context.Context, network, _ string) ([]netip.Addr, error) {
	f.network = network
	return f.addrs, f.err
}

func TestPlatformSingleAndAll(t *testing.T) {
	resolver := &fakeResolver{addrs: []netip.Addr{
		netip.MustParseAddr("192.0.2.1"),
		netip.MustParseAddr("2001:db8::1"),
		netip.MustParseAddr("192.0.2.2"),
	}}
	p := NewPlatform(resolver, nil)

	one, err := p.Lookup(context.Background(), "example.com", Options{})
	require.NoError(t, err)
	assert.Equal(t, []Address{{Address: "192.0.2.1", Family: FamilyV4}}, one)
	assert.Equal(t, "ip", resolver.network)

	all, err := p.Lookup(context.Background(), "example.com", Options{All: true})
	require.NoError(t, err)
	assert.Len(t, all, 3)
	assert.Equal(t, FamilyV6, all[1].Family)
}

func TestPlatformFamilyHint(t *testing.T) {
	resolver := &fakeResolver{addrs: []netip.Addr{netip.MustParseAddr("2001:db8::1")}}
	p := NewPlatform(resolver, nil)

	addrs, err := p.Lookup(context.Background(), "example.com", Options{Family: FamilyV6})
	require.NoError(t, err)
	assert.Equal(t, "ip6", resolver.network)
	assert.Equal(t, "2001:db8::1", addrs[0].Address)

	_, err = p.Lookup(context.Background(), "example.com", Options{Family: FamilyV4})
	assert.ErrorIs(t, err, ErrNoAddresses)
	assert.Equal(t, "ip4", resolver.network)
}

func TestPlatformLiteralSkipsResolver(t *testing.T) {
	resolver := &fakeResolver{err: errors.New("must not be called")}
	p := NewPlatform(resolver, nil)

	addrs, err := p.Lookup(context.Background(), "203.0.113.9", Options{})
	require.NoError(t, err)
	assert.Equal(t, []Address{{Address: "203.0.113.9", Family: FamilyV4}}, addrs)
	assert.Empty(t, resolver.network)
}

func TestPlatformError(t *testing.T) {
	p := NewPlatform(&fakeResolver{err: &net.DNSError{Err: "no such host", Name: "nope.invalid", IsNotFound: true}}, nil)
	_, err := p.Lookup(context.Background(), "nope.invalid", Options{})
	require.Error(t, err)
	var dnsErr *net.DNSError
	assert.True(t, errors.As(err, &dnsErr))
}

func TestInvalidHost(t *testing.T) {
	p := NewPlatform(&fakeResolver{}, nil)
	for _, bad := range []string{"", "  ", "has space.com"} {
		_, err := p.Lookup(context.Background(), bad, Options{})
		assert.ErrorIs(t, err, ErrInvalidHost, "host %q", bad)
	}
}

func newBinding(t *testing.T, responder func(server string, msg *dns.Msg) (*dns.Msg, time.Duration, error)) *Binding {
	t.Helper()
	transport := &dnsclient.MockTransport{Responder: responder}
	client := dnsclient.NewWithTransports(dnsclient.Options{Mode: dnsclient.ModeUDP, Timeout: time.Second}, transport, transport)
	return NewBinding(client, BindingConfig{Servers: []string{"192.0.2.53"}})
}

func TestBindingQueryTypeFollowsFamily(t *testing.T) {
	var qtypes []uint16
	b := newBinding(t, func(_ string, msg *dns.Msg) (*dns.Msg, time.Duration, error) {
		q := msg.Question[0]
		qtypes = append(qtypes, q.Qtype)
		resp := new(dns.Msg)
		resp.SetReply(msg)
		hdr := dns.RR_Header{Name: q.Name, Rrtype: q.Qtype, Class: dns.ClassINET, Ttl: 60}
		if q.Qtype == dns.TypeAAAA {
			resp.Answer = []dns.RR{&dns.AAAA{Hdr: hdr, AAAA: net.ParseIP("2001:db8::10")}}
		} else {
			resp.Answer = []dns.RR{&dns.A{Hdr: hdr, A: net.ParseIP("198.51.100.10")}}
		}
		return resp, time.Millisecond, nil
	})

	v4, err := b.Lookup(context.Background(), "google.com.", Options{Family: FamilyV4})
	require.NoError(t, err)
	assert.Equal(t, []Address{{Address: "198.51.100.10", Family: FamilyV4}}, v4)

	v6, err := b.Lookup(context.Background(), "google.com.", Options{Family: FamilyV6})
	require.NoError(t, err)
	assert.Equal(t, []Address{{Address: "2001:db8::10", Family: FamilyV6}}, v6)

	_, err = b.Lookup(context.Background(), "google.com.", Options{})
	require.NoError(t, err)
	assert.Equal(t, []uint16{dns.TypeA, dns.TypeAAAA, dns.TypeA}, qtypes)
}

func TestBindingAllSkipsCNAME(t *testing.T) {
	b := newBinding(t, func(_ string, msg *dns.Msg) (*dns.Msg, time.Duration, error) {
		q := msg.Question[0]
		resp := new(dns.Msg)
		resp.SetReply(msg)
		resp.Answer = []dns.RR{
			&dns.CNAME{Hdr: dns.RR_Header{Name: q.Name, Rrtype: dns.TypeCNAME, Class: dns.ClassINET, Ttl: 60}, Target: "edge.example.com."},
			&dns.A{Hdr: dns.RR_Header{Name: "edge.example.com.", Rrtype: dns.TypeA, Class: dns.ClassINET, Ttl: 60}, A: net.ParseIP("198.51.100.1")},
			&dns.A{Hdr: dns.RR_Header{Name: "edge.example.com.", Rrtype: dns.TypeA, Class: dns.ClassINET, Ttl: 60}, A: net.ParseIP("198.51.100.2")},
		}
		return resp, time.Millisecond, nil
	})

	addrs, err := b.Lookup(context.Background(), "www.example.com", Options{All: true})
	require.NoError(t, err)
	assert.Equal(t, []Address{
		{Address: "198.51.100.1", Family: FamilyV4},
		{Address: "198.51.100.2", Family: FamilyV4},
	}, addrs)
}

func TestBindingNXDOMAIN(t *testing.T) {
	b := newBinding(t, func(_ string, msg *dns.Msg) (*dns.Msg, time.Duration, error) {
		resp := new(dns.Msg)
		resp.SetRcode(msg, dns.RcodeNameError)
		return resp, time.Millisecond, nil
	})
	_, err := b.Lookup(context.Background(), "missing.example.com", Options{})
	assert.ErrorIs(t, err, ErrNoAddresses)
}

func TestBindingTransportFailure(t *testing.T) {
	b := newBinding(t, func(_ string, _ *dns.Msg) (*dns.Msg, time.Duration, error) {
		return nil, 0, errors.New("connection refused")
	})
	_, err := b.Lookup(context.Background(), "example.com", Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestStrategyFunc(t *testing.T) {
	s := StrategyFunc("static", func(_ context.Context, host string, opts Options) ([]Address, error) {
		return shape(host, []Address{{Address: "192.0.2.1", Family: FamilyV4}}, opts)
	})
	assert.Equal(t, "static", s.Name())
	addrs, err := s.Lookup(context.Background(), "example.com", Options{})
	require.NoError(t, err)
	assert.Len(t, addrs, 1)
}

func TestParseFamily(t *testing.T) {
	for _, v := range []int{0, 4, 6} {
		f, err := ParseFamily(v)
		require.NoError(t, err)
		assert.Equal(t, Family(v), f)
	}
	_, err := ParseFamily(5)
	assert.Error(t, err)
}

func TestLiteral(t *testing.T) {
	addr, ok := Literal("[2001:db8::1]")
	require.True(t, ok)
	assert.Equal(t, FamilyV6, addr.Family)

	addr, ok = Literal("::ffff:192.0.2.1")
	require.True(t, ok)
	assert.Equal(t, Address{Address: "192.0.2.1", Family: FamilyV4}, addr)

	_, ok = Literal("example.com")
	assert.False(t, ok)
}

func TestLoadResolversFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "resolv.conf")
	content := "# test\nnameserver 1.1.1.1\nsearch example.com\nnameserver 8.8.8.8\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	resolvers, err := loadResolvers(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"1.1.1.1", "8.8.8.8"}, resolvers)
}

func TestResolverChainMissingFileFallsBackToPublic(t *testing.T) {
	resolvers, err := resolverChain(filepath.Join(t.TempDir(), "missing.conf"))
	require.NoError(t, err)
	assert.Equal(t, DefaultPublicResolvers, resolvers)
}

func TestResolverChainSystemFirst(t *testing.T) {
	path := filepath.Join(t.TempDir(), "resolv.conf")
	require.NoError(t, os.WriteFile(path, []byte("nameserver 10.0.0.53\nnameserver 8.8.8.8\n"), 0o600))

	resolvers, err := resolverChain(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"10.0.0.53", "8.8.8.8", "1.1.1.1", "1.0.0.1", "8.8.4.4", "9.9.9.9"}, resolvers)
}

func TestResolverChainUnreadableFile(t *testing.T) {
	_, err := resolverChain(t.TempDir())
	assert.Error(t, err)
}

func TestUniqueResolvers(t *testing.T) {
	got := uniqueResolvers([]string{"1.1.1.1", " 8.8.8.8 ", "1.1.1.1", ""})
	assert.Equal(t, []string{"1.1.1.1", "8.8.8.8"}, got)
}
