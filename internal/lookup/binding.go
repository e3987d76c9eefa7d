package lookup

import (
	"context"
	"fmt"
	"net/netip"

	"github.com/jaxxstorm/dnstiming/internal/dnsclient"
	"github.com/miekg/dns"
	"go.uber.org/zap"
)

const BindingName = "binding"

// Binding resolves names with its own stub resolver instead of the
// operating system: recursive queries over the wire to a fixed server chain.
type Binding struct {
	client  *dnsclient.Client
	servers []string
	logger  *zap.Logger
}

type BindingConfig struct {
	Servers []string
	Logger  *zap.Logger
}

func NewBinding(client *dnsclient.Client, cfg BindingConfig) *Binding {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Binding{client: client, servers: cfg.Servers, logger: cfg.Logger}
}

func (b *Binding) Name() string { return BindingName }

// Lookup queries AAAA for FamilyV6 and A otherwise.
func (b *Binding) Lookup(ctx context.Context, host string, opts Options) ([]Address, error) {
	if err := validateHost(host); err != nil {
		return nil, err
	}
	if addr, ok := Literal(host); ok {
		return shape(host, []Address{addr}, opts)
	}
	if _, ok := dns.IsDomainName(host); !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidHost, host)
	}

	qtype := dns.TypeA
	if opts.Family == FamilyV6 {
		qtype = dns.TypeAAAA
	}

	answer, err := b.client.Query(ctx, b.servers, host, qtype)
	if err != nil {
		return nil, fmt.Errorf("binding lookup %s: %w", host, err)
	}
	if answer.Msg.Rcode != dns.RcodeSuccess {
		return nil, fmt.Errorf("binding lookup %s: %s: %w", host, dns.RcodeToString[answer.Msg.Rcode], ErrNoAddresses)
	}

	addrs := addressesFrom(answer.Msg.Answer)
	b.logger.Debug("binding lookup",
		zap.String("host", host),
		zap.String("server", answer.Server),
		zap.String("transport", answer.Transport),
		zap.Duration("rtt", answer.RTT),
		zap.Int("addresses", len(addrs)),
	)
	return shape(host, addrs, Options{All: opts.All})
}

// addressesFrom keeps A and AAAA records; CNAMEs in the chain are skipped.
func addressesFrom(rrs []dns.RR) []Address {
	out := []Address{}
	for _, rr := range rrs {
		var raw []byte
		switch v := rr.(type) {
		case *dns.A:
			raw = v.A
		case *dns.AAAA:
			raw = v.AAAA
		default:
			continue
		}
		ip, ok := netip.AddrFromSlice(raw)
		if !ok {
			continue
		}
		out = append(out, fromAddr(ip))
	}
	return out
}
