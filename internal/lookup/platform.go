package lookup

import (
	"context"
	"fmt"
	"net"
	"net/netip"

	"go.uber.org/zap"
)

const PlatformName = "platform"

// NetResolver is the subset of *net.Resolver used by Platform.
type NetResolver interface {
	LookupNetIP(ctx context.Context, network, host string) ([]netip.Addr, error)
}

// Platform delegates to the operating system's resolver via net.Resolver.
type Platform struct {
	resolver NetResolver
	logger   *zap.Logger
}

func NewPlatform(resolver NetResolver, logger *zap.Logger) *Platform {
	if resolver == nil {
		resolver = net.DefaultResolver
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Platform{resolver: resolver, logger: logger}
}

func (p *Platform) Name() string { return PlatformName }

func (p *Platform) Lookup(ctx context.Context, host string, opts Options) ([]Address, error) {
	if err := validateHost(host); err != nil {
		return nil, err
	}
	if addr, ok := Literal(host); ok {
		return shape(host, []Address{addr}, opts)
	}

	ips, err := p.resolver.LookupNetIP(ctx, network(opts.Family), host)
	if err != nil {
		return nil, fmt.Errorf("platform lookup %s: %w", host, err)
	}
	addrs := make([]Address, 0, len(ips))
	for _, ip := range ips {
		addrs = append(addrs, fromAddr(ip))
	}
	p.logger.Debug("platform lookup", zap.String("host", host), zap.Int("addresses", len(addrs)))
	return shape(host, addrs, opts)
}

func network(family Family) string {
	switch family {
	case FamilyV4:
		return "ip4"
	case FamilyV6:
		return "ip6"
	default:
		return "ip"
	}
}
