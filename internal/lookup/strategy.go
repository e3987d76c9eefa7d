// Package lookup defines the interchangeable name-resolution strategies used by
// the benchmark harness and the phase timer.
package lookup

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"strings"

	"github.com/jaxxstorm/dnstiming/internal/model"
)

var (
	ErrNoAddresses = errors.New("no addresses found")
	ErrInvalidHost = errors.New("invalid host name")
)

// Family is an address family hint: 4, 6, or 0 for either.
type Family int

const (
	FamilyAny Family = 0
	FamilyV4  Family = 4
	FamilyV6  Family = 6
)

func ParseFamily(v int) (Family, error) {
	switch Family(v) {
	case FamilyAny, FamilyV4, FamilyV6:
		return Family(v), nil
	default:
		return 0, fmt.Errorf("unsupported address family: %d", v)
	}
}

// Options is shared by every strategy so callers can swap them freely.
type Options struct {
	All    bool
	Family Family
}

type Address struct {
	Address string `json:"address"`
	Family  Family `json:"family"`
}

func (a Address) Model() model.Address {
	return model.Address{Address: a.Address, Family: int(a.Family)}
}

// Strategy resolves a host name. With Options.All unset exactly one address
// is returned; otherwise every address in resolver order.
type Strategy interface {
	Name() string
	Lookup(ctx context.Context, host string, opts Options) ([]Address, error)
}

type funcStrategy struct {
	name string
	fn   func(ctx context.Context, host string, opts Options) ([]Address, error)
}

// StrategyFunc adapts a function to a Strategy.
func StrategyFunc(name string, fn func(ctx context.Context, host string, opts Options) ([]Address, error)) Strategy {
	return &funcStrategy{name: name, fn: fn}
}

func (f *funcStrategy) Name() string { return f.name }

func (f *funcStrategy) Lookup(ctx context.Context, host string, opts Options) ([]Address, error) {
	return f.fn(ctx, host, opts)
}

// Literal reports whether host is already an IP address and needs no lookup.
func Literal(host string) (Address, bool) {
	ip, err := netip.ParseAddr(strings.Trim(host, "[]"))
	if err != nil {
		return Address{}, false
	}
	return fromAddr(ip), true
}

func ToModel(addrs []Address) []model.Address {
	out := make([]model.Address, 0, len(addrs))
	for _, addr := range addrs {
		out = append(out, addr.Model())
	}
	return out
}

func fromAddr(ip netip.Addr) Address {
	ip = ip.Unmap()
	if ip.Is4() {
		return Address{Address: ip.String(), Family: FamilyV4}
	}
	return Address{Address: ip.String(), Family: FamilyV6}
}

func matches(family Family, addr Address) bool {
	return family == FamilyAny || family == addr.Family
}

// shape applies the family filter and the single-vs-all contract.
func shape(host string, addrs []Address, opts Options) ([]Address, error) {
	out := make([]Address, 0, len(addrs))
	for _, addr := range addrs {
		if matches(opts.Family, addr) {
			out = append(out, addr)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s: %w", host, ErrNoAddresses)
	}
	if !opts.All {
		out = out[:1]
	}
	return out, nil
}

func validateHost(host string) error {
	if strings.TrimSpace(host) == "" {
		return fmt.Errorf("%w: empty", ErrInvalidHost)
	}
	if strings.ContainsAny(host, " \t/") {
		return fmt.Errorf("%w: %q", ErrInvalidHost, host)
	}
	return nil
}
