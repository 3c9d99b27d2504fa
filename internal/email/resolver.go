package email

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/miekg/dns"
)

var (
	// ErrNXDomain means the authoritative answer is that the name does not exist.
	ErrNXDomain = errors.New("dns: name does not exist")
	// ErrNoAnswer means the name exists but has no records of the requested type.
	ErrNoAnswer = errors.New("dns: no answer")
)

// DNSResolver performs MX and A lookups over miekg/dns so NXDOMAIN can be told
// apart from an empty NOERROR answer and from transport failures.
type DNSResolver struct {
	servers []string
	client  *dns.Client
}

// NewDNSResolver queries servers in order (host:port). With no servers the
// nameservers of /etc/resolv.conf are used.
func NewDNSResolver(servers []string, timeout time.Duration) (*DNSResolver, error) {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	if len(servers) == 0 {
		conf, err := dns.ClientConfigFromFile("/etc/resolv.conf")
		if err != nil {
			return nil, fmt.Errorf("read resolv.conf: %w", err)
		}
		for _, s := range conf.Servers {
			servers = append(servers, net.JoinHostPort(s, conf.Port))
		}
	}
	if len(servers) == 0 {
		return nil, errors.New("no dns servers configured")
	}
	return &DNSResolver{
		servers: servers,
		client:  &dns.Client{Timeout: timeout},
	}, nil
}

// LookupMX returns the exchange host names for domain.
func (r *DNSResolver) LookupMX(ctx context.Context, domain string) ([]string, error) {
	answers, err := r.query(ctx, domain, dns.TypeMX)
	if err != nil {
		return nil, err
	}
	var hosts []string
	for _, rr := range answers {
		if mx, ok := rr.(*dns.MX); ok {
			hosts = append(hosts, strings.TrimSuffix(mx.Mx, "."))
		}
	}
	if len(hosts) == 0 {
		return nil, ErrNoAnswer
	}
	return hosts, nil
}

// LookupA returns the IPv4 addresses for domain.
func (r *DNSResolver) LookupA(ctx context.Context, domain string) ([]string, error) {
	answers, err := r.query(ctx, domain, dns.TypeA)
	if err != nil {
		return nil, err
	}
	var addrs []string
	for _, rr := range answers {
		if a, ok := rr.(*dns.A); ok {
			addrs = append(addrs, a.A.String())
		}
	}
	if len(addrs) == 0 {
		return nil, ErrNoAnswer
	}
	return addrs, nil
}

func (r *DNSResolver) query(ctx context.Context, domain string, qtype uint16) ([]dns.RR, error) {
	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(domain), qtype)
	msg.RecursionDesired = true

	var lastErr error
	for _, server := range r.servers {
		in, _, err := r.client.ExchangeContext(ctx, msg, server)
		if err != nil {
			lastErr = fmt.Errorf("dns exchange with %s: %w", server, err)
			if ctx.Err() != nil {
				break
			}
			continue
		}
		switch in.Rcode {
		case dns.RcodeSuccess:
			return in.Answer, nil
		case dns.RcodeNameError:
			return nil, ErrNXDomain
		default:
			lastErr = fmt.Errorf("dns %s from %s", dns.RcodeToString[in.Rcode], server)
		}
	}
	return nil, lastErr
}
