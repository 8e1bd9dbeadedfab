package oracle

import (
	"context"
	"fmt"
	"net"
	"strings"
)

// DNSBLChecker checks a client address against a DNS blocklist zone: the
// reversed octets of the address are queried as an A record under zone;
// any answer means SUSPICIOUS, NXDOMAIN means CLEAN.
type DNSBLChecker struct {
	Zone     string
	Resolver *net.Resolver

	// OnQuery, if set, is called with the query string immediately
	// before every lookup (spec.md §6's DNS_QUERY accounting event).
	OnQuery func(query string)
}

// NewDNSBLChecker builds a checker against the given blocklist zone
// (e.g. "zen.spamhaus.org") using the default net.Resolver.
func NewDNSBLChecker(zone string) *DNSBLChecker {
	return &DNSBLChecker{Zone: zone, Resolver: net.DefaultResolver}
}

func (d *DNSBLChecker) Check(ctx context.Context, clientAddress string) (Verdict, error) {
	query, err := reverseQuery(clientAddress, d.Zone)
	if err != nil {
		return Error, err
	}

	if d.OnQuery != nil {
		d.OnQuery(query)
	}

	resolver := d.Resolver
	if resolver == nil {
		resolver = net.DefaultResolver
	}

	_, err = resolver.LookupHost(ctx, query)
	if err == nil {
		return Suspicious, nil
	}

	if ctx.Err() != nil {
		return Timeout, ctx.Err()
	}

	var dnsErr *net.DNSError
	if isNXDomain(err, &dnsErr) {
		return Clean, nil
	}

	return Error, fmt.Errorf("dnsbl: lookup %s: %w", query, err)
}

func isNXDomain(err error, dnsErr **net.DNSError) bool {
	if e, ok := err.(*net.DNSError); ok {
		*dnsErr = e
		return e.IsNotFound
	}
	return false
}

// reverseQuery builds "d.c.b.a.zone" from an IPv4 client address and
// blocklist zone, the standard DNSBL query form.
func reverseQuery(clientAddress, zone string) (string, error) {
	ip := net.ParseIP(clientAddress)
	if ip == nil {
		return "", fmt.Errorf("dnsbl: invalid client address %q", clientAddress)
	}
	v4 := ip.To4()
	if v4 == nil {
		return "", fmt.Errorf("dnsbl: only IPv4 addresses are supported, got %q", clientAddress)
	}

	octets := make([]string, 4)
	for i := 0; i < 4; i++ {
		octets[3-i] = fmt.Sprintf("%d", v4[i])
	}
	return strings.Join(octets, ".") + "." + zone, nil
}
