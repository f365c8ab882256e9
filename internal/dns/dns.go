// Package dns resolves relay and broker hostnames. Captive or
// filtering local resolvers are common on the guest networks calls
// run from, so a failed system lookup falls back to a race across
// public resolvers instead of taking signaling down.
package dns

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"
)

const (
	systemTimeout = 1 * time.Second
	raceTimeout   = 2 * time.Second
)

// fallbackResolvers are raced when the system resolver fails. Anycast
// resolvers from independent operators, IPv4 and IPv6.
var fallbackResolvers = []string{
	"1.1.1.1",                // Cloudflare
	"1.0.0.1",                // Cloudflare
	"[2606:4700:4700::1111]", // Cloudflare
	"8.8.8.8",                // Google
	"8.8.4.4",                // Google
	"[2001:4860:4860::8888]", // Google
	"9.9.9.9",                // Quad9
	"149.112.112.112",        // Quad9
	"[2620:fe::fe]",          // Quad9
}

// Lookup resolves host to a single IP address, preferring IPv4. The
// system resolver is tried first; on failure every fallback resolver
// is queried concurrently and the first answer wins.
func Lookup(host string) (string, error) {
	ip, err := systemLookup(host)
	if err == nil {
		return ip, nil
	}

	slog.Warn("system dns lookup failed, racing public resolvers", "host", host, "err", err)
	return raceLookup(host)
}

func systemLookup(host string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), systemTimeout)
	defer cancel()

	r := &net.Resolver{}
	ips, err := r.LookupHost(ctx, host)
	if err != nil {
		return "", err
	}
	return pickIP(ips)
}

// raceLookup queries every fallback resolver at once and returns the
// first usable answer.
func raceLookup(host string) (string, error) {
	type answer struct {
		ip  string
		err error
	}

	ctx, cancel := context.WithTimeout(context.Background(), raceTimeout)
	defer cancel()

	answers := make(chan answer, len(fallbackResolvers))
	for _, server := range fallbackResolvers {
		go func(server string) {
			ip, err := resolverLookup(ctx, host, server)
			answers <- answer{ip: ip, err: err}
		}(server)
	}

	failures := 0
	for range fallbackResolvers {
		select {
		case a := <-answers:
			if a.err == nil && a.ip != "" {
				return a.ip, nil
			}
			failures++
		case <-ctx.Done():
			return "", fmt.Errorf("resolve %s: public resolver race timed out", host)
		}
	}
	return "", fmt.Errorf("resolve %s: all %d public resolvers failed", host, failures)
}

// resolverLookup queries one specific resolver, bypassing the system
// DNS configuration.
func resolverLookup(ctx context.Context, host, server string) (string, error) {
	r := &net.Resolver{
		PreferGo: true,
		Dial: func(ctx context.Context, network, _ string) (net.Conn, error) {
			d := new(net.Dialer)
			return d.DialContext(ctx, network, net.JoinHostPort(server, "53"))
		},
	}

	ips, err := r.LookupHost(ctx, host)
	if err != nil {
		return "", err
	}
	return pickIP(ips)
}

// pickIP prefers an IPv4 answer; relay deployments are reachable over
// IPv4 far more reliably than over IPv6.
func pickIP(ips []string) (string, error) {
	if len(ips) == 0 {
		return "", errors.New("no addresses returned")
	}
	for _, ip := range ips {
		if net.ParseIP(ip).To4() != nil {
			return ip, nil
		}
	}
	return ips[0], nil
}
