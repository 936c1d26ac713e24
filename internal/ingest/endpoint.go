package ingest

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/savid/iptv-udp-buffer/pkg/types"
)

// ParseEndpoint parses udp://host:port or rtp://host:port. The udpxy-style "@" marker
// in front of the host (udp://@239.0.0.1:1234) is accepted and ignored.
func ParseEndpoint(raw string) (types.Endpoint, error) {
	u, err := url.Parse(strings.Replace(raw, "://@", "://", 1))
	if err != nil {
		return types.Endpoint{}, fmt.Errorf("%w: %w", ErrInvalidEndpoint, err)
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != types.SchemeUDP && scheme != types.SchemeRTP {
		return types.Endpoint{}, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidEndpoint, u.Scheme)
	}

	return endpointFromHostPort(scheme, u.Host)
}

// EndpointFromHostPort builds an endpoint from a host:port pair and a scheme.
func EndpointFromHostPort(scheme, hostport string) (types.Endpoint, error) {
	return endpointFromHostPort(strings.ToLower(scheme), strings.TrimPrefix(hostport, "@"))
}

func endpointFromHostPort(scheme, hostport string) (types.Endpoint, error) {
	host, portStr, err := net.SplitHostPort(hostport)
	if err != nil {
		return types.Endpoint{}, fmt.Errorf("%w: %w", ErrInvalidEndpoint, err)
	}

	port, err := strconv.Atoi(portStr)
	if err != nil || port < 0 || port > 65535 {
		return types.Endpoint{}, fmt.Errorf("%w: invalid port %q", ErrInvalidEndpoint, portStr)
	}

	ep := types.Endpoint{Scheme: scheme, Host: host, Port: port}
	if ip := net.ParseIP(host); ip != nil {
		ep.IP = ip
		ep.Multicast = ip.IsMulticast()
	}
	return ep, nil
}

// resolve fills in the endpoint address and multicast classification.
func resolve(ctx context.Context, ep types.Endpoint) (types.Endpoint, error) {
	if ep.IP != nil {
		ep.Multicast = ep.IP.IsMulticast()
		return ep, nil
	}

	if ep.Host == "" {
		// Wildcard bind on the port.
		ep.IP = net.IPv4zero
		return ep, nil
	}

	addrs, err := net.DefaultResolver.LookupIPAddr(ctx, ep.Host)
	if err != nil {
		return ep, err
	}
	if len(addrs) == 0 {
		return ep, fmt.Errorf("no addresses for %s", ep.Host)
	}

	ep.IP = addrs[0].IP
	for _, a := range addrs {
		if a.IP.To4() != nil {
			ep.IP = a.IP
			break
		}
	}
	ep.Multicast = ep.IP.IsMulticast()
	return ep, nil
}
