package m3u

import (
	"bytes"
	"strings"

	"github.com/savid/iptv-udp-buffer/internal/ingest"
)

// Rewrite renders channels as a playlist whose udp:// and rtp:// entries point at the
// relay under baseURL. Every other URL is written unchanged.
func Rewrite(channels []Channel, baseURL string) []byte {
	var buf bytes.Buffer
	buf.WriteString("#EXTM3U\n")

	baseURL = strings.TrimRight(baseURL, "/")
	for _, ch := range channels {
		buf.WriteString(ch.Info)
		buf.WriteByte('\n')
		for _, opt := range ch.Options {
			buf.WriteString(opt)
			buf.WriteByte('\n')
		}
		buf.WriteString(RelayURL(ch.URL, baseURL))
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

// RelayURL maps a multicast or unicast datagram URL to its relay path. URLs that are not
// valid udp:// or rtp:// endpoints are returned as is.
func RelayURL(raw, baseURL string) string {
	ep, err := ingest.ParseEndpoint(raw)
	if err != nil {
		return raw
	}
	return strings.TrimRight(baseURL, "/") + "/" + ep.Scheme + "/" + ep.HostPort()
}

// CountRelayed returns how many channels Rewrite maps to the relay.
func CountRelayed(channels []Channel) int {
	n := 0
	for _, ch := range channels {
		if _, err := ingest.ParseEndpoint(ch.URL); err == nil {
			n++
		}
	}
	return n
}
