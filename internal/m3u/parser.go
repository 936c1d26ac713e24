// Package m3u parses M3U playlists and rewrites their multicast entries to relay URLs.
package m3u

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var (
	// ErrIncompleteChannel is returned when an #EXTINF line has no corresponding URL.
	ErrIncompleteChannel = errors.New("found #EXTINF without URL at end of file")
	// ErrOrphanedChannel is returned when a new #EXTINF is found before the previous one has a URL.
	ErrOrphanedChannel = errors.New("found #EXTINF without URL for previous channel")
)

var attributePattern = regexp.MustCompile(`([a-zA-Z0-9-]+)="([^"]*)"`)

// Channel is one entry of a playlist.
type Channel struct {
	Name    string
	URL     string
	TVGID   string
	TVGName string
	TVGLogo string
	Group   string
	// Info is the #EXTINF line as it appeared in the source playlist.
	Info string
	// Options holds #EXTVLCOPT lines and similar directives between the #EXTINF and the URL.
	Options []string
}

// Parse extracts the channels of an M3U playlist.
func Parse(data []byte) ([]Channel, error) {
	var channels []Channel
	var current *Channel

	scanner := bufio.NewScanner(bytes.NewReader(data))
	for lineNo := 1; scanner.Scan(); lineNo++ {
		line := strings.TrimSpace(scanner.Text())

		switch {
		case line == "", strings.HasPrefix(line, "#EXTM3U"):
			continue

		case strings.HasPrefix(line, "#EXTINF:"):
			if current != nil {
				return nil, fmt.Errorf("%w (line %d)", ErrOrphanedChannel, lineNo)
			}
			current = parseInfo(line)

		case strings.HasPrefix(line, "#"):
			if current != nil {
				current.Options = append(current.Options, line)
			}

		case current != nil:
			current.URL = line
			channels = append(channels, *current)
			current = nil
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error scanning M3U data: %w", err)
	}
	if current != nil {
		return nil, ErrIncompleteChannel
	}
	return channels, nil
}

func parseInfo(line string) *Channel {
	ch := &Channel{Info: line}

	header, name, found := cutTitle(line)
	if found {
		ch.Name = strings.TrimSpace(name)
	}

	for _, m := range attributePattern.FindAllStringSubmatch(header, -1) {
		switch strings.ToLower(m[1]) {
		case "tvg-id":
			ch.TVGID = m[2]
		case "tvg-name":
			ch.TVGName = m[2]
		case "tvg-logo":
			ch.TVGLogo = m[2]
		case "group-title":
			ch.Group = m[2]
		}
	}
	return ch
}

// cutTitle splits an #EXTINF line at the first comma outside quoted attribute values.
func cutTitle(line string) (header, title string, found bool) {
	quoted := false
	for i, r := range line {
		switch r {
		case '"':
			quoted = !quoted
		case ',':
			if !quoted {
				return line[:i], line[i+1:], true
			}
		}
	}
	return line, "", false
}
