package m3u

import (
	"errors"
	"testing"
)

const samplePlaylist = `#EXTM3U x-tvg-url="http://epg.example/guide.xml"
#EXTINF:-1 tvg-id="news.uk" tvg-name="UK: News" tvg-logo="http://logo/news.png" group-title="News, World",UK: News
#EXTVLCOPT:network-caching=1000
udp://@239.1.1.1:5000

#EXTINF:-1 tvg-id="sport.de" tvg-name="DE: Sport" group-title="Sport",DE: Sport
rtp://239.1.1.2:5004
#EXTINF:-1 tvg-name="Web Feed",Web Feed
http://cdn.example/live/feed.ts
`

func TestParse(t *testing.T) {
	channels, err := Parse([]byte(samplePlaylist))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if len(channels) != 3 {
		t.Fatalf("Expected 3 channels, got %d", len(channels))
	}

	first := channels[0]
	if first.Name != "UK: News" {
		t.Errorf("Expected name 'UK: News', got '%s'", first.Name)
	}
	if first.TVGID != "news.uk" {
		t.Errorf("Expected tvg-id 'news.uk', got '%s'", first.TVGID)
	}
	if first.Group != "News, World" {
		t.Errorf("Expected group 'News, World', got '%s'", first.Group)
	}
	if first.TVGLogo != "http://logo/news.png" {
		t.Errorf("Expected logo 'http://logo/news.png', got '%s'", first.TVGLogo)
	}
	if first.URL != "udp://@239.1.1.1:5000" {
		t.Errorf("Expected URL 'udp://@239.1.1.1:5000', got '%s'", first.URL)
	}
	if len(first.Options) != 1 || first.Options[0] != "#EXTVLCOPT:network-caching=1000" {
		t.Errorf("Expected one #EXTVLCOPT option, got %v", first.Options)
	}

	if channels[1].URL != "rtp://239.1.1.2:5004" || channels[1].TVGName != "DE: Sport" {
		t.Errorf("Unexpected second channel: %+v", channels[1])
	}
	if channels[2].Name != "Web Feed" || len(channels[2].Options) != 0 {
		t.Errorf("Unexpected third channel: %+v", channels[2])
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr error
	}{
		{
			name:    "missing URL at end",
			input:   "#EXTM3U\n#EXTINF:-1,Lonely\n",
			wantErr: ErrIncompleteChannel,
		},
		{
			name:    "two EXTINF in a row",
			input:   "#EXTM3U\n#EXTINF:-1,A\n#EXTINF:-1,B\nudp://239.0.0.1:1234\n",
			wantErr: ErrOrphanedChannel,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.input))
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestParseEmpty(t *testing.T) {
	channels, err := Parse([]byte("#EXTM3U\n"))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(channels) != 0 {
		t.Errorf("Expected no channels, got %d", len(channels))
	}
}
