package parser

import (
	"testing"
)

func TestFeedParserRun(t *testing.T) {
	feedData := `<?xml version="1.0"?>
<rss version="2.0">
  <channel>
    <title>New Releases</title>
    <link>https://itch.io</link>
    <item>
      <title>Cool Game</title>
      <link>https://testdev.itch.io/cool-game</link>
      <pubDate>Mon, 03 Jul 2023 10:00:00 GMT</pubDate>
    </item>
    <item>
      <title>Front Page Game</title>
      <link>https://itch.io/featured/some-game</link>
    </item>
    <item>
      <title></title>
      <link>https://otherdev.itch.io/untitled</link>
    </item>
  </channel>
</rss>`

	parser := NewFeedParser("itch.io")
	candidates, skipped, err := parser.Run([]byte(feedData))
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if len(candidates) != 1 {
		t.Fatalf("Expected 1 candidate, got: %d", len(candidates))
	}
	if skipped != 2 {
		t.Errorf("Expected 2 skipped entries, got: %d", skipped)
	}

	candidate := candidates[0]
	if candidate.Handle != "testdev" {
		t.Errorf("Expected handle 'testdev', got: %s", candidate.Handle)
	}
	if candidate.ProfileURL != "https://testdev.itch.io" {
		t.Errorf("Expected profile URL 'https://testdev.itch.io', got: %s", candidate.ProfileURL)
	}
	if candidate.PublishedAt == nil {
		t.Error("Expected publish date to be parsed")
	}
}

func TestFeedParserMalformedInput(t *testing.T) {
	parser := NewFeedParser("itch.io")
	if _, _, err := parser.Run([]byte("not xml at all")); err == nil {
		t.Error("Expected error for malformed feed")
	}
}

func TestCreatorFromURL(t *testing.T) {
	parser := NewFeedParser("itch.io")

	tests := []struct {
		url        string
		handle     string
		profileURL string
		ok         bool
	}{
		{"https://testdev.itch.io/cool-game", "testdev", "https://testdev.itch.io", true},
		{"https://itch.io/games/newest", "", "", false},
		{"https://www.itch.io/something", "", "", false},
		{"https://example.com/game", "", "", false},
		{"https://a.b.itch.io/game", "", "", false},
	}

	for _, tt := range tests {
		handle, profileURL, ok := parser.CreatorFromURL(tt.url)
		if ok != tt.ok {
			t.Errorf("CreatorFromURL(%q) ok = %v, expected %v", tt.url, ok, tt.ok)
			continue
		}
		if handle != tt.handle {
			t.Errorf("CreatorFromURL(%q) handle = %q, expected %q", tt.url, handle, tt.handle)
		}
		if profileURL != tt.profileURL {
			t.Errorf("CreatorFromURL(%q) profileURL = %q, expected %q", tt.url, profileURL, tt.profileURL)
		}
	}
}
