package parser

import (
	"net/url"
	"testing"
)

func TestParseListingProfilePage(t *testing.T) {
	html := `<html><body>
<div class="game_cell">
  <a class="thumb_link game_link" href="/cool-game"></a>
  <a class="title game_link" href="/cool-game">Cool Game</a>
  <div class="published_at">Published Jan 15, 2024</div>
</div>
<div class="game_cell">
  <a class="title game_link" href="https://testdev.itch.io/other-game">Other Game</a>
</div>
<a class="next_page" href="?page=2">Next page</a>
</body></html>`

	base, _ := url.Parse("https://testdev.itch.io")
	listing, err := ParseListing([]byte(html), base)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if len(listing.Items) != 2 {
		t.Fatalf("Expected 2 items, got: %d", len(listing.Items))
	}

	first := listing.Items[0]
	if first.Title != "Cool Game" {
		t.Errorf("Expected title 'Cool Game', got: %s", first.Title)
	}
	if first.URL != "https://testdev.itch.io/cool-game" {
		t.Errorf("Expected resolved absolute URL, got: %s", first.URL)
	}
	if first.PublishedAt == nil {
		t.Error("Expected publish date to be parsed")
	} else if first.PublishedAt.Year() != 2024 {
		t.Errorf("Expected year 2024, got: %d", first.PublishedAt.Year())
	}

	if listing.Items[1].PublishedAt != nil {
		t.Error("Expected no publish date on second item")
	}

	if listing.NextPageURL != "https://testdev.itch.io?page=2" {
		t.Errorf("Expected next page resolved against base, got: %s", listing.NextPageURL)
	}
}

func TestParseListingBrowsePage(t *testing.T) {
	html := `<html><body>
<a class="game_link" href="https://alice.itch.io/dungeon">Dungeon</a>
<a class="game_link" href="https://bob.itch.io/dungeon">Dungeon Too</a>
<a class="game_link" href="https://alice.itch.io/dungeon">Dungeon</a>
</body></html>`

	base, _ := url.Parse("https://itch.io/games/top-rated")
	listing, err := ParseListing([]byte(html), base)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if len(listing.Items) != 2 {
		t.Fatalf("Expected 2 deduplicated items, got: %d", len(listing.Items))
	}
	if listing.NextPageURL != "" {
		t.Errorf("Expected no next page, got: %s", listing.NextPageURL)
	}
}

func TestParseListingEmptyPage(t *testing.T) {
	base, _ := url.Parse("https://testdev.itch.io")
	listing, err := ParseListing([]byte("<html><body><p>No games yet</p></body></html>"), base)
	if err != nil {
		t.Fatalf("Expected no error for empty listing, got: %v", err)
	}
	if len(listing.Items) != 0 {
		t.Errorf("Expected 0 items, got: %d", len(listing.Items))
	}
	if listing.NextPageURL != "" {
		t.Errorf("Expected no next page, got: %s", listing.NextPageURL)
	}
}
