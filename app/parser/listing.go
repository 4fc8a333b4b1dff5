package parser

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/text/unicode/norm"
)

// ListingItem is one entry on a profile or browse page.
type ListingItem struct {
	Title       string
	URL         string
	PublishedAt *time.Time
}

// Listing is the parsed form of one paginated listing page. NextPageURL is
// absolute (resolved against the page's own URL) or empty on the last page.
type Listing struct {
	Items       []ListingItem
	NextPageURL string
}

// Publish dates render as "Published Jan 15, 2024" or just the date.
var listingDateFormats = []string{
	"Jan 2, 2006",
	"January 2, 2006",
	"02 January 2006",
}

// ParseListing extracts items and the next-page link from a listing page.
// Item and pagination hrefs are resolved against baseURL, the URL the page
// was fetched from; listing markup routinely carries relative links.
func ParseListing(html []byte, baseURL *url.URL) (*Listing, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse listing HTML: %w", err)
	}

	listing := &Listing{}
	seen := map[string]bool{}

	doc.Find("div.game_cell").Each(func(_ int, cell *goquery.Selection) {
		link := cell.Find("a.title").First()
		if link.Length() == 0 {
			// Thumbnail links carry no text; take the first game link that does.
			cell.Find("a.game_link").EachWithBreak(func(_ int, candidate *goquery.Selection) bool {
				if strings.TrimSpace(candidate.Text()) != "" {
					link = candidate
					return false
				}
				return true
			})
		}
		if link.Length() == 0 {
			return
		}

		href, _ := link.Attr("href")
		item, ok := newListingItem(link.Text(), href, baseURL)
		if !ok || seen[item.URL] {
			return
		}
		seen[item.URL] = true

		if dateText := cell.Find("div.published_at").First().Text(); dateText != "" {
			item.PublishedAt = parseListingDate(dateText)
		}

		listing.Items = append(listing.Items, item)
	})

	// Browse pages render bare game links outside of game cells.
	if len(listing.Items) == 0 {
		doc.Find("a.game_link").Each(func(_ int, link *goquery.Selection) {
			href, _ := link.Attr("href")
			item, ok := newListingItem(link.Text(), href, baseURL)
			if !ok || seen[item.URL] {
				return
			}
			seen[item.URL] = true
			listing.Items = append(listing.Items, item)
		})
	}

	if href, ok := doc.Find("a.next_page").First().Attr("href"); ok && href != "" {
		listing.NextPageURL = resolveHref(href, baseURL)
	}

	return listing, nil
}

func newListingItem(title, href string, baseURL *url.URL) (ListingItem, bool) {
	href = strings.TrimSpace(href)
	if href == "" {
		return ListingItem{}, false
	}

	resolved := resolveHref(href, baseURL)
	if resolved == "" {
		return ListingItem{}, false
	}

	title = norm.NFC.String(strings.TrimSpace(title))
	if title == "" {
		// Display fallback only; identity never derives from the slug.
		title = strings.Trim(resolved[strings.LastIndex(resolved, "/")+1:], "/")
	}

	return ListingItem{Title: title, URL: resolved}, true
}

func resolveHref(href string, baseURL *url.URL) string {
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if baseURL != nil {
		ref = baseURL.ResolveReference(ref)
	}
	if !ref.IsAbs() {
		return ""
	}
	return ref.String()
}

func parseListingDate(text string) *time.Time {
	text = strings.TrimSpace(strings.ReplaceAll(text, "Published", ""))
	for _, format := range listingDateFormats {
		if parsed, err := time.Parse(format, text); err == nil {
			return &parsed
		}
	}
	return nil
}
