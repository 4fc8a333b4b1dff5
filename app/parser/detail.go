package parser

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
	"golang.org/x/text/unicode/norm"
)

// RatingStatus is the tri-state outcome of parsing a detail page. Hidden is a
// positively parsed "no rating shown" signal; it is never conflated with a
// parse failure, which surfaces as an error from ParseDetail instead.
type RatingStatus string

const (
	RatingPresent RatingStatus = "present"
	RatingsHidden RatingStatus = "hidden"
)

type Detail struct {
	Status       RatingStatus
	Rating       float64
	RatingCount  int
	CommentCount int
	Description  string
	Tags         []string
}

const maxDescriptionLength = 2000

// ParseDetail extracts rating, comment and descriptive metadata from an item
// detail page. A page that parses cleanly but renders no aggregate rating
// widget reports RatingsHidden; unusable input returns an error.
func ParseDetail(html []byte) (*Detail, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse detail HTML: %w", err)
	}

	if strings.TrimSpace(doc.Find("body").Text()) == "" {
		return nil, fmt.Errorf("detail page has no readable body")
	}

	detail := &Detail{
		Status:       RatingsHidden,
		CommentCount: doc.Find("div.community_post").Length(),
		Description:  extractDescription(html, doc),
		Tags:         extractTags(doc),
	}

	widget := doc.Find(`div.aggregate_rating[itemprop="aggregateRating"]`).First()
	if widget.Length() == 0 {
		return detail, nil
	}

	ratingText := strings.TrimSpace(widget.Find(`span[itemprop="ratingValue"]`).First().Text())
	if ratingText == "" {
		ratingText, _ = widget.Find(`[itemprop="ratingValue"]`).First().Attr("content")
	}
	rating, err := strconv.ParseFloat(strings.TrimSpace(ratingText), 64)
	if err != nil {
		// Widget present but value unparseable: treated as hidden, not failed.
		return detail, nil
	}

	detail.Status = RatingPresent
	detail.Rating = rating

	countText := strings.TrimSpace(widget.Find(`span[itemprop="ratingCount"]`).First().Text())
	if countText == "" {
		countText, _ = widget.Find(`[itemprop="ratingCount"]`).First().Attr("content")
	}
	if count, err := strconv.Atoi(strings.TrimSpace(countText)); err == nil {
		detail.RatingCount = count
	}

	return detail, nil
}

// extractDescription prefers readability's article extraction and falls back
// to the formatted description block.
func extractDescription(html []byte, doc *goquery.Document) string {
	if article, err := readability.FromReader(bytes.NewReader(html), nil); err == nil {
		if text := strings.TrimSpace(article.TextContent); text != "" {
			return clampText(text)
		}
	}

	return clampText(strings.TrimSpace(doc.Find("div.formatted_description").First().Text()))
}

func extractTags(doc *goquery.Document) []string {
	var tags []string
	seen := map[string]bool{}

	doc.Find(`div.game_info_panel_widget a[href*="/tag-"], a[href*="/games/tag-"]`).Each(func(_ int, link *goquery.Selection) {
		tag := norm.NFC.String(strings.ToLower(strings.TrimSpace(link.Text())))
		if tag == "" || seen[tag] {
			return
		}
		seen[tag] = true
		tags = append(tags, tag)
	})

	return tags
}

func clampText(text string) string {
	text = norm.NFC.String(text)
	if len(text) <= maxDescriptionLength {
		return text
	}
	return text[:maxDescriptionLength]
}
