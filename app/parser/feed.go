// Package parser holds the pure parsing collaborators: discovery feeds,
// profile/browse listings and item detail pages. Nothing in here performs
// network calls or touches the store.
package parser

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"golang.org/x/text/unicode/norm"
)

// Candidate is a discovery tuple: a newly published item and the creator it
// belongs to.
type Candidate struct {
	Title       string
	Handle      string
	ItemURL     string
	ProfileURL  string
	PublishedAt *time.Time
}

type FeedParser struct {
	gofeedParser *gofeed.Parser
	platformHost string
}

func NewFeedParser(platformHost string) *FeedParser {
	return &FeedParser{
		gofeedParser: gofeed.NewParser(),
		platformHost: strings.ToLower(platformHost),
	}
}

// Run parses a discovery feed into candidates. Entries whose creator handle
// cannot be derived from the link are skipped; callers count them as
// failures, they are not collapsed into a shared "unknown" creator.
func (p *FeedParser) Run(data []byte) ([]Candidate, int, error) {
	feed, err := p.gofeedParser.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to parse feed: %w", err)
	}

	var candidates []Candidate
	skipped := 0

	for _, entry := range feed.Items {
		if entry.Link == "" || entry.Title == "" {
			skipped++
			continue
		}

		handle, profileURL, ok := p.CreatorFromURL(entry.Link)
		if !ok {
			skipped++
			continue
		}

		candidate := Candidate{
			Title:      norm.NFC.String(strings.TrimSpace(entry.Title)),
			Handle:     handle,
			ItemURL:    entry.Link,
			ProfileURL: profileURL,
		}
		if entry.PublishedParsed != nil {
			candidate.PublishedAt = entry.PublishedParsed
		}

		candidates = append(candidates, candidate)
	}

	return candidates, skipped, nil
}

// CreatorFromURL derives the creator handle and canonical profile URL from an
// item URL. Items live on creator subdomains ({handle}.platformHost/{slug});
// bare or www hosts have no creator and return ok=false.
func (p *FeedParser) CreatorFromURL(rawURL string) (handle string, profileURL string, ok bool) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return "", "", false
	}

	host := strings.ToLower(u.Hostname())
	suffix := "." + p.platformHost
	if !strings.HasSuffix(host, suffix) {
		return "", "", false
	}

	handle = strings.TrimSuffix(host, suffix)
	if handle == "" || handle == "www" || strings.Contains(handle, ".") {
		return "", "", false
	}

	scheme := u.Scheme
	if scheme == "" {
		scheme = "https"
	}

	return norm.NFC.String(handle), fmt.Sprintf("%s://%s", scheme, host), true
}
