// Package competitor mines keyword candidates from competitor pages:
// titles, headings, meta keywords, and anchor texts become 1-4 word
// phrases after stopword filtering.
package competitor

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/contentforge/kwuniverse/internal/keywords"
)

const (
	defaultMaxPerDomain = 40
	maxBodyBytes        = 4 << 20
	maxPhraseWords      = 4
)

var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {},
	"by": {}, "for": {}, "from": {}, "in": {}, "is": {}, "it": {}, "of": {},
	"on": {}, "or": {}, "our": {}, "that": {}, "the": {}, "this": {},
	"to": {}, "with": {}, "we": {}, "you": {}, "your": {},
}

// Miner fetches competitor pages over HTTP and extracts candidate phrases.
// Per-domain failures are reported as warnings, never as errors.
type Miner struct {
	client *http.Client
}

func NewMiner(client *http.Client) *Miner {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &Miner{client: client}
}

// Mine visits each domain's home page and returns canonicalized candidate
// phrases plus one warning per failed domain. Output order is
// deterministic: phrases sorted by descending occurrence count, ties by
// keyword string.
func (m *Miner) Mine(ctx context.Context, domains []string, maxPerDomain int) ([]string, []string) {
	if maxPerDomain <= 0 {
		maxPerDomain = defaultMaxPerDomain
	}
	counts := map[string]int{}
	var warnings []string
	for _, domain := range domains {
		domain = strings.TrimSpace(strings.ToLower(domain))
		if domain == "" {
			continue
		}
		if ctx.Err() != nil {
			warnings = append(warnings, fmt.Sprintf("competitor mining stopped before %s: %v", domain, ctx.Err()))
			break
		}
		phrases, err := m.mineDomain(ctx, domain, maxPerDomain)
		if err != nil {
			log.Printf("kwuniverse competitor_mine_failed domain=%s err=%v", domain, err)
			warnings = append(warnings, fmt.Sprintf("competitor mining failed for %s: %v", domain, err))
			continue
		}
		for _, p := range phrases {
			counts[p]++
		}
	}

	out := make([]string, 0, len(counts))
	for p := range counts {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if counts[out[i]] != counts[out[j]] {
			return counts[out[i]] > counts[out[j]]
		}
		return out[i] < out[j]
	})
	return out, warnings
}

func (m *Miner) mineDomain(ctx context.Context, domain string, max int) ([]string, error) {
	url := domain
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		url = "https://" + url
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "kwuniverse-keyword-miner/1.0")
	resp, err := m.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status code: %d", resp.StatusCode)
	}
	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return ExtractPhrases(doc, max), nil
}

// ExtractPhrases harvests candidate phrases from a parsed page. Exported
// for tests and for callers that fetch pages themselves.
func ExtractPhrases(doc *goquery.Document, max int) []string {
	var raw []string
	doc.Find("title,h1,h2,h3").Each(func(_ int, s *goquery.Selection) {
		raw = append(raw, s.Text())
	})
	if meta, ok := doc.Find(`meta[name="keywords"]`).Attr("content"); ok {
		raw = append(raw, strings.Split(meta, ",")...)
	}
	if meta, ok := doc.Find(`meta[name="description"]`).Attr("content"); ok {
		raw = append(raw, meta)
	}
	doc.Find("a").Each(func(_ int, s *goquery.Selection) {
		raw = append(raw, s.Text())
	})

	out := []string{}
	seen := map[string]struct{}{}
	for _, text := range raw {
		for _, phrase := range phrasesFromText(text) {
			if _, ok := seen[phrase]; ok {
				continue
			}
			seen[phrase] = struct{}{}
			out = append(out, phrase)
			if len(out) >= max {
				return out
			}
		}
	}
	return out
}

// phrasesFromText splits a text fragment on punctuation, canonicalizes each
// piece, trims leading/trailing stopwords, and keeps 1-4 word phrases.
func phrasesFromText(text string) []string {
	pieces := strings.FieldsFunc(text, func(r rune) bool {
		switch r {
		case '|', ',', ';', ':', '.', '!', '?', '(', ')', '[', ']', '–', '—':
			return true
		}
		return false
	})
	var out []string
	for _, piece := range pieces {
		c := keywords.Canonicalize(piece)
		words := trimStopwords(strings.Fields(c))
		if len(words) == 0 || len(words) > maxPhraseWords {
			continue
		}
		phrase := strings.Join(words, " ")
		if keywords.ValidateSeed(phrase) != nil {
			continue
		}
		out = append(out, phrase)
	}
	return out
}

func trimStopwords(words []string) []string {
	for len(words) > 0 {
		if _, ok := stopwords[words[0]]; !ok {
			break
		}
		words = words[1:]
	}
	for len(words) > 0 {
		if _, ok := stopwords[words[len(words)-1]]; !ok {
			break
		}
		words = words[:len(words)-1]
	}
	return words
}
