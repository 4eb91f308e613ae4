// Package resolve maps a warrant number to its underlying stock by
// scraping the issuer's warrant page, with an ordered chain of
// extraction strategies and a secondary quote site as fallback.
package resolve

import (
	"bytes"
	"context"
	"log"
	"regexp"
	"strings"
	"sync"

	"warrant-ledgerv1/internal/model"

	"github.com/PuerkitoBio/goquery"
)

// Resolution outcomes, used for logging and metrics labels.
const (
	OutcomeTable        = "table"
	OutcomeTitle        = "title"
	OutcomeSnippet      = "snippet"
	OutcomePlaceholder  = "placeholder"
	OutcomeFallbackName = "fallback-title"
	OutcomeFallbackLink = "fallback-link"
	OutcomeFailed       = "failed"
)

var (
	ucodeRe        = regexp.MustCompile(`var\s+ucode\s*=\s*['"]([^'"]+)['"]`)
	warrantTitleRe = regexp.MustCompile(`^\d+\s+(.+?)\s+\(`)
	snippetNameRe  = regexp.MustCompile(`\(([^)]*)\)\s*([^\s<]+)`)
	hrefCodeRe     = regexp.MustCompile(`code=(\d+)`)
	leadingCodeRe  = regexp.MustCompile(`^\d+\s*`)
	trailingCodeRe = regexp.MustCompile(`\(\d+\)$`)
)

// assetMarker is the "related asset" heading on the issuer page; the
// snippet strategy scans a bounded window after it.
const (
	assetMarker       = "相關資產"
	assetSnippetBytes = 1000
)

// Pipeline resolves warrant numbers. Resolutions for the same warrant
// serialize on a per-warrant lock so the startup sweep and an on-demand
// resolution never race; unrelated warrants proceed independently.
type Pipeline struct {
	fetcher      Fetcher
	primaryBase  string
	fallbackBase string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates a Pipeline. primaryBase and fallbackBase are URL prefixes
// the warrant number is appended to.
func New(fetcher Fetcher, primaryBase, fallbackBase string) *Pipeline {
	return &Pipeline{
		fetcher:      fetcher,
		primaryBase:  primaryBase,
		fallbackBase: fallbackBase,
		locks:        make(map[string]*sync.Mutex),
	}
}

// Resolve maps a warrant number to its underlying stock. Returns the
// identity and the strategy that produced it, or (nil, OutcomeFailed)
// when neither source yields anything. No partial identity is ever
// returned.
func (p *Pipeline) Resolve(ctx context.Context, warrantNumber string) (*model.StockInfo, string) {
	unlock := p.lockWarrant(warrantNumber)
	defer unlock()

	info, outcome := p.resolvePrimary(ctx, warrantNumber)
	if info != nil {
		log.Printf("[resolve] %s → %s %s (%s)", warrantNumber, info.Code, info.Name, outcome)
		return info, outcome
	}

	info, outcome = p.resolveFallback(ctx, warrantNumber)
	if info != nil {
		log.Printf("[resolve] %s → %s %s (%s)", warrantNumber, info.Code, info.Name, outcome)
		return info, outcome
	}

	log.Printf("[resolve] %s: no identity found", warrantNumber)
	return nil, OutcomeFailed
}

// resolvePrimary scrapes the issuer warrant page. The underlying stock
// code comes from the embedded `var ucode` script variable; the display
// name is tried from the static table, the page title, and the related
// asset snippet, in that order, falling back to a synthesized name.
// Only a missing ucode (or fetch error) counts as primary failure.
func (p *Pipeline) resolvePrimary(ctx context.Context, warrantNumber string) (*model.StockInfo, string) {
	page, err := p.fetcher.Get(ctx, p.primaryBase+warrantNumber)
	if err != nil {
		log.Printf("[resolve] primary fetch failed for %s: %v", warrantNumber, err)
		return nil, OutcomeFailed
	}

	m := ucodeRe.FindSubmatch(page)
	if m == nil {
		return nil, OutcomeFailed
	}
	code := padCode(string(m[1]))

	doc, docErr := goquery.NewDocumentFromReader(bytes.NewReader(page))

	var productName string
	if docErr == nil {
		productName = strings.TrimSpace(doc.Find("span.h4.d-md-block").First().Text())
	}

	// Strategy 1: direct reverse-table lookup on the padded code.
	if name, ok := nameByCode(code); ok {
		return &model.StockInfo{Code: code, Name: name, WarrantProductName: productName}, OutcomeTable
	}

	// Strategy 2: infer from the warrant name in the page title. A table
	// alias found inside the name wins, and brings its own code mapping.
	if docErr == nil {
		if tm := warrantTitleRe.FindStringSubmatch(strings.TrimSpace(doc.Find("title").Text())); tm != nil {
			if name, aliasCode, ok := scanAliases(strings.TrimSpace(tm[1])); ok {
				return &model.StockInfo{Code: aliasCode, Name: name, WarrantProductName: productName}, OutcomeTitle
			}
		}
	}

	// Strategy 3: pull the name out of the related-asset section.
	if idx := bytes.Index(page, []byte(assetMarker)); idx >= 0 {
		end := idx + assetSnippetBytes
		if end > len(page) {
			end = len(page)
		}
		if sm := snippetNameRe.FindSubmatch(page[idx:end]); sm != nil && len(sm[2]) > 0 {
			name := strings.TrimSpace(string(sm[2]))
			return &model.StockInfo{Code: code, Name: name, WarrantProductName: productName}, OutcomeSnippet
		}
	}

	// Strategy 4: synthesize a name from the code. Always succeeds, so a
	// page with an extractable ucode never falls through to the fallback.
	return &model.StockInfo{Code: code, Name: "正股" + code, WarrantProductName: productName}, OutcomePlaceholder
}

// resolveFallback scrapes the secondary quote site: title inference
// first, then the first outbound stock link on the page.
func (p *Pipeline) resolveFallback(ctx context.Context, warrantNumber string) (*model.StockInfo, string) {
	page, err := p.fetcher.Get(ctx, p.fallbackBase+warrantNumber)
	if err != nil {
		log.Printf("[resolve] fallback fetch failed for %s: %v", warrantNumber, err)
		return nil, OutcomeFailed
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return nil, OutcomeFailed
	}

	if tm := warrantTitleRe.FindStringSubmatch(strings.TrimSpace(doc.Find("title").Text())); tm != nil {
		if name, aliasCode, ok := scanAliases(strings.TrimSpace(tm[1])); ok {
			return &model.StockInfo{Code: aliasCode, Name: name}, OutcomeFallbackName
		}
	}

	link := doc.Find(`a[href*="/stocks/realtime/quote.php"]`).First()
	if link.Length() > 0 {
		href, _ := link.Attr("href")
		if hm := hrefCodeRe.FindStringSubmatch(href); hm != nil {
			fullText := strings.TrimSpace(link.Text())
			name := strings.TrimSpace(trailingCodeRe.ReplaceAllString(leadingCodeRe.ReplaceAllString(fullText, ""), ""))
			if name == "" {
				name = fullText
			}
			return &model.StockInfo{Code: padCode(hm[1]), Name: name}, OutcomeFallbackLink
		}
	}

	return nil, OutcomeFailed
}

// lockWarrant acquires the per-warrant resolution lock and returns the
// release func.
func (p *Pipeline) lockWarrant(warrantNumber string) func() {
	p.mu.Lock()
	l, ok := p.locks[warrantNumber]
	if !ok {
		l = &sync.Mutex{}
		p.locks[warrantNumber] = l
	}
	p.mu.Unlock()

	l.Lock()
	return l.Unlock
}
