// Package integration handles external service interactions
package integration

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/abelzeko/aguasur/internal/coordination"
)

// QuoteScraper reads water-truck prices from a provider's published price table.
//
// The table is expected to have one row per truckload size: provider, batch liters, price per liter and
// optionally the number of trucks available. Numbers may use Spanish separators ("4.000", "0,06").
type QuoteScraper struct {
	sourceURL string
	client    *http.Client
}

// Quotes is one scrape of the price table.
type Quotes struct {
	Providers []coordination.Provider
	UpdatedAt time.Time
}

// NewQuoteScraper creates a new price table scraper
func NewQuoteScraper(url string) *QuoteScraper {
	return &QuoteScraper{
		sourceURL: url,
		client:    &http.Client{Timeout: 20 * time.Second},
	}
}

// FetchQuotes retrieves the price table from the website
func (qs *QuoteScraper) FetchQuotes(ctx context.Context) (Quotes, error) {
	if qs.sourceURL == "" {
		return Quotes{}, errors.New("no quotes URL configured")
	}

	log.Printf("Sending HTTP request to price table %s", qs.sourceURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, qs.sourceURL, nil)
	if err != nil {
		return Quotes{}, fmt.Errorf("failed to build request: %w", err)
	}
	res, err := qs.client.Do(req)
	if err != nil {
		log.Printf("Error fetching quotes: %v", err)
		return Quotes{}, fmt.Errorf("failed to fetch the webpage: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		log.Printf("Received unexpected status code: %d %s", res.StatusCode, res.Status)
		return Quotes{}, fmt.Errorf("unexpected status code: %d %s", res.StatusCode, res.Status)
	}

	doc, err := goquery.NewDocumentFromReader(res.Body)
	if err != nil {
		log.Printf("Error parsing HTML: %v", err)
		return Quotes{}, fmt.Errorf("failed to parse the webpage: %w", err)
	}

	quotes := ParseQuotes(doc)
	if len(quotes.Providers) == 0 {
		return Quotes{}, errors.New("price table contained no usable rows")
	}
	return quotes, nil
}

// ParseQuotes extracts providers and tiers from a parsed price page. Rows that cannot be read are
// skipped and logged.
func ParseQuotes(doc *goquery.Document) Quotes {
	var providers []coordination.Provider
	index := make(map[string]int)
	processed, skipped := 0, 0

	doc.Find("table tr").Each(func(i int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() < 3 {
			return
		}
		processed++

		name := strings.TrimSpace(cells.Eq(0).Text())
		batch, errBatch := ParseNumber(cells.Eq(1).Text())
		price, errPrice := ParseNumber(cells.Eq(2).Text())
		if name == "" || errBatch != nil || errPrice != nil || batch <= 0 || price < 0 {
			log.Printf("Warning: Skipping price row %d: %q", i, strings.Join(strings.Fields(row.Text()), " "))
			skipped++
			return
		}

		tier := coordination.Tier{BatchLiters: batch, CostPerLiter: price}
		if cells.Length() >= 4 {
			if n, err := strconv.Atoi(strings.TrimSpace(cells.Eq(3).Text())); err == nil && n >= 0 {
				tier.AvailableTrucks = n
			}
		}

		pos, ok := index[name]
		if !ok {
			pos = len(providers)
			index[name] = pos
			providers = append(providers, coordination.Provider{Name: name})
		}
		providers[pos].Tiers = append(providers[pos].Tiers, tier)
	})

	log.Printf("Parsed %d price rows, skipped %d, found %d providers", processed, skipped, len(providers))
	return Quotes{Providers: providers, UpdatedAt: ExtractUpdatedAt(doc)}
}

var datePattern = regexp.MustCompile(`(\d{1,2})[./-](\d{1,2})[./-](\d{4})`)

// ExtractUpdatedAt finds the "actualizado" date printed above the price table. It returns the zero time
// when the page carries none.
func ExtractUpdatedAt(doc *goquery.Document) time.Time {
	var text string
	doc.Find("h1, h2, h3, h4, p, div").EachWithBreak(func(i int, s *goquery.Selection) bool {
		t := strings.TrimSpace(s.Text())
		if strings.Contains(strings.ToLower(t), "actualizad") && datePattern.MatchString(t) {
			text = t
			return false
		}
		return true
	})
	if text == "" {
		log.Printf("Update date not found in price page")
		return time.Time{}
	}

	m := datePattern.FindStringSubmatch(text)
	day, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	year, _ := strconv.Atoi(m[3])
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if t.Day() != day || int(t.Month()) != month {
		log.Printf("Ignoring invalid update date in %q", text)
		return time.Time{}
	}
	return t
}

// ParseNumber reads prices and volumes such as "$ 0,06", "4.000 L" or "1500".
func ParseNumber(v string) (float64, error) {
	s := strings.TrimSpace(v)
	s = strings.TrimPrefix(s, "$")
	s = strings.TrimSuffix(strings.TrimSuffix(strings.TrimSpace(s), "L"), "l")
	s = strings.ReplaceAll(strings.TrimSpace(s), " ", "")
	switch {
	case strings.Contains(s, ","):
		s = strings.ReplaceAll(s, ".", "")
		s = strings.ReplaceAll(s, ",", ".")
	case thousands.MatchString(s):
		s = strings.ReplaceAll(s, ".", "")
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q: %w", v, err)
	}
	return f, nil
}

var thousands = regexp.MustCompile(`^\d{1,3}(\.\d{3})+$`)
