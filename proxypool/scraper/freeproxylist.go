package scraper

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"pixelfetch/internal/shared/logger"
	"pixelfetch/proxypool/model"
)

// FreeProxyListScraper scrapes the HTML proxy table on
// free-proxy-list.net.
type FreeProxyListScraper struct {
	client *http.Client
}

// NewFreeProxyListScraper creates a new instance.
func NewFreeProxyListScraper() Scraper {
	return &FreeProxyListScraper{
		client: &http.Client{
			Timeout: 20 * time.Second,
		},
	}
}

func (s *FreeProxyListScraper) Name() string {
	return "free-proxy-list.net"
}

func (s *FreeProxyListScraper) Scrape() ([]*model.Proxy, error) {
	l := logger.WithComponent("ProxyPool/Scraper")
	l.Info().Str("source", s.Name()).Msg("Starting scrape...")

	var proxies []*model.Proxy
	url := "https://free-proxy-list.net/"

	req, err := http.NewRequest("GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request for %s: %w", s.Name(), err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch page for %s: %w", s.Name(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		return nil, fmt.Errorf("received non-200 status code (%d) from %s", resp.StatusCode, s.Name())
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML for %s: %w", s.Name(), err)
	}

	doc.Find("table.table tbody tr").Each(func(j int, sel *goquery.Selection) {
		ip := strings.TrimSpace(sel.Find("td").Eq(0).Text())
		port := strings.TrimSpace(sel.Find("td").Eq(1).Text())

		if ip == "" || port == "" {
			return
		}

		url, ok := model.Normalize(ip + ":" + port)
		if !ok {
			l.Warn().Str("ip", ip).Str("port", port).Msg("Failed to normalize entry, skipping.")
			return
		}
		proxies = append(proxies, model.New(url, s.Name()))
	})

	l.Info().Int("count", len(proxies)).Str("source", s.Name()).Msg("Scrape finished.")
	return proxies, nil
}
