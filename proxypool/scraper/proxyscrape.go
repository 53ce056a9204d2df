package scraper

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"pixelfetch/internal/shared/logger"
	"pixelfetch/proxypool/model"
)

// ProxyScrapeScraper pulls the plain-text list served by the
// proxyscrape.com API, one ip:port per line.
type ProxyScrapeScraper struct {
	client *http.Client
}

// NewProxyScrapeScraper creates a new instance.
func NewProxyScrapeScraper() Scraper {
	return &ProxyScrapeScraper{
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (s *ProxyScrapeScraper) Name() string {
	return "proxyscrape.com"
}

func (s *ProxyScrapeScraper) Scrape() ([]*model.Proxy, error) {
	l := logger.WithComponent("ProxyPool/Scraper")
	l.Info().Str("source", s.Name()).Msg("Starting scrape...")

	url := "https://api.proxyscrape.com/v2/?request=get&protocol=http&timeout=10000&country=all&ssl=all&anonymity=all"

	resp, err := s.client.Get(url)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch list from %s: %w", s.Name(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		return nil, fmt.Errorf("received non-200 status code (%d) from %s", resp.StatusCode, s.Name())
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response from %s: %w", s.Name(), err)
	}

	proxies := parsePlainList(string(body), s.Name())
	l.Info().Int("count", len(proxies)).Str("source", s.Name()).Msg("Scrape finished.")
	return proxies, nil
}

// parsePlainList converts a newline-separated ip:port body into pool
// entries, skipping anything that does not normalize.
func parsePlainList(body, source string) []*model.Proxy {
	var proxies []*model.Proxy
	for _, line := range strings.Split(body, "\n") {
		url, ok := model.Normalize(line)
		if !ok {
			continue
		}
		proxies = append(proxies, model.New(url, source))
	}
	return proxies
}
