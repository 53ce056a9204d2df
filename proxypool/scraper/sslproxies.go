package scraper

import (
	"strings"
	"time"

	"github.com/gocolly/colly/v2"

	"pixelfetch/internal/shared/logger"
	"pixelfetch/proxypool/model"
)

// SSLProxiesScraper scrapes sslproxies.org with a colly collector.
type SSLProxiesScraper struct {
	collector *colly.Collector
}

// NewSSLProxiesScraper creates a new SSLProxiesScraper instance.
func NewSSLProxiesScraper() Scraper {
	c := colly.NewCollector(
		colly.UserAgent("Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"),
	)
	c.SetRequestTimeout(20 * time.Second)

	return &SSLProxiesScraper{
		collector: c,
	}
}

func (s *SSLProxiesScraper) Name() string {
	return "sslproxies.org"
}

func (s *SSLProxiesScraper) Scrape() ([]*model.Proxy, error) {
	l := logger.WithComponent("ProxyPool/Scraper")
	l.Info().Str("source", s.Name()).Msg("Starting scrape...")

	var proxies []*model.Proxy

	s.collector.OnHTML("table.table tbody tr", func(e *colly.HTMLElement) {
		ip := strings.TrimSpace(e.ChildText("td:nth-child(1)"))
		port := strings.TrimSpace(e.ChildText("td:nth-child(2)"))
		if ip == "" || port == "" {
			return
		}

		url, ok := model.Normalize(ip + ":" + port)
		if !ok {
			return
		}
		proxies = append(proxies, model.New(url, s.Name()))
	})

	if err := s.collector.Visit("https://www.sslproxies.org/"); err != nil {
		return nil, err
	}
	s.collector.Wait()

	l.Info().Int("count", len(proxies)).Str("source", s.Name()).Msg("Scrape finished.")
	return proxies, nil
}
