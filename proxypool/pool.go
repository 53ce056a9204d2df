// Package proxypool holds the outbound proxy candidates shared by all
// concurrent downloads and hands out the next usable one on request.
package proxypool

import (
	"strings"
	"sync"
	"time"

	"pixelfetch/internal/shared/logger"
	"pixelfetch/internal/shared/types"
	"pixelfetch/proxypool/model"
	"pixelfetch/proxypool/scraper"
)

// Pool is the rotation pool. Selection and health mutation run under a
// short critical section; scraping and any other I/O happen outside
// the lock.
type Pool struct {
	mu      sync.Mutex
	proxies []*model.Proxy // insertion order: manual entries first, then scraped
	byURL   map[string]*model.Proxy
	cursor  int
	lastURL string

	enabled    bool
	autoFetch  bool
	fetchLimit int
	scrapers   []scraper.Scraper
}

// New builds a pool from the [proxy] configuration. Manual entries are
// added immediately; free-proxy sources run in Initialize.
func New(cfg types.ProxyConf) *Pool {
	p := &Pool{
		byURL:      make(map[string]*model.Proxy),
		enabled:    cfg.Enabled,
		autoFetch:  cfg.AutoFetch,
		fetchLimit: cfg.FetchLimit,
	}
	if p.fetchLimit <= 0 {
		p.fetchLimit = 10
	}

	for _, raw := range strings.Split(cfg.ManualList, ",") {
		url, ok := model.Normalize(raw)
		if !ok {
			continue
		}
		p.add(model.New(url, "manual"))
	}

	if cfg.AutoFetch {
		p.AddScraper(scraper.NewProxyScrapeScraper())
		p.AddScraper(scraper.NewFreeProxyListScraper())
		p.AddScraper(scraper.NewSSLProxiesScraper())
	}

	return p
}

// AddScraper registers a free-proxy source.
func (p *Pool) AddScraper(s scraper.Scraper) {
	p.scrapers = append(p.scrapers, s)
}

// Enabled reports whether proxying is requested at all.
func (p *Pool) Enabled() bool {
	return p.enabled
}

// Initialize runs the free-proxy scrapers and appends their results,
// capped at fetchLimit. Every scraper failure is absorbed: a pool with
// only the manual list, or even an empty pool, is a valid outcome and
// the caller falls back to direct connections.
func (p *Pool) Initialize() {
	l := logger.WithComponent("ProxyPool")

	if !p.autoFetch {
		l.Info().Int("size", p.Size()).Msg("Auto-fetch disabled, using manual list only.")
		return
	}

	var wg sync.WaitGroup
	scrapedChan := make(chan []*model.Proxy, len(p.scrapers))

	for _, s := range p.scrapers {
		wg.Add(1)
		go func(sc scraper.Scraper) {
			defer wg.Done()
			proxies, err := sc.Scrape()
			if err != nil {
				l.Warn().Err(err).Str("source", sc.Name()).Msg("Scraper failed.")
				return
			}
			if len(proxies) > 0 {
				scrapedChan <- proxies
			}
		}(s)
	}

	wg.Wait()
	close(scrapedChan)

	fetched := 0
	p.mu.Lock()
	for proxies := range scrapedChan {
		for _, pr := range proxies {
			if fetched >= p.fetchLimit {
				break
			}
			if _, exists := p.byURL[pr.URL]; exists {
				continue
			}
			p.proxies = append(p.proxies, pr)
			p.byURL[pr.URL] = pr
			fetched++
		}
	}
	size := len(p.proxies)
	p.mu.Unlock()

	if size == 0 {
		l.Warn().Msg("Proxy pool is empty after initialization.")
	} else {
		l.Info().Int("fetched", fetched).Int("size", size).Msg("Proxy pool ready.")
	}
}

// Next returns the next usable proxy, advancing the rotation cursor.
// It never returns the immediately-prior selection while another
// usable proxy exists. A nil return is the "no proxy" sentinel, not an
// error; the caller should attempt a direct connection.
func (p *Pool) Next() *model.Proxy {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := len(p.proxies)
	if n == 0 {
		return nil
	}

	usable := 0
	for _, pr := range p.proxies {
		if pr.Usable() {
			usable++
		}
	}
	if usable == 0 {
		return nil
	}

	for i := 0; i < n; i++ {
		pr := p.proxies[p.cursor]
		p.cursor = (p.cursor + 1) % n

		if !pr.Usable() {
			continue
		}
		if pr.URL == p.lastURL && usable > 1 {
			continue
		}

		pr.LastUsed = time.Now()
		p.lastURL = pr.URL
		return pr
	}

	return nil
}

// MarkFailed transitions a proxy to failed. Idempotent; unknown URLs
// are ignored.
func (p *Pool) MarkFailed(url string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	pr, ok := p.byURL[url]
	if !ok || pr.Status == model.StatusFailed {
		return
	}
	pr.Status = model.StatusFailed
	pr.FailureCount++
	l := logger.WithComponent("ProxyPool")
	l.Warn().Str("proxy", url).Int("failures", pr.FailureCount).Msg("Proxy marked failed.")
}

// MarkHealthy records a successful attempt through the proxy, making
// a previously failed entry eligible again.
func (p *Pool) MarkHealthy(url string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	pr, ok := p.byURL[url]
	if !ok {
		return
	}
	pr.Status = model.StatusHealthy
}

// ResetFailed makes every failed entry eligible again. Failure is
// otherwise sticky for the lifetime of the pool; this is the explicit
// re-trial escape hatch for callers that want one.
func (p *Pool) ResetFailed() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	reset := 0
	for _, pr := range p.proxies {
		if pr.Status == model.StatusFailed {
			pr.Status = model.StatusUntested
			reset++
		}
	}
	return reset
}

// Size returns the total number of entries, failed ones included.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.proxies)
}

// UsableCount returns the number of entries selection may return.
func (p *Pool) UsableCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	usable := 0
	for _, pr := range p.proxies {
		if pr.Usable() {
			usable++
		}
	}
	return usable
}

// Snapshot returns a copy of every entry, for persistence and the web
// feed.
func (p *Pool) Snapshot() []*model.Proxy {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]*model.Proxy, 0, len(p.proxies))
	for _, pr := range p.proxies {
		cp := *pr
		out = append(out, &cp)
	}
	return out
}

// Restore merges previously persisted entries into the pool, keeping
// their recorded health. Entries already present keep their current
// state.
func (p *Pool) Restore(proxies []*model.Proxy) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, pr := range proxies {
		if _, exists := p.byURL[pr.URL]; exists {
			continue
		}
		p.proxies = append(p.proxies, pr)
		p.byURL[pr.URL] = pr
	}
}

// add appends a new entry; caller must not hold the lock.
func (p *Pool) add(pr *model.Proxy) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.byURL[pr.URL]; exists {
		return
	}
	p.proxies = append(p.proxies, pr)
	p.byURL[pr.URL] = pr
}
