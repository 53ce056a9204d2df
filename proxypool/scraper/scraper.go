package scraper

import "pixelfetch/proxypool/model"

// Scraper fetches proxy candidates from one free-proxy source.
type Scraper interface {
	// Scrape fetches and parses the source. Implementations only
	// scrape; validation is a separate concern.
	Scrape() ([]*model.Proxy, error)

	// Name returns the source name for logging.
	Name() string
}
