package validator

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	xproxy "golang.org/x/net/proxy"

	"pixelfetch/internal/shared/logger"
	"pixelfetch/proxypool/model"
)

const defaultValidationTarget = "pixeldrain.com:443"

// Validator probes proxies for basic reachability. Probing is
// best-effort and bounded: a slow free proxy must not stall pool
// initialization.
type Validator struct {
	timeout     time.Duration
	concurrency int
}

func New(timeout time.Duration, concurrency int) *Validator {
	if concurrency <= 0 {
		concurrency = 5
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Validator{
		timeout:     timeout,
		concurrency: concurrency,
	}
}

// Validate probes every proxy in place and returns the same slice.
// Reachable entries become healthy, unreachable ones failed.
func (v *Validator) Validate(proxies []*model.Proxy) []*model.Proxy {
	l := logger.WithComponent("ProxyPool/Validator")
	if len(proxies) == 0 {
		return proxies
	}

	l.Info().Int("count", len(proxies)).Int("concurrency", v.concurrency).Msg("Starting validation batch...")

	var wg sync.WaitGroup
	semaphore := make(chan struct{}, v.concurrency)

	for _, p := range proxies {
		wg.Add(1)
		semaphore <- struct{}{}

		go func(proxy *model.Proxy) {
			defer wg.Done()
			defer func() { <-semaphore }()

			v.validateSingle(proxy)
		}(p)
	}

	wg.Wait()

	l.Info().Msg("Validation batch finished.")
	return proxies
}

func (v *Validator) validateSingle(p *model.Proxy) {
	u, err := url.Parse(p.URL)
	if err != nil {
		p.Status = model.StatusFailed
		p.FailureCount++
		p.LastChecked = time.Now()
		return
	}

	switch u.Scheme {
	case "socks5", "socks5h":
		err = v.checkSocks5(u)
	default:
		err = v.checkHTTPConnect(u)
	}

	p.LastChecked = time.Now()
	if err != nil {
		p.Status = model.StatusFailed
		p.FailureCount++
	} else {
		p.Status = model.StatusHealthy
		p.FailureCount = 0
	}
}

// checkHTTPConnect validates a proxy by attempting an HTTP CONNECT
// request to the validation target.
func (v *Validator) checkHTTPConnect(proxyURL *url.URL) error {
	dialer := &net.Dialer{
		Timeout:   v.timeout,
		KeepAlive: 30 * time.Second,
	}
	transport := &http.Transport{
		Proxy: http.ProxyURL(proxyURL),
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			return dialer.DialContext(ctx, network, addr)
		},
		TLSClientConfig:       &tls.Config{InsecureSkipVerify: true},
		IdleConnTimeout:       v.timeout,
		TLSHandshakeTimeout:   v.timeout / 2,
		ExpectContinueTimeout: 1 * time.Second,
	}

	client := &http.Client{
		Transport: transport,
		Timeout:   v.timeout,
	}

	req, err := http.NewRequest("HEAD", "https://"+defaultValidationTarget, nil)
	if err != nil {
		return err
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 400 {
		return fmt.Errorf("received non-successful status code: %d", resp.StatusCode)
	}

	return nil
}

// checkSocks5 validates a SOCKS5 proxy by dialing the validation
// target through it.
func (v *Validator) checkSocks5(proxyURL *url.URL) error {
	var auth *xproxy.Auth
	if proxyURL.User != nil {
		password, _ := proxyURL.User.Password()
		auth = &xproxy.Auth{
			User:     proxyURL.User.Username(),
			Password: password,
		}
	}

	dialer, err := xproxy.SOCKS5("tcp", proxyURL.Host, auth, &net.Dialer{Timeout: v.timeout})
	if err != nil {
		return err
	}

	conn, err := dialer.Dial("tcp", defaultValidationTarget)
	if err != nil {
		return err
	}
	return conn.Close()
}
