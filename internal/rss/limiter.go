package rss

import (
	"context"
	"net/url"
	"sync"
	"time"
)

const (
	// MaxConcurrencyPerHost limits parallel requests to any single host.
	MaxConcurrencyPerHost = 2
	// DelayBetweenHostRequests is the minimum spacing between requests to the same host.
	DelayBetweenHostRequests = 500 * time.Millisecond
)

// hostLimiter caps concurrency and request rate per feed host.
type hostLimiter struct {
	mu          sync.Mutex
	perHost     int
	delay       time.Duration
	semaphores  map[string]chan struct{}
	lastRequest map[string]time.Time
}

func newHostLimiter(perHost int, delay time.Duration) *hostLimiter {
	if perHost <= 0 {
		perHost = MaxConcurrencyPerHost
	}
	return &hostLimiter{
		perHost:     perHost,
		delay:       delay,
		semaphores:  make(map[string]chan struct{}),
		lastRequest: make(map[string]time.Time),
	}
}

// acquire takes a slot for host, blocking until one is free and the
// minimum spacing since the previous request has elapsed.
func (l *hostLimiter) acquire(ctx context.Context, host string) error {
	l.mu.Lock()
	sem, ok := l.semaphores[host]
	if !ok {
		sem = make(chan struct{}, l.perHost)
		l.semaphores[host] = sem
	}
	l.mu.Unlock()

	select {
	case sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}

	l.mu.Lock()
	last := l.lastRequest[host]
	l.mu.Unlock()

	if last.IsZero() {
		return nil
	}
	if wait := l.delay - time.Since(last); wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			<-sem
			return ctx.Err()
		}
	}
	return nil
}

// release frees the slot for host and records the request time.
func (l *hostLimiter) release(host string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.lastRequest[host] = time.Now()
	if sem, ok := l.semaphores[host]; ok {
		<-sem
	}
}

func hostOf(feedURL string) string {
	u, err := url.Parse(feedURL)
	if err != nil || u.Host == "" {
		return feedURL
	}
	return u.Host
}
