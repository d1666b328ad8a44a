// Package httputil provides shared HTTP client construction for provider adapters.
package httputil

import (
	"net/http"
	"time"
)

// NewPooledClient creates an http.Client with connection pooling and tuned transport,
// sized for a worker process making many concurrent adapter calls.
func NewPooledClient(poolSize int, timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			MaxIdleConns:          poolSize,
			MaxIdleConnsPerHost:   poolSize,
			IdleConnTimeout:       90 * time.Second,
			ResponseHeaderTimeout: 30 * time.Second,
			ForceAttemptHTTP2:     true,
		},
	}
}
