package httpx

import (
	"bufio"
	"bytes"
	"net/http"
	"net/http/httputil"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/chordialapp/metronome/pkg/cache"
)

// Interceptor wraps a RoundTripper with additional behavior. The first
// interceptor passed to Chain is the outermost one, so it sees the
// request first and the response last.
type Interceptor func(http.RoundTripper) http.RoundTripper

// Chain composes interceptors around a base transport.
func Chain(base http.RoundTripper, interceptors ...Interceptor) http.RoundTripper {
	rt := base
	for i := len(interceptors) - 1; i >= 0; i-- {
		rt = interceptors[i](rt)
	}
	return rt
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

// TimingFunc receives the outcome of every round trip. Status is zero
// when the request failed before a response arrived.
type TimingFunc func(url string, status int, elapsed time.Duration)

// Timing reports the duration of each round trip to fn.
func Timing(fn TimingFunc) Interceptor {
	return func(next http.RoundTripper) http.RoundTripper {
		return roundTripFunc(func(req *http.Request) (*http.Response, error) {
			start := time.Now()
			resp, err := next.RoundTrip(req)
			status := 0
			if resp != nil {
				status = resp.StatusCode
			}
			fn(req.URL.String(), status, time.Since(start))
			return resp, err
		})
	}
}

// Logging emits a debug line per round trip.
func Logging(logger *zap.Logger) Interceptor {
	return func(next http.RoundTripper) http.RoundTripper {
		return roundTripFunc(func(req *http.Request) (*http.Response, error) {
			start := time.Now()
			resp, err := next.RoundTrip(req)
			fields := []zap.Field{
				zap.String("method", req.Method),
				zap.String("url", req.URL.String()),
				zap.Duration("elapsed", time.Since(start)),
			}
			if err != nil {
				logger.Debug("request failed", append(fields, zap.Error(err))...)
			} else {
				logger.Debug("request done", append(fields, zap.Int("status", resp.StatusCode))...)
			}
			return resp, err
		})
	}
}

// cachingTransport serves GET responses out of the api cache namespace
// and collapses concurrent fetches of the same URL into one upstream
// round trip. Responses are stored in wire format so a cache hit
// rebuilds a complete http.Response, status line and headers included.
type cachingTransport struct {
	next    http.RoundTripper
	store   *cache.Store
	ttl     time.Duration
	enabled *atomic.Bool
	group   singleflight.Group

	hits   atomic.Int64
	misses atomic.Int64
	shared atomic.Int64
}

func (t *cachingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Method != http.MethodGet || !t.enabled.Load() {
		return t.next.RoundTrip(req)
	}

	key := req.URL.String()
	if raw, ok := t.store.Get(cache.NamespaceAPI, key); ok {
		if payload, ok := raw.([]byte); ok {
			if resp, err := readResponse(payload, req); err == nil {
				t.hits.Add(1)
				resp.Header.Set("X-Cache", "HIT")
				return resp, nil
			}
		}
	}
	t.misses.Add(1)

	raw, err, sharedCall := t.group.Do(key, func() (interface{}, error) {
		resp, err := t.next.RoundTrip(req)
		if err != nil {
			return nil, err
		}
		payload, err := httputil.DumpResponse(resp, true)
		if err != nil {
			return nil, err
		}
		resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			t.store.Set(cache.NamespaceAPI, key, payload, t.ttl)
		}
		return payload, nil
	})
	if err != nil {
		return nil, err
	}
	if sharedCall {
		t.shared.Add(1)
	}
	return readResponse(raw.([]byte), req)
}

func readResponse(payload []byte, req *http.Request) (*http.Response, error) {
	return http.ReadResponse(bufio.NewReader(bytes.NewReader(payload)), req)
}
