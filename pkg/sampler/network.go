package sampler

import (
	"context"
	"net/http"
	"time"

	"github.com/chordialapp/metronome/pkg/domain"
)

// Doer is the slice of http.Client the probe needs.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// NetworkProbe measures round-trip time to a backend endpoint with a
// HEAD request. With no probe URL configured the collector is silently
// inactive.
type NetworkProbe struct {
	BaseCollector
	client  Doer
	url     string
	timeout time.Duration
}

// NewNetworkProbe creates the RTT probe.
func NewNetworkProbe(client Doer, url string, timeout time.Duration) *NetworkProbe {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &NetworkProbe{
		BaseCollector: NewBaseCollector("network"),
		client:        client,
		url:           url,
		timeout:       timeout,
	}
}

// Available reports whether a probe target is configured.
func (p *NetworkProbe) Available() bool {
	return p.url != "" && p.client != nil
}

// Collect emits network_rtt in milliseconds. A failed probe emits
// nothing; the error only lands in the collector stats.
func (p *NetworkProbe) Collect(ctx context.Context) []domain.Metric {
	reqCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodHead, p.url, nil)
	if err != nil {
		p.RecordError(err)
		return nil
	}

	start := time.Now()
	resp, err := p.client.Do(req)
	if err != nil {
		p.RecordError(err)
		return nil
	}
	resp.Body.Close()
	rtt := time.Since(start)

	p.RecordEmit(1)
	return []domain.Metric{{
		Name: domain.MetricNetworkRTT, Value: float64(rtt.Microseconds()) / 1000,
		Unit: domain.UnitMilliseconds, Timestamp: time.Now(),
		Category: domain.CategoryNetwork, Severity: domain.SeverityInfo,
		Metadata: map[string]interface{}{"status": resp.StatusCode},
	}}
}
