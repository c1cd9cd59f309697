package domain

import "fmt"

// Polarity states which direction of a metric is bad. Latency and usage
// metrics degrade as they grow; frame-rate style metrics degrade as they
// shrink. Classification always compares in the threshold's direction, so
// no metric needs its sign inverted before evaluation.
type Polarity string

const (
	HigherIsWorse Polarity = "higher_is_worse"
	LowerIsWorse  Polarity = "lower_is_worse"
)

// Threshold defines the warning and critical bands for one metric name.
// Exactly one threshold may exist per name; metrics without a registered
// threshold are never alerted on.
type Threshold struct {
	MetricName string   `json:"metric_name" yaml:"metric_name"`
	Warning    float64  `json:"warning" yaml:"warning"`
	Critical   float64  `json:"critical" yaml:"critical"`
	Unit       Unit     `json:"unit" yaml:"unit"`
	Polarity   Polarity `json:"polarity,omitempty" yaml:"polarity,omitempty"`
}

// Validate checks internal consistency of the threshold bands.
func (t *Threshold) Validate() error {
	if t.MetricName == "" {
		return fmt.Errorf("threshold metric name is required")
	}
	switch t.Polarity {
	case "", HigherIsWorse:
		if t.Critical < t.Warning {
			return fmt.Errorf("threshold %s: critical %.2f below warning %.2f", t.MetricName, t.Critical, t.Warning)
		}
	case LowerIsWorse:
		if t.Critical > t.Warning {
			return fmt.Errorf("threshold %s: critical %.2f above warning %.2f for lower-is-worse metric", t.MetricName, t.Critical, t.Warning)
		}
	default:
		return fmt.Errorf("threshold %s: unknown polarity %q", t.MetricName, t.Polarity)
	}
	return nil
}

// Classify returns the severity band the value falls into. SeverityInfo
// means the value is inside the acceptable range.
func (t *Threshold) Classify(value float64) Severity {
	if t.Polarity == LowerIsWorse {
		switch {
		case value <= t.Critical:
			return SeverityCritical
		case value <= t.Warning:
			return SeverityWarning
		default:
			return SeverityInfo
		}
	}
	switch {
	case value >= t.Critical:
		return SeverityCritical
	case value >= t.Warning:
		return SeverityWarning
	default:
		return SeverityInfo
	}
}
