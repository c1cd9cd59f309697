package domain

import (
	"time"

	"github.com/google/uuid"
)

// AlertType identifies what kind of problem an alert reports.
type AlertType string

const (
	AlertThresholdExceeded AlertType = "threshold_exceeded"
	AlertMemoryLeak        AlertType = "memory_leak"
	AlertSlowOperation     AlertType = "slow_operation"
	AlertNetworkIssue      AlertType = "network_issue"
)

// Alert is raised when a metric breaches a threshold or a detector flags
// a suspicious trend. The only mutation after creation is acknowledgement.
type Alert struct {
	ID           string    `json:"id"`
	Type         AlertType `json:"type"`
	Severity     Severity  `json:"severity"`
	Message      string    `json:"message"`
	Metric       Metric    `json:"metric"`
	Timestamp    time.Time `json:"timestamp"`
	Acknowledged bool      `json:"acknowledged"`
}

// NewAlert builds an alert for the given metric with a fresh ID.
func NewAlert(t AlertType, sev Severity, message string, metric Metric) Alert {
	return Alert{
		ID:        uuid.NewString(),
		Type:      t,
		Severity:  sev,
		Message:   message,
		Metric:    metric,
		Timestamp: time.Now(),
	}
}
