package export

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/chordialapp/metronome/pkg/domain"
)

// Publisher pushes alerts and optimization results onto NATS subjects.
// Publishing is best-effort: a failed publish is logged and dropped, the
// monitoring loop never blocks on the broker.
type Publisher struct {
	logger  *zap.Logger
	nc      *nats.Conn
	subject string
}

// NewPublisher connects to the broker. The connection reconnects forever
// on its own; messages published while disconnected are buffered by the
// client up to its default pending limit.
func NewPublisher(logger *zap.Logger, url, subjectPrefix string) (*Publisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("metronome"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to nats at %s: %w", url, err)
	}

	return &Publisher{logger: logger, nc: nc, subject: subjectPrefix}, nil
}

// PublishAlert sends one alert to <prefix>.alerts.
func (p *Publisher) PublishAlert(a *domain.Alert) {
	p.publish(p.subject+".alerts", a)
}

// PublishResult sends one rule execution result to <prefix>.results.
func (p *Publisher) PublishResult(r domain.Result) {
	p.publish(p.subject+".results", r)
}

func (p *Publisher) publish(subject string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		p.logger.Error("marshaling publish payload", zap.String("subject", subject), zap.Error(err))
		return
	}
	if err := p.nc.Publish(subject, data); err != nil {
		p.logger.Debug("publish dropped", zap.String("subject", subject), zap.Error(err))
	}
}

// Close flushes pending messages and closes the connection.
func (p *Publisher) Close() {
	if err := p.nc.Drain(); err != nil {
		p.logger.Warn("draining nats connection", zap.Error(err))
	}
}
