// Package notify publishes alerts and assignment events on NATS.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"ems/dispatch/internal/store"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// Subjects.
const (
	AlertSubjectPrefix = "dispatch.alerts."
	AssignmentSubject  = "dispatch.assignments"
)

// Conn is the subset of *nats.Conn the publisher needs.
type Conn interface {
	Publish(subject string, data []byte) error
}

// Config holds NATS connection settings.
type Config struct {
	URL            string
	Name           string
	ReconnectWait  time.Duration
	MaxReconnects  int
	ConnectTimeout time.Duration
}

// Connect dials NATS and logs connection state changes.
func Connect(cfg Config, log zerolog.Logger) (*nats.Conn, error) {
	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.Timeout(cfg.ConnectTimeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("nats disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("nats reconnected")
		}),
	}
	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return conn, nil
}

// AssignmentEvent is published after every assignment decision.
type AssignmentEvent struct {
	DispatchID   int64     `json:"dispatch_id"`
	AmbulanceID  int64     `json:"ambulance_id"`
	Phase        int       `json:"phase"`
	Confidence   float64   `json:"confidence"`
	UsedFallback bool      `json:"used_fallback"`
	DistanceKm   float64   `json:"distance_km"`
	AssignedAt   time.Time `json:"assigned_at"`
}

// Publisher sends JSON payloads to NATS subjects.
type Publisher struct {
	conn Conn
	log  zerolog.Logger
}

func NewPublisher(conn Conn, log zerolog.Logger) *Publisher {
	return &Publisher{conn: conn, log: log.With().Str("component", "nats_publisher").Logger()}
}

// HandleAlert publishes a new alert on dispatch.alerts.<type>.
func (p *Publisher) HandleAlert(_ context.Context, alert store.Alert) error {
	return p.publish(AlertSubjectPrefix+alert.Type, alert)
}

// PublishAssignment publishes a decision on dispatch.assignments.
func (p *Publisher) PublishAssignment(_ context.Context, ev AssignmentEvent) error {
	return p.publish(AssignmentSubject, ev)
}

func (p *Publisher) publish(subject string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", subject, err)
	}
	if err := p.conn.Publish(subject, payload); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	p.log.Debug().Str("subject", subject).Int("bytes", len(payload)).Msg("published")
	return nil
}
