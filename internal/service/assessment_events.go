package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/interngate-api/internal/observability"
)

// Assessment event types.
const (
	EventAttemptRecorded    = "attempt.recorded"
	EventCertificatePending = "certificate.pending"
	EventCertificateIssued  = "certificate.issued"
)

// AssessmentEvent is broadcast to other nodes after an attempt or certificate changes.
type AssessmentEvent struct {
	Source       string    `json:"source"`
	Type         string    `json:"type"`
	AttemptID    string    `json:"attempt_id"`
	UserID       string    `json:"user_id"`
	AssessmentID string    `json:"assessment_id"`
	Passed       bool      `json:"passed"`
	Score        int       `json:"score"`
	SentAt       time.Time `json:"sent_at"`
}

// AssessmentEventHandler consumes a decoded event.
type AssessmentEventHandler func(ctx context.Context, event AssessmentEvent)

// AssessmentEventBus fans assessment events out over Redis pub/sub and NATS.
type AssessmentEventBus interface {
	Publish(ctx context.Context, event AssessmentEvent) error
	Subscribe(ctx context.Context, handler AssessmentEventHandler) error
}

type assessmentEventBus struct {
	redis        *redis.Client
	redisChannel string
	nats         *nats.Conn
	natsSubject  string
	sinks        []eventSink
	logger       zerolog.Logger
	nodeID       string
}

type eventSink struct {
	broker  string
	publish func(ctx context.Context, payload []byte) error
}

// NewAssessmentEventBus builds the event bus. Either broker may be nil; with neither
// configured Publish is a no-op.
func NewAssessmentEventBus(redisClient *redis.Client, channelBase string, natsConn *nats.Conn, logger zerolog.Logger) AssessmentEventBus {
	channel := ""
	subject := ""
	if channelBase != "" {
		channel = channelBase + ":assessments"
		subject = strings.ReplaceAll(channelBase, ":", ".") + ".assessments"
	}

	bus := &assessmentEventBus{
		redis:        redisClient,
		redisChannel: channel,
		nats:         natsConn,
		natsSubject:  subject,
		logger:       logger.With().Str("component", "assessment_events").Logger(),
		nodeID:       uuid.NewString(),
	}
	if bus.redisEnabled() {
		bus.sinks = append(bus.sinks, eventSink{broker: "redis", publish: func(ctx context.Context, payload []byte) error {
			return bus.redis.Publish(ctx, bus.redisChannel, payload).Err()
		}})
	}
	if bus.natsEnabled() {
		bus.sinks = append(bus.sinks, eventSink{broker: "nats", publish: func(_ context.Context, payload []byte) error {
			return bus.nats.Publish(bus.natsSubject, payload)
		}})
	}
	return bus
}

func (b *assessmentEventBus) redisEnabled() bool {
	return b.redis != nil && b.redisChannel != ""
}

func (b *assessmentEventBus) natsEnabled() bool {
	return b.nats != nil && b.natsSubject != ""
}

// Publish sends the event to every configured broker. A failing broker does not
// stop delivery to the others; their errors are joined.
func (b *assessmentEventBus) Publish(ctx context.Context, event AssessmentEvent) error {
	event.Source = b.nodeID
	if event.SentAt.IsZero() {
		event.SentAt = time.Now().UTC()
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	var errs []error
	delivered := 0
	for _, sink := range b.sinks {
		if err := sink.publish(ctx, payload); err != nil {
			b.logger.Warn().Err(err).Str("broker", sink.broker).Str("type", event.Type).Msg("assessment event not published")
			errs = append(errs, fmt.Errorf("publish %s: %w", sink.broker, err))
			continue
		}
		delivered++
	}

	if delivered > 0 {
		observability.EventsPublished().WithLabelValues(event.Type).Inc()
	}
	return errors.Join(errs...)
}

// Subscribe consumes from a single broker so each event reaches the handler once:
// the NATS queue group when NATS is configured, Redis otherwise. It returns once
// the subscription is confirmed; delivery continues until ctx is cancelled.
func (b *assessmentEventBus) Subscribe(ctx context.Context, handler AssessmentEventHandler) error {
	if b.natsEnabled() {
		sub, err := b.nats.QueueSubscribe(b.natsSubject, "interngate-assessments", func(msg *nats.Msg) {
			b.dispatch(ctx, msg.Data, handler)
		})
		if err != nil {
			return fmt.Errorf("subscribe nats: %w", err)
		}

		go func() {
			<-ctx.Done()
			if err := sub.Drain(); err != nil {
				b.logger.Warn().Err(err).Msg("failed to drain assessment nats subscription")
			}
		}()
		return nil
	}

	if b.redisEnabled() {
		pubsub := b.redis.Subscribe(ctx, b.redisChannel)
		if _, err := pubsub.Receive(ctx); err != nil {
			_ = pubsub.Close()
			return fmt.Errorf("subscribe redis: %w", err)
		}
		go b.consumeRedis(ctx, pubsub, handler)
	}
	return nil
}

func (b *assessmentEventBus) consumeRedis(ctx context.Context, pubsub *redis.PubSub, handler AssessmentEventHandler) {
	defer func() { _ = pubsub.Close() }()

	messages := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				b.logger.Warn().Msg("assessment redis subscription closed")
				return
			}
			b.dispatch(ctx, []byte(msg.Payload), handler)
		}
	}
}

func (b *assessmentEventBus) dispatch(ctx context.Context, payload []byte, handler AssessmentEventHandler) {
	var event AssessmentEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		b.logger.Warn().Err(err).Msg("invalid assessment event payload")
		return
	}
	if event.Type == "" {
		return
	}
	handler(ctx, event)
}
