// internal/events/publisher.go
//
// Domain events leaving the service.
//   - puzzle.completed: a game result was saved for the first time.
//   - invite.redeemed: an invite was consumed and a member joined a family.
//
// Kafka is optional. Without brokers the service runs with LogPublisher,
// which only writes the event to the log.

package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/robalobadob/family-connections/internal/game"
	"github.com/robalobadob/family-connections/internal/invite"
)

const (
	TypePuzzleCompleted = "puzzle.completed"
	TypeInviteRedeemed  = "invite.redeemed"
)

// Event is the envelope written to the topic.
type Event struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	OccurredAt time.Time       `json:"occurredAt"`
	Data       json.RawMessage `json:"data"`
}

// InviteRedeemed is the payload of invite.redeemed. The token is omitted.
type InviteRedeemed struct {
	FamilyID   string    `json:"familyId"`
	FamilyName string    `json:"familyName"`
	UserID     string    `json:"userId"`
	RedeemedAt time.Time `json:"redeemedAt"`
}

func newEvent(typ string, at time.Time, payload any) (*Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding %s: %w", typ, err)
	}
	return &Event{ID: uuid.NewString(), Type: typ, OccurredAt: at.UTC(), Data: data}, nil
}

func redeemedPayload(inv *invite.Invite) InviteRedeemed {
	p := InviteRedeemed{FamilyID: inv.FamilyID, FamilyName: inv.FamilyName, UserID: inv.UsedBy}
	if inv.UsedAt != nil {
		p.RedeemedAt = *inv.UsedAt
	}
	return p
}

// KafkaPublisher writes events to a Kafka topic through a sync producer.
type KafkaPublisher struct {
	producer sarama.SyncProducer
	topic    string
	now      func() time.Time
}

// NewKafkaProducer builds a sync producer that waits for the leader ack.
func NewKafkaProducer(brokers []string, clientID string) (sarama.SyncProducer, error) {
	cfg := sarama.NewConfig()
	cfg.ClientID = clientID
	cfg.Producer.RequiredAcks = sarama.WaitForLocal
	cfg.Producer.Retry.Max = 3
	cfg.Producer.Return.Successes = true
	cfg.Producer.Return.Errors = true
	p, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating kafka producer: %w", err)
	}
	return p, nil
}

// NewKafkaPublisher wraps producer; events go to topic.
func NewKafkaPublisher(producer sarama.SyncProducer, topic string) *KafkaPublisher {
	return &KafkaPublisher{producer: producer, topic: topic, now: time.Now}
}

// Close closes the producer.
func (p *KafkaPublisher) Close() error {
	return p.producer.Close()
}

// PuzzleCompleted publishes a saved result keyed by puzzle id, so a
// puzzle's results stay ordered within one partition.
func (p *KafkaPublisher) PuzzleCompleted(ctx context.Context, r *game.Result) error {
	ev, err := newEvent(TypePuzzleCompleted, p.now(), r)
	if err != nil {
		return err
	}
	return p.send(ctx, r.PuzzleID, ev)
}

// InviteRedeemed publishes a redemption keyed by family id.
func (p *KafkaPublisher) InviteRedeemed(ctx context.Context, inv *invite.Invite) error {
	ev, err := newEvent(TypeInviteRedeemed, p.now(), redeemedPayload(inv))
	if err != nil {
		return err
	}
	return p.send(ctx, inv.FamilyID, ev)
}

func (p *KafkaPublisher) send(ctx context.Context, key string, ev *Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	value, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}
	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(value),
		Headers: []sarama.RecordHeader{
			{Key: []byte("type"), Value: []byte(ev.Type)},
		},
	}
	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("sending %s: %w", ev.Type, err)
	}
	log.Debug().
		Str("type", ev.Type).
		Str("key", key).
		Int32("partition", partition).
		Int64("offset", offset).
		Msg("event published")
	return nil
}

// LogPublisher records events in the log only.
type LogPublisher struct{}

func (LogPublisher) PuzzleCompleted(_ context.Context, r *game.Result) error {
	log.Info().
		Str("type", TypePuzzleCompleted).
		Str("puzzleId", r.PuzzleID).
		Str("resultId", r.ID).
		Msg("event")
	return nil
}

func (LogPublisher) InviteRedeemed(_ context.Context, inv *invite.Invite) error {
	log.Info().
		Str("type", TypeInviteRedeemed).
		Str("familyId", inv.FamilyID).
		Str("userId", inv.UsedBy).
		Msg("event")
	return nil
}
