// Package relay publishes finalized heart-rate records to NATS.
package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/verte-zerg/pulse/internal/model"
)

// DefaultSubject is where records are published when none is configured.
const DefaultSubject = "heartrate.records"

// Connect dials NATS with reconnects that never give up.
func Connect(url string, log logrus.FieldLogger) (*nats.Conn, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return nats.Connect(
		url,
		nats.Name("pulse"),
		nats.Timeout(3*time.Second),
		nats.ReconnectWait(500*time.Millisecond),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.WithError(err).Warn("nats disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.WithField("url", nc.ConnectedUrl()).Info("nats reconnected")
		}),
	)
}

// Payload is the wire form of a record.
type Payload struct {
	ID         string `json:"id" msgpack:"id"`
	BPM        int    `json:"bpm" msgpack:"bpm"`
	RecordedAt string `json:"recorded_at" msgpack:"recorded_at"`
	Mode       string `json:"mode" msgpack:"mode"`
}

// Codec selects the payload encoding.
type Codec string

const (
	CodecJSON    Codec = "json"
	CodecMsgpack Codec = "msgpack"
)

// ParseCodec validates a codec name. Empty means JSON.
func ParseCodec(s string) (Codec, error) {
	switch c := Codec(strings.ToLower(strings.TrimSpace(s))); c {
	case "", CodecJSON:
		return CodecJSON, nil
	case CodecMsgpack:
		return c, nil
	default:
		return "", fmt.Errorf("unknown codec %q (use json or msgpack)", s)
	}
}

func toPayload(rec model.HeartRateRecord) Payload {
	return Payload{
		ID:         rec.ID,
		BPM:        rec.BPM,
		RecordedAt: rec.RecordedAt.UTC().Format(time.RFC3339Nano),
		Mode:       string(rec.Mode),
	}
}

func fromPayload(p Payload) (model.HeartRateRecord, error) {
	at, err := time.Parse(time.RFC3339Nano, p.RecordedAt)
	if err != nil {
		return model.HeartRateRecord{}, fmt.Errorf("failed to parse recorded_at: %w", err)
	}
	return model.HeartRateRecord{ID: p.ID, BPM: p.BPM, RecordedAt: at, Mode: model.Mode(p.Mode)}, nil
}

// Encode renders rec with an RFC 3339 timestamp in UTC.
func (c Codec) Encode(rec model.HeartRateRecord) ([]byte, error) {
	if c == CodecMsgpack {
		return msgpack.Marshal(toPayload(rec))
	}
	return json.Marshal(toPayload(rec))
}

// Decode parses a payload produced by Encode.
func (c Codec) Decode(b []byte) (model.HeartRateRecord, error) {
	var p Payload
	var err error
	if c == CodecMsgpack {
		err = msgpack.Unmarshal(b, &p)
	} else {
		err = json.Unmarshal(b, &p)
	}
	if err != nil {
		return model.HeartRateRecord{}, fmt.Errorf("failed to decode record: %w", err)
	}
	return fromPayload(p)
}

// Encode renders a record as JSON.
func Encode(rec model.HeartRateRecord) ([]byte, error) {
	return CodecJSON.Encode(rec)
}

// Decode parses a JSON payload produced by Encode.
func Decode(b []byte) (model.HeartRateRecord, error) {
	return CodecJSON.Decode(b)
}

// Conn is the subset of *nats.Conn the publisher needs.
type Conn interface {
	Publish(subject string, data []byte) error
	FlushWithContext(ctx context.Context) error
}

// Publisher sends records to a subject. It implements session.Sink.
type Publisher struct {
	conn    Conn
	subject string
	codec   Codec
	log     logrus.FieldLogger
}

// NewPublisher returns a publisher on subject, defaulting to DefaultSubject.
func NewPublisher(conn Conn, subject string, log logrus.FieldLogger) *Publisher {
	if subject == "" {
		subject = DefaultSubject
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Publisher{conn: conn, subject: subject, codec: CodecJSON, log: log}
}

// WithCodec switches the payload encoding.
func (p *Publisher) WithCodec(c Codec) *Publisher {
	p.codec = c
	return p
}

// Save publishes rec and waits for the server to acknowledge the flush.
func (p *Publisher) Save(ctx context.Context, rec model.HeartRateRecord) error {
	data, err := p.codec.Encode(rec)
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}
	if err := p.conn.Publish(p.subject, data); err != nil {
		return fmt.Errorf("failed to publish record: %w", err)
	}
	if err := p.conn.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("failed to flush record: %w", err)
	}
	p.log.WithFields(logrus.Fields{"subject": p.subject, "id": rec.ID}).Debug("record published")
	return nil
}
