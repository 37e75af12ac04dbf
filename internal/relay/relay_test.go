package relay

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/verte-zerg/pulse/internal/model"
)

type fakeConn struct {
	subject  string
	data     []byte
	flushed  bool
	pubErr   error
	flushErr error
}

func (c *fakeConn) Publish(subject string, data []byte) error {
	if c.pubErr != nil {
		return c.pubErr
	}
	c.subject = subject
	c.data = data
	return nil
}

func (c *fakeConn) FlushWithContext(context.Context) error {
	c.flushed = true
	return c.flushErr
}

func quiet() logrus.FieldLogger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

func TestEncodeFields(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	rec := model.HeartRateRecord{
		ID:         "0b6f3c1e-7a52-4a8e-9a67-2f4c0d1b9e11",
		BPM:        72,
		RecordedAt: time.Date(2025, 9, 3, 12, 0, 0, 500_000_000, loc),
		Mode:       model.ModeCamera,
	}
	data, err := Encode(rec)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if fields["recorded_at"] != "2025-09-03T10:00:00.5Z" {
		t.Fatalf("unexpected timestamp: %v", fields["recorded_at"])
	}
	if fields["bpm"] != float64(72) || fields["mode"] != "camera" || fields["id"] != rec.ID {
		t.Fatalf("unexpected payload: %s", data)
	}

	back, err := Decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !back.RecordedAt.Equal(rec.RecordedAt) || back.BPM != 72 {
		t.Fatalf("unexpected decoded record: %+v", back)
	}
}

func TestDecodeRejectsBadTimestamp(t *testing.T) {
	if _, err := Decode([]byte(`{"id":"x","bpm":70,"recorded_at":"yesterday","mode":"tap"}`)); err == nil {
		t.Fatalf("expected an error")
	}
}

func TestPublisherSave(t *testing.T) {
	conn := &fakeConn{}
	pub := NewPublisher(conn, "", quiet())
	rec := model.HeartRateRecord{ID: "x", BPM: 64, RecordedAt: time.Now(), Mode: model.ModeTap}
	if err := pub.Save(context.Background(), rec); err != nil {
		t.Fatalf("save: %v", err)
	}
	if conn.subject != DefaultSubject || !conn.flushed {
		t.Fatalf("expected publish on %s with flush, got %+v", DefaultSubject, conn)
	}
	got, err := Decode(conn.data)
	if err != nil || got.ID != "x" {
		t.Fatalf("unexpected published record: %+v (%v)", got, err)
	}
}

func TestPublisherSaveErrors(t *testing.T) {
	boom := errors.New("boom")
	rec := model.HeartRateRecord{ID: "x", BPM: 64, RecordedAt: time.Now(), Mode: model.ModeTap}

	pub := NewPublisher(&fakeConn{pubErr: boom}, "custom", quiet())
	if err := pub.Save(context.Background(), rec); !errors.Is(err, boom) {
		t.Fatalf("expected publish error, got %v", err)
	}
	pub = NewPublisher(&fakeConn{flushErr: boom}, "custom", quiet())
	if err := pub.Save(context.Background(), rec); !errors.Is(err, boom) {
		t.Fatalf("expected flush error, got %v", err)
	}
}

func TestPublisherMsgpack(t *testing.T) {
	conn := &fakeConn{}
	pub := NewPublisher(conn, "", quiet()).WithCodec(CodecMsgpack)
	at := time.Date(2025, 9, 3, 10, 0, 0, 500, time.UTC)
	rec := model.HeartRateRecord{ID: "m", BPM: 58, RecordedAt: at, Mode: model.ModeStrap}
	if err := pub.Save(context.Background(), rec); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := Decode(conn.data); err == nil {
		t.Fatalf("expected msgpack payload not to parse as JSON")
	}
	got, err := CodecMsgpack.Decode(conn.data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.ID != "m" || got.BPM != 58 || got.Mode != model.ModeStrap || !got.RecordedAt.Equal(at) {
		t.Fatalf("unexpected record %+v", got)
	}
}

func TestParseCodec(t *testing.T) {
	for in, want := range map[string]Codec{"": CodecJSON, "JSON": CodecJSON, " msgpack ": CodecMsgpack} {
		got, err := ParseCodec(in)
		if err != nil || got != want {
			t.Fatalf("ParseCodec(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseCodec("xml"); err == nil {
		t.Fatalf("expected unknown codec error")
	}
}
