// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"go.astrophena.name/starhost/internal/logger"
	"go.astrophena.name/starhost/internal/testutil"

	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"
)

var testEntry = Entry{
	ID:        "0b5c6f7e-1111-4222-8333-944445555666",
	BotID:     "bot1",
	Update:    json.RawMessage(`{"update_id":1}`),
	Timestamp: time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
}

func TestLogSink(t *testing.T) {
	var buf bytes.Buffer
	s := &LogSink{Logger: slog.New(slog.NewJSONHandler(&buf, nil))}
	if err := s.Record(t.Context(), testEntry); err != nil {
		t.Fatal(err)
	}
	got := testutil.UnmarshalJSON[map[string]any](t, buf.Bytes())
	testutil.AssertEqual(t, got["msg"], "update received")
	testutil.AssertEqual(t, got["bot_id"], "bot1")
	testutil.AssertEqual(t, got["update"], `{"update_id":1}`)
}

func TestOpen(t *testing.T) {
	for _, dsn := range []string{"", "log"} {
		s, err := Open(t.Context(), dsn, logger.Discard())
		if err != nil {
			t.Fatal(err)
		}
		if _, ok := s.(*LogSink); !ok {
			t.Fatalf("Open(%q) = %T, want *LogSink", dsn, s)
		}
	}
	if _, err := Open(t.Context(), "kafka://localhost", logger.Discard()); !errors.Is(err, ErrUnknownSink) {
		t.Fatalf("want ErrUnknownSink, got %v", err)
	}
}

type fakeChannel struct {
	published []amqp091.Publishing
	keys      []string
	closed    int
	err       error
}

func (c *fakeChannel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error {
	if c.err != nil {
		return c.err
	}
	c.keys = append(c.keys, exchange+" "+key)
	c.published = append(c.published, msg)
	return nil
}

func (c *fakeChannel) Close() error {
	c.closed++
	return nil
}

func TestAMQPSink(t *testing.T) {
	ch := &fakeChannel{}
	s := &AMQPSink{
		exchange:   DefaultExchange,
		log:        logger.Discard(),
		newChannel: func() (channel, error) { return ch, nil },
	}

	if err := s.Record(t.Context(), testEntry); err != nil {
		t.Fatal(err)
	}
	noID := testEntry
	noID.ID = ""
	if err := s.Record(t.Context(), noID); err != nil {
		t.Fatal(err)
	}

	testutil.AssertEqual(t, ch.keys, []string{"starhost.audit update.bot1", "starhost.audit update.bot1"})
	testutil.AssertEqual(t, ch.closed, 2)

	msg := ch.published[0]
	testutil.AssertEqual(t, msg.ContentType, "application/json")
	testutil.AssertEqual(t, msg.DeliveryMode, amqp091.Persistent)
	testutil.AssertEqual(t, msg.MessageId, testEntry.ID)
	testutil.AssertEqual(t, msg.Timestamp, testEntry.Timestamp)
	got := testutil.UnmarshalJSON[Entry](t, msg.Body)
	testutil.AssertEqual(t, got.BotID, "bot1")
	testutil.AssertEqual(t, string(got.Update), `{"update_id":1}`)

	if _, err := uuid.Parse(ch.published[1].MessageId); err != nil {
		t.Fatalf("generated message ID is not a UUID: %v", err)
	}

	ch.err = errors.New("channel closed")
	if err := s.Record(t.Context(), testEntry); err == nil || !strings.Contains(err.Error(), "channel closed") {
		t.Fatalf("want publishing error, got %v", err)
	}
}

func TestAMQPBroker(t *testing.T) {
	url := os.Getenv("AMQP_URL")
	if url == "" {
		t.Skip("AMQP_URL is not set")
	}
	s, err := NewAMQPSink(url, DefaultExchange, logger.Discard())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	if err := s.Record(t.Context(), testEntry); err != nil {
		t.Fatal(err)
	}
}

func TestPostgresSink(t *testing.T) {
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		t.Skip("DATABASE_URL is not set")
	}
	s, err := NewPostgresSink(t.Context(), dbURL)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })

	botID := "audit-test-" + uuid.NewString()
	var ids []string
	for _, payload := range []string{`{"update_id":1}`, `{"update_id":2}`, "not json"} {
		e := testEntry
		e.ID = uuid.NewString()
		e.BotID = botID
		e.Update = json.RawMessage(payload)
		if err := s.Record(t.Context(), e); err != nil {
			t.Fatalf("recording %q: %v", payload, err)
		}
		ids = append(ids, e.ID)
	}
	n, err := s.count(t.Context(), botID)
	if err != nil {
		t.Fatal(err)
	}
	testutil.AssertEqual(t, n, 3)

	got, err := s.update(t.Context(), ids[2])
	if err != nil {
		t.Fatal(err)
	}
	testutil.AssertEqual(t, string(got), "not json")
}

func TestEntryMarshalJSON(t *testing.T) {
	cases := map[string]struct {
		update json.RawMessage
		want   string
	}{
		"json":     {update: json.RawMessage(`{"update_id":1}`), want: `{"update_id":1}`},
		"not json": {update: json.RawMessage("not json"), want: `"not json"`},
		"empty":    {want: `""`},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			e := testEntry
			e.Update = tc.update
			b, err := json.Marshal(e)
			if err != nil {
				t.Fatal(err)
			}
			got := testutil.UnmarshalJSON[map[string]json.RawMessage](t, b)
			testutil.AssertEqual(t, string(got["update"]), tc.want)
			testutil.AssertEqual(t, string(got["bot_id"]), `"bot1"`)
		})
	}
}

func TestAMQPSinkMalformedUpdate(t *testing.T) {
	ch := &fakeChannel{}
	s := &AMQPSink{
		exchange:   DefaultExchange,
		log:        logger.Discard(),
		newChannel: func() (channel, error) { return ch, nil },
	}
	e := testEntry
	e.Update = json.RawMessage("not json")
	if err := s.Record(t.Context(), e); err != nil {
		t.Fatal(err)
	}
	testutil.AssertEqual(t, len(ch.published), 1)
	got := testutil.UnmarshalJSON[Entry](t, ch.published[0].Body)
	testutil.AssertEqual(t, string(got.Update), `"not json"`)
}
