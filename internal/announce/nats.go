package announce

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"alertengine/internal/config"
	"alertengine/internal/domain"

	"github.com/nats-io/nats.go"
)

// NATSAnnouncer publishes transitions as JSON into a JetStream stream.
// The transition ID is used as Nats-Msg-Id so republishing is deduplicated by the server.
type NATSAnnouncer struct {
	nc      *nats.Conn
	js      nats.JetStreamContext
	subject string
}

// NewNATSAnnouncer connects and ensures the transitions stream exists.
// Params: NATS announce config.
// Returns: announcer or setup error.
func NewNATSAnnouncer(cfg config.NATSAnnounce) (*NATSAnnouncer, error) {
	nc, err := nats.Connect(strings.Join(cfg.URL, ","), nats.Name("alert-engine"))
	if err != nil {
		return nil, fmt.Errorf("connect announce nats: %w", err)
	}
	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream init for announce: %w", err)
	}
	if err := ensureStream(js, cfg.Stream, cfg.Subject, time.Duration(cfg.MaxAgeSec)*time.Second); err != nil {
		nc.Close()
		return nil, err
	}
	return &NATSAnnouncer{nc: nc, js: js, subject: cfg.Subject}, nil
}

// Name returns the sink label used in logs and metrics.
// Params: none.
// Returns: "nats".
func (a *NATSAnnouncer) Name() string { return "nats" }

// Announce publishes one transition and waits for the stream ack.
// Params: context and transition.
// Returns: marshal or publish error.
func (a *NATSAnnouncer) Announce(ctx context.Context, transition domain.Transition) error {
	body, err := json.Marshal(transition)
	if err != nil {
		return fmt.Errorf("marshal transition: %w", err)
	}
	msg := nats.NewMsg(a.subject)
	msg.Data = body
	if transition.ID != "" {
		msg.Header.Set(nats.MsgIdHdr, transition.ID)
	}
	if _, err := a.js.PublishMsg(msg, nats.Context(ctx)); err != nil {
		return fmt.Errorf("publish transition: %w", err)
	}
	return nil
}

// Close closes the NATS connection.
// Params: none.
// Returns: always nil; nats.Conn.Close reports no error.
func (a *NATSAnnouncer) Close() error {
	if a == nil || a.nc == nil {
		return nil
	}
	a.nc.Close()
	return nil
}

// ensureStream creates the stream when it does not exist yet.
// Params: JetStream context, stream name, subject, and max message age.
// Returns: lookup or create error.
func ensureStream(js nats.JetStreamContext, streamName, subject string, maxAge time.Duration) error {
	_, err := js.StreamInfo(streamName)
	if err == nil {
		return nil
	}
	if !errors.Is(err, nats.ErrStreamNotFound) {
		return fmt.Errorf("stream info %q: %w", streamName, err)
	}
	_, err = js.AddStream(&nats.StreamConfig{
		Name:      streamName,
		Subjects:  []string{subject},
		Retention: nats.LimitsPolicy,
		Storage:   nats.FileStorage,
		MaxAge:    maxAge,
	})
	if err != nil {
		return fmt.Errorf("create stream %q: %w", streamName, err)
	}
	return nil
}
