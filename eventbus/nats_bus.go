// Package eventbus publishes per-stage discovery events over NATS core
// subjects so external observers can follow a run. Best effort only: bus
// unavailability never fails an orchestration.
package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// Event is one stage transition of one source within a run.
type Event struct {
	RunID     string    `json:"run_id"`
	SourceKey string    `json:"source_key"`
	Stage     string    `json:"stage"`
	Detail    string    `json:"detail,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func (e Event) valid() bool {
	return e.RunID != "" && e.Stage != ""
}

const DefaultSubject = "hackscout.events.discovery"

// Bus is a thin publisher over a NATS core subject.
type Bus struct {
	nc      *nats.Conn
	subject string
}

type Config struct {
	URL     string
	Subject string
}

func NewBus(cfg Config) (*Bus, error) {
	url := cfg.URL
	if url == "" {
		url = nats.DefaultURL
	}
	nc, err := nats.Connect(url,
		nats.Name("hackscout-eventbus"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, err
	}
	subject := cfg.Subject
	if subject == "" {
		subject = DefaultSubject
	}
	return &Bus{nc: nc, subject: subject}, nil
}

func (b *Bus) Publish(ctx context.Context, evt Event) error {
	if !evt.valid() {
		return fmt.Errorf("invalid event: missing run id or stage")
	}
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	return b.nc.Publish(b.subject, data)
}

func (b *Bus) Subscribe(ctx context.Context, handler func(Event)) (*nats.Subscription, error) {
	sub, err := b.nc.Subscribe(b.subject, func(msg *nats.Msg) {
		var evt Event
		if err := json.Unmarshal(msg.Data, &evt); err == nil {
			handler(evt)
		}
	})
	if err != nil {
		return nil, err
	}
	go func() {
		<-ctx.Done()
		_ = sub.Drain()
	}()
	return sub, nil
}

func (b *Bus) Close() {
	b.nc.Close()
}
