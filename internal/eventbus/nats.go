package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	logx "postbot/pkg/logx"
)

const DefaultSubjectPrefix = "postbot"

type msgPublisher interface {
	PublishMsg(m *nats.Msg) error
}

// NATSBridge forwards bus events to NATS subjects "<prefix>.<event type>".
type NATSBridge struct {
	pub    msgPublisher
	nc     *nats.Conn
	prefix string
	log    logx.Logger
}

// DialNATS connects to url and returns a bridge that owns the connection.
func DialNATS(url, prefix string, log logx.Logger) (*NATSBridge, error) {
	nc, err := nats.Connect(url,
		nats.Name("postbot"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("nats disconnected", logx.Err(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info("nats reconnected", logx.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	b := newNATSBridge(nc, prefix, log)
	b.nc = nc
	return b, nil
}

func newNATSBridge(pub msgPublisher, prefix string, log logx.Logger) *NATSBridge {
	prefix = strings.Trim(strings.TrimSpace(prefix), ".")
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &NATSBridge{pub: pub, prefix: prefix, log: log.With(logx.String("comp", "nats_bridge"))}
}

// Subject returns the NATS subject used for an event type.
func (b *NATSBridge) Subject(eventType string) string {
	return b.prefix + "." + eventType
}

// Forward publishes a single event.
func (b *NATSBridge) Forward(e Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", e.Type, err)
	}
	msg := &nats.Msg{Subject: b.Subject(e.Type), Data: data, Header: nats.Header{}}
	msg.Header.Set("Event-Type", e.Type)
	return b.pub.PublishMsg(msg)
}

// Run subscribes to bus and forwards events until ctx is done.
func (b *NATSBridge) Run(ctx context.Context, bus Bus) error {
	ch, unsub := bus.Subscribe(256)
	defer unsub()
	b.log.Info("event bridge started", logx.String("prefix", b.prefix))
	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-ch:
			if !ok {
				return nil
			}
			if err := b.Forward(e); err != nil {
				b.log.Warn("event forward failed", logx.String("type", e.Type), logx.Err(err))
			}
		}
	}
}

// Close drains the owned connection, if any.
func (b *NATSBridge) Close() error {
	if b == nil || b.nc == nil {
		return nil
	}
	return b.nc.Drain()
}
