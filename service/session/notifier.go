package session

import (
	"encoding/json"

	"PSession/logger"
	"PSession/module/session/model"

	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"
)

// Notifier fans room lifecycle changes out to sibling gateway nodes.
// Local clients are served by the Registry; the notifier only covers
// cross-node propagation.
type Notifier interface {
	PublishRoomDelete(orders []int) error
	PublishRoomUpdate(room *model.Room) error
}

type natsEvent struct {
	Event   string `json:"event"`
	Payload any    `json:"payload"`
}

// NatsNotifier publishes room events on a single subject.
type NatsNotifier struct {
	conn    *nats.Conn
	subject string
}

func NewNatsNotifier(url, subject string) (*NatsNotifier, error) {
	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warnf("[nats] disconnected err=%v", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Infof("[nats] reconnected url=%s", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, errors.Wrap(err, "nats connect")
	}
	return &NatsNotifier{conn: nc, subject: subject}, nil
}

func (n *NatsNotifier) publish(event string, payload any) error {
	data, err := json.Marshal(natsEvent{Event: event, Payload: payload})
	if err != nil {
		return errors.Wrap(err, "marshal nats event")
	}
	if err := n.conn.Publish(n.subject, data); err != nil {
		return errors.Wrap(err, "publish nats event")
	}
	return nil
}

func (n *NatsNotifier) PublishRoomDelete(orders []int) error {
	return n.publish("notify-room-delete", orders)
}

func (n *NatsNotifier) PublishRoomUpdate(room *model.Room) error {
	return n.publish("notify-room-update", room)
}

func (n *NatsNotifier) Close() {
	if n.conn != nil {
		n.conn.Drain()
	}
}
