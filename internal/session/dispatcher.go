package session

import (
	"encoding/json"

	"github.com/rs/zerolog"

	"github.com/jsherman999/sentryhub/internal/hub"
)

// Inbound control message types.
const (
	TypeSubscribe   = "subscribe"
	TypeUnsubscribe = "unsubscribe"
	TypePing        = "ping"
)

// Subscriptions is the part of the hub a connection's control loop mutates.
type Subscriptions interface {
	Subscribe(topic string, conn hub.Conn)
	Unsubscribe(conn hub.Conn)
}

type control struct {
	Type     string  `json:"type"`
	StreamID *string `json:"streamId"`
}

// Dispatcher interprets control messages from one client. It never closes
// the connection; malformed input gets an error envelope back.
type Dispatcher struct {
	subs Subscriptions
	log  zerolog.Logger
}

func NewDispatcher(subs Subscriptions, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{subs: subs, log: log}
}

func (d *Dispatcher) Handle(conn hub.Conn, data []byte) {
	var msg control
	if err := json.Unmarshal(data, &msg); err != nil {
		d.reply(conn, hub.ErrorMessage("invalid message: "+err.Error()))
		return
	}
	if msg.Type == "" {
		d.reply(conn, hub.ErrorMessage("message type is required"))
		return
	}

	switch msg.Type {
	case TypeSubscribe:
		topic := hub.DefaultTopic
		if msg.StreamID != nil && *msg.StreamID != "" {
			topic = *msg.StreamID
		}
		d.subs.Subscribe(topic, conn)
	case TypeUnsubscribe:
		d.subs.Unsubscribe(conn)
	case TypePing:
		d.reply(conn, hub.PongMessage())
	default:
		d.log.Warn().Str("conn", conn.ID()).Str("type", msg.Type).Msg("unknown message type")
	}
}

func (d *Dispatcher) reply(conn hub.Conn, msg []byte) {
	if err := conn.Send(msg); err != nil {
		d.log.Debug().Err(err).Str("conn", conn.ID()).Msg("reply dropped")
	}
}
