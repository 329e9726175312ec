package hub

import (
	"github.com/rs/zerolog"
)

// Hub ties the connection registry and the topic table together and fans
// messages out to them. Delivery is best-effort: a failed send prunes the
// recipient and is never reported to the publisher.
//
// Every broadcast iterates a snapshot taken when the call starts. A
// connection that subscribes after that point misses the message in flight
// and receives the next one.
type Hub struct {
	log      zerolog.Logger
	registry *Registry
	topics   *Topics
}

type Stats struct {
	Topics           map[string]int `json:"topics"`
	TotalSubscribers int            `json:"totalSubscribers"`
	OpenConnections  int            `json:"openConnections"`
}

func New(log zerolog.Logger) *Hub {
	return &Hub{
		log:      log.With().Str("component", "hub").Logger(),
		registry: NewRegistry(),
		topics:   NewTopics(),
	}
}

func (h *Hub) Registry() *Registry { return h.registry }
func (h *Hub) Topics() *Topics     { return h.topics }

func (h *Hub) Connect(conn Conn) {
	if h.registry.Track(conn) {
		h.log.Debug().Str("conn", conn.ID()).Msg("connection tracked")
	}
}

// Disconnect removes conn from the registry and from every topic. Safe to
// call more than once.
func (h *Hub) Disconnect(conn Conn) {
	untracked := h.registry.Untrack(conn)
	left := h.topics.Unsubscribe(conn)
	if untracked || len(left) > 0 {
		h.log.Debug().Str("conn", conn.ID()).Strs("topics", left).Msg("connection removed")
	}
}

func (h *Hub) Subscribe(topic string, conn Conn) {
	topic = normalizeTopic(topic)
	if h.topics.Subscribe(topic, conn) {
		h.log.Info().Str("conn", conn.ID()).Str("stream", topic).Msg("subscribed")
	}
}

func (h *Hub) Unsubscribe(conn Conn) {
	for _, topic := range h.topics.Unsubscribe(conn) {
		h.log.Info().Str("conn", conn.ID()).Str("stream", topic).Msg("unsubscribed")
	}
}

// BroadcastToTopic sends payload as a frame envelope to every subscriber of
// topic and returns how many sends succeeded.
func (h *Hub) BroadcastToTopic(topic string, payload []byte, contentType string) int {
	topic = normalizeTopic(topic)
	subs := h.topics.SubscribersOf(topic)
	if len(subs) == 0 {
		h.log.Debug().Str("stream", topic).Msg("no subscribers")
		return 0
	}

	msg, err := Encode(NewFrameMessage(topic, payload, contentType))
	if err != nil {
		h.log.Error().Err(err).Str("stream", topic).Msg("encode frame")
		return 0
	}

	delivered := 0
	for _, c := range subs {
		if err := c.Send(msg); err != nil {
			h.topics.Remove(topic, c)
			h.log.Warn().Err(err).Str("conn", c.ID()).Str("stream", topic).Msg("pruned subscriber")
			continue
		}
		delivered++
	}
	h.log.Debug().Str("stream", topic).Int("delivered", delivered).Int("subscribers", len(subs)).Msg("frame broadcast")
	return delivered
}

// BroadcastToAll sends an encoded envelope to every tracked connection. A
// connection whose send fails is disconnected.
func (h *Hub) BroadcastToAll(msg []byte) int {
	conns := h.registry.All()
	delivered := 0
	for _, c := range conns {
		if err := c.Send(msg); err != nil {
			h.Disconnect(c)
			h.log.Warn().Err(err).Str("conn", c.ID()).Msg("dropped connection")
			continue
		}
		delivered++
	}
	return delivered
}

func (h *Hub) Stats() Stats {
	return Stats{
		Topics:           h.topics.Counts(),
		TotalSubscribers: h.topics.Total(),
		OpenConnections:  h.registry.Len(),
	}
}
