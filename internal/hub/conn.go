package hub

// DefaultTopic is the stream a subscriber joins when it names none.
const DefaultTopic = "default"

// Conn is the hub's non-owning view of one client connection.
// Send must not block on the network; implementations queue the message
// and return an error once the connection is closed or cannot keep up.
type Conn interface {
	ID() string
	Send(msg []byte) error
}

func normalizeTopic(topic string) string {
	if topic == "" {
		return DefaultTopic
	}
	return topic
}
