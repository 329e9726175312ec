package hub

import (
	"encoding/base64"
	"encoding/json"
)

// DefaultContentType is used for frames pushed without a content type.
const DefaultContentType = "image/jpeg"

// Envelope types sent to clients as JSON text frames.
const (
	TypeConnected = "connected"
	TypePong      = "pong"
	TypeError     = "error"
	TypeFrame     = "frame"
	TypeAlert     = "alert"
)

type FrameMessage struct {
	Type        string `json:"type"`
	StreamID    string `json:"streamId"`
	Data        string `json:"data"`
	ContentType string `json:"contentType"`
}

type AlertMessage struct {
	Type       string  `json:"type"`
	EventID    int64   `json:"eventId"`
	EntityType string  `json:"entityType"`
	Confidence float64 `json:"confidence"`
	Timestamp  string  `json:"timestamp"`
	Message    string  `json:"message"`
	ImageData  string  `json:"imageData,omitempty"`
	ImageType  string  `json:"imageType,omitempty"`
}

type StatusMessage struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
}

func NewFrameMessage(streamID string, payload []byte, contentType string) FrameMessage {
	if contentType == "" {
		contentType = DefaultContentType
	}
	return FrameMessage{
		Type:        TypeFrame,
		StreamID:    normalizeTopic(streamID),
		Data:        base64.StdEncoding.EncodeToString(payload),
		ContentType: contentType,
	}
}

// Encode marshals an envelope. The envelope types above only hold strings
// and numbers, so an error here means v is not one of them.
func Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

func MustEncode(v any) []byte {
	b, err := Encode(v)
	if err != nil {
		panic(err)
	}
	return b
}

func ConnectedMessage() []byte {
	return MustEncode(StatusMessage{Type: TypeConnected, Message: "Connected to video stream"})
}

func PongMessage() []byte {
	return MustEncode(StatusMessage{Type: TypePong})
}

func ErrorMessage(msg string) []byte {
	return MustEncode(StatusMessage{Type: TypeError, Message: msg})
}
