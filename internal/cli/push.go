package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
)

func pushFrameCmd(g *globals) *cobra.Command {
	var stream, file, contentType string

	cmd := &cobra.Command{
		Use:   "push-frame",
		Short: "Push one image frame to a stream's subscribers",
		RunE: func(cmd *cobra.Command, args []string) error {
			base, err := g.baseURL()
			if err != nil {
				return err
			}
			data, err := os.ReadFile(file)
			if err != nil {
				return err
			}
			if contentType == "" {
				contentType = guessImageType(file)
			}

			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()
			n, err := pushFrame(ctx, base, stream, data, contentType)
			if err != nil {
				return err
			}
			fmt.Printf("stream=%s bytes=%d delivered=%d\n", stream, len(data), n)
			return nil
		},
	}

	cmd.Flags().StringVar(&stream, "stream", "default", "stream id")
	cmd.Flags().StringVar(&file, "file", "", "image file to send")
	cmd.Flags().StringVar(&contentType, "content-type", "", "image MIME type (default: from file extension)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func guessImageType(path string) string {
	if ct := mime.TypeByExtension(filepath.Ext(path)); ct != "" {
		return ct
	}
	return "image/jpeg"
}

// pushFrame posts data as the multipart "frame" field and returns the number
// of subscribers that received it.
func pushFrame(ctx context.Context, base, stream string, data []byte, contentType string) (int, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="frame"; filename="frame"`)
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	if err != nil {
		return 0, err
	}
	if _, err := part.Write(data); err != nil {
		return 0, err
	}
	if err := mw.Close(); err != nil {
		return 0, err
	}

	var out struct {
		DeliveredCount int `json:"deliveredCount"`
	}
	u := base + "/api/stream/" + url.PathEscape(stream) + "/frame"
	if err := doRequest(ctx, http.MethodPost, u, mw.FormDataContentType(), buf.Bytes(), &out); err != nil {
		return 0, err
	}
	return out.DeliveredCount, nil
}

type detection struct {
	EventID    int64   `json:"eventId"`
	EntityType string  `json:"entityType"`
	Confidence float64 `json:"confidence"`
	FrameID    int     `json:"frameId"`
	Timestamp  string  `json:"timestamp,omitempty"`
}

type detectionReply struct {
	EventID int64 `json:"eventId"`
	FrameID int64 `json:"frameId"`
	Alerted bool  `json:"alerted"`
}

func postDetectionCmd(g *globals) *cobra.Command {
	var det detection
	var image string

	cmd := &cobra.Command{
		Use:   "post-detection",
		Short: "Report a detection event (optionally with its frame image)",
		RunE: func(cmd *cobra.Command, args []string) error {
			base, err := g.baseURL()
			if err != nil {
				return err
			}
			if det.EventID == 0 {
				det.EventID = time.Now().UnixMilli()
			}

			var img []byte
			if image != "" {
				if img, err = os.ReadFile(image); err != nil {
					return err
				}
			}

			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()
			reply, err := postDetection(ctx, base, det, img, guessImageType(image))
			if err != nil {
				return err
			}
			fmt.Printf("event_id=%d frame_id=%d alerted=%t\n", reply.EventID, reply.FrameID, reply.Alerted)
			return nil
		},
	}

	cmd.Flags().Int64Var(&det.EventID, "event-id", 0, "edge event id (default: current unix millis)")
	cmd.Flags().StringVar(&det.EntityType, "entity", "Person", "entity type: Person|Dog")
	cmd.Flags().Float64Var(&det.Confidence, "confidence", 0.9, "detection confidence 0..1")
	cmd.Flags().IntVar(&det.FrameID, "frame-id", 0, "frame number")
	cmd.Flags().StringVar(&det.Timestamp, "timestamp", "", "RFC 3339 timestamp (default: server time)")
	cmd.Flags().StringVar(&image, "image", "", "frame image to attach")
	return cmd
}

func postDetection(ctx context.Context, base string, det detection, img []byte, imgType string) (*detectionReply, error) {
	event, err := json.Marshal(det)
	if err != nil {
		return nil, err
	}

	body, contentType := event, "application/json"
	if len(img) > 0 {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		if err := mw.WriteField("event", string(event)); err != nil {
			return nil, err
		}
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="frameImage"; filename="frame"`)
		h.Set("Content-Type", imgType)
		part, err := mw.CreatePart(h)
		if err != nil {
			return nil, err
		}
		if _, err := part.Write(img); err != nil {
			return nil, err
		}
		if err := mw.Close(); err != nil {
			return nil, err
		}
		body, contentType = buf.Bytes(), mw.FormDataContentType()
	}

	var reply detectionReply
	if err := doRequest(ctx, http.MethodPost, base+"/api/events", contentType, body, &reply); err != nil {
		return nil, err
	}
	return &reply, nil
}
