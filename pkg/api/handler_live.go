package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	echo "github.com/labstack/echo/v5"

	"github.com/eq-labs/interactions-gateway/pkg/auth"
	"github.com/eq-labs/interactions-gateway/pkg/events"
	"github.com/eq-labs/interactions-gateway/pkg/models"
	"github.com/eq-labs/interactions-gateway/pkg/pipeline"
	"github.com/eq-labs/interactions-gateway/pkg/transcribe"
)

// closeStatusAuthFailed is the application close code for rejected tokens.
const closeStatusAuthFailed = websocket.StatusCode(4001)

// clientControlMessage is an inbound text frame from the browser.
type clientControlMessage struct {
	Type string `json:"type"`
}

// transcriptMessage is an outbound segment echo.
type transcriptMessage struct {
	Type    string `json:"type"`
	Text    string `json:"text"`
	IsFinal bool   `json:"is_final"`
	Speaker *int   `json:"speaker,omitempty"`
}

// sessionCompleteMessage is the final message before a clean close.
type sessionCompleteMessage struct {
	Type              string   `json:"type"`
	Summary           string   `json:"summary"`
	ActionItems       []string `json:"action_items"`
	CleanedTranscript string   `json:"cleaned_transcript"`
	RawTranscript     string   `json:"raw_transcript"`
}

// listenHandler handles GET /listen.
// Upgrades to WebSocket, streams inbound audio to the live transcriber, and
// on close assembles, cleans, and fans out the full session transcript.
func (s *Server) listenHandler(c *echo.Context) error {
	conn, err := websocket.Accept(c.Response(), c.Request(), &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		return err
	}

	rc, err := s.authmw.Identify(c)
	if err != nil {
		conn.Close(closeStatusAuthFailed, "authentication failed")
		return nil
	}

	if s.live == nil || s.sessions == nil {
		conn.Close(websocket.StatusInternalError, "live transcription not configured")
		return nil
	}

	sessionID := uuid.NewString()
	log := slog.With("session_id", sessionID, "tenant_id", rc.TenantID)
	log.Info("Live session opened")

	ctx := c.Request().Context()
	live, err := s.live.StartLive(ctx, transcribe.LiveConfig{})
	if err != nil {
		log.Error("Failed to open live transcription", "error", err)
		conn.Close(websocket.StatusInternalError, "transcription unavailable")
		return nil
	}

	var (
		segWG sync.WaitGroup
		seq   int
	)
	segWG.Add(1)
	go func() {
		defer segWG.Done()
		s.forwardSegments(ctx, conn, live, rc, sessionID, log, &seq)
	}()

	// Inbound loop: binary frames are audio, text frames are control.
	for {
		msgType, data, err := conn.Read(ctx)
		if err != nil {
			log.Info("Client connection closed", "error", err)
			break
		}
		switch msgType {
		case websocket.MessageBinary:
			if err := live.SendAudio(data); err != nil {
				log.Warn("Dropping audio chunk", "error", err)
			}
		case websocket.MessageText:
			var msg clientControlMessage
			if err := json.Unmarshal(data, &msg); err != nil {
				continue
			}
			if msg.Type == "stop_recording" {
				log.Info("Stop requested by client")
				goto finalize
			}
		}
	}

finalize:
	// Flush the transcriber and wait for the last finals to land in the
	// session buffer before assembling.
	_ = live.Close()
	segWG.Wait()
	s.finalizeSession(conn, rc, sessionID, log)
	return nil
}

// forwardSegments drains the live session's segment channels until both
// close. Finals are buffered and published; everything is echoed to the
// client.
func (s *Server) forwardSegments(ctx context.Context, conn *websocket.Conn, live *transcribe.LiveSession, rc *auth.RequestContext, sessionID string, log *slog.Logger, seq *int) {
	partials := live.Partials()
	finals := live.Finals()
	for partials != nil || finals != nil {
		select {
		case seg, ok := <-partials:
			if !ok {
				partials = nil
				continue
			}
			s.sendSegment(ctx, conn, seg, log)
		case seg, ok := <-finals:
			if !ok {
				finals = nil
				continue
			}
			if strings.TrimSpace(seg.Text) == "" {
				continue
			}
			if err := s.sessions.Append(ctx, sessionID, seg.Text); err != nil {
				log.Error("Failed to buffer final segment", "error", err)
			}
			*seq++
			if s.telemetry != nil {
				err := s.telemetry.PublishTranscriptSegment(ctx, events.TranscriptSegmentPayload{
					SessionID: sessionID,
					TenantID:  rc.TenantID,
					Seq:       *seq,
					Text:      seg.Text,
					Speaker:   seg.Speaker,
					Timestamp: time.Now().UTC(),
				})
				if err != nil {
					log.Warn("Failed to publish segment telemetry", "error", err)
				}
			}
			s.sendSegment(ctx, conn, seg, log)
		}
	}
}

func (s *Server) sendSegment(ctx context.Context, conn *websocket.Conn, seg transcribe.Segment, log *slog.Logger) {
	data, err := json.Marshal(transcriptMessage{
		Type:    "transcript",
		Text:    seg.Text,
		IsFinal: seg.IsFinal,
		Speaker: seg.Speaker,
	})
	if err != nil {
		return
	}
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		log.Debug("Failed to echo segment", "error", err)
	}
}

// finalizeSession assembles the buffered transcript, runs meeting cleanup,
// fans the interaction out, and sends session_complete. Runs on every exit
// path; an empty buffer just closes the socket.
func (s *Server) finalizeSession(conn *websocket.Conn, rc *auth.RequestContext, sessionID string, log *slog.Logger) {
	// Request context is likely dead by now.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	rawTranscript, err := s.sessions.FinalTranscript(ctx, sessionID)
	if err != nil {
		log.Error("Failed to assemble session transcript", "error", err)
		conn.Close(websocket.StatusInternalError, "failed to assemble transcript")
		return
	}
	if strings.TrimSpace(rawTranscript) == "" {
		log.Info("Live session ended with no transcript")
		conn.Close(websocket.StatusNormalClosure, "session closed")
		return
	}

	meeting := s.cleaner.CleanMeeting(ctx, rawTranscript, sessionID)

	extras := identityExtras(rc, map[string]any{"session_id": sessionID})
	env := models.EnvelopeV1{
		SchemaVersion:   models.SchemaVersionV1,
		TenantID:        rc.TenantID,
		UserID:          rc.UserID,
		AccountID:       optional(rc.AccountID),
		InteractionType: models.InteractionTypeMeeting,
		Content:         models.Content{Text: meeting.CleanedTranscript, Format: models.ContentFormatDiarized},
		Timestamp:       time.Now().UTC(),
		Source:          models.SourceWebsocket,
		Extras:          extras,
		InteractionID:   rc.InteractionID,
		TraceID:         rc.TraceID,
	}
	s.fork.Dispatch(ctx, pipeline.Input{
		Envelope:      env,
		RawTranscript: rawTranscript,
	})

	data, err := json.Marshal(sessionCompleteMessage{
		Type:              "session_complete",
		Summary:           meeting.Summary,
		ActionItems:       meeting.ActionItems,
		CleanedTranscript: meeting.CleanedTranscript,
		RawTranscript:     rawTranscript,
	})
	if err == nil {
		if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
			log.Info("Client gone before session_complete", "error", err)
		}
	}
	conn.Close(websocket.StatusNormalClosure, "session complete")
	log.Info("Live session finalized", "interaction_id", env.InteractionID)
}
