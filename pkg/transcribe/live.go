package transcribe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"

	"github.com/coder/websocket"
)

// LiveConfig tunes a streaming transcription session.
type LiveConfig struct {
	// Encoding of the inbound audio, e.g. "linear16" or "opus". Empty lets
	// Deepgram sniff containerized formats (webm).
	Encoding   string
	SampleRate int
	Channels   int
	Language   string
}

// Segment is a transcript fragment from a live session.
type Segment struct {
	Text       string
	IsFinal    bool
	Speaker    *int
	Confidence float64
}

// LiveSession is an open streaming transcription session. Audio goes in via
// SendAudio; interim and final segments come out on channels. Close flushes
// pending audio and tears the connection down.
type LiveSession struct {
	conn     *websocket.Conn
	partials chan Segment
	finals   chan Segment
	audio    chan []byte

	done chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

// StartLive opens a streaming session with Deepgram.
func (c *Client) StartLive(ctx context.Context, cfg LiveConfig) (*LiveSession, error) {
	wsURL, err := c.buildStreamURL(cfg)
	if err != nil {
		return nil, fmt.Errorf("transcribe: build stream URL: %w", err)
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+c.apiKey)

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: headers,
	})
	if err != nil {
		return nil, fmt.Errorf("transcribe: dial: %w", err)
	}

	sess := &LiveSession{
		conn:     conn,
		partials: make(chan Segment, 64),
		finals:   make(chan Segment, 64),
		audio:    make(chan []byte, 256),
		done:     make(chan struct{}),
	}

	sess.wg.Add(2)
	go sess.readLoop(ctx)
	go sess.writeLoop(ctx)

	return sess, nil
}

func (c *Client) buildStreamURL(cfg LiveConfig) (string, error) {
	u, err := url.Parse(c.streamURL)
	if err != nil {
		return "", err
	}

	q := u.Query()
	q.Set("model", c.model)
	q.Set("punctuate", "true")
	q.Set("smart_format", "true")
	q.Set("diarize", "true")
	q.Set("interim_results", "true")
	if cfg.Language != "" {
		q.Set("language", cfg.Language)
	}
	if cfg.Encoding != "" {
		q.Set("encoding", cfg.Encoding)
	}
	if cfg.SampleRate > 0 {
		q.Set("sample_rate", strconv.Itoa(cfg.SampleRate))
	}
	if cfg.Channels > 0 {
		q.Set("channels", strconv.Itoa(cfg.Channels))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// SendAudio queues an audio chunk for delivery.
func (s *LiveSession) SendAudio(chunk []byte) error {
	select {
	case <-s.done:
		return errors.New("transcribe: session is closed")
	default:
	}
	select {
	case s.audio <- chunk:
		return nil
	case <-s.done:
		return errors.New("transcribe: session is closed")
	}
}

// Partials returns the channel of interim segments.
func (s *LiveSession) Partials() <-chan Segment { return s.partials }

// Finals returns the channel of final segments.
func (s *LiveSession) Finals() <-chan Segment { return s.finals }

// Close terminates the session cleanly, flushing pending audio first.
func (s *LiveSession) Close() error {
	s.once.Do(func() {
		close(s.done)
		_ = s.conn.Write(context.Background(), websocket.MessageText, []byte(`{"type":"CloseStream"}`))
		s.wg.Wait()
		s.conn.Close(websocket.StatusNormalClosure, "session closed")
	})
	return nil
}

func (s *LiveSession) writeLoop(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case chunk, ok := <-s.audio:
			if !ok {
				return
			}
			if err := s.conn.Write(ctx, websocket.MessageBinary, chunk); err != nil {
				return
			}
		case <-s.done:
			// Drain queued audio before exiting.
			for {
				select {
				case chunk, ok := <-s.audio:
					if !ok {
						return
					}
					_ = s.conn.Write(ctx, websocket.MessageBinary, chunk)
				default:
					return
				}
			}
		}
	}
}

func (s *LiveSession) readLoop(ctx context.Context) {
	defer s.wg.Done()
	defer close(s.partials)
	defer close(s.finals)

	for {
		_, msg, err := s.conn.Read(ctx)
		if err != nil {
			return
		}

		seg, ok := parseStreamMessage(msg)
		if !ok {
			continue
		}

		if seg.IsFinal {
			select {
			case s.finals <- seg:
			case <-s.done:
			}
		} else {
			select {
			case s.partials <- seg:
			case <-s.done:
			}
		}
	}
}

// streamResponse is the JSON structure of a Deepgram Results event.
type streamResponse struct {
	Type    string `json:"type"`
	IsFinal bool   `json:"is_final"`
	Channel struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
			Words      []Word  `json:"words"`
		} `json:"alternatives"`
	} `json:"channel"`
}

// parseStreamMessage parses a raw streaming message into a Segment. Returns
// false for non-Results messages and empty alternatives.
func parseStreamMessage(data []byte) (Segment, bool) {
	var resp streamResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return Segment{}, false
	}
	if resp.Type != "Results" || len(resp.Channel.Alternatives) == 0 {
		return Segment{}, false
	}

	alt := resp.Channel.Alternatives[0]
	seg := Segment{
		Text:       alt.Transcript,
		IsFinal:    resp.IsFinal,
		Confidence: alt.Confidence,
	}
	if len(alt.Words) > 0 && alt.Words[0].Speaker != nil {
		seg.Speaker = alt.Words[0].Speaker
	}
	return seg, true
}
