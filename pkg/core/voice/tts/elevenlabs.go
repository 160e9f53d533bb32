package tts

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	elevenLabsStreamURL    = "wss://api.elevenlabs.io/v1/text-to-speech/{voice_id}/stream-input"
	elevenLabsDefaultModel = "eleven_flash_v2_5"
	defaultSampleRate      = 24000
	elevenLabsWriteTimeout = 5 * time.Second
)

// ElevenLabsProvider opens one stream-input websocket per utterance.
type ElevenLabsProvider struct {
	apiKey    string
	streamURL string
	dialer    *websocket.Dialer
}

func NewElevenLabs(apiKey string) *ElevenLabsProvider {
	return &ElevenLabsProvider{
		apiKey:    strings.TrimSpace(apiKey),
		streamURL: elevenLabsStreamURL,
		dialer:    &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
	}
}

// WithStreamURL overrides the stream-input endpoint. "{voice_id}" is
// substituted when present.
func (e *ElevenLabsProvider) WithStreamURL(u string) *ElevenLabsProvider {
	if u = strings.TrimSpace(u); u != "" {
		e.streamURL = u
	}
	return e
}

func (e *ElevenLabsProvider) Name() string {
	return "elevenlabs"
}

// Client messages of the stream-input protocol. The first message opens
// generation with a single space; a flush asks for the remaining audio.
type (
	beginMessage struct {
		Text    string `json:"text"`
		VoiceID string `json:"voice_id"`
	}
	textMessage struct {
		Text  string `json:"text"`
		Flush bool   `json:"flush,omitempty"`
	}
	serverMessage struct {
		Audio    string `json:"audio"`
		IsFinal  bool   `json:"isFinal"`
		IsFinal2 bool   `json:"is_final"`
		Error    string `json:"error"`
		Message  string `json:"message"`
	}
)

// SynthesizeStream sends text one sentence at a time so audio for the first
// sentence can start before the rest is processed.
func (e *ElevenLabsProvider) SynthesizeStream(ctx context.Context, text string, opts SynthesizeOptions) (*Stream, error) {
	if e.apiKey == "" {
		return nil, errors.New("elevenlabs: api key is required")
	}
	voiceID := strings.TrimSpace(opts.Voice)
	if voiceID == "" {
		return nil, errors.New("elevenlabs: voice id is required")
	}
	endpoint, err := streamURL(e.streamURL, voiceID, opts)
	if err != nil {
		return nil, err
	}

	header := http.Header{}
	header.Set("xi-api-key", e.apiKey)
	conn, resp, err := e.dialer.DialContext(ctx, endpoint, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("elevenlabs connect: status %d: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("elevenlabs connect: %w", err)
	}

	messages := []any{beginMessage{Text: " ", VoiceID: voiceID}}
	for _, sentence := range SplitSentences(text) {
		messages = append(messages, textMessage{Text: sentence + " "})
	}
	messages = append(messages, textMessage{Text: "", Flush: true})
	for _, msg := range messages {
		_ = conn.SetWriteDeadline(time.Now().Add(elevenLabsWriteTimeout))
		if err := conn.WriteJSON(msg); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("elevenlabs send: %w", err)
		}
	}

	s := newStream()
	var closeConn sync.Once
	readDone := make(chan struct{})
	// ReadJSON does not observe ctx; closing the conn unblocks it.
	go func() {
		select {
		case <-ctx.Done():
			s.fail(ctx.Err())
		case <-s.stopped():
		case <-readDone:
		}
		closeConn.Do(func() { _ = conn.Close() })
	}()
	go func() {
		defer s.finish()
		defer close(readDone)
		e.read(conn, s)
	}()
	return s, nil
}

func (e *ElevenLabsProvider) read(conn *websocket.Conn, s *Stream) {
	for {
		var msg serverMessage
		if err := conn.ReadJSON(&msg); err != nil {
			select {
			case <-s.stopped():
			default:
				s.fail(err)
			}
			return
		}
		if msg.Error != "" {
			detail := msg.Message
			if detail == "" {
				detail = msg.Error
			}
			s.fail(fmt.Errorf("elevenlabs: %s", detail))
			return
		}
		if msg.Audio != "" {
			pcm, err := base64.StdEncoding.DecodeString(msg.Audio)
			if err != nil {
				s.fail(fmt.Errorf("elevenlabs: decode audio: %w", err))
				return
			}
			if len(pcm) > 0 && !s.deliver(pcm) {
				return
			}
		}
		if msg.IsFinal || msg.IsFinal2 {
			return
		}
	}
}

// streamURL fills in the voice and the default query parameters, keeping
// any already present in base.
func streamURL(base, voiceID string, opts SynthesizeOptions) (string, error) {
	if strings.TrimSpace(base) == "" {
		base = elevenLabsStreamURL
	}
	u, err := url.Parse(strings.ReplaceAll(base, "{voice_id}", url.PathEscape(voiceID)))
	if err != nil {
		return "", fmt.Errorf("elevenlabs: invalid stream url: %w", err)
	}
	if u.Scheme == "" {
		u.Scheme = "wss"
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = "/v1/text-to-speech/" + voiceID + "/stream-input"
	}

	model := opts.Model
	if model == "" {
		model = elevenLabsDefaultModel
	}
	rate := opts.SampleRate
	if rate <= 0 {
		rate = defaultSampleRate
	}
	q := u.Query()
	for key, val := range map[string]string{
		"model_id":       model,
		"output_format":  "pcm_" + strconv.Itoa(rate),
		"sync_alignment": "false",
	} {
		if q.Get(key) == "" {
			q.Set(key, val)
		}
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
