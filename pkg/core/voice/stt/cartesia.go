package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	cartesiaAPI       = "https://api.cartesia.ai"
	cartesiaStreamURL = "wss://api.cartesia.ai/stt/websocket"
	cartesiaVersion   = "2025-04-16"
	defaultModel      = "ink-whisper"
	pcmEncoding       = "pcm_s16le"
)

// Cartesia is a client for the Cartesia STT API.
type Cartesia struct {
	apiKey    string
	apiURL    string
	streamURL string
	client    *http.Client
	dialer    *websocket.Dialer
}

// CartesiaOption customizes a Cartesia client.
type CartesiaOption func(*Cartesia)

func WithHTTPClient(client *http.Client) CartesiaOption {
	return func(c *Cartesia) {
		if client != nil {
			c.client = client
		}
	}
}

// WithAPIURL overrides the REST root used by Transcribe.
func WithAPIURL(u string) CartesiaOption {
	return func(c *Cartesia) {
		if u = strings.TrimRight(strings.TrimSpace(u), "/"); u != "" {
			c.apiURL = u
		}
	}
}

// WithStreamURL overrides the websocket endpoint used by Open.
func WithStreamURL(u string) CartesiaOption {
	return func(c *Cartesia) {
		if u = strings.TrimSpace(u); u != "" {
			c.streamURL = u
		}
	}
}

func NewCartesia(apiKey string, opts ...CartesiaOption) *Cartesia {
	c := &Cartesia{
		apiKey:    strings.TrimSpace(apiKey),
		apiURL:    cartesiaAPI,
		streamURL: cartesiaStreamURL,
		client:    &http.Client{Timeout: 30 * time.Second},
		dialer:    &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Cartesia) Name() string {
	return "cartesia"
}

// Transcribe uploads one utterance and returns the trimmed text.
func (c *Cartesia) Transcribe(ctx context.Context, pcm []byte, opts Options) (string, error) {
	opts = opts.withDefaults()
	body, contentType, err := utteranceForm(pcm, opts)
	if err != nil {
		return "", err
	}

	q := url.Values{}
	q.Set("encoding", pcmEncoding)
	q.Set("sample_rate", strconv.Itoa(opts.SampleRate))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL+"/stt?"+q.Encode(), body)
	if err != nil {
		return "", fmt.Errorf("cartesia: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Cartesia-Version", cartesiaVersion)
	req.Header.Set("Content-Type", contentType)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("cartesia: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("cartesia: status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("cartesia: decode transcript: %w", err)
	}
	return strings.TrimSpace(out.Text), nil
}

func utteranceForm(pcm []byte, opts Options) (io.Reader, string, error) {
	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	file, err := form.CreateFormFile("file", "utterance.pcm")
	if err == nil {
		_, err = file.Write(pcm)
	}
	if err == nil {
		err = form.WriteField("model", opts.Model)
	}
	if err == nil {
		err = form.WriteField("language", opts.Language)
	}
	if err == nil {
		err = form.Close()
	}
	if err != nil {
		return nil, "", fmt.Errorf("cartesia: encode upload: %w", err)
	}
	return &buf, form.FormDataContentType(), nil
}

// Session is a live transcription over one websocket. Results is closed
// when the server ends the session or Close is called.
type Session struct {
	conn    *websocket.Conn
	results chan Result
	done    chan struct{}

	writeMu sync.Mutex
	closing chan struct{}
	once    sync.Once

	mu  sync.Mutex
	err error
}

var errSessionClosed = errors.New("stt session closed")

// Open dials the streaming endpoint. Frames go in through Send.
func (c *Cartesia) Open(ctx context.Context, opts Options) (*Session, error) {
	opts = opts.withDefaults()
	u, err := url.Parse(c.streamURL)
	if err != nil {
		return nil, fmt.Errorf("cartesia: invalid stream url: %w", err)
	}
	q := u.Query()
	q.Set("model", opts.Model)
	q.Set("language", opts.Language)
	q.Set("encoding", pcmEncoding)
	q.Set("sample_rate", strconv.Itoa(opts.SampleRate))
	q.Set("min_volume", "0.01")
	u.RawQuery = q.Encode()

	header := http.Header{}
	header.Set("X-API-Key", c.apiKey)
	header.Set("Cartesia-Version", cartesiaVersion)
	conn, resp, err := c.dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("cartesia connect: status %d: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("cartesia connect: %w", err)
	}

	s := &Session{
		conn:    conn,
		results: make(chan Result, 100),
		done:    make(chan struct{}),
		closing: make(chan struct{}),
	}
	go s.receive()
	return s, nil
}

type streamEvent struct {
	Type    string `json:"type"`
	Text    string `json:"text"`
	IsFinal bool   `json:"is_final"`
	Error   string `json:"error"`
}

func (s *Session) receive() {
	defer close(s.done)
	defer close(s.results)
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if !s.isClosing() && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.fail(err)
			}
			return
		}
		var ev streamEvent
		if json.Unmarshal(data, &ev) != nil {
			continue
		}
		switch ev.Type {
		case "transcript":
			select {
			case s.results <- Result{Text: ev.Text, Final: ev.IsFinal}:
			case <-s.closing:
				return
			}
		case "error":
			s.fail(fmt.Errorf("cartesia stt: %s", ev.Error))
			return
		case "done":
			return
		}
	}
}

// Send writes one PCM frame.
func (s *Session) Send(frame []byte) error {
	if s.isClosing() {
		return errSessionClosed
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return s.conn.WriteMessage(websocket.BinaryMessage, frame)
}

func (s *Session) Results() <-chan Result {
	return s.results
}

func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Err returns what ended the session, or nil for a clean end.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Session) fail(err error) {
	s.mu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.mu.Unlock()
}

func (s *Session) isClosing() bool {
	select {
	case <-s.closing:
		return true
	default:
		return false
	}
}

// Close tells the server the audio is over and drops the connection.
func (s *Session) Close() error {
	var err error
	s.once.Do(func() {
		close(s.closing)
		s.writeMu.Lock()
		_ = s.conn.SetWriteDeadline(time.Now().Add(time.Second))
		_ = s.conn.WriteMessage(websocket.TextMessage, []byte("done"))
		_ = s.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		s.writeMu.Unlock()
		err = s.conn.Close()
	})
	return err
}
