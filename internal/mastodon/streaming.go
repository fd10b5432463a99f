package mastodon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"path"
	"strings"
	"sync"
	"time"

	"celebrator/internal/logging"
	jsonx "celebrator/internal/shared/json"

	"github.com/gorilla/websocket"
)

const (
	defaultIdleTimeout  = 2 * time.Minute
	defaultWriteTimeout = 10 * time.Second
	eventBufferSize     = 16
)

// StreamingConfig configures a StreamingClient.
type StreamingConfig struct {
	BaseURL     string // streaming API origin, e.g. https://streaming.example.social
	AccessToken string
	Stream      string        // defaults to public:local
	IdleTimeout time.Duration // read deadline, extended on every frame and ping
	Dialer      *websocket.Dialer
}

func (c StreamingConfig) withDefaults() StreamingConfig {
	out := c
	out.BaseURL = strings.TrimSpace(out.BaseURL)
	out.AccessToken = strings.TrimSpace(out.AccessToken)
	if strings.TrimSpace(out.Stream) == "" {
		out.Stream = StreamPublicLocal
	}
	if out.IdleTimeout <= 0 {
		out.IdleTimeout = defaultIdleTimeout
	}
	if out.Dialer == nil {
		out.Dialer = websocket.DefaultDialer
	}
	return out
}

// StreamingClient opens websocket subscriptions against the streaming API.
type StreamingClient struct {
	cfg    StreamingConfig
	logger logging.Logger
}

// NewStreamingClient validates cfg and returns a client.
func NewStreamingClient(cfg StreamingConfig, logger logging.Logger) (*StreamingClient, error) {
	cfg = cfg.withDefaults()
	if cfg.BaseURL == "" {
		return nil, errors.New("streaming base url is required")
	}
	if _, err := streamingURL(cfg.BaseURL); err != nil {
		return nil, err
	}
	return &StreamingClient{cfg: cfg, logger: logging.OrNop(logger)}, nil
}

// Stream returns the stream name this client subscribes to.
func (c *StreamingClient) Stream() string {
	return c.cfg.Stream
}

// streamingURL maps an http(s) origin onto the ws(s) streaming endpoint.
func streamingURL(base string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid streaming url %q: %w", base, err)
	}
	switch u.Scheme {
	case "https", "wss":
		u.Scheme = "wss"
	case "http", "ws":
		u.Scheme = "ws"
	default:
		return "", fmt.Errorf("invalid streaming url %q: unsupported scheme %q", base, u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("invalid streaming url %q: missing host", base)
	}
	u.Path = path.Join("/", u.Path, "/api/v1/streaming")
	u.RawQuery = ""
	return u.String(), nil
}

type controlMessage struct {
	Type   string `json:"type"`
	Stream string `json:"stream"`
}

// Subscribe dials the streaming endpoint and subscribes to the configured
// stream. ctx bounds the dial only; the subscription lives until
// Unsubscribe is called or the connection fails.
func (c *StreamingClient) Subscribe(ctx context.Context) (*Subscription, error) {
	endpoint, err := streamingURL(c.cfg.BaseURL)
	if err != nil {
		return nil, err
	}
	header := http.Header{}
	if c.cfg.AccessToken != "" {
		header.Set("Authorization", "Bearer "+c.cfg.AccessToken)
	}

	conn, resp, err := c.cfg.Dialer.DialContext(ctx, endpoint, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial streaming api: %s: %w", resp.Status, err)
		}
		return nil, fmt.Errorf("dial streaming api: %w", err)
	}

	sub := &Subscription{
		conn:        conn,
		stream:      c.cfg.Stream,
		idleTimeout: c.cfg.IdleTimeout,
		events:      make(chan Event, eventBufferSize),
		done:        make(chan struct{}),
		logger:      c.logger,
	}
	if err := sub.writeControl("subscribe"); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("subscribe %s: %w", c.cfg.Stream, err)
	}
	conn.SetPingHandler(func(appData string) error {
		_ = conn.SetReadDeadline(time.Now().Add(sub.idleTimeout))
		sub.writeMu.Lock()
		defer sub.writeMu.Unlock()
		err := conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(defaultWriteTimeout))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})

	go sub.readLoop()
	c.logger.Info("socket: %s is subscribed", c.cfg.Stream)
	return sub, nil
}

// Subscription is one live websocket subscription. Events are delivered in
// arrival order on Events; the channel is closed when the subscription ends,
// after which Err reports why.
type Subscription struct {
	conn        *websocket.Conn
	stream      string
	idleTimeout time.Duration
	events      chan Event
	done        chan struct{}
	logger      logging.Logger

	writeMu   sync.Mutex
	closeOnce sync.Once

	mu  sync.Mutex
	err error
}

// Events returns the channel of decoded events.
func (s *Subscription) Events() <-chan Event {
	return s.events
}

// Err reports the error that ended the subscription. It is nil while the
// subscription is live and after a clean Unsubscribe.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Unsubscribe sends the unsubscribe control frame, closes the connection and
// stops event delivery. Safe to call more than once and after the remote end
// has already closed.
func (s *Subscription) Unsubscribe() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		if werr := s.writeControl("unsubscribe"); werr != nil && !errors.Is(werr, websocket.ErrCloseSent) {
			s.logger.Debug("socket: unsubscribe frame not sent: %v", werr)
		}
		s.writeMu.Lock()
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(defaultWriteTimeout))
		s.writeMu.Unlock()
		err = s.conn.Close()
		s.logger.Info("socket: %s is unsubscribed", s.stream)
	})
	if isClosedConnError(err) {
		return nil
	}
	return err
}

func (s *Subscription) writeControl(kind string) error {
	data, err := jsonx.Marshal(controlMessage{Type: kind, Stream: s.stream})
	if err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(defaultWriteTimeout))
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

func (s *Subscription) readLoop() {
	defer close(s.events)
	for {
		_ = s.conn.SetReadDeadline(time.Now().Add(s.idleTimeout))
		msgType, data, err := s.conn.ReadMessage()
		if err != nil {
			s.finish(err)
			return
		}
		if msgType != websocket.TextMessage || len(data) == 0 {
			continue
		}
		ev, err := DecodeFrame(data)
		if err != nil {
			s.finish(err)
			_ = s.conn.Close()
			return
		}
		select {
		case s.events <- ev:
		case <-s.done:
			return
		}
	}
}

// finish records why the read loop stopped. Errors caused by our own
// Unsubscribe and normal close frames from the server are not failures.
func (s *Subscription) finish(err error) {
	select {
	case <-s.done:
		return
	default:
	}
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		s.logger.Info("socket: %s closed by server", s.stream)
		return
	}
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

func isClosedConnError(err error) bool {
	return errors.Is(err, net.ErrClosed)
}
