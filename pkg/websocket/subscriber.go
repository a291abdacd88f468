package websocket

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Message is one event as received from a Hub.
type Message struct {
	Index    uint64          `json:"index"`
	TxIndex  uint64          `json:"tx_index"`
	Time     uint64          `json:"time"`
	Contract common.Address  `json:"contract"`
	Name     string          `json:"name"`
	Event    json.RawMessage `json:"event"`
}

// SubscriberConfig holds subscriber configuration.
type SubscriberConfig struct {
	URL       string // ws://host:port/ws/events
	Contracts []common.Address

	// From replays history starting at this log index. Nil streams live events only.
	From *uint64

	DialTimeout time.Duration
	BufferSize  int
	Retry       RetryPolicy
	Logger      *zap.Logger
}

// Subscriber consumes a Hub stream. After a disconnect it reconnects with
// backoff and resumes from the index after the last event it delivered, so no
// event is skipped or repeated.
type Subscriber struct {
	cfg       SubscriberConfig
	logger    *zap.Logger
	redial    *Redialer
	messages  chan Message

	conn      *websocket.Conn
	connStart time.Time
	next      uint64
	resume    bool
}

// NewSubscriber creates a subscriber. Call Run to start it.
func NewSubscriber(cfg SubscriberConfig) *Subscriber {
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 10 * time.Second
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1000
	}
	if cfg.Retry == (RetryPolicy{}) {
		cfg.Retry = DefaultRetryPolicy()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	s := &Subscriber{
		cfg:       cfg,
		logger:    cfg.Logger,
		redial:    NewRedialer(cfg.Retry, cfg.Logger),
		messages:  make(chan Message, cfg.BufferSize),
	}
	if cfg.From != nil {
		s.next, s.resume = *cfg.From, true
	}
	return s
}

// Messages returns the delivery channel. It is closed when Run returns.
func (s *Subscriber) Messages() <-chan Message {
	return s.messages
}

// Run streams until ctx is done. It returns the initial connection error, or
// ErrRetriesExhausted when the retry policy caps attempts and they run out.
func (s *Subscriber) Run(ctx context.Context) error {
	defer close(s.messages)

	err := s.connect(ctx)
	if err != nil {
		return fmt.Errorf("initial connection: %w", err)
	}

	for {
		s.readLoop(ctx)
		if ctx.Err() != nil {
			return nil
		}

		s.logger.Warn("connection-lost-initiating-reconnect", zap.Uint64("resume-from", s.next))
		_, err = s.redial.Redial(ctx, s.next, s.connect)
		switch {
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return nil
		case err != nil:
			return err
		}
	}
}

func (s *Subscriber) streamURL() (string, error) {
	u, err := url.Parse(s.cfg.URL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	q := u.Query()
	for _, c := range s.cfg.Contracts {
		q.Add("contract", c.Hex())
	}
	if s.resume {
		q.Set("from", strconv.FormatUint(s.next, 10))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (s *Subscriber) connect(ctx context.Context) error {
	target, err := s.streamURL()
	if err != nil {
		return err
	}

	dialer := websocket.Dialer{HandshakeTimeout: s.cfg.DialTimeout}
	conn, _, err := dialer.DialContext(ctx, target, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}

	s.conn = conn
	s.connStart = time.Now()
	s.logger.Info("event-stream-connected", zap.String("url", target))
	return nil
}

func (s *Subscriber) readLoop(ctx context.Context) {
	conn := s.conn
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer func() {
		stop()
		_ = conn.Close()
		ConnectionDuration.Observe(time.Since(s.connStart).Seconds())
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				s.logger.Warn("read-error", zap.Error(err))
			}
			return
		}

		var msg Message
		err = json.Unmarshal(data, &msg)
		if err != nil {
			s.logger.Debug("unparseable-event", zap.Error(err), zap.Int("bytes", len(data)))
			continue
		}
		if s.resume && msg.Index < s.next {
			continue
		}

		select {
		case s.messages <- msg:
		case <-ctx.Done():
			return
		}
		s.next, s.resume = msg.Index+1, true
		MessagesReceivedTotal.WithLabelValues(msg.Name).Inc()
	}
}
