package reader

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"storeprice/config"
	"storeprice/logger"
)

const defaultReconnectDelay = 5 * time.Second

// WSReader streams rows from a websocket. Every text message carries a JSON
// array of rows and is appended as one batch.
type WSReader struct {
	url            string
	reconnectDelay time.Duration
	readTimeout    time.Duration
	sink           Sink
	onBatch        BatchFunc
	dialer         *websocket.Dialer
	connects       atomic.Int64
	messages       atomic.Int64
	ctx            context.Context
	cancel         context.CancelFunc
	wg             *sync.WaitGroup
	mu             sync.RWMutex
	running        bool
	log            *logger.Log
}

func NewWSReader(cfg config.WebSocketConfig, sink Sink) *WSReader {
	delay := cfg.ReconnectDelay
	if delay <= 0 {
		delay = defaultReconnectDelay
	}
	return &WSReader{
		url:            cfg.URL,
		reconnectDelay: delay,
		readTimeout:    cfg.ReadTimeout,
		sink:           sink,
		dialer:         &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		wg:             &sync.WaitGroup{},
		log:            logger.GetLogger(),
	}
}

// OnBatch sets the per batch hook. Call before Start.
func (r *WSReader) OnBatch(fn BatchFunc) { r.onBatch = fn }

func (r *WSReader) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("websocket reader already running")
	}
	r.running = true
	r.ctx, r.cancel = context.WithCancel(ctx)
	r.mu.Unlock()

	r.log.WithComponent("ws_reader").WithFields(logger.Fields{"url": r.url}).Info("starting websocket reader")

	r.wg.Add(1)
	go r.stream()
	return nil
}

func (r *WSReader) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	r.cancel()
	r.mu.Unlock()

	r.wg.Wait()
	r.log.WithComponent("ws_reader").Info("websocket reader stopped")
}

// Connects returns how many connections were established.
func (r *WSReader) Connects() int64 { return r.connects.Load() }

// Messages returns how many row messages were delivered.
func (r *WSReader) Messages() int64 { return r.messages.Load() }

// stream keeps one connection open, reconnecting after reconnectDelay until
// the context ends.
func (r *WSReader) stream() {
	defer r.wg.Done()
	log := r.log.WithComponent("ws_reader").WithFields(logger.Fields{"url": r.url})

	for {
		if r.ctx.Err() != nil {
			return
		}

		conn, _, err := r.dialer.DialContext(r.ctx, r.url, nil)
		if err != nil {
			log.WithError(err).Warn("failed to connect websocket, retrying")
			if !r.wait() {
				return
			}
			continue
		}
		r.connects.Add(1)
		log.Info("websocket connected")

		r.read(conn)

		if !r.wait() {
			return
		}
	}
}

func (r *WSReader) read(conn *websocket.Conn) {
	log := r.log.WithComponent("ws_reader")

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-r.ctx.Done():
			conn.Close()
		case <-done:
		}
	}()
	defer conn.Close()

	for {
		if r.readTimeout > 0 {
			conn.SetReadDeadline(time.Now().Add(r.readTimeout))
		}
		kind, msg, err := conn.ReadMessage()
		if err != nil {
			if r.ctx.Err() == nil {
				log.WithError(err).Warn("websocket read error, reconnecting")
			}
			return
		}
		if kind != websocket.TextMessage {
			continue
		}
		rows, err := DecodeJSON(msg)
		if err != nil {
			log.WithError(err).Warn("skipping malformed row message")
			continue
		}
		deliver(r.log, r.sink, "ws_reader", r.url, rows, r.onBatch)
		r.messages.Add(1)
	}
}

func (r *WSReader) wait() bool {
	select {
	case <-time.After(r.reconnectDelay):
		return true
	case <-r.ctx.Done():
		return false
	}
}
