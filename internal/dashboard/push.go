package dashboard

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"storeprice/logger"
	"storeprice/models"
	"storeprice/reader"
)

var (
	errPushDisabled = errors.New("row push is disabled")
	errRateLimited  = errors.New("row push rate limit exceeded")
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

type pushResult struct {
	Offered  int    `json:"offered"`
	Admitted int    `json:"admitted"`
	Rows     int    `json:"rows"`
	Error    string `json:"error,omitempty"`
}

// decodePush parses a JSON array of rows and enforces the size limit.
func (s *Server) decodePush(body []byte) ([]models.RawRow, error) {
	rows, err := reader.DecodeJSON(body)
	if err != nil {
		return nil, err
	}
	if len(rows) > s.cfg.Push.MaxRows {
		return nil, fmt.Errorf("payload has %d rows, limit is %d", len(rows), s.cfg.Push.MaxRows)
	}
	return rows, nil
}

func (s *Server) appendPushed(source string, rows []models.RawRow) pushResult {
	admitted := s.deps.Feed.Append(rows...)
	logger.RecordFeedBatch(source, admitted)
	if s.deps.Metrics != nil {
		s.deps.Metrics.ObserveFeedBatch(source, admitted)
	}
	s.log.WithComponent("dashboard").WithFields(logger.Fields{
		"source":   source,
		"offered":  len(rows),
		"admitted": admitted,
	}).Info("rows pushed")
	return pushResult{Offered: len(rows), Admitted: admitted, Rows: s.deps.Feed.Len()}
}

// handlePushRows appends a JSON array of rows posted by an operator tool.
func (s *Server) handlePushRows(c *gin.Context) {
	if s.pushLimiter == nil {
		errorJSON(c, http.StatusForbidden, errPushDisabled)
		return
	}
	if !s.pushLimiter.Allow() {
		errorJSON(c, http.StatusTooManyRequests, errRateLimited)
		return
	}

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, 16<<20))
	if err != nil {
		errorJSON(c, http.StatusBadRequest, err)
		return
	}
	rows, err := s.decodePush(body)
	if err != nil {
		errorJSON(c, http.StatusBadRequest, err)
		return
	}
	c.JSON(http.StatusOK, s.appendPushed("push_api", rows))
}

// handlePushSocket accepts a websocket where every text message is a JSON
// array of rows. Each message is answered with a pushResult.
func (s *Server) handlePushSocket(c *gin.Context) {
	if s.pushLimiter == nil {
		errorJSON(c, http.StatusForbidden, errPushDisabled)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.WithComponent("dashboard").WithError(err).Warn("websocket upgrade failed")
		return
	}
	defer conn.Close()

	ctx := c.Request.Context()
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	log := s.log.WithComponent("dashboard").WithFields(logger.Fields{"remote": c.ClientIP()})
	log.Info("push socket connected")

	for {
		kind, msg, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) && ctx.Err() == nil {
				log.WithError(err).Debug("push socket closed")
			}
			return
		}
		if kind != websocket.TextMessage {
			continue
		}

		var res pushResult
		if !s.pushLimiter.Allow() {
			res.Error = errRateLimited.Error()
		} else if rows, err := s.decodePush(msg); err != nil {
			res.Error = err.Error()
		} else {
			res = s.appendPushed("push_socket", rows)
		}

		conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := conn.WriteJSON(res); err != nil {
			log.WithError(err).Debug("push socket write failed")
			return
		}
	}
}
