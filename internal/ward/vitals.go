package ward

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/tidwall/gjson"
)

//go:generate mockgen -source=vitals.go -destination=mock_conn_test.go -package=ward -mock_names wsConn=MockWSConn

const (
	vitalsStreamPath = "/api/vitals/stream"

	// wsReadLimit caps inbound message size. Vitals updates are small;
	// anything near this limit indicates a misbehaving server.
	wsReadLimit = 1 << 20

	// updateChanSize buffers updates so a slow consumer does not
	// immediately stall the read loop.
	updateChanSize = 64
)

// wsConn abstracts the WebSocket connection so VitalsStream can be
// tested without a real server. *websocket.Conn satisfies this interface.
type wsConn interface {
	Read(ctx context.Context) (websocket.MessageType, []byte, error)
	Write(ctx context.Context, typ websocket.MessageType, p []byte) error
	Close(code websocket.StatusCode, reason string) error
	SetReadLimit(n int64)
}

// subscribeMessage is sent as the first message after connect.
type subscribeMessage struct {
	Op    string `json:"op"`
	Token string `json:"token"`
}

// subscribeResponse is the server reply to a subscribe message.
type subscribeResponse struct {
	Res string `json:"res"`
	Msg string `json:"msg"`
}

// VitalsStream follows the live vitals feed over a WebSocket. Connect
// dials and authenticates, Listen reads until the context is cancelled,
// and updates are delivered on Updates. The stream does not refresh an
// expired token itself; callers re-authenticate and reconnect.
type VitalsStream struct {
	conn   wsConn
	logger *slog.Logger

	host  string
	token string

	updates chan VitalsUpdate
}

// NewVitalsStream creates a stream for the given host and access token.
func NewVitalsStream(host, token string, logger *slog.Logger) *VitalsStream {
	return &VitalsStream{
		logger:  logger,
		host:    host,
		token:   token,
		updates: make(chan VitalsUpdate, updateChanSize),
	}
}

// Updates returns the channel of live vitals updates. It is closed when
// Listen returns.
func (s *VitalsStream) Updates() <-chan VitalsUpdate {
	return s.updates
}

// Connect dials the WebSocket, sends the subscribe message, and waits
// for the server to confirm the subscription.
func (s *VitalsStream) Connect(ctx context.Context) error {
	url := "wss://" + s.host + vitalsStreamPath
	s.logger.Debug("connecting", slog.String("url", url))

	conn, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{ //nolint:bodyclose // websocket.Dial closes the response body internally
		HTTPHeader: http.Header{
			"Authorization": []string{"Bearer " + s.token},
		},
	})
	if err != nil {
		return fmt.Errorf("dialing vitals stream: %w", err)
	}

	return s.handshake(ctx, conn)
}

// handshake performs the post-dial subscribe sequence. Extracted from
// Connect so it can be tested with a mock wsConn without a real network
// connection.
func (s *VitalsStream) handshake(ctx context.Context, conn wsConn) error {
	s.conn = conn
	s.conn.SetReadLimit(wsReadLimit)

	sub := subscribeMessage{Op: "subscribe", Token: s.token}

	if err := s.writeJSON(ctx, sub); err != nil {
		s.conn.Close(websocket.StatusInternalError, "subscribe failed")
		return fmt.Errorf("sending subscribe: %w", err)
	}

	var resp subscribeResponse
	if err := s.readJSON(ctx, &resp); err != nil {
		s.conn.Close(websocket.StatusInternalError, "subscribe read failed")
		return fmt.Errorf("reading subscribe response: %w", err)
	}

	if resp.Res != "ok" {
		msg := resp.Msg
		if msg == "" {
			msg = resp.Res
		}

		s.conn.Close(websocket.StatusNormalClosure, "subscribe rejected")

		return fmt.Errorf("subscribe rejected: %s", msg)
	}

	s.logger.Info("vitals stream subscribed")

	return nil
}

// Listen reads messages until the context is cancelled or the
// connection drops, dispatching vitals updates onto the updates channel.
// The updates channel is closed on return.
func (s *VitalsStream) Listen(ctx context.Context) error {
	defer close(s.updates)
	defer s.conn.Close(websocket.StatusNormalClosure, "done")

	for {
		_, data, err := s.conn.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}

			return fmt.Errorf("reading vitals stream: %w", err)
		}

		switch op := gjson.GetBytes(data, "op").Str; op {
		case "vitals":
			var update VitalsUpdate
			if err := json.Unmarshal(data, &update); err != nil {
				s.logger.Warn("malformed vitals update", slog.Any("error", err))
				continue
			}

			select {
			case s.updates <- update:
			case <-ctx.Done():
				return nil
			}

		case "ping":
			if err := s.writeJSON(ctx, map[string]string{"op": "pong"}); err != nil {
				return fmt.Errorf("answering ping: %w", err)
			}

		default:
			s.logger.Debug("ignoring message", slog.String("op", op))
		}
	}
}

func (s *VitalsStream) writeJSON(ctx context.Context, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshalling message: %w", err)
	}

	wctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	return s.conn.Write(wctx, websocket.MessageText, data)
}

func (s *VitalsStream) readJSON(ctx context.Context, v any) error {
	_, data, err := s.conn.Read(ctx)
	if err != nil {
		return err
	}

	return json.Unmarshal(data, v)
}
