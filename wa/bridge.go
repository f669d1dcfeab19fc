package wa

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/dchest/uniuri"
	"github.com/gorilla/websocket"
	"github.com/justpiple/whatsapp-messaging-api/model"
	"github.com/justpiple/whatsapp-messaging-api/session"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

//The bridge transport speaks JSON frames over a websocket to an external
//protocol sidecar. Outgoing frames carry a correlation id; the sidecar
//answers with an ack frame of the same id and pushes unsolicited event
//frames for connection lifecycle changes.

const (
	opInit    = "init"
	opSend    = "send"
	opLogout  = "logout"
	opAck     = "ack"
	opEvent   = "event"
	opSession = "session"

	evConnected    = "connected"
	evDisconnected = "disconnected"
	evCredentials  = "credentials_updated"
	evPairing      = "pairing_code_ready"
)

type frame struct {
	Op          string                     `json:"op"`
	Id          string                     `json:"id,omitempty"`
	Phone       string                     `json:"phone,omitempty"`
	Recipient   string                     `json:"recipient,omitempty"`
	Payload     *model.Payload             `json:"payload,omitempty"`
	Creds       json.RawMessage            `json:"creds,omitempty"`
	Ops         []session.Op               `json:"ops,omitempty"`
	Results     map[string]json.RawMessage `json:"results,omitempty"`
	Event       string                     `json:"event,omitempty"`
	Reason      string                     `json:"reason,omitempty"`
	Terminal    bool                       `json:"terminal,omitempty"`
	PairingCode string                     `json:"pairingCode,omitempty"`
	MessageId   string                     `json:"messageId,omitempty"`
	Error       string                     `json:"error,omitempty"`
}

//Keystore persists the protocol key material the sidecar pushes in
//session frames. Implemented by session.Store.
type Keystore interface {
	Execute(ctx context.Context, accountId uint32, ops []session.Op) map[string]interface{}
}

type BridgeTransport struct {
	url         string
	sendPerSec  int
	dialTimeout time.Duration
	keystore    Keystore
	logger      *zap.Logger
}

func NewBridgeTransport(url string, sendPerSec int, keystore Keystore, logger *zap.Logger) *BridgeTransport {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BridgeTransport{
		url:         url,
		sendPerSec:  sendPerSec,
		dialTimeout: 20 * time.Second,
		keystore:    keystore,
		logger:      logger,
	}
}

func (t *BridgeTransport) Connect(ctx context.Context, account model.Account, creds interface{}) (Handle, error) {
	dialCtx, cancel := context.WithTimeout(ctx, t.dialTimeout)
	defer cancel()

	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, t.url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial bridge: %w", err)
	}

	init := frame{Op: opInit, Phone: account.Phone}
	if creds != nil {
		encoded, err := session.Encode(creds)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("encode creds: %w", err)
		}
		init.Creds = encoded
	}
	if err := conn.WriteJSON(init); err != nil {
		conn.Close()
		return nil, fmt.Errorf("init bridge session: %w", err)
	}

	limit := rate.Inf
	if t.sendPerSec > 0 {
		limit = rate.Limit(t.sendPerSec)
	}
	h := &bridgeHandle{
		conn:      conn,
		accountId: account.Id,
		keystore:  t.keystore,
		events:    make(chan Event, 16),
		pending:   make(map[string]chan frame),
		limiter:   rate.NewLimiter(limit, 1),
		logger:    t.logger.With(zap.Uint32("account", account.Id)),
	}
	go h.readLoop()

	return h, nil
}

type bridgeHandle struct {
	conn      *websocket.Conn
	accountId uint32
	keystore  Keystore
	events    chan Event
	limiter   *rate.Limiter
	logger    *zap.Logger

	mu      sync.Mutex
	pending map[string]chan frame
	closed  bool
}

func (h *bridgeHandle) Send(ctx context.Context, recipient string, payload model.Payload) (string, error) {
	if err := h.limiter.Wait(ctx); err != nil {
		return "", err
	}

	reply, err := h.roundTrip(ctx, frame{
		Op:        opSend,
		Id:        uniuri.NewLen(12),
		Recipient: recipient,
		Payload:   &payload,
	})
	if err != nil {
		return "", err
	}
	if reply.Error != "" {
		return "", fmt.Errorf("bridge send: %s", reply.Error)
	}
	return reply.MessageId, nil
}

func (h *bridgeHandle) Logout(ctx context.Context) error {
	reply, err := h.roundTrip(ctx, frame{Op: opLogout, Id: uniuri.NewLen(12)})
	if err != nil {
		return err
	}
	if reply.Error != "" {
		return fmt.Errorf("bridge logout: %s", reply.Error)
	}
	return nil
}

func (h *bridgeHandle) Events() <-chan Event {
	return h.events
}

func (h *bridgeHandle) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	h.mu.Unlock()
	h.conn.Close()
}

func (h *bridgeHandle) roundTrip(ctx context.Context, f frame) (frame, error) {
	reply := make(chan frame, 1)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return frame{}, ErrNotConnected
	}
	h.pending[f.Id] = reply
	err := h.conn.WriteJSON(f)
	h.mu.Unlock()

	if err != nil {
		h.forget(f.Id)
		return frame{}, err
	}

	select {
	case <-ctx.Done():
		h.forget(f.Id)
		return frame{}, ctx.Err()
	case r, ok := <-reply:
		if !ok {
			return frame{}, ErrNotConnected
		}
		return r, nil
	}
}

func (h *bridgeHandle) forget(id string) {
	h.mu.Lock()
	delete(h.pending, id)
	h.mu.Unlock()
}

func (h *bridgeHandle) readLoop() {
	defer h.drainPending()
	defer close(h.events)

	for {
		var f frame
		if err := h.conn.ReadJSON(&f); err != nil {
			h.mu.Lock()
			closed := h.closed
			h.mu.Unlock()
			if !closed {
				h.logger.Warn("bridge read failed", zap.Error(err))
				h.events <- Event{Kind: EventDisconnected, Reason: err.Error()}
			}
			return
		}

		switch f.Op {
		case opAck:
			h.mu.Lock()
			reply, ok := h.pending[f.Id]
			delete(h.pending, f.Id)
			h.mu.Unlock()
			if ok {
				reply <- f
			}
		case opEvent:
			h.dispatchEvent(f)
		case opSession:
			go h.serveSessionOps(f)
		default:
			h.logger.Debug("bridge frame of unknown op dropped", zap.String("op", f.Op))
		}
	}
}

func (h *bridgeHandle) dispatchEvent(f frame) {
	switch f.Event {
	case evConnected:
		h.events <- Event{Kind: EventConnected}
	case evDisconnected:
		h.events <- Event{Kind: EventDisconnected, Reason: f.Reason, Terminal: f.Terminal}
	case evCredentials:
		creds, err := session.Decode(f.Creds)
		if err != nil {
			h.logger.Warn("bridge sent undecodable credentials", zap.Error(err))
			return
		}
		h.events <- Event{Kind: EventCredentialsUpdated, Credentials: creds}
	case evPairing:
		h.events <- Event{Kind: EventPairingCode, PairingCode: f.PairingCode}
	default:
		h.logger.Debug("bridge event of unknown kind dropped", zap.String("event", f.Event))
	}
}

//serveSessionOps executes a key material batch pushed by the sidecar and
//acks it with the read results. Item failures are already isolated and
//logged inside the keystore.
func (h *bridgeHandle) serveSessionOps(f frame) {
	reply := frame{Op: opAck, Id: f.Id}
	if h.keystore == nil {
		reply.Error = "no keystore attached"
		h.writeFrame(reply)
		return
	}

	results := h.keystore.Execute(context.Background(), h.accountId, f.Ops)
	reply.Results = make(map[string]json.RawMessage, len(results))
	for id, value := range results {
		encoded, err := session.Encode(value)
		if err != nil {
			h.logger.Warn("session read result not encodable", zap.String("op", id), zap.Error(err))
			continue
		}
		reply.Results[id] = encoded
	}
	h.writeFrame(reply)
}

func (h *bridgeHandle) writeFrame(f frame) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	if err := h.conn.WriteJSON(f); err != nil {
		h.logger.Warn("bridge write failed", zap.Error(err))
	}
}

func (h *bridgeHandle) drainPending() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, reply := range h.pending {
		close(reply)
		delete(h.pending, id)
	}
}
