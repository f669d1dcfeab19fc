package wa

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/asdine/storm/v3"
	"github.com/cskr/pubsub"
	"github.com/justpiple/whatsapp-messaging-api/dao"
	"github.com/justpiple/whatsapp-messaging-api/model"
	"github.com/justpiple/whatsapp-messaging-api/session"
	"go.uber.org/zap"
)

//SocketState is the in-process connection state of one account. The db only
//knows INACTIVE/ACTIVE; the intermediate states live here.
type SocketState string

const (
	SocketConnecting SocketState = "CONNECTING"
	SocketActive     SocketState = "ACTIVE"
	SocketClosing    SocketState = "CLOSING"
	SocketReconnect  SocketState = "RECONNECT_SCHEDULED"

	credsIdentifier = "creds"
)

//StatusInfo pairs the persisted account status with the live socket state.
//Live is false when no in-process handle exists, e.g. right after a process
//restart before the reconnect completed.
type StatusInfo struct {
	DbStatus string      `json:"status"`
	Socket   SocketState `json:"socketState,omitempty"`
	Live     bool        `json:"live"`
}

type conn struct {
	state  SocketState
	handle Handle
}

//Manager owns one lifecycle state machine per account and the only mapping
//from account id to live transport handle.
type Manager struct {
	transport Transport
	accounts  dao.AccountDao
	affinity  dao.AffinityDao
	sessions  *session.Store
	ps        *pubsub.PubSub
	logger    *zap.Logger

	reconnectDelay time.Duration
	restartPause   time.Duration

	mu    sync.Mutex
	conns map[uint32]*conn
}

func NewManager(transport Transport, accounts dao.AccountDao, affinity dao.AffinityDao,
	sessions *session.Store, reconnectDelaySec int, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if reconnectDelaySec <= 0 {
		reconnectDelaySec = 5
	}
	return &Manager{
		transport:      transport,
		accounts:       accounts,
		affinity:       affinity,
		sessions:       sessions,
		ps:             pubsub.New(100),
		logger:         logger,
		reconnectDelay: time.Duration(reconnectDelaySec) * time.Second,
		restartPause:   time.Second,
		conns:          make(map[uint32]*conn),
	}
}

func pairingTopic(accountId uint32) string {
	return fmt.Sprintf("pairing.%d", accountId)
}

//SubscribePairing returns a channel of pairing codes for the account and an
//unsubscribe func. The manager never renders codes, it only surfaces them.
func (m *Manager) SubscribePairing(accountId uint32) (chan interface{}, func()) {
	topic := pairingTopic(accountId)
	ch := m.ps.Sub(topic)
	return ch, func() { m.ps.Unsub(ch, topic) }
}

//Open connects the account. Calling it while the account is already
//CONNECTING or ACTIVE is a no-op that returns success.
func (m *Manager) Open(ctx context.Context, accountId uint32) error {
	m.mu.Lock()
	if c, ok := m.conns[accountId]; ok && (c.state == SocketConnecting || c.state == SocketActive) {
		m.mu.Unlock()
		return nil
	}
	placeholder := &conn{state: SocketConnecting}
	m.conns[accountId] = placeholder
	m.mu.Unlock()

	account, err := m.accounts.GetOneById(accountId)
	if err != nil {
		m.dropConn(accountId, placeholder)
		if errors.Is(err, storm.ErrNotFound) {
			return ErrAccountNotFound
		}
		return err
	}

	//absent creds means first run, the transport will start a pairing flow
	creds, _, err := m.sessions.Read(ctx, accountId, credsIdentifier)
	if err != nil {
		m.dropConn(accountId, placeholder)
		return fmt.Errorf("load session state: %w", err)
	}

	handle, err := m.transport.Connect(ctx, account, creds)
	if err != nil {
		m.dropConn(accountId, placeholder)
		return err
	}

	m.mu.Lock()
	if m.conns[accountId] != placeholder {
		//state machine moved on while we were dialing, discard this handle
		m.mu.Unlock()
		handle.Close()
		return nil
	}
	placeholder.handle = handle
	m.mu.Unlock()

	go m.watch(accountId, placeholder, handle)

	m.logger.Info("account connecting", zap.Uint32("account", accountId), zap.String("phone", account.Phone))
	return nil
}

//watch consumes lifecycle events of one handle until it disconnects.
func (m *Manager) watch(accountId uint32, c *conn, handle Handle) {
	for ev := range handle.Events() {
		if !m.isCurrent(accountId, c) {
			//another open/close superseded this handle
			handle.Close()
			return
		}

		switch ev.Kind {
		case EventConnected:
			m.setState(c, SocketActive)
			m.persistStatus(accountId, model.ACTIVE)

		case EventCredentialsUpdated:
			err := m.sessions.Write(context.Background(), accountId, credsIdentifier, ev.Credentials)
			if err != nil {
				m.logger.Error("persisting credentials failed", zap.Uint32("account", accountId), zap.Error(err))
			}

		case EventPairingCode:
			m.ps.Pub(ev.PairingCode, pairingTopic(accountId))

		case EventDisconnected:
			m.setState(c, SocketClosing)
			m.persistStatus(accountId, model.INACTIVE)
			handle.Close()

			if ev.Terminal {
				//logged out remotely, a fresh pairing flow is required
				m.logger.Warn("account logged out", zap.Uint32("account", accountId), zap.String("reason", ev.Reason))
				m.dropConn(accountId, c)
				return
			}

			m.logger.Warn("account disconnected, reconnect scheduled",
				zap.Uint32("account", accountId), zap.String("reason", ev.Reason))
			m.setState(c, SocketReconnect)
			time.AfterFunc(m.reconnectDelay, func() {
				m.dropConn(accountId, c)
				if err := m.Open(context.Background(), accountId); err != nil && !errors.Is(err, ErrAccountNotFound) {
					m.logger.Error("reconnect failed", zap.Uint32("account", accountId), zap.Error(err))
				}
			})
			return
		}
	}
}

//Close logs the account out best effort, then removes it together with its
//session state and recipient affinities.
func (m *Manager) Close(ctx context.Context, accountId uint32) error {
	_, err := m.accounts.GetOneById(accountId)
	if errors.Is(err, storm.ErrNotFound) {
		return ErrAccountNotFound
	}
	if err != nil {
		return err
	}

	m.mu.Lock()
	c := m.conns[accountId]
	delete(m.conns, accountId)
	m.mu.Unlock()

	if c != nil && c.handle != nil {
		//the caller's intent is irreversible removal, logout failures
		//are logged and swallowed
		logoutCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		if err := c.handle.Logout(logoutCtx); err != nil {
			m.logger.Warn("logout failed during account removal", zap.Uint32("account", accountId), zap.Error(err))
		}
		cancel()
		c.handle.Close()
	}

	if err := m.accounts.SoftDelete(accountId); err != nil {
		return err
	}
	if err := m.sessions.DropAccount(accountId); err != nil {
		m.logger.Error("dropping session state failed", zap.Uint32("account", accountId), zap.Error(err))
	}
	if err := m.affinity.DeleteAllByAccountId(accountId); err != nil {
		m.logger.Error("dropping recipient affinities failed", zap.Uint32("account", accountId), zap.Error(err))
	}

	m.logger.Info("account removed", zap.Uint32("account", accountId))
	return nil
}

//Restart drops the current connection and opens a fresh one. Whatever
//happens the account never lingers in CONNECTING: failures force INACTIVE.
func (m *Manager) Restart(ctx context.Context, accountId uint32) error {
	_, err := m.accounts.GetOneById(accountId)
	if errors.Is(err, storm.ErrNotFound) {
		return ErrAccountNotFound
	}
	if err != nil {
		return err
	}

	m.mu.Lock()
	c := m.conns[accountId]
	delete(m.conns, accountId)
	m.mu.Unlock()

	if c != nil && c.handle != nil {
		logoutCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		if err := c.handle.Logout(logoutCtx); err != nil {
			m.logger.Warn("logout failed during restart", zap.Uint32("account", accountId), zap.Error(err))
		}
		cancel()
		c.handle.Close()
	}

	m.persistStatus(accountId, model.INACTIVE)

	time.Sleep(m.restartPause)

	if err := m.Open(ctx, accountId); err != nil {
		m.persistStatus(accountId, model.INACTIVE)
		return err
	}
	return nil
}

//Status reports the persisted status together with the live socket state.
func (m *Manager) Status(accountId uint32) (StatusInfo, error) {
	account, err := m.accounts.GetOneById(accountId)
	if errors.Is(err, storm.ErrNotFound) {
		return StatusInfo{}, ErrAccountNotFound
	}
	if err != nil {
		return StatusInfo{}, err
	}

	info := StatusInfo{DbStatus: account.Status}
	m.mu.Lock()
	if c, ok := m.conns[accountId]; ok {
		info.Socket = c.state
		info.Live = true
	}
	m.mu.Unlock()
	return info, nil
}

//BootstrapAll opens every known account at process start. Intentionally
//sequential: a mass concurrent reconnect would trip the backend's rate
//limiting.
func (m *Manager) BootstrapAll(ctx context.Context) {
	accounts, err := m.accounts.GetAll()
	if err != nil {
		m.logger.Error("loading accounts for bootstrap failed", zap.Error(err))
		return
	}
	for _, account := range accounts {
		if err := m.Open(ctx, account.Id); err != nil {
			m.logger.Error("bootstrap open failed",
				zap.Uint32("account", account.Id), zap.String("phone", account.Phone), zap.Error(err))
		}
	}
}

//LiveHandle returns the handle of an ACTIVE account.
func (m *Manager) LiveHandle(accountId uint32) (Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.conns[accountId]
	if !ok || c.state != SocketActive || c.handle == nil {
		return nil, ErrNotConnected
	}
	return c.handle, nil
}

//IsActive reports whether the account has a live ACTIVE socket.
func (m *Manager) IsActive(accountId uint32) bool {
	_, err := m.LiveHandle(accountId)
	return err == nil
}

func (m *Manager) isCurrent(accountId uint32, c *conn) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conns[accountId] == c
}

func (m *Manager) setState(c *conn, state SocketState) {
	m.mu.Lock()
	c.state = state
	m.mu.Unlock()
}

func (m *Manager) dropConn(accountId uint32, c *conn) {
	m.mu.Lock()
	if m.conns[accountId] == c {
		delete(m.conns, accountId)
	}
	m.mu.Unlock()
}

//persistStatus writes the account status, tolerating a row that vanished
//mid-flight: a concurrently deleted account is given up on silently.
func (m *Manager) persistStatus(accountId uint32, status string) {
	err := m.accounts.UpdateStatus(accountId, status)
	if errors.Is(err, storm.ErrNotFound) {
		return
	}
	if err != nil {
		m.logger.Error("persisting account status failed",
			zap.Uint32("account", accountId), zap.String("status", status), zap.Error(err))
	}
}
