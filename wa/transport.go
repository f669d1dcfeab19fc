package wa

import (
	"context"
	"errors"

	"github.com/justpiple/whatsapp-messaging-api/model"
)

var (
	//ErrNotConnected is returned when an account has no live socket
	ErrNotConnected = errors.New("account is not connected")
	//ErrAccountNotFound is returned for accounts unknown to the db
	ErrAccountNotFound = errors.New("account not found")
)

//EventKind enumerates what a live handle can report back.
type EventKind int

const (
	EventConnected EventKind = iota
	EventDisconnected
	EventCredentialsUpdated
	EventPairingCode
)

//Event is one occurrence on a live transport handle.
type Event struct {
	Kind EventKind
	//Reason and Terminal qualify EventDisconnected. A terminal disconnect
	//(logged out) must not be retried, the account needs a fresh pairing.
	Reason   string
	Terminal bool
	//Credentials carries the in-memory credential snapshot of
	//EventCredentialsUpdated, already decoded from the wire
	Credentials interface{}
	//PairingCode carries the code of EventPairingCode
	PairingCode string
}

//Handle is one live connection of an account.
type Handle interface {
	//Send delivers a payload and returns the external message id
	Send(ctx context.Context, recipient string, payload model.Payload) (string, error)
	//Logout terminates the session on the remote side
	Logout(ctx context.Context) error
	//Events streams connection lifecycle events until the handle closes
	Events() <-chan Event
	//Close tears down the local connection without logging out
	Close()
}

//Transport opens live handles. The wire protocol itself (handshake, framing,
//encryption) lives behind this boundary and is not reproduced here.
type Transport interface {
	Connect(ctx context.Context, account model.Account, creds interface{}) (Handle, error)
}
