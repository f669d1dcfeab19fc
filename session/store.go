package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/asdine/storm/v3"
	"github.com/justpiple/whatsapp-messaging-api/cache"
	"github.com/justpiple/whatsapp-messaging-api/dao"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	OpGet    = "get"
	OpSet    = "set"
	OpDelete = "delete"

	//bound on concurrent batch items against the store
	batchConcurrency = 8
)

//Op is one item of a heterogeneous batch. Type is the logical namespace
//prefix of the owning protocol (e.g. "pre-key", "session", "sender-key"),
//Id keys the read result in the map returned by Execute.
type Op struct {
	Id         string      `json:"id"`
	Kind       string      `json:"kind"`
	Type       string      `json:"type,omitempty"`
	Identifier string      `json:"identifier"`
	Value      interface{} `json:"value,omitempty"`
}

func (o Op) key() string {
	if o.Type == "" {
		return o.Identifier
	}
	return o.Type + "-" + o.Identifier
}

//Store persists opaque per-(account, identifier) protocol state blobs.
//All operations are idempotent and safe for concurrent use across
//different identifiers of the same account.
type Store struct {
	sessions dao.SessionDao
	cache    cache.Cache
	logger   *zap.Logger
}

func NewStore(sessions dao.SessionDao, c cache.Cache, logger *zap.Logger) *Store {
	if c == nil {
		c = cache.Noop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{sessions: sessions, cache: c, logger: logger}
}

func cacheKey(accountId uint32, identifier string) string {
	return fmt.Sprintf("session:%d:%s", accountId, identifier)
}

//Write upserts the value of the (account, identifier) pair.
func (s *Store) Write(ctx context.Context, accountId uint32, identifier string, value interface{}) error {
	identifier = NormalizeIdentifier(identifier)

	encoded, err := Encode(value)
	if err != nil {
		return err
	}

	if err := s.sessions.Upsert(accountId, identifier, encoded); err != nil {
		return err
	}

	//cache is write-through and best effort
	if err := s.cache.Set(ctx, cacheKey(accountId, identifier), encoded); err != nil {
		s.logger.Warn("session cache write failed",
			zap.Uint32("account", accountId), zap.String("identifier", identifier), zap.Error(err))
	}
	return nil
}

//Read returns the value of the (account, identifier) pair. An absent key
//yields found=false with a nil error, which callers use to detect first run.
func (s *Store) Read(ctx context.Context, accountId uint32, identifier string) (interface{}, bool, error) {
	identifier = NormalizeIdentifier(identifier)

	if encoded, found, err := s.cache.Get(ctx, cacheKey(accountId, identifier)); err == nil && found {
		value, decErr := Decode(encoded)
		if decErr == nil {
			return value, true, nil
		}
		s.logger.Warn("session cache entry undecodable, falling through",
			zap.Uint32("account", accountId), zap.String("identifier", identifier), zap.Error(decErr))
	} else if err != nil {
		s.logger.Warn("session cache read failed",
			zap.Uint32("account", accountId), zap.String("identifier", identifier), zap.Error(err))
	}

	record, err := s.sessions.GetOne(accountId, identifier)
	if errors.Is(err, storm.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	value, err := Decode(record.Value)
	if err != nil {
		return nil, false, err
	}

	if err := s.cache.Set(ctx, cacheKey(accountId, identifier), record.Value); err != nil {
		s.logger.Warn("session cache backfill failed",
			zap.Uint32("account", accountId), zap.String("identifier", identifier), zap.Error(err))
	}
	return value, true, nil
}

//Delete removes the (account, identifier) pair. Absent keys are a no-op.
func (s *Store) Delete(ctx context.Context, accountId uint32, identifier string) error {
	identifier = NormalizeIdentifier(identifier)

	if err := s.sessions.Delete(accountId, identifier); err != nil {
		return err
	}
	if err := s.cache.Del(ctx, cacheKey(accountId, identifier)); err != nil {
		s.logger.Warn("session cache delete failed",
			zap.Uint32("account", accountId), zap.String("identifier", identifier), zap.Error(err))
	}
	return nil
}

//DropAccount removes every record of the account, e.g. on termination.
func (s *Store) DropAccount(accountId uint32) error {
	return s.sessions.DeleteAllByAccountId(accountId)
}

//Execute runs a heterogeneous batch concurrently. Read results are returned
//in a map keyed by the caller-supplied op id. Item failures are isolated and
//logged, one failed write never aborts its siblings; callers treat them as
//"state possibly stale".
func (s *Store) Execute(ctx context.Context, accountId uint32, ops []Op) map[string]interface{} {
	results := make(map[string]interface{})
	var mu sync.Mutex

	g := new(errgroup.Group)
	g.SetLimit(batchConcurrency)
	for i := range ops {
		op := ops[i]
		g.Go(func() error {
			//item failures are logged, never propagated, so that one bad
			//write cannot abort its siblings
			switch op.Kind {
			case OpGet:
				value, found, err := s.Read(ctx, accountId, op.key())
				if err != nil {
					s.logger.Warn("session batch get failed",
						zap.Uint32("account", accountId), zap.String("key", op.key()), zap.Error(err))
					return nil
				}
				if found {
					mu.Lock()
					results[op.Id] = value
					mu.Unlock()
				}
			case OpSet:
				if err := s.Write(ctx, accountId, op.key(), op.Value); err != nil {
					s.logger.Warn("session batch set failed",
						zap.Uint32("account", accountId), zap.String("key", op.key()), zap.Error(err))
				}
			case OpDelete:
				if err := s.Delete(ctx, accountId, op.key()); err != nil {
					s.logger.Warn("session batch delete failed",
						zap.Uint32("account", accountId), zap.String("key", op.key()), zap.Error(err))
				}
			default:
				s.logger.Warn("session batch op of unknown kind skipped",
					zap.String("kind", op.Kind), zap.String("key", op.key()))
			}
			return nil
		})
	}
	g.Wait()

	return results
}
