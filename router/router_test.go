package router

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/asdine/storm/v3"
	"github.com/justpiple/whatsapp-messaging-api/dao"
	"github.com/justpiple/whatsapp-messaging-api/model"
	"github.com/stretchr/testify/require"
)

type fakeLive struct {
	active map[uint32]bool
}

func (f fakeLive) IsActive(accountId uint32) bool {
	return f.active[accountId]
}

type routerEnv struct {
	router   *Router
	live     fakeLive
	accounts dao.AccountDao
	affinity dao.AffinityDao
	jobs     dao.JobDao
}

func newRouterEnv(t *testing.T) *routerEnv {
	db, err := storm.Open(filepath.Join(t.TempDir(), "storm.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	env := &routerEnv{
		live:     fakeLive{active: make(map[uint32]bool)},
		accounts: dao.NewAccountDao(db),
		affinity: dao.NewAffinityDao(db),
		jobs:     dao.NewJobDao(db),
	}
	env.router = New("62", env.accounts, env.affinity, env.jobs, env.live, nil)
	return env
}

//addAccount creates an ACTIVE account with {load} message-log rows
func (e *routerEnv) addAccount(t *testing.T, phone string, load int) uint32 {
	account, err := e.accounts.Create(phone)
	require.NoError(t, err)
	require.NoError(t, e.accounts.UpdateStatus(account.Id, model.ACTIVE))
	e.live.active[account.Id] = true

	for i := 0; i < load; i++ {
		_, err := e.jobs.Create(&model.MessageJob{
			Ref:       phone + "-" + string(rune('a'+i)),
			Type:      model.TypeText,
			AccountId: account.Id,
			Recipient: "628000",
			Status:    model.SENT,
			CreatedAt: time.Now(),
		})
		require.NoError(t, err)
	}
	return account.Id
}

func TestRouter_Normalize(t *testing.T) {
	env := newRouterEnv(t)

	require.Equal(t, "6281234567890", env.router.Normalize("081234567890"))
	require.Equal(t, "6281234567890", env.router.Normalize("81234567890"))
	require.Equal(t, "6281234567890", env.router.Normalize("6281234567890"))
	require.Equal(t, "6281234567890", env.router.Normalize("+62 812-3456-7890"))
}

func TestRouter_ResolveSticksToSingleAccount(t *testing.T) {
	env := newRouterEnv(t)
	only := env.addAccount(t, "6280000000001", 0)

	for i := 0; i < 5; i++ {
		accountId, err := env.router.Resolve("6281234567890")
		require.NoError(t, err)
		require.Equal(t, only, accountId)
	}
}

func TestRouter_ResolvePrefersLeastLoaded(t *testing.T) {
	env := newRouterEnv(t)
	env.addAccount(t, "6280000000001", 5)
	lightest := env.addAccount(t, "6280000000002", 2)

	accountId, err := env.router.Resolve("6281234567890")
	require.NoError(t, err)
	require.Equal(t, lightest, accountId)

	//affinity persisted
	affinity, err := env.affinity.GetOneByRecipient("6281234567890")
	require.NoError(t, err)
	require.Equal(t, lightest, affinity.AccountId)
}

func TestRouter_ResolveTieBreaksOnLowestId(t *testing.T) {
	env := newRouterEnv(t)
	first := env.addAccount(t, "6280000000001", 1)
	env.addAccount(t, "6280000000002", 1)

	accountId, err := env.router.Resolve("6281234567890")
	require.NoError(t, err)
	require.Equal(t, first, accountId)
}

func TestRouter_ResolveMigratesWhenStickyAccountDown(t *testing.T) {
	env := newRouterEnv(t)
	sticky := env.addAccount(t, "6280000000001", 0)
	fallback := env.addAccount(t, "6280000000002", 10)

	accountId, err := env.router.Resolve("6281234567890")
	require.NoError(t, err)
	require.Equal(t, sticky, accountId)

	//sticky account loses its socket
	env.live.active[sticky] = false

	accountId, err = env.router.Resolve("6281234567890")
	require.NoError(t, err)
	require.Equal(t, fallback, accountId)

	//mapping followed the migration
	affinity, err := env.affinity.GetOneByRecipient("6281234567890")
	require.NoError(t, err)
	require.Equal(t, fallback, affinity.AccountId)
}

func TestRouter_ResolveNoCapacity(t *testing.T) {
	env := newRouterEnv(t)

	_, err := env.router.Resolve("6281234567890")
	require.ErrorIs(t, err, ErrNoCapacity)
}

func TestRouter_ResolveIgnoresActiveRowWithoutSocket(t *testing.T) {
	env := newRouterEnv(t)
	ghost := env.addAccount(t, "6280000000001", 0)
	//db says ACTIVE but the process holds no handle, e.g. after a restart
	env.live.active[ghost] = false

	_, err := env.router.Resolve("6281234567890")
	require.ErrorIs(t, err, ErrNoCapacity)
}
