package dao

import (
	"sync"
	"testing"
	"time"

	"github.com/justpiple/whatsapp-messaging-api/model"
	"github.com/stretchr/testify/require"
)

func newJob(recipient string) *model.MessageJob {
	return &model.MessageJob{
		Ref:           "ref-" + recipient,
		Type:          model.TypeText,
		Recipient:     recipient,
		Payload:       []byte(`{"type":"text","text":{"body":"hi"}}`),
		Status:        model.PENDING,
		NextAttemptAt: time.Now(),
		CreatedAt:     time.Now(),
	}
}

func TestJobDao_CreateAndGet(t *testing.T) {
	db, cleanup := createDB(t)
	defer cleanup()
	jobDao := NewJobDao(db)

	id, err := jobDao.Create(newJob(PHONE))
	require.NoError(t, err)
	require.True(t, id > 0)

	job, err := jobDao.GetOneById(id)
	require.NoError(t, err)
	require.Equal(t, model.PENDING, job.Status)
	require.Equal(t, 0, job.RetryCount)
}

func TestJobDao_ClaimNext(t *testing.T) {
	db, cleanup := createDB(t)
	defer cleanup()
	jobDao := NewJobDao(db)

	id, err := jobDao.Create(newJob(PHONE))
	require.NoError(t, err)

	job, ok, err := jobDao.ClaimNext(time.Now())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, id, job.Id)
	require.Equal(t, model.ACTIVE, job.Status)

	//nothing left to claim
	_, ok, err = jobDao.ClaimNext(time.Now())
	require.NoError(t, err)
	require.False(t, ok)
}

func TestJobDao_ClaimNextSkipsFutureAttempts(t *testing.T) {
	db, cleanup := createDB(t)
	defer cleanup()
	jobDao := NewJobDao(db)

	job := newJob(PHONE)
	job.NextAttemptAt = time.Now().Add(time.Hour)
	_, err := jobDao.Create(job)
	require.NoError(t, err)

	_, ok, err := jobDao.ClaimNext(time.Now())
	require.NoError(t, err)
	require.False(t, ok, "job inside its backoff window must not be claimable")

	_, ok, err = jobDao.ClaimNext(time.Now().Add(2 * time.Hour))
	require.NoError(t, err)
	require.True(t, ok)
}

func TestJobDao_ClaimNextOldestFirst(t *testing.T) {
	db, cleanup := createDB(t)
	defer cleanup()
	jobDao := NewJobDao(db)

	older := newJob(PHONE)
	older.CreatedAt = time.Now().Add(-time.Minute)
	olderId, err := jobDao.Create(older)
	require.NoError(t, err)

	_, err = jobDao.Create(newJob(PHONE2))
	require.NoError(t, err)

	job, ok, err := jobDao.ClaimNext(time.Now())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, olderId, job.Id)
}

func TestJobDao_ConcurrentClaim(t *testing.T) {
	db, cleanup := createDB(t)
	defer cleanup()
	jobDao := NewJobDao(db)

	_, err := jobDao.Create(newJob(PHONE))
	require.NoError(t, err)

	var mu sync.Mutex
	var wg sync.WaitGroup
	won := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok, err := jobDao.ClaimNext(time.Now())
			require.NoError(t, err)
			if ok {
				mu.Lock()
				won++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 1, won, "exactly one claimant may win a pending job")
}

func TestJobDao_ReleaseAndReclaim(t *testing.T) {
	db, cleanup := createDB(t)
	defer cleanup()
	jobDao := NewJobDao(db)

	id, err := jobDao.Create(newJob(PHONE))
	require.NoError(t, err)

	_, ok, err := jobDao.ClaimNext(time.Now())
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, jobDao.Release(id, 1, time.Now().Add(-time.Second), "send failed"))

	job, err := jobDao.GetOneById(id)
	require.NoError(t, err)
	require.Equal(t, model.PENDING, job.Status)
	require.Equal(t, 1, job.RetryCount)
	require.Equal(t, "send failed", job.LastError)

	_, ok, err = jobDao.ClaimNext(time.Now())
	require.NoError(t, err)
	require.True(t, ok)
}

func TestJobDao_MarkSent(t *testing.T) {
	db, cleanup := createDB(t)
	defer cleanup()
	jobDao := NewJobDao(db)

	id, err := jobDao.Create(newJob(PHONE))
	require.NoError(t, err)

	require.NoError(t, jobDao.MarkSent(id, "wamid.XYZ"))

	job, err := jobDao.GetOneById(id)
	require.NoError(t, err)
	require.Equal(t, model.SENT, job.Status)
	require.Equal(t, "wamid.XYZ", job.ExternalId)
	require.NotNil(t, job.SentAt)
}

func TestJobDao_MarkFailed(t *testing.T) {
	db, cleanup := createDB(t)
	defer cleanup()
	jobDao := NewJobDao(db)

	id, err := jobDao.Create(newJob(PHONE))
	require.NoError(t, err)

	require.NoError(t, jobDao.MarkFailed(id, 3, "gave up"))

	job, err := jobDao.GetOneById(id)
	require.NoError(t, err)
	require.Equal(t, model.FAILED, job.Status)
	require.Equal(t, 3, job.RetryCount)
}

func TestJobDao_Cancel(t *testing.T) {
	db, cleanup := createDB(t)
	defer cleanup()
	jobDao := NewJobDao(db)

	id, err := jobDao.Create(newJob(PHONE))
	require.NoError(t, err)

	ok, err := jobDao.Cancel(id)
	require.NoError(t, err)
	require.True(t, ok)

	job, err := jobDao.GetOneById(id)
	require.NoError(t, err)
	require.Equal(t, model.CANCELLED, job.Status)

	//cancelled job cannot be claimed
	_, claimed, err := jobDao.ClaimNext(time.Now())
	require.NoError(t, err)
	require.False(t, claimed)
}

func TestJobDao_CancelNonPending(t *testing.T) {
	db, cleanup := createDB(t)
	defer cleanup()
	jobDao := NewJobDao(db)

	id, err := jobDao.Create(newJob(PHONE))
	require.NoError(t, err)

	require.NoError(t, jobDao.MarkSent(id, "wamid.A"))

	ok, err := jobDao.Cancel(id)
	require.NoError(t, err)
	require.False(t, ok)

	job, err := jobDao.GetOneById(id)
	require.NoError(t, err)
	require.Equal(t, model.SENT, job.Status, "failed cancel must not mutate state")
}

func TestJobDao_CountByAccount(t *testing.T) {
	db, cleanup := createDB(t)
	defer cleanup()
	jobDao := NewJobDao(db)

	for i := 0; i < 3; i++ {
		job := newJob(PHONE)
		job.Ref = job.Ref + string(rune('a'+i))
		job.AccountId = 1
		_, err := jobDao.Create(job)
		require.NoError(t, err)
	}

	count, err := jobDao.CountByAccount(1)
	require.NoError(t, err)
	require.Equal(t, 3, count)

	count, err = jobDao.CountByAccount(2)
	require.NoError(t, err)
	require.Equal(t, 0, count)
}

func TestJobDao_RemoveTerminalOlderThanDays(t *testing.T) {
	db, cleanup := createDB(t)
	defer cleanup()
	jobDao := NewJobDao(db)

	old := newJob(PHONE)
	old.CreatedAt = time.Now().Add(-48 * time.Hour)
	oldId, err := jobDao.Create(old)
	require.NoError(t, err)
	require.NoError(t, jobDao.MarkSent(oldId, "wamid.OLD"))

	//old but still pending, must survive the prune
	oldPending := newJob(PHONE2)
	oldPending.CreatedAt = time.Now().Add(-48 * time.Hour)
	oldPendingId, err := jobDao.Create(oldPending)
	require.NoError(t, err)

	require.NoError(t, jobDao.RemoveTerminalOlderThanDays(1))

	_, err = jobDao.GetOneById(oldId)
	require.Error(t, err)

	_, err = jobDao.GetOneById(oldPendingId)
	require.NoError(t, err)
}
