package dao

import (
	"time"

	"github.com/asdine/storm/v3"
	"github.com/asdine/storm/v3/q"
	"github.com/justpiple/whatsapp-messaging-api/model"
)

type JobDao interface {
	//Create persists a new PENDING job record and returns its id
	Create(job *model.MessageJob) (uint32, error)
	//GetOneById returns a job by id
	GetOneById(id uint32) (model.MessageJob, error)
	//ClaimNext atomically flips the oldest due PENDING job to ACTIVE.
	//Exactly one claimant wins a given job: the check and the flip happen
	//inside a single writable transaction, which bbolt serializes.
	ClaimNext(now time.Time) (model.MessageJob, bool, error)
	//Release puts a claimed job back to PENDING for a later attempt
	Release(id uint32, retryCount int, nextAttemptAt time.Time, lastError string) error
	//UpdateAccount binds a claimed job to the account chosen by the router
	UpdateAccount(id uint32, accountId uint32) error
	//MarkSent finishes a claimed job with terminal status SENT
	MarkSent(id uint32, externalId string) error
	//MarkFailed finishes a claimed job with terminal status FAILED
	MarkFailed(id uint32, retryCount int, lastError string) error
	//Cancel flips a PENDING job to CANCELLED, reporting whether it won the flip
	Cancel(id uint32) (bool, error)
	//CountByAccount returns the number of job records bound to the account
	CountByAccount(accountId uint32) (int, error)
	//RemoveTerminalOlderThanDays prunes finished jobs older than {days}
	RemoveTerminalOlderThanDays(days int) error
}

func NewJobDao(db Db) JobDao {
	return &jobDao{db: db}
}

type jobDao struct {
	db Db
}

func (d jobDao) Create(job *model.MessageJob) (uint32, error) {
	err := d.db.Save(job)
	return job.Id, err
}

func (d jobDao) GetOneById(id uint32) (job model.MessageJob, err error) {
	err = d.db.One("Id", id, &job)
	return
}

func (d jobDao) ClaimNext(now time.Time) (model.MessageJob, bool, error) {
	tx, err := d.db.Begin(true)
	if err != nil {
		return model.MessageJob{}, false, err
	}
	defer tx.Rollback()

	var candidates []model.MessageJob
	err = tx.Select(q.Eq("Status", model.PENDING), q.Lte("NextAttemptAt", now)).
		OrderBy("CreatedAt").Limit(1).Find(&candidates)
	if err == storm.ErrNotFound {
		return model.MessageJob{}, false, nil
	}
	if err != nil {
		return model.MessageJob{}, false, err
	}

	job := candidates[0]
	job.Status = model.ACTIVE
	err = tx.Save(&job)
	if err != nil {
		return model.MessageJob{}, false, err
	}

	return job, true, tx.Commit()
}

func (d jobDao) Release(id uint32, retryCount int, nextAttemptAt time.Time, lastError string) error {
	return d.update(id, func(job *model.MessageJob) {
		job.Status = model.PENDING
		job.RetryCount = retryCount
		job.NextAttemptAt = nextAttemptAt
		job.LastError = lastError
	})
}

func (d jobDao) UpdateAccount(id uint32, accountId uint32) error {
	return d.update(id, func(job *model.MessageJob) {
		job.AccountId = accountId
	})
}

func (d jobDao) MarkSent(id uint32, externalId string) error {
	now := time.Now()
	return d.update(id, func(job *model.MessageJob) {
		job.Status = model.SENT
		job.ExternalId = externalId
		job.SentAt = &now
		job.LastError = ""
	})
}

func (d jobDao) MarkFailed(id uint32, retryCount int, lastError string) error {
	return d.update(id, func(job *model.MessageJob) {
		job.Status = model.FAILED
		job.RetryCount = retryCount
		job.LastError = lastError
	})
}

func (d jobDao) Cancel(id uint32) (bool, error) {
	tx, err := d.db.Begin(true)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	var job model.MessageJob
	err = tx.One("Id", id, &job)
	if err != nil {
		return false, err
	}
	if job.Status != model.PENDING {
		return false, nil
	}

	job.Status = model.CANCELLED
	err = tx.Save(&job)
	if err != nil {
		return false, err
	}

	return true, tx.Commit()
}

func (d jobDao) CountByAccount(accountId uint32) (int, error) {
	count, err := d.db.Select(q.Eq("AccountId", accountId)).Count(&model.MessageJob{})
	if err == storm.ErrNotFound {
		return 0, nil
	}
	return count, err
}

func (d jobDao) RemoveTerminalOlderThanDays(days int) error {
	cutoff := time.Now().Add(-24 * time.Duration(days) * time.Hour)
	err := d.db.Select(
		q.In("Status", []string{model.SENT, model.FAILED, model.CANCELLED}),
		q.Lt("CreatedAt", cutoff),
	).Delete(&model.MessageJob{})
	if err != nil && err != storm.ErrNotFound {
		return err
	}
	return nil
}

func (d jobDao) update(id uint32, mutate func(job *model.MessageJob)) error {
	tx, err := d.db.Begin(true)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var job model.MessageJob
	err = tx.One("Id", id, &job)
	if err != nil {
		return err
	}

	mutate(&job)
	err = tx.Save(&job)
	if err != nil {
		return err
	}

	return tx.Commit()
}
