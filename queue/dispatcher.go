package queue

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/dchest/uniuri"
	"github.com/justpiple/whatsapp-messaging-api/dao"
	"github.com/justpiple/whatsapp-messaging-api/model"
	"github.com/justpiple/whatsapp-messaging-api/wa"
	"go.uber.org/zap"
)

const (
	BackoffFixed  = "fixed"
	BackoffLinear = "linear"

	defaultWorkers      = 4
	defaultPollInterval = 500 * time.Millisecond
	defaultSendTimeout  = 30 * time.Second
	defaultRetryDelay   = 10 * time.Second
)

//Resolver picks the delivery account for a normalized recipient.
type Resolver interface {
	Resolve(recipient string) (uint32, error)
}

//HandleSource yields the live transport handle of an account.
type HandleSource interface {
	LiveHandle(accountId uint32) (wa.Handle, error)
}

type Config struct {
	//Workers bounds concurrent deliveries
	Workers int
	//MaxRetries bounds retries after the first attempt, so a job sees at
	//most MaxRetries+1 attempts in total
	MaxRetries int
	//RetryDelay is the base backoff between attempts
	RetryDelay time.Duration
	//Backoff is "fixed" or "linear" (delay grows with the retry number)
	Backoff string
	//PollInterval is how often an idle worker rescans the store
	PollInterval time.Duration
	//SendTimeout caps one delivery attempt
	SendTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = defaultWorkers
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = defaultRetryDelay
	}
	if c.Backoff != BackoffLinear {
		c.Backoff = BackoffFixed
	}
	if c.PollInterval <= 0 {
		c.PollInterval = defaultPollInterval
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = defaultSendTimeout
	}
	return c
}

//Dispatcher owns every message job mutation: it persists accepted jobs,
//schedules bounded workers over the shared store, applies retry with
//backoff and exposes cancellation. Workers claim jobs through the store's
//conditional update, so several dispatcher processes can share one db file
//without double delivery.
type Dispatcher struct {
	jobs    dao.JobDao
	router  Resolver
	handles HandleSource
	logger  *zap.Logger
	cfg     Config

	wake chan struct{}
	wg   sync.WaitGroup
}

func NewDispatcher(jobs dao.JobDao, router Resolver, handles HandleSource, cfg Config, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		jobs:    jobs,
		router:  router,
		handles: handles,
		logger:  logger,
		cfg:     cfg.withDefaults(),
		wake:    make(chan struct{}, 1),
	}
}

//Start launches the worker pool. It returns immediately; cancel ctx to
//stop and Wait to drain.
func (d *Dispatcher) Start(ctx context.Context) {
	for i := 0; i < d.cfg.Workers; i++ {
		d.wg.Add(1)
		go d.worker(ctx)
	}
	d.logger.Info("dispatcher started", zap.Int("workers", d.cfg.Workers))
}

//Wait blocks until every worker has exited.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

//Enqueue accepts a job for asynchronous delivery. The payload must already
//be validated; the account is resolved here so that a gateway with no
//active account rejects synchronously instead of queueing forever. The
//returned job is an acknowledgment of acceptance, not of delivery.
func (d *Dispatcher) Enqueue(jobType, recipient string, payload model.Payload, submittedBy string) (model.MessageJob, error) {
	if err := payload.Validate(); err != nil {
		return model.MessageJob{}, err
	}

	accountId, err := d.router.Resolve(recipient)
	if err != nil {
		return model.MessageJob{}, err
	}

	encoded, err := json.Marshal(payload)
	if err != nil {
		return model.MessageJob{}, err
	}

	now := time.Now()
	job := model.MessageJob{
		Ref:           uniuri.NewLen(16),
		Type:          jobType,
		AccountId:     accountId,
		Recipient:     recipient,
		Payload:       encoded,
		Status:        model.PENDING,
		NextAttemptAt: now,
		SubmittedBy:   submittedBy,
		CreatedAt:     now,
	}
	if _, err := d.jobs.Create(&job); err != nil {
		return model.MessageJob{}, err
	}

	select {
	case d.wake <- struct{}{}:
	default:
	}

	d.logger.Info("job accepted",
		zap.Uint32("job", job.Id), zap.String("type", jobType), zap.Uint32("account", accountId))
	return job, nil
}

//Cancel withdraws a job that has not been claimed yet. It reports false
//for jobs already ACTIVE or finished, leaving them untouched.
func (d *Dispatcher) Cancel(jobId uint32) (bool, error) {
	ok, err := d.jobs.Cancel(jobId)
	if err != nil {
		return false, err
	}
	if ok {
		d.logger.Info("job cancelled", zap.Uint32("job", jobId))
	}
	return ok, nil
}

//Status returns the job row, the only place delivery outcomes are knowable.
func (d *Dispatcher) Status(jobId uint32) (model.MessageJob, error) {
	return d.jobs.GetOneById(jobId)
}

func (d *Dispatcher) worker(ctx context.Context) {
	defer d.wg.Done()

	ticker := time.NewTicker(d.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-d.wake:
		case <-ticker.C:
		}

		for {
			job, ok, err := d.jobs.ClaimNext(time.Now())
			if err != nil {
				d.logger.Error("claiming job failed", zap.Error(err))
				break
			}
			if !ok {
				break
			}
			d.process(ctx, job)
			if ctx.Err() != nil {
				return
			}
		}
	}
}

//process runs one delivery attempt of a claimed job. A cancellation that
//arrives after the claim does not pre-empt the attempt.
func (d *Dispatcher) process(ctx context.Context, job model.MessageJob) {
	handle, err := d.liveHandle(&job)
	if err != nil {
		d.failAttempt(job, err)
		return
	}

	var payload model.Payload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		//corrupt rows cannot succeed on retry
		d.logger.Error("job payload undecodable", zap.Uint32("job", job.Id), zap.Error(err))
		if err := d.jobs.MarkFailed(job.Id, job.RetryCount, "payload undecodable: "+err.Error()); err != nil {
			d.logger.Error("marking job failed", zap.Uint32("job", job.Id), zap.Error(err))
		}
		return
	}

	sendCtx, cancel := context.WithTimeout(ctx, d.cfg.SendTimeout)
	externalId, err := handle.Send(sendCtx, job.Recipient, payload)
	cancel()
	if err != nil {
		d.failAttempt(job, err)
		return
	}

	if err := d.jobs.MarkSent(job.Id, externalId); err != nil {
		d.logger.Error("marking job sent", zap.Uint32("job", job.Id), zap.Error(err))
		return
	}
	d.logger.Info("job delivered",
		zap.Uint32("job", job.Id), zap.Uint32("account", job.AccountId), zap.String("externalId", externalId))
}

//liveHandle returns the handle of the job's account, re-routing the job to
//another active account when its sticky one went down.
func (d *Dispatcher) liveHandle(job *model.MessageJob) (wa.Handle, error) {
	if job.AccountId != 0 {
		if handle, err := d.handles.LiveHandle(job.AccountId); err == nil {
			return handle, nil
		} else if !errors.Is(err, wa.ErrNotConnected) {
			return nil, err
		}
	}

	accountId, err := d.router.Resolve(job.Recipient)
	if err != nil {
		return nil, err
	}
	if accountId != job.AccountId {
		if err := d.jobs.UpdateAccount(job.Id, accountId); err != nil {
			d.logger.Warn("rebinding job account failed", zap.Uint32("job", job.Id), zap.Error(err))
		}
		job.AccountId = accountId
	}
	return d.handles.LiveHandle(accountId)
}

//failAttempt books one failed attempt: the job is released back to PENDING
//behind a backoff delay while retries remain, otherwise it fails terminally.
func (d *Dispatcher) failAttempt(job model.MessageJob, cause error) {
	if job.RetryCount >= d.cfg.MaxRetries {
		if err := d.jobs.MarkFailed(job.Id, job.RetryCount, cause.Error()); err != nil {
			d.logger.Error("marking job failed", zap.Uint32("job", job.Id), zap.Error(err))
			return
		}
		d.logger.Warn("job failed terminally",
			zap.Uint32("job", job.Id), zap.Int("attempts", job.RetryCount+1), zap.String("cause", cause.Error()))
		return
	}

	retry := job.RetryCount + 1
	nextAttempt := time.Now().Add(d.backoff(retry))
	if err := d.jobs.Release(job.Id, retry, nextAttempt, cause.Error()); err != nil {
		d.logger.Error("releasing job for retry failed", zap.Uint32("job", job.Id), zap.Error(err))
		return
	}
	d.logger.Info("job attempt failed, retry scheduled",
		zap.Uint32("job", job.Id), zap.Int("retry", retry), zap.String("cause", cause.Error()))
}

func (d *Dispatcher) backoff(retry int) time.Duration {
	if d.cfg.Backoff == BackoffLinear {
		return d.cfg.RetryDelay * time.Duration(retry)
	}
	return d.cfg.RetryDelay
}
