package service

import (
	"context"
	"strings"
	"time"

	"github.com/justpiple/whatsapp-messaging-api/dao"
	"github.com/justpiple/whatsapp-messaging-api/model"
	"github.com/justpiple/whatsapp-messaging-api/service/dto"
	"github.com/justpiple/whatsapp-messaging-api/util"
	"github.com/justpiple/whatsapp-messaging-api/wa"
	"go.uber.org/zap"
)

type InvalidPayloadErr struct {
	message string
}

func (e *InvalidPayloadErr) Error() string {
	return e.message
}

func NewInvalidPayloadError(msg string) *InvalidPayloadErr {
	return &InvalidPayloadErr{message: msg}
}

// Dispatcher is the queueing surface used by the service.
type Dispatcher interface {
	Enqueue(jobType, recipient string, payload model.Payload, submittedBy string) (model.MessageJob, error)
	Cancel(id uint32) (bool, error)
	Status(id uint32) (model.MessageJob, error)
}

// Connections is the connection lifecycle surface used by the service.
type Connections interface {
	Open(ctx context.Context, accountId uint32) error
	Close(ctx context.Context, accountId uint32) error
	Restart(ctx context.Context, accountId uint32) error
	Status(accountId uint32) (wa.StatusInfo, error)
	SubscribePairing(accountId uint32) (chan interface{}, func())
}

// Normalizer canonicalizes phone numbers before they reach the queue.
type Normalizer interface {
	Normalize(phone string) string
}

type Service interface {
	SendMessage(message dto.SendMessageRequest, submittedBy string) (dto.JobAck, error)
	CancelMessage(id uint32) (bool, error)
	CheckStatusOfMessage(id uint32) (dto.JobStatus, error)
	RegisterAccount(req dto.RegisterAccountRequest) (dto.AccountRegistration, error)
	RemoveAccount(id uint32) error
	RestartAccount(id uint32) error
	CheckStatusOfAccount(id uint32) (dto.AccountStatus, error)
	ListAccounts() ([]dto.AccountStatus, error)
}

type service struct {
	dispatcher   Dispatcher
	connections  Connections
	normalizer   Normalizer
	accountDao   dao.AccountDao
	jobDao       dao.JobDao
	jobStoreDays int
	pairingWait  time.Duration
}

func NewService(dispatcher Dispatcher, connections Connections, normalizer Normalizer, accountDao dao.AccountDao, jobDao dao.JobDao, jobStoreDays int) Service {
	service := &service{
		dispatcher:   dispatcher,
		connections:  connections,
		normalizer:   normalizer,
		accountDao:   accountDao,
		jobDao:       jobDao,
		jobStoreDays: jobStoreDays,
		pairingWait:  30 * time.Second,
	}

	go service.CleanupDb()

	return service
}

func (s *service) CleanupDb() {
	for {
		err := s.jobDao.RemoveTerminalOlderThanDays(s.jobStoreDays)
		if err != nil {
			zap.L().Warn("Error cleaning up message jobs", zap.Error(err))
		}
		time.Sleep(time.Hour)
	}
}

func (s *service) SendMessage(message dto.SendMessageRequest, submittedBy string) (dto.JobAck, error) {
	if util.IsBlank(message.Recipient) {
		return dto.JobAck{}, NewInvalidPayloadError("Recipient is required")
	}

	if err := message.Message.Validate(); err != nil {
		return dto.JobAck{}, NewInvalidPayloadError(err.Error())
	}

	recipient := s.normalizer.Normalize(message.Recipient)

	job, err := s.dispatcher.Enqueue(message.Message.Type, recipient, message.Message, strings.TrimSpace(submittedBy))
	if err != nil {
		return dto.JobAck{}, err
	}

	return dto.JobAck{
		Id:        job.Id,
		Ref:       job.Ref,
		AccountId: job.AccountId,
		Status:    job.Status,
	}, nil
}

func (s *service) CancelMessage(id uint32) (bool, error) {
	return s.dispatcher.Cancel(id)
}

func (s *service) CheckStatusOfMessage(id uint32) (dto.JobStatus, error) {
	job, err := s.dispatcher.Status(id)
	if err != nil {
		return dto.JobStatus{}, err
	}

	return dto.JobStatus{
		Id:         job.Id,
		Ref:        job.Ref,
		Type:       job.Type,
		Recipient:  job.Recipient,
		AccountId:  job.AccountId,
		Status:     job.Status,
		RetryCount: job.RetryCount,
		ExternalId: job.ExternalId,
		LastError:  job.LastError,
		CreatedAt:  job.CreatedAt,
		SentAt:     job.SentAt,
	}, nil
}

func (s *service) RegisterAccount(req dto.RegisterAccountRequest) (dto.AccountRegistration, error) {
	phone := util.DigitsOnly(req.Phone)
	if util.IsBlank(phone) {
		return dto.AccountRegistration{}, NewInvalidPayloadError("Invalid phone " + req.Phone)
	}

	account, err := s.accountDao.Create(phone)
	if err != nil {
		return dto.AccountRegistration{}, err
	}

	// subscribe before opening so an early pairing code is not missed
	codes, cancel := s.connections.SubscribePairing(account.Id)
	defer cancel()

	if err := s.connections.Open(context.Background(), account.Id); err != nil {
		return dto.AccountRegistration{}, err
	}

	registration := dto.AccountRegistration{Id: account.Id, Phone: account.Phone}

	select {
	case code := <-codes:
		if pairingCode, ok := code.(string); ok {
			registration.PairingCode = pairingCode
		}
	case <-time.After(s.pairingWait):
		// accounts with stored credentials reconnect without pairing
		zap.L().Info("No pairing code received", zap.Uint32("account", account.Id))
	}

	return registration, nil
}

func (s *service) RemoveAccount(id uint32) error {
	return s.connections.Close(context.Background(), id)
}

func (s *service) RestartAccount(id uint32) error {
	return s.connections.Restart(context.Background(), id)
}

func (s *service) CheckStatusOfAccount(id uint32) (dto.AccountStatus, error) {
	account, err := s.accountDao.GetOneById(id)
	if err != nil {
		return dto.AccountStatus{}, err
	}

	return s.accountStatus(account), nil
}

func (s *service) ListAccounts() ([]dto.AccountStatus, error) {
	accounts, err := s.accountDao.GetAll()
	if err != nil {
		return nil, err
	}

	statuses := []dto.AccountStatus{}
	for _, account := range accounts {
		statuses = append(statuses, s.accountStatus(account))
	}

	return statuses, nil
}

func (s *service) accountStatus(account model.Account) dto.AccountStatus {
	status := dto.AccountStatus{
		Id:     account.Id,
		Phone:  account.Phone,
		Status: account.Status,
	}

	if info, err := s.connections.Status(account.Id); err == nil {
		status.SocketState = string(info.Socket)
		status.Live = info.Live
	}

	return status
}
