package dto

import (
	"time"

	"github.com/justpiple/whatsapp-messaging-api/model"
)

type SendMessageRequest struct {
	Recipient string        `json:"recipient"`
	Message   model.Payload `json:"message"`
}

type JobAck struct {
	Id        uint32 `json:"id"`
	Ref       string `json:"ref"`
	AccountId uint32 `json:"accountId"`
	Status    string `json:"status"`
}

type JobStatus struct {
	Id         uint32     `json:"id"`
	Ref        string     `json:"ref"`
	Type       string     `json:"type"`
	Recipient  string     `json:"recipient"`
	AccountId  uint32     `json:"accountId"`
	Status     string     `json:"status"`
	RetryCount int        `json:"retryCount"`
	ExternalId string     `json:"externalId,omitempty"`
	LastError  string     `json:"lastError,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
	SentAt     *time.Time `json:"sentAt,omitempty"`
}

type RegisterAccountRequest struct {
	Phone string `json:"phone"`
}

type AccountRegistration struct {
	Id          uint32 `json:"id"`
	Phone       string `json:"phone"`
	PairingCode string `json:"pairingCode,omitempty"`
}

type AccountStatus struct {
	Id          uint32 `json:"id"`
	Phone       string `json:"phone"`
	Status      string `json:"status"`
	SocketState string `json:"socketState,omitempty"`
	Live        bool   `json:"live"`
}
