package model

import "time"

const (
	//job statuses persisted in the db
	//a claimed job is ACTIVE, same literal as a connected account
	PENDING   string = "PENDING"
	SENT             = "SENT"
	FAILED           = "FAILED"
	CANCELLED        = "CANCELLED"
)

//Terminal reports whether a job status permits no further transitions.
func Terminal(status string) bool {
	return status == SENT || status == FAILED || status == CANCELLED
}

type MessageJob struct {
	Id            uint32 `storm:"id,increment"`
	Ref           string `storm:"unique"`
	Type          string
	AccountId     uint32 `storm:"index"`
	Recipient     string `storm:"index"`
	Payload       []byte
	Status        string `storm:"index"`
	RetryCount    int
	NextAttemptAt time.Time
	ExternalId    string
	SubmittedBy   string
	LastError     string
	CreatedAt     time.Time `storm:"index"`
	SentAt        *time.Time
}
