package model

import "time"

const (
	//account statuses persisted in the db
	INACTIVE string = "INACTIVE"
	ACTIVE          = "ACTIVE"
)

type Account struct {
	Id        uint32 `storm:"id,increment"`
	Phone     string `storm:"index"`
	Status    string
	CreatedAt time.Time `storm:"index"`
	UpdatedAt time.Time
	DeletedAt *time.Time
}

func (a Account) Deleted() bool {
	return a.DeletedAt != nil
}
