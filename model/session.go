package model

import "time"

//SessionRecord holds one opaque protocol state blob for an account.
//Key is the normalized identifier combined with the account id so that
//storm can enforce uniqueness per (account, identifier) pair.
type SessionRecord struct {
	Id         uint32 `storm:"id,increment"`
	Key        string `storm:"unique"`
	AccountId  uint32 `storm:"index"`
	Identifier string
	Value      []byte
	UpdatedAt  time.Time
}

//RecipientAffinity pins a recipient to the account that last served it.
type RecipientAffinity struct {
	Id        uint32 `storm:"id,increment"`
	Recipient string `storm:"unique"`
	AccountId uint32 `storm:"index"`
	UpdatedAt time.Time
}
