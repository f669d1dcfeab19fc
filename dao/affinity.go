package dao

import (
	"time"

	"github.com/asdine/storm/v3"
	"github.com/asdine/storm/v3/q"
	"github.com/justpiple/whatsapp-messaging-api/model"
)

type AffinityDao interface {
	//GetOneByRecipient returns the affinity mapping of the recipient
	GetOneByRecipient(recipient string) (model.RecipientAffinity, error)
	//Upsert points the recipient at the account, replacing any stale mapping
	Upsert(recipient string, accountId uint32) error
	//DeleteAllByAccountId removes every mapping owned by the account
	DeleteAllByAccountId(accountId uint32) error
}

func NewAffinityDao(db Db) AffinityDao {
	return &affinityDao{db: db}
}

type affinityDao struct {
	db Db
}

func (d affinityDao) GetOneByRecipient(recipient string) (affinity model.RecipientAffinity, err error) {
	err = d.db.One("Recipient", recipient, &affinity)
	return
}

func (d affinityDao) Upsert(recipient string, accountId uint32) error {
	tx, err := d.db.Begin(true)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var affinity model.RecipientAffinity
	err = tx.One("Recipient", recipient, &affinity)
	if err != nil && err != storm.ErrNotFound {
		return err
	}

	affinity.Recipient = recipient
	affinity.AccountId = accountId
	affinity.UpdatedAt = time.Now()

	err = tx.Save(&affinity)
	if err != nil {
		return err
	}

	return tx.Commit()
}

func (d affinityDao) DeleteAllByAccountId(accountId uint32) error {
	err := d.db.Select(q.Eq("AccountId", accountId)).Delete(&model.RecipientAffinity{})
	if err != nil && err != storm.ErrNotFound {
		return err
	}
	return nil
}
