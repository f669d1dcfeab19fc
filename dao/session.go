package dao

import (
	"fmt"
	"time"

	"github.com/asdine/storm/v3"
	"github.com/asdine/storm/v3/q"
	"github.com/justpiple/whatsapp-messaging-api/model"
)

type SessionDao interface {
	//Upsert writes the value of the (accountId, identifier) pair, last write wins
	Upsert(accountId uint32, identifier string, value []byte) error
	//GetOne returns the record of the (accountId, identifier) pair
	GetOne(accountId uint32, identifier string) (model.SessionRecord, error)
	//Delete removes the record of the (accountId, identifier) pair, absent is not an error
	Delete(accountId uint32, identifier string) error
	//DeleteAllByAccountId removes every record of the account
	DeleteAllByAccountId(accountId uint32) error
}

func NewSessionDao(db Db) SessionDao {
	return &sessionDao{db: db}
}

type sessionDao struct {
	db Db
}

func sessionKey(accountId uint32, identifier string) string {
	return fmt.Sprintf("%d/%s", accountId, identifier)
}

func (d sessionDao) Upsert(accountId uint32, identifier string, value []byte) error {
	tx, err := d.db.Begin(true)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var record model.SessionRecord
	err = tx.One("Key", sessionKey(accountId, identifier), &record)
	if err != nil && err != storm.ErrNotFound {
		return err
	}

	record.Key = sessionKey(accountId, identifier)
	record.AccountId = accountId
	record.Identifier = identifier
	record.Value = value
	record.UpdatedAt = time.Now()

	err = tx.Save(&record)
	if err != nil {
		return err
	}

	return tx.Commit()
}

func (d sessionDao) GetOne(accountId uint32, identifier string) (record model.SessionRecord, err error) {
	err = d.db.One("Key", sessionKey(accountId, identifier), &record)
	return
}

func (d sessionDao) Delete(accountId uint32, identifier string) error {
	var record model.SessionRecord
	err := d.db.One("Key", sessionKey(accountId, identifier), &record)
	if err == storm.ErrNotFound {
		return nil
	}
	if err != nil {
		return err
	}
	return d.db.DeleteStruct(&record)
}

func (d sessionDao) DeleteAllByAccountId(accountId uint32) error {
	err := d.db.Select(q.Eq("AccountId", accountId)).Delete(&model.SessionRecord{})
	if err != nil && err != storm.ErrNotFound {
		return err
	}
	return nil
}
