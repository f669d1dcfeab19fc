package dao

import (
	"errors"
	"time"

	"github.com/asdine/storm/v3"
	"github.com/asdine/storm/v3/q"
	"github.com/justpiple/whatsapp-messaging-api/model"
)

//ErrPhoneTaken is returned when a phone already belongs to a live account.
var ErrPhoneTaken = errors.New("phone already registered")

type AccountDao interface {
	//Create creates an account record with status INACTIVE and returns it
	Create(phone string) (model.Account, error)
	//GetOneById returns a non-deleted account by id
	GetOneById(id uint32) (model.Account, error)
	//GetAll returns all non-deleted accounts ordered by id
	GetAll() ([]model.Account, error)
	//GetAllActive returns all non-deleted accounts with status ACTIVE
	GetAllActive() ([]model.Account, error)
	//UpdateStatus sets the status of the account with the given id
	UpdateStatus(id uint32, status string) error
	//SoftDelete marks the account deleted, freeing its phone for re-registration
	SoftDelete(id uint32) error
}

func NewAccountDao(db Db) AccountDao {
	return &accountDao{db: db}
}

type accountDao struct {
	db Db
}

func (d accountDao) Create(phone string) (model.Account, error) {
	//phone must be unique among non-deleted accounts only,
	//so the check runs inside one writable tx instead of a storm unique tag
	tx, err := d.db.Begin(true)
	if err != nil {
		return model.Account{}, err
	}
	defer tx.Rollback()

	var existing []model.Account
	err = tx.Select(q.Eq("Phone", phone)).Find(&existing)
	if err != nil && !errors.Is(err, storm.ErrNotFound) {
		return model.Account{}, err
	}
	for _, acc := range existing {
		if !acc.Deleted() {
			return model.Account{}, ErrPhoneTaken
		}
	}

	now := time.Now()
	account := model.Account{Phone: phone, Status: model.INACTIVE, CreatedAt: now, UpdatedAt: now}
	err = tx.Save(&account)
	if err != nil {
		return model.Account{}, err
	}

	return account, tx.Commit()
}

func (d accountDao) GetOneById(id uint32) (model.Account, error) {
	var account model.Account
	err := d.db.One("Id", id, &account)
	if err != nil {
		return account, err
	}
	if account.Deleted() {
		return model.Account{}, storm.ErrNotFound
	}
	return account, nil
}

func (d accountDao) GetAll() ([]model.Account, error) {
	var all []model.Account
	err := d.db.All(&all)
	if err != nil {
		return nil, err
	}
	accounts := all[:0]
	for _, acc := range all {
		if !acc.Deleted() {
			accounts = append(accounts, acc)
		}
	}
	return accounts, nil
}

func (d accountDao) GetAllActive() ([]model.Account, error) {
	all, err := d.GetAll()
	if err != nil {
		return nil, err
	}
	accounts := all[:0]
	for _, acc := range all {
		if acc.Status == model.ACTIVE {
			accounts = append(accounts, acc)
		}
	}
	return accounts, nil
}

func (d accountDao) UpdateStatus(id uint32, status string) error {
	account, err := d.GetOneById(id)
	if err != nil {
		return err
	}
	account.Status = status
	account.UpdatedAt = time.Now()
	return d.db.Update(&account)
}

func (d accountDao) SoftDelete(id uint32) error {
	account, err := d.GetOneById(id)
	if err != nil {
		return err
	}
	now := time.Now()
	account.Status = model.INACTIVE
	account.DeletedAt = &now
	account.UpdatedAt = now
	return d.db.Update(&account)
}
