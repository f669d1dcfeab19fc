package router

import (
	"errors"
	"strings"

	"github.com/asdine/storm/v3"
	"github.com/justpiple/whatsapp-messaging-api/dao"
	"github.com/justpiple/whatsapp-messaging-api/util"
	"go.uber.org/zap"
)

//ErrNoCapacity is returned when no ACTIVE account can take the recipient.
var ErrNoCapacity = errors.New("no active account available")

//LiveChecker answers whether an account holds a live socket right now.
//Satisfied by the connection manager.
type LiveChecker interface {
	IsActive(accountId uint32) bool
}

//Router sticks each recipient to one account. The mapping is advisory: when
//the sticky account is down traffic migrates to another active account and
//the mapping follows.
type Router struct {
	countryCode string
	accounts    dao.AccountDao
	affinity    dao.AffinityDao
	jobs        dao.JobDao
	live        LiveChecker
	logger      *zap.Logger
}

func New(countryCode string, accounts dao.AccountDao, affinity dao.AffinityDao,
	jobs dao.JobDao, live LiveChecker, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{
		countryCode: countryCode,
		accounts:    accounts,
		affinity:    affinity,
		jobs:        jobs,
		live:        live,
		logger:      logger,
	}
}

//Normalize turns a recipient address into canonical international form:
//non-digits are stripped, a local leading "0" is rewritten to the country
//code, and the country code is prepended only when missing.
func (r *Router) Normalize(recipient string) string {
	digits := util.DigitsOnly(recipient)
	if digits == "" {
		return digits
	}
	if strings.HasPrefix(digits, "0") {
		return r.countryCode + digits[1:]
	}
	if !strings.HasPrefix(digits, r.countryCode) {
		return r.countryCode + digits
	}
	return digits
}

//Resolve returns the account that should deliver to the recipient, which
//must already be normalized. The existing affinity is reused only while its
//account is ACTIVE with a live socket; otherwise the ACTIVE account carrying
//the fewest message-log rows takes over (ties go to the lowest id).
func (r *Router) Resolve(recipient string) (uint32, error) {
	affinity, err := r.affinity.GetOneByRecipient(recipient)
	if err == nil && r.live.IsActive(affinity.AccountId) {
		return affinity.AccountId, nil
	}
	if err != nil && !errors.Is(err, storm.ErrNotFound) {
		return 0, err
	}

	accountId, err := r.pickLeastLoaded()
	if err != nil {
		return 0, err
	}

	if err := r.affinity.Upsert(recipient, accountId); err != nil {
		//a stale mapping only costs a re-route later
		r.logger.Warn("recording recipient affinity failed",
			zap.String("recipient", recipient), zap.Uint32("account", accountId), zap.Error(err))
	}
	return accountId, nil
}

//RecordAffinity pins the recipient to the account explicitly.
func (r *Router) RecordAffinity(recipient string, accountId uint32) error {
	return r.affinity.Upsert(recipient, accountId)
}

func (r *Router) pickLeastLoaded() (uint32, error) {
	accounts, err := r.accounts.GetAllActive()
	if err != nil {
		return 0, err
	}

	best := uint32(0)
	bestCount := -1
	for _, account := range accounts {
		if !r.live.IsActive(account.Id) {
			continue
		}
		count, err := r.jobs.CountByAccount(account.Id)
		if err != nil {
			return 0, err
		}
		if bestCount == -1 || count < bestCount || (count == bestCount && account.Id < best) {
			best = account.Id
			bestCount = count
		}
	}
	if bestCount == -1 {
		return 0, ErrNoCapacity
	}
	return best, nil
}
