package quota

import "errors"

var ErrQuotaExceeded = errors.New("search quota exceeded")

type QuotaChecker interface {
	CanSearch() bool
	IncrementUsed() error
	GetUsed() int
	GetQuota() int
}

// TokenQuota counts searches of one API token. A zero quota is unlimited.
type TokenQuota struct {
	SearchQuota int
	SearchUsed  int
}

func (q *TokenQuota) Unlimited() bool { return q.SearchQuota <= 0 }

func (q *TokenQuota) CanSearch() bool {
	return q.Unlimited() || q.SearchUsed < q.SearchQuota
}

func (q *TokenQuota) IncrementUsed() error {
	if !q.CanSearch() {
		return ErrQuotaExceeded
	}
	q.SearchUsed++
	return nil
}

// Remaining is -1 for an unlimited quota.
func (q *TokenQuota) Remaining() int {
	if q.Unlimited() {
		return -1
	}
	if r := q.SearchQuota - q.SearchUsed; r > 0 {
		return r
	}
	return 0
}

func (q *TokenQuota) GetUsed() int  { return q.SearchUsed }
func (q *TokenQuota) GetQuota() int { return q.SearchQuota }
