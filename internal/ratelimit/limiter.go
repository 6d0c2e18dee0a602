// Package ratelimit counts submissions per client IP in fixed windows.
//
// The check and the increment are separate statements without a lock, so
// concurrent requests from one IP may slip past the limit.
package ratelimit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"swish-forms/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrRateLimited = errors.New("too many submissions, please try again later")

// Limiter allows Limit submissions per Window for each client IP.
type Limiter struct {
	db     *gorm.DB
	salt   string
	limit  int
	window time.Duration
	now    func() time.Time
}

func NewLimiter(db *gorm.DB, salt string, limit int, window time.Duration) *Limiter {
	return &Limiter{db: db, salt: salt, limit: limit, window: window, now: time.Now}
}

// Key hashes ip so raw addresses are never stored.
func (l *Limiter) Key(ip string) string {
	sum := sha256.Sum256([]byte("swish_form_rate_" + l.salt + ip))
	return hex.EncodeToString(sum[:])
}

// Check returns ErrRateLimited once ip has reached the limit in the
// current window.
func (l *Limiter) Check(ctx context.Context, ip string) error {
	count, err := l.count(ctx, l.Key(ip))
	if err != nil {
		return err
	}
	if count >= l.limit {
		return ErrRateLimited
	}
	return nil
}

// Increment records one submission from ip. A new window starts when the
// previous counter has expired.
func (l *Limiter) Increment(ctx context.Context, ip string) error {
	key := l.Key(ip)
	count, err := l.count(ctx, key)
	if err != nil {
		return err
	}

	counter := models.RateLimitCounter{Key: key, Count: count + 1}
	if count == 0 {
		counter.ExpiresAt = l.now().Add(l.window)
		return l.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&counter).Error
	}
	return l.db.WithContext(ctx).Model(&models.RateLimitCounter{}).
		Where("key = ?", key).
		Update("count", counter.Count).Error
}

// Purge deletes expired counters.
func (l *Limiter) Purge(ctx context.Context) (int64, error) {
	res := l.db.WithContext(ctx).Where("expires_at <= ?", l.now()).Delete(&models.RateLimitCounter{})
	return res.RowsAffected, res.Error
}

func (l *Limiter) count(ctx context.Context, key string) (int, error) {
	var counter models.RateLimitCounter
	err := l.db.WithContext(ctx).Where("key = ?", key).First(&counter).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if !counter.ExpiresAt.After(l.now()) {
		return 0, nil
	}
	return counter.Count, nil
}
