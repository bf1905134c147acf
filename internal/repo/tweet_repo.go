// Package repo implements the data persistence layer for imported tweets,
// backed by GORM. This file provides repository functions for the Tweet model.
//
// All functions are context-aware and accept a *gorm.DB handle, so they work
// the same on a plain connection pool or inside a transaction. They follow the
// "thin repository" approach: no business logic, only persistence and query
// composition.
//
// Error semantics:
//   - GetTweet returns ErrNotFound when no row has the id.
//   - InsertTweets never fails on an existing id: rows are written with
//     ON CONFLICT DO NOTHING and only newly inserted rows are counted.
//   - Other DB errors are propagated unchanged.
package repo

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/twola/internal/domain"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = gorm.ErrRecordNotFound

// insertBatchSize keeps multi-row inserts under SQLite's variable limit
// (7 columns per row).
const insertBatchSize = 100

// InsertTweets inserts tweets whose id is not yet stored and returns the
// number of rows actually written. Existing rows are left untouched.
func InsertTweets(ctx context.Context, db *gorm.DB, tweets []domain.Tweet) (int64, error) {
	if len(tweets) == 0 {
		return 0, nil
	}
	res := db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, DoNothing: true}).
		CreateInBatches(tweets, insertBatchSize)
	return res.RowsAffected, res.Error
}

// TweetExists reports whether a tweet with id is stored.
func TweetExists(ctx context.Context, db *gorm.DB, id int64) (bool, error) {
	var n int64
	err := db.WithContext(ctx).Model(&domain.Tweet{}).Where("id = ?", id).Limit(1).Count(&n).Error
	return n > 0, err
}

// ExistingTweetIDs returns the subset of ids that are already stored.
func ExistingTweetIDs(ctx context.Context, db *gorm.DB, ids []int64) (map[int64]struct{}, error) {
	out := make(map[int64]struct{}, len(ids))
	for start := 0; start < len(ids); start += insertBatchSize {
		end := min(start+insertBatchSize, len(ids))
		var found []int64
		err := db.WithContext(ctx).
			Model(&domain.Tweet{}).
			Where("id IN ?", ids[start:end]).
			Pluck("id", &found).Error
		if err != nil {
			return nil, err
		}
		for _, id := range found {
			out[id] = struct{}{}
		}
	}
	return out, nil
}

// GetTweet fetches a tweet by id, or ErrNotFound.
func GetTweet(ctx context.Context, db *gorm.DB, id int64) (*domain.Tweet, error) {
	var t domain.Tweet
	err := db.WithContext(ctx).Where("id = ?", id).First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// ListTweets returns every stored tweet ordered by score, highest first.
// Ties keep whatever order the store returns.
func ListTweets(ctx context.Context, db *gorm.DB) ([]domain.Tweet, error) {
	var out []domain.Tweet
	err := db.WithContext(ctx).Order("score DESC").Find(&out).Error
	return out, err
}

// CountTweets uses a raw COUNT so a missing table surfaces as an error.
func CountTweets(ctx context.Context, db *gorm.DB) (int64, error) {
	var total int64
	err := db.WithContext(ctx).Raw("SELECT COUNT(*) FROM tweets").Scan(&total).Error
	return total, err
}
