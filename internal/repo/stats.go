// Package repo implements the data persistence layer for imported tweets,
// backed by GORM. This file provides a small aggregate query used for the
// import report printed by the CLI.
package repo

import (
	"context"

	"gorm.io/gorm"

	"github.com/tbourn/twola/internal/domain"
)

// TweetStats summarizes the tweets table. Tweets are insert-only, so
// (Count, MaxID) changes whenever the table does.
type TweetStats struct {
	Count int64
	MaxID int64
}

// TweetsStats returns the number of stored tweets and the largest id.
// When the table is empty both values are 0.
func TweetsStats(ctx context.Context, db *gorm.DB) (TweetStats, error) {
	var st TweetStats
	q := db.WithContext(ctx).Model(&domain.Tweet{})

	if err := q.Count(&st.Count).Error; err != nil {
		return TweetStats{}, err
	}
	if st.Count == 0 {
		return st, nil
	}

	var row struct {
		ID int64
	}
	if err := db.WithContext(ctx).Model(&domain.Tweet{}).Select("id").Order("id DESC").Limit(1).Scan(&row).Error; err != nil {
		return TweetStats{}, err
	}
	st.MaxID = row.ID
	return st, nil
}
