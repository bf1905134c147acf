// Package domain defines the persistence model for imported tweets and the
// wire shapes produced by the remote tweet source. Tweet is mapped with GORM
// and forms the core data layer of the importer and the web views.
package domain

import (
	"time"
)

// TimeLayout is the fixed timestamp format used by the remote source.
const TimeLayout = "2006-01-02T15:04:05Z"

// Tweet is a single imported record. Its ID is supplied by the remote source
// and doubles as the dedup key: a tweet is inserted once and never updated.
//
// Fields:
//   - ID: source identifier, primary key (never generated locally).
//   - Author: handle of the originator (wire field "user_handle").
//   - FollowerCount: author's follower count at import time (non-negative).
//   - Text: free-text content (wire field "message").
//   - Score: sentiment value used as the only sort key (wire field "sentiment").
//   - CreatedAt / UpdatedAt: parsed from the source, not managed by GORM.
type Tweet struct {
	ID            int64     `json:"id"             gorm:"primaryKey;autoIncrement:false"`
	Author        string    `json:"author"         gorm:"type:varchar(255);not null"`
	FollowerCount int       `json:"follower_count" gorm:"not null;default:0;check:follower_count >= 0"`
	Text          string    `json:"text"           gorm:"type:text;not null"`
	Score         float64   `json:"score"          gorm:"not null;index:idx_tweets_score"`
	CreatedAt     time.Time `json:"created_at"     gorm:"autoCreateTime:false"`
	UpdatedAt     time.Time `json:"updated_at"     gorm:"autoUpdateTime:false"`
}

// TableName returns the database table name for Tweet.
func (Tweet) TableName() string { return "tweets" }

// RawTweet is one element of a record batch as returned by the source.
// ID is a pointer so a missing identifier can be told apart from zero.
type RawTweet struct {
	ID         *int64  `json:"id"`
	UserHandle string  `json:"user_handle"`
	Followers  int     `json:"followers"`
	Message    string  `json:"message"`
	Sentiment  float64 `json:"sentiment"`
	CreatedAt  string  `json:"created_at"`
	UpdatedAt  string  `json:"updated_at"`
}

// ToTweet validates r and converts it into a Tweet. Timestamps must match
// TimeLayout exactly; anything else yields a *TimestampError.
func (r RawTweet) ToTweet() (Tweet, error) {
	if r.ID == nil {
		return Tweet{}, &InvalidRecordError{Reason: "missing id"}
	}
	if r.Followers < 0 {
		return Tweet{}, &InvalidRecordError{ID: *r.ID, Reason: "followers must be >= 0"}
	}
	created, err := parseTime(*r.ID, "created_at", r.CreatedAt)
	if err != nil {
		return Tweet{}, err
	}
	updated, err := parseTime(*r.ID, "updated_at", r.UpdatedAt)
	if err != nil {
		return Tweet{}, err
	}
	return Tweet{
		ID:            *r.ID,
		Author:        r.UserHandle,
		FollowerCount: r.Followers,
		Text:          r.Message,
		Score:         r.Sentiment,
		CreatedAt:     created,
		UpdatedAt:     updated,
	}, nil
}

func parseTime(id int64, field, v string) (time.Time, error) {
	t, err := time.Parse(TimeLayout, v)
	if err != nil {
		return time.Time{}, &TimestampError{ID: id, Field: field, Value: v, Err: err}
	}
	// time.Parse accepts fractional seconds the layout does not name.
	if t.Format(TimeLayout) != v {
		return time.Time{}, &TimestampError{ID: id, Field: field, Value: v, Err: errNotExactLayout}
	}
	return t.UTC(), nil
}
