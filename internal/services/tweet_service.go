// Package services – TweetService
//
// This file implements the query side of the application: listing stored
// tweets in descending score order, optionally restricted to those mentioning
// a configured keyword, and looking up a single tweet by id.
//
// Keyword filtering runs in application code after the ordered scan. The
// corpus is small; a store-level predicate would have to reproduce the same
// case-folded substring semantics.
package services

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"gorm.io/gorm"

	"github.com/tbourn/twola/internal/domain"
	"github.com/tbourn/twola/internal/repo"
	"github.com/tbourn/twola/internal/search"
)

// TweetService reads tweets through an explicit store handle. It holds no
// mutable state and is safe for concurrent use.
type TweetService struct {
	// DB is the GORM handle used for all reads.
	DB *gorm.DB
	// Matcher selects tweets for filtered listings. Nil matches nothing.
	Matcher *search.Matcher
}

// NewTweetService constructs a TweetService filtering on keywords.
func NewTweetService(db *gorm.DB, keywords []string) *TweetService {
	return &TweetService{DB: db, Matcher: search.NewMatcher(keywords)}
}

// List returns all tweets ordered by score, highest first. When
// filterKeywords is set, only tweets whose text contains a keyword
// (case-insensitively) are kept, in the same order.
func (s *TweetService) List(ctx context.Context, filterKeywords bool) ([]domain.Tweet, error) {
	tweets, err := repo.ListTweets(ctx, s.DB)
	if err != nil {
		return nil, err
	}
	if !filterKeywords {
		return tweets, nil
	}
	return search.Filter(tweets, func(t domain.Tweet) string { return t.Text }, s.Matcher), nil
}

// Get returns the tweet with id. A missing tweet is reported as
// (nil, false, nil); err is only set for store failures.
func (s *TweetService) Get(ctx context.Context, id int64) (*domain.Tweet, bool, error) {
	t, err := repo.GetTweet(ctx, s.DB, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return t, true, nil
}

// Stats returns the size of the store and its largest id.
func (s *TweetService) Stats(ctx context.Context) (repo.TweetStats, error) {
	return repo.TweetsStats(ctx, s.DB)
}

// ParseID parses a tweet id from a path segment.
func ParseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, ErrInvalidID
	}
	return id, nil
}
