// Package importer turns raw source payloads into stored tweets.
//
// For each payload the Importer parses and classifies it (error object or
// record batch), skips error payloads after logging them, and stages every
// record whose id is neither stored nor already staged by the same call.
// Staged tweets are committed in one transaction once the payload sequence is
// exhausted, so a fatal error anywhere in the call leaves the store unchanged.
//
// Fatal errors (returned to the caller, nothing committed):
//   - *domain.MalformedPayloadError: a payload is not JSON
//   - *domain.PayloadTypeError: a payload is JSON but not an array of records
//   - *domain.TimestampError / *domain.InvalidRecordError: a new record is invalid
//   - store errors
package importer

import (
	"context"
	"fmt"
	"iter"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"

	"github.com/tbourn/twola/internal/domain"
	"github.com/tbourn/twola/internal/observability"
	"github.com/tbourn/twola/internal/repo"
)

var (
	// importRecords counts records seen by outcome (inserted|duplicate).
	importRecords = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "twola_import_records_total",
			Help: "Records processed by the importer, by outcome.",
		},
		[]string{"outcome"},
	)

	// importErrorPayloads counts error objects returned by the source.
	importErrorPayloads = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "twola_import_error_payloads_total",
			Help: "Error payloads reported by the tweet source.",
		},
	)
)

func init() {
	prometheus.MustRegister(importRecords, importErrorPayloads)
}

// Result summarizes one Import call.
type Result struct {
	Payloads      int // payloads consumed
	ErrorPayloads int // error objects skipped
	Records       int // records found in batches
	Duplicates    int // records skipped because the id was stored or staged
	Inserted      int // rows written by the commit
}

// Importer persists new tweets through an explicit store handle.
type Importer struct {
	db     *gorm.DB
	logger zerolog.Logger
}

// Option customizes an Importer.
type Option func(*Importer)

// WithLogger sets the logger used for skipped payloads and the summary line.
func WithLogger(l zerolog.Logger) Option {
	return func(im *Importer) { im.logger = l }
}

// New returns an Importer writing to db.
func New(db *gorm.DB, opts ...Option) *Importer {
	im := &Importer{db: db, logger: log.Logger}
	for _, o := range opts {
		o(im)
	}
	return im
}

// Import consumes payloads and stores every tweet whose id is new.
// Importing the same payloads again inserts nothing and does not fail.
func (im *Importer) Import(ctx context.Context, payloads iter.Seq[string]) (Result, error) {
	ctx, span := observability.Tracer("importer").Start(ctx, "importer.import")
	defer span.End()

	var (
		res    Result
		staged []domain.Tweet
		seen   = make(map[int64]struct{})
	)

	for raw := range payloads {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		res.Payloads++

		p, err := domain.ParsePayload(raw)
		if err != nil {
			return Result{}, fmt.Errorf("payload %d: %w", res.Payloads, err)
		}

		switch p := p.(type) {
		case domain.ErrorPayload:
			res.ErrorPayloads++
			importErrorPayloads.Inc()
			im.logger.Warn().Int("payload", res.Payloads).Str("message", p.Message).Msg("source returned an error, skipping payload")
		case domain.RecordBatch:
			tweets, dups, err := im.stage(ctx, p.Records, seen)
			if err != nil {
				return Result{}, fmt.Errorf("payload %d: %w", res.Payloads, err)
			}
			res.Records += len(p.Records)
			res.Duplicates += dups
			staged = append(staged, tweets...)
		}
	}

	if len(staged) > 0 {
		err := im.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			n, err := repo.InsertTweets(ctx, tx, staged)
			res.Inserted = int(n)
			return err
		})
		if err != nil {
			return Result{}, observability.Fail(span, fmt.Errorf("commit %d tweets: %w", len(staged), err), "commit")
		}
	}
	// Rows lost to a concurrent importer between check and commit are duplicates too.
	res.Duplicates += len(staged) - res.Inserted

	span.SetAttributes(
		attribute.Int("import.payloads", res.Payloads),
		attribute.Int("import.inserted", res.Inserted),
	)
	importRecords.WithLabelValues("inserted").Add(float64(res.Inserted))
	importRecords.WithLabelValues("duplicate").Add(float64(res.Duplicates))
	im.logger.Info().
		Int("payloads", res.Payloads).
		Int("error_payloads", res.ErrorPayloads).
		Int("records", res.Records).
		Int("duplicates", res.Duplicates).
		Int("inserted", res.Inserted).
		Msg("import finished")
	return res, nil
}

// stage converts the records of one batch whose ids are neither stored nor
// in seen, adding them to seen. It returns the new tweets and the number of
// duplicates skipped.
func (im *Importer) stage(ctx context.Context, records []domain.RawTweet, seen map[int64]struct{}) ([]domain.Tweet, int, error) {
	ids := make([]int64, 0, len(records))
	for _, r := range records {
		if r.ID != nil {
			ids = append(ids, *r.ID)
		}
	}
	stored, err := repo.ExistingTweetIDs(ctx, im.db, ids)
	if err != nil {
		return nil, 0, fmt.Errorf("check existing ids: %w", err)
	}

	var (
		out  []domain.Tweet
		dups int
	)
	for _, r := range records {
		if r.ID != nil {
			_, inStore := stored[*r.ID]
			_, inCall := seen[*r.ID]
			if inStore || inCall {
				dups++
				continue
			}
		}
		t, err := r.ToTweet()
		if err != nil {
			return nil, 0, err
		}
		seen[t.ID] = struct{}{}
		out = append(out, t)
	}
	return out, dups, nil
}

// FromStrings returns a sequence over fixed payloads, e.g. bodies read from
// files or test fixtures.
func FromStrings(payloads ...string) iter.Seq[string] {
	return func(yield func(string) bool) {
		for _, p := range payloads {
			if !yield(p) {
				return
			}
		}
	}
}
