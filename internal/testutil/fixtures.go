// Package testutil holds fixtures shared by package tests: the canonical
// three-payload source scenario and an in-memory store factory.
package testutil

import (
	"fmt"
	"strings"
	"testing"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite (no CGO)
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/twola/internal/domain"
)

// SourceResponses mimics three calls to the tweet source: a batch with ids
// 7 and 13, an error object, and a batch with id 3 plus a duplicate of 13.
var SourceResponses = []string{
	`[{"created_at":"2012-09-27T16:14:27Z","followers":9,"id":7,"message":"Vimto or Ribena?  You decide!","sentiment":0.2,"updated_at":"2012-09-27T16:14:27Z","user_handle":"@mad4vimto"},{"created_at":"2012-09-27T16:18:09Z","followers":3,"id":13,"message":"I've got to say - Pepsi max is great!","sentiment":0.9,"updated_at":"2012-09-27T16:18:09Z","user_handle":"@tasteless"}]`,
	`{"error":{"message":"Server no respondy"}}`,
	`[{"created_at":"2012-09-27T16:11:15Z","followers":24,"id":3,"message":"Coke is it!","sentiment":1.0,"updated_at":"2012-09-27T16:11:15Z","user_handle":"@coke_snortr"},{"created_at":"2012-09-27T16:18:09Z","followers":3,"id":13,"message":"I've got to say - Pepsi max is great!","sentiment":0.9,"updated_at":"2012-09-27T16:18:09Z","user_handle":"@tasteless"}]`,
}

// NewDB opens a private in-memory SQLite database named after the test and
// creates the tweets table.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&domain.Tweet{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		t.Cleanup(func() { _ = sqlDB.Close() })
	}
	return db
}
