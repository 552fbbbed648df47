package migrate

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/authshift/authshift/internal/source"
	"github.com/authshift/authshift/internal/target"
	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

type staticIDGenerator struct {
	prefix string
	index  int
}

func (g *staticIDGenerator) NewID() (string, error) {
	g.index++
	return fmt.Sprintf("%s-%d", g.prefix, g.index), nil
}

func newSourceDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:authshift_source_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&source.User{}, &source.Identity{}); err != nil {
		t.Fatalf("failed to migrate source schema: %v", err)
	}
	return db
}

func newTargetDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:authshift_target_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&target.User{}, &target.Account{}); err != nil {
		t.Fatalf("failed to migrate target schema: %v", err)
	}
	return db
}

func fixedClock(unixSeconds int64) func() time.Time {
	return func() time.Time { return time.Unix(unixSeconds, 0).UTC() }
}

func stringPtr(value string) *string {
	return &value
}

func timePtr(value time.Time) *time.Time {
	utc := value.UTC()
	return &utc
}

func mustJSON(t *testing.T, value map[string]any) string {
	t.Helper()
	encoded, err := json.Marshal(value)
	if err != nil {
		t.Fatalf("failed to encode metadata: %v", err)
	}
	return string(encoded)
}
