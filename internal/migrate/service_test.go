package migrate

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/authshift/authshift/internal/source"
	"github.com/authshift/authshift/internal/target"
	"gorm.io/gorm"
)

type migrationFixture struct {
	sourceDB *gorm.DB
	targetDB *gorm.DB
	tracker  *Tracker
	service  *Service
}

func newMigrationFixture(t *testing.T, batchSize int) migrationFixture {
	t.Helper()

	sourceDB := newSourceDB(t)
	targetDB := newTargetDB(t)

	paginator, err := source.NewPaginator(source.PaginatorConfig{Database: sourceDB})
	if err != nil {
		t.Fatalf("failed to construct paginator: %v", err)
	}
	writer, err := NewBulkWriter(BulkWriterConfig{Database: targetDB, ParamCeiling: 65000})
	if err != nil {
		t.Fatalf("failed to construct writer: %v", err)
	}

	tracker := NewTracker(fixedClock(1700000000))
	service, err := NewService(ServiceConfig{
		Paginator:       paginator,
		Writer:          writer,
		Tracker:         tracker,
		Capabilities:    allCapabilities(),
		IDProvider:      &staticIDGenerator{prefix: "account"},
		TempEmailDomain: "temp.better-auth.com",
		BatchSize:       batchSize,
		Clock:           fixedClock(1700000000),
	})
	if err != nil {
		t.Fatalf("failed to construct service: %v", err)
	}

	return migrationFixture{sourceDB: sourceDB, targetDB: targetDB, tracker: tracker, service: service}
}

func seedUser(t *testing.T, db *gorm.DB, user source.User) {
	t.Helper()
	identities := user.Identities
	user.Identities = nil
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("failed to seed user %s: %v", user.ID, err)
	}
	for _, identity := range identities {
		identity.UserID = user.ID
		if err := db.Create(&identity).Error; err != nil {
			t.Fatalf("failed to seed identity %s: %v", identity.ID, err)
		}
	}
}

func seedPlainUser(t *testing.T, db *gorm.DB, id string) {
	t.Helper()
	seedUser(t, db, source.User{
		ID:    id,
		Email: stringPtr(id + "@example.com"),
		Identities: []source.Identity{{
			ID:       id + "-identity",
			Provider: source.ProviderEmail,
		}},
	})
}

func TestRunMigratesMixedPopulation(t *testing.T) {
	fixture := newMigrationFixture(t, 10)
	deleted := time.Unix(1690000000, 0).UTC()

	seedUser(t, fixture.sourceDB, source.User{
		ID:                "user-01",
		Email:             stringPtr("alice@example.com"),
		EncryptedPassword: stringPtr("$2a$10$hash"),
		Identities: []source.Identity{{
			ID:       "identity-01",
			Provider: source.ProviderEmail,
		}},
	})
	seedUser(t, fixture.sourceDB, source.User{
		ID:    "user-02",
		Phone: stringPtr("010-1234-5678"),
	})
	seedUser(t, fixture.sourceDB, source.User{
		ID:        "user-03",
		Email:     stringPtr("deleted@example.com"),
		DeletedAt: &deleted,
	})
	seedUser(t, fixture.sourceDB, source.User{ID: "user-04"})
	seedUser(t, fixture.sourceDB, source.User{
		ID:    "user-05",
		Email: stringPtr("bob@example.com"),
		Identities: []source.Identity{{
			ID:           "identity-05",
			Provider:     "google",
			ProviderID:   "google-raw",
			IdentityData: `{"sub":"google-sub-05"}`,
		}},
	})

	final, err := fixture.service.Run(context.Background(), RunOptions{})
	if err != nil {
		t.Fatalf("unexpected run error: %v", err)
	}

	if final.Status != StatusCompleted {
		t.Fatalf("expected completed, got %s", final.Status)
	}
	if final.TotalRecords != 5 || final.ProcessedRecords != 5 {
		t.Fatalf("expected 5 processed, got %+v", final)
	}
	if final.SuccessCount != 3 || final.SkipCount != 2 || final.FailureCount != 0 {
		t.Fatalf("unexpected counts: %+v", final)
	}
	if final.LastProcessedID != "user-05" {
		t.Fatalf("cursor must equal max id, got %s", final.LastProcessedID)
	}

	var migrated []target.User
	if err := fixture.targetDB.Order("id ASC").Find(&migrated).Error; err != nil {
		t.Fatalf("failed to load target users: %v", err)
	}
	if len(migrated) != 3 {
		t.Fatalf("expected 3 migrated users, got %d", len(migrated))
	}
	if migrated[0].ID != "user-01" || migrated[1].ID != "user-02" || migrated[2].ID != "user-05" {
		t.Fatalf("unexpected migrated ids: %+v", migrated)
	}
	if migrated[1].Email == nil || *migrated[1].Email != "01012345678@temp.better-auth.com" {
		t.Fatalf("expected synthetic email for phone-only user, got %v", migrated[1].Email)
	}

	var accounts []target.Account
	if err := fixture.targetDB.Order("userId ASC").Find(&accounts).Error; err != nil {
		t.Fatalf("failed to load accounts: %v", err)
	}
	if len(accounts) != 2 {
		t.Fatalf("expected credential and federated accounts, got %d", len(accounts))
	}
	if accounts[0].ProviderID != target.ProviderCredential || accounts[1].ProviderID != "google" {
		t.Fatalf("unexpected account providers: %+v", accounts)
	}
	if accounts[1].AccountID != "google-sub-05" {
		t.Fatalf("expected sub as federated account id, got %s", accounts[1].AccountID)
	}
}

func TestRunIsIdempotentAcrossFullReruns(t *testing.T) {
	fixture := newMigrationFixture(t, 2)
	for index := 1; index <= 5; index++ {
		seedPlainUser(t, fixture.sourceDB, fmt.Sprintf("user-%02d", index))
	}

	if _, err := fixture.service.Run(context.Background(), RunOptions{}); err != nil {
		t.Fatalf("unexpected first run error: %v", err)
	}

	var firstUsers, firstAccounts int64
	fixture.targetDB.Model(&target.User{}).Count(&firstUsers)
	fixture.targetDB.Model(&target.Account{}).Count(&firstAccounts)

	if _, err := fixture.service.Run(context.Background(), RunOptions{}); err != nil {
		t.Fatalf("unexpected second run error: %v", err)
	}

	var secondUsers, secondAccounts int64
	fixture.targetDB.Model(&target.User{}).Count(&secondUsers)
	fixture.targetDB.Model(&target.Account{}).Count(&secondAccounts)

	if firstUsers != secondUsers {
		t.Fatalf("expected identical user counts, got %d then %d", firstUsers, secondUsers)
	}
	if firstAccounts != secondAccounts {
		t.Fatalf("expected identical account counts, got %d then %d", firstAccounts, secondAccounts)
	}
	if firstUsers != 5 {
		t.Fatalf("expected 5 users, got %d", firstUsers)
	}
}

func TestRunResumesFromCursor(t *testing.T) {
	fixture := newMigrationFixture(t, 2)
	for index := 1; index <= 6; index++ {
		seedPlainUser(t, fixture.sourceDB, fmt.Sprintf("user-%02d", index))
	}

	final, err := fixture.service.Run(context.Background(), RunOptions{ResumeFromID: "user-03"})
	if err != nil {
		t.Fatalf("unexpected run error: %v", err)
	}

	if final.TotalRecords != 3 || final.SuccessCount != 3 {
		t.Fatalf("expected exactly the records after the cursor, got %+v", final)
	}
	if final.LastProcessedID != "user-06" {
		t.Fatalf("expected cursor advanced to user-06, got %s", final.LastProcessedID)
	}

	var migrated []target.User
	if err := fixture.targetDB.Order("id ASC").Find(&migrated).Error; err != nil {
		t.Fatalf("failed to load target users: %v", err)
	}
	if len(migrated) != 3 {
		t.Fatalf("expected 3 users after resume, got %d", len(migrated))
	}
	if migrated[0].ID != "user-04" {
		t.Fatalf("resume must process only ids after the cursor, got %s", migrated[0].ID)
	}
}

func TestRunCountsWholeBatchFailedWhenWriteFails(t *testing.T) {
	fixture := newMigrationFixture(t, 10)
	seedPlainUser(t, fixture.sourceDB, "user-01")
	seedPlainUser(t, fixture.sourceDB, "user-02")

	// Removing the account table makes every batch write fail and roll back.
	if err := fixture.targetDB.Migrator().DropTable(&target.Account{}); err != nil {
		t.Fatalf("failed to drop account table: %v", err)
	}

	final, err := fixture.service.Run(context.Background(), RunOptions{})
	if err != nil {
		t.Fatalf("batch failures must not abort the run: %v", err)
	}

	if final.Status != StatusCompleted {
		t.Fatalf("expected completed run with failures, got %s", final.Status)
	}
	if final.FailureCount != 2 || final.SuccessCount != 0 {
		t.Fatalf("expected whole batch counted failed, got %+v", final)
	}
	if len(final.Errors) != 1 || final.Errors[0].RecordID != bulkErrorRecordID {
		t.Fatalf("expected one synthetic bulk error, got %+v", final.Errors)
	}
	if final.LastProcessedID != "user-02" {
		t.Fatalf("cursor still advances past failed batches, got %s", final.LastProcessedID)
	}

	var userCount int64
	fixture.targetDB.Model(&target.User{}).Count(&userCount)
	if userCount != 0 {
		t.Fatalf("rolled back batch must leave no user rows, got %d", userCount)
	}
}

func TestRunFailsWhenSourceUnavailable(t *testing.T) {
	fixture := newMigrationFixture(t, 10)
	if err := fixture.sourceDB.Migrator().DropTable(&source.User{}); err != nil {
		t.Fatalf("failed to drop source table: %v", err)
	}

	final, err := fixture.service.Run(context.Background(), RunOptions{})
	if err == nil {
		t.Fatalf("expected fatal run error")
	}
	if final.Status != StatusFailed {
		t.Fatalf("expected failed status, got %s", final.Status)
	}
}

func TestRunHonorsCancellation(t *testing.T) {
	fixture := newMigrationFixture(t, 10)
	seedPlainUser(t, fixture.sourceDB, "user-01")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	final, err := fixture.service.Run(ctx, RunOptions{})
	if err == nil {
		t.Fatalf("expected cancellation error")
	}
	if final.Status != StatusFailed {
		t.Fatalf("expected failed status on cancellation, got %s", final.Status)
	}
}
