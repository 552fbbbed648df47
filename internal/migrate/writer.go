package migrate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	// defaultParamCeiling bounds the bind parameters per statement; chunk
	// sizes are derived from it so one multi-row insert never exceeds the
	// target store's limit.
	defaultParamCeiling = 65000

	// accountColumnCount is fixed: account rows always carry the same seven
	// columns, so their chunk size never varies.
	accountColumnCount = 7
)

var (
	// ErrWriterMissingDatabase indicates the writer was built without a target handle.
	ErrWriterMissingDatabase = errors.New("migrate: target database handle is required")
)

// userColumn binds a target column name to its extractor. The extractor's
// second return reports whether the record carries the field at all;
// capability gating makes the optional set heterogeneous across records.
type userColumn struct {
	name    string
	extract func(UserInsert) (any, bool)
}

// userColumns fixes the column ordering used for every user insert.
var userColumns = []userColumn{
	{"id", func(u UserInsert) (any, bool) { return u.ID, true }},
	{"email", func(u UserInsert) (any, bool) { return stringPointerValue(u.Email), true }},
	{"name", func(u UserInsert) (any, bool) { return u.Name, true }},
	{"emailVerified", func(u UserInsert) (any, bool) { return u.EmailVerified, true }},
	{"image", func(u UserInsert) (any, bool) { return stringPointerValue(u.Image), u.Image != nil }},
	{"createdAt", func(u UserInsert) (any, bool) { return timePointerValue(u.CreatedAt), true }},
	{"updatedAt", func(u UserInsert) (any, bool) { return timePointerValue(u.UpdatedAt), true }},
	{"isAnonymous", func(u UserInsert) (any, bool) { return boolPointerValue(u.IsAnonymous), u.IsAnonymous != nil }},
	{"phoneNumber", func(u UserInsert) (any, bool) { return stringPointerValue(u.PhoneNumber), u.PhoneNumber != nil }},
	{"phoneNumberVerified", func(u UserInsert) (any, bool) { return boolPointerValue(u.PhoneNumberVerified), u.PhoneNumberVerified != nil }},
	{"role", func(u UserInsert) (any, bool) { return stringPointerValue(u.Role), u.Role != nil }},
	{"banned", func(u UserInsert) (any, bool) { return boolPointerValue(u.Banned), u.Banned != nil }},
	{"banExpires", func(u UserInsert) (any, bool) { return timePointerValue(u.BanExpires), u.BanExpires != nil }},
	{"banReason", func(u UserInsert) (any, bool) { return stringPointerValue(u.BanReason), u.BanReason != nil }},
	{"userMetadata", func(u UserInsert) (any, bool) { return stringPointerValue(u.UserMetadata), u.UserMetadata != nil }},
	{"appMetadata", func(u UserInsert) (any, bool) { return stringPointerValue(u.AppMetadata), u.AppMetadata != nil }},
	{"invitedAt", func(u UserInsert) (any, bool) { return timePointerValue(u.InvitedAt), u.InvitedAt != nil }},
	{"lastSignInAt", func(u UserInsert) (any, bool) { return timePointerValue(u.LastSignInAt), u.LastSignInAt != nil }},
}

// BulkWriterConfig describes the dependencies for transactional batch writes.
type BulkWriterConfig struct {
	Database     *gorm.DB
	ParamCeiling int
	Logger       *zap.Logger
}

// BulkWriter writes one batch of users and linked accounts inside a single
// transaction, splitting each insert series into parameter-limit-safe chunks
// with conflict-skip semantics on the primary key.
type BulkWriter struct {
	db           *gorm.DB
	paramCeiling int
	logger       *zap.Logger
}

// NewBulkWriter constructs a BulkWriter over the target store.
func NewBulkWriter(cfg BulkWriterConfig) (*BulkWriter, error) {
	if cfg.Database == nil {
		return nil, ErrWriterMissingDatabase
	}
	ceiling := cfg.ParamCeiling
	if ceiling <= 0 {
		ceiling = defaultParamCeiling
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BulkWriter{db: cfg.Database, paramCeiling: ceiling, logger: logger}, nil
}

// WriteBatch persists the batch transactionally. Any chunk failure rolls
// back every chunk of the batch; a re-run then re-inserts the whole batch,
// which the conflict-skip policy makes idempotent.
func (w *BulkWriter) WriteBatch(ctx context.Context, users []UserInsert, accounts []AccountInsert) error {
	if len(users) == 0 && len(accounts) == 0 {
		return nil
	}

	return w.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := w.writeUsers(tx, users); err != nil {
			return err
		}
		return w.writeAccounts(tx, accounts)
	})
}

func (w *BulkWriter) writeUsers(tx *gorm.DB, users []UserInsert) error {
	if len(users) == 0 {
		return nil
	}

	columns := activeUserColumns(users)
	rowsPerChunk := chunkRows(w.paramCeiling, len(columns))

	names := make([]string, 0, len(columns))
	for _, column := range columns {
		names = append(names, `"`+column.name+`"`)
	}
	prefix := fmt.Sprintf(`INSERT INTO "user" (%s) VALUES `, strings.Join(names, ", "))

	for start := 0; start < len(users); start += rowsPerChunk {
		end := start + rowsPerChunk
		if end > len(users) {
			end = len(users)
		}
		chunk := users[start:end]

		placeholders := make([]string, 0, len(chunk))
		values := make([]any, 0, len(chunk)*len(columns))
		rowPlaceholder := "(" + strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ") + ")"
		for _, user := range chunk {
			placeholders = append(placeholders, rowPlaceholder)
			for _, column := range columns {
				value, _ := column.extract(user)
				values = append(values, value)
			}
		}

		statement := prefix + strings.Join(placeholders, ", ") + ` ON CONFLICT ("id") DO NOTHING`
		if err := tx.Exec(statement, values...).Error; err != nil {
			return fmt.Errorf("migrate: user chunk insert failed: %w", err)
		}
	}

	w.logger.Debug("user rows written",
		zap.Int("rows", len(users)),
		zap.Int("columns", len(columns)),
		zap.Int("rows_per_chunk", rowsPerChunk))
	return nil
}

func (w *BulkWriter) writeAccounts(tx *gorm.DB, accounts []AccountInsert) error {
	if len(accounts) == 0 {
		return nil
	}

	rowsPerChunk := chunkRows(w.paramCeiling, accountColumnCount)

	for start := 0; start < len(accounts); start += rowsPerChunk {
		end := start + rowsPerChunk
		if end > len(accounts) {
			end = len(accounts)
		}
		chunk := accounts[start:end]

		placeholders := make([]string, 0, len(chunk))
		values := make([]any, 0, len(chunk)*accountColumnCount)
		for _, account := range chunk {
			placeholders = append(placeholders, "(?, ?, ?, ?, ?, ?, ?)")
			values = append(values,
				account.ID,
				account.UserID,
				account.ProviderID,
				account.AccountID,
				stringPointerValue(account.Password),
				timePointerValue(account.CreatedAt),
				timePointerValue(account.UpdatedAt))
		}

		statement := `INSERT INTO "account" ("id", "userId", "providerId", "accountId", "password", "createdAt", "updatedAt") VALUES ` +
			strings.Join(placeholders, ", ") + ` ON CONFLICT ("id") DO NOTHING`
		if err := tx.Exec(statement, values...).Error; err != nil {
			return fmt.Errorf("migrate: account chunk insert failed: %w", err)
		}
	}

	return nil
}

// activeUserColumns computes the superset of fields present across the batch
// in the fixed column order. Required columns are always included.
func activeUserColumns(users []UserInsert) []userColumn {
	active := make([]userColumn, 0, len(userColumns))
	for _, column := range userColumns {
		for _, user := range users {
			if _, present := column.extract(user); present {
				active = append(active, column)
				break
			}
		}
	}
	return active
}

// chunkRows returns how many records fit in one statement under the
// parameter ceiling, never less than one row.
func chunkRows(paramCeiling, fieldsPerRecord int) int {
	if fieldsPerRecord <= 0 {
		return 1
	}
	rows := paramCeiling / fieldsPerRecord
	if rows < 1 {
		return 1
	}
	return rows
}

func stringPointerValue(value *string) any {
	if value == nil {
		return nil
	}
	return *value
}

func boolPointerValue(value *bool) any {
	if value == nil {
		return nil
	}
	return *value
}

func timePointerValue(value *time.Time) any {
	if value == nil {
		return nil
	}
	return *value
}
