package source

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

var (
	// ErrMissingDatabase indicates the paginator was built without a source handle.
	ErrMissingDatabase = errors.New("source: database handle is required")
	// ErrInvalidLimit indicates a non-positive batch limit.
	ErrInvalidLimit = errors.New("source: fetch limit must be positive")
)

// PaginatorConfig describes the dependencies for cursor-based source reads.
type PaginatorConfig struct {
	Database *gorm.DB
}

// Paginator fetches ordered batches of source users keyed by ascending id.
// The id ordering is total and stable, so re-fetching after any committed
// cursor continues deterministically.
type Paginator struct {
	db *gorm.DB
}

// NewPaginator constructs a Paginator over the source store.
func NewPaginator(cfg PaginatorConfig) (*Paginator, error) {
	if cfg.Database == nil {
		return nil, ErrMissingDatabase
	}
	return &Paginator{db: cfg.Database}, nil
}

// CountRemaining returns the number of source users with id greater than the
// supplied cursor. An empty cursor counts the entire table.
func (p *Paginator) CountRemaining(ctx context.Context, afterID string) (int64, error) {
	query := p.db.WithContext(ctx).Model(&User{})
	if afterID != "" {
		query = query.Where("id > ?", afterID)
	}
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}

// FetchBatch returns up to limit users with id strictly greater than afterID,
// ordered by ascending id, each joined with its identities ordered by
// identity id. A result shorter than limit signals end of source.
func (p *Paginator) FetchBatch(ctx context.Context, afterID string, limit int) ([]User, error) {
	if limit <= 0 {
		return nil, ErrInvalidLimit
	}

	query := p.db.WithContext(ctx).Model(&User{})
	if afterID != "" {
		query = query.Where("id > ?", afterID)
	}

	var users []User
	if err := query.Order("id ASC").Limit(limit).Find(&users).Error; err != nil {
		return nil, err
	}
	if len(users) == 0 {
		return users, nil
	}

	userIDs := make([]string, 0, len(users))
	for _, user := range users {
		userIDs = append(userIDs, user.ID)
	}

	var identities []Identity
	if err := p.db.WithContext(ctx).
		Where("user_id IN ?", userIDs).
		Order("id ASC").
		Find(&identities).Error; err != nil {
		return nil, err
	}

	grouped := make(map[string][]Identity, len(users))
	for _, identity := range identities {
		grouped[identity.UserID] = append(grouped[identity.UserID], identity)
	}
	for index := range users {
		users[index].Identities = grouped[users[index].ID]
	}

	return users, nil
}
