package migrate

import (
	"time"

	"github.com/authshift/authshift/internal/source"
	"github.com/authshift/authshift/internal/target"
	"github.com/google/uuid"
)

// AccountInsert is one linked-account row to be written alongside a migrated
// user: either a password credential or a federated provider identity.
type AccountInsert struct {
	ID         string
	UserID     string
	ProviderID string
	AccountID  string
	Password   *string
	CreatedAt  *time.Time
	UpdatedAt  *time.Time
}

// IDProvider issues identifiers for new linked-account rows.
type IDProvider interface {
	NewID() (string, error)
}

type uuidProvider struct{}

// NewUUIDProvider constructs an IDProvider that issues UUIDv7 identifiers.
func NewUUIDProvider() IDProvider {
	return &uuidProvider{}
}

func (p *uuidProvider) NewID() (string, error) {
	value, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return value.String(), nil
}

// DeriveAccounts materializes linked-account rows for one source user. The
// reserved "email" provider yields a password credential carrying the user's
// stored hash (nil for passwordless accounts); identities whose provider the
// target supports yield federated rows keyed by the payload's "sub", falling
// back to the identity's provider-scoped id. Other providers are dropped
// silently.
func DeriveAccounts(user source.User, capabilities target.Capabilities, ids IDProvider) ([]AccountInsert, error) {
	var accounts []AccountInsert

	for _, identity := range user.Identities {
		if identity.Provider == source.ProviderEmail {
			id, err := ids.NewID()
			if err != nil {
				return nil, err
			}
			accounts = append(accounts, AccountInsert{
				ID:         id,
				UserID:     user.ID,
				ProviderID: target.ProviderCredential,
				AccountID:  user.ID,
				Password:   user.EncryptedPassword,
				CreatedAt:  user.CreatedAt,
				UpdatedAt:  user.UpdatedAt,
			})
		}

		if capabilities.SupportsProvider(identity.Provider) {
			id, err := ids.NewID()
			if err != nil {
				return nil, err
			}
			accountID := metadataString(identity.Data(), "sub")
			if accountID == "" {
				accountID = identity.ProviderID
			}
			createdAt := identity.CreatedAt
			if createdAt == nil {
				createdAt = user.CreatedAt
			}
			updatedAt := identity.UpdatedAt
			if updatedAt == nil {
				updatedAt = user.UpdatedAt
			}
			accounts = append(accounts, AccountInsert{
				ID:         id,
				UserID:     user.ID,
				ProviderID: identity.Provider,
				AccountID:  accountID,
				CreatedAt:  createdAt,
				UpdatedAt:  updatedAt,
			})
		}
	}

	return accounts, nil
}
