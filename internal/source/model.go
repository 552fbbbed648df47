package source

import (
	"encoding/json"
	"time"
)

// ProviderEmail is the reserved identity provider name meaning the user
// authenticates with a password rather than a federated provider.
const ProviderEmail = "email"

// User models one row of the source identity table. Metadata columns hold
// raw JSON text; use Metadata helpers to read individual keys.
type User struct {
	ID                string     `gorm:"column:id;primaryKey;size:190;not null"`
	Email             *string    `gorm:"column:email;size:320"`
	EncryptedPassword *string    `gorm:"column:encrypted_password;type:text"`
	EmailConfirmedAt  *time.Time `gorm:"column:email_confirmed_at"`
	Phone             *string    `gorm:"column:phone;size:64"`
	PhoneConfirmedAt  *time.Time `gorm:"column:phone_confirmed_at"`
	Role              *string    `gorm:"column:role;size:64"`
	IsSuperAdmin      bool       `gorm:"column:is_super_admin;not null;default:false"`
	BannedUntil       *time.Time `gorm:"column:banned_until"`
	InvitedAt         *time.Time `gorm:"column:invited_at"`
	LastSignInAt      *time.Time `gorm:"column:last_sign_in_at"`
	RawUserMetaData   string     `gorm:"column:raw_user_meta_data;type:text"`
	RawAppMetaData    string     `gorm:"column:raw_app_meta_data;type:text"`
	IsAnonymous       bool       `gorm:"column:is_anonymous;not null;default:false"`
	DeletedAt         *time.Time `gorm:"column:deleted_at"`
	CreatedAt         *time.Time `gorm:"column:created_at"`
	UpdatedAt         *time.Time `gorm:"column:updated_at"`

	Identities []Identity `gorm:"-"`
}

// TableName provides the explicit table binding for GORM.
func (User) TableName() string {
	return "auth_users"
}

// Identity models one external-identity row belonging to a source user.
type Identity struct {
	ID           string     `gorm:"column:id;primaryKey;size:190;not null"`
	UserID       string     `gorm:"column:user_id;size:190;not null;index"`
	Provider     string     `gorm:"column:provider;size:64;not null"`
	ProviderID   string     `gorm:"column:provider_id;size:320;not null"`
	IdentityData string     `gorm:"column:identity_data;type:text"`
	CreatedAt    *time.Time `gorm:"column:created_at"`
	UpdatedAt    *time.Time `gorm:"column:updated_at"`
}

// TableName provides the explicit table binding for GORM.
func (Identity) TableName() string {
	return "auth_identities"
}

// UserMetadata decodes the user-supplied metadata blob. Malformed or empty
// JSON yields an empty map.
func (u User) UserMetadata() map[string]any {
	return decodeMetadata(u.RawUserMetaData)
}

// AppMetadata decodes the application-supplied metadata blob.
func (u User) AppMetadata() map[string]any {
	return decodeMetadata(u.RawAppMetaData)
}

// Data decodes the provider-specific identity payload.
func (i Identity) Data() map[string]any {
	return decodeMetadata(i.IdentityData)
}

func decodeMetadata(raw string) map[string]any {
	if raw == "" {
		return map[string]any{}
	}
	decoded := map[string]any{}
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return map[string]any{}
	}
	return decoded
}
