package target

import "time"

// User models the target identity table. Columns beyond the required core
// are populated only when the matching capability is enabled; the schema
// carries them regardless so migrated deployments can enable capabilities
// later without another schema change.
type User struct {
	ID                  string     `gorm:"column:id;primaryKey;size:190;not null"`
	Email               *string    `gorm:"column:email;size:320;index"`
	Name                string     `gorm:"column:name;size:320;not null"`
	EmailVerified       bool       `gorm:"column:emailVerified;not null;default:false"`
	Image               *string    `gorm:"column:image;size:512"`
	CreatedAt           *time.Time `gorm:"column:createdAt"`
	UpdatedAt           *time.Time `gorm:"column:updatedAt"`
	IsAnonymous         *bool      `gorm:"column:isAnonymous"`
	PhoneNumber         *string    `gorm:"column:phoneNumber;size:64"`
	PhoneNumberVerified *bool      `gorm:"column:phoneNumberVerified"`
	Role                *string    `gorm:"column:role;size:64"`
	Banned              *bool      `gorm:"column:banned"`
	BanExpires          *time.Time `gorm:"column:banExpires"`
	BanReason           *string    `gorm:"column:banReason;size:320"`
	UserMetadata        *string    `gorm:"column:userMetadata;type:text"`
	AppMetadata         *string    `gorm:"column:appMetadata;type:text"`
	InvitedAt           *time.Time `gorm:"column:invitedAt"`
	LastSignInAt        *time.Time `gorm:"column:lastSignInAt"`
}

// TableName provides the explicit table binding for GORM.
func (User) TableName() string {
	return "user"
}

// Account models one linked authentication method for a migrated user:
// either a password credential or a federated provider identity.
type Account struct {
	ID         string     `gorm:"column:id;primaryKey;size:190;not null"`
	UserID     string     `gorm:"column:userId;size:190;not null;index"`
	ProviderID string     `gorm:"column:providerId;size:64;not null"`
	AccountID  string     `gorm:"column:accountId;size:320;not null"`
	Password   *string    `gorm:"column:password;type:text"`
	CreatedAt  *time.Time `gorm:"column:createdAt"`
	UpdatedAt  *time.Time `gorm:"column:updatedAt"`
}

// TableName provides the explicit table binding for GORM.
func (Account) TableName() string {
	return "account"
}
