package migrate

import (
	"strings"
	"time"

	"github.com/authshift/authshift/internal/source"
	"github.com/authshift/authshift/internal/target"
)

// banReasonMigrated is written for users carried over with an active ban.
const banReasonMigrated = "Banned prior to migration"

// UserInsert is the target-shaped projection of one source user. Required
// fields are always set; optional fields are nil unless the matching
// capability gate admitted them. The shape is fixed at compile time so the
// bulk writer can compute exact per-record field sets for chunk sizing.
type UserInsert struct {
	ID                  string
	Email               *string
	Name                string
	EmailVerified       bool
	Image               *string
	CreatedAt           *time.Time
	UpdatedAt           *time.Time
	IsAnonymous         *bool
	PhoneNumber         *string
	PhoneNumberVerified *bool
	Role                *string
	Banned              *bool
	BanExpires          *time.Time
	BanReason           *string
	UserMetadata        *string
	AppMetadata         *string
	InvitedAt           *time.Time
	LastSignInAt        *time.Time
}

// TransformerConfig describes how source records are projected for the
// target store.
type TransformerConfig struct {
	Capabilities    target.Capabilities
	TempEmailDomain string
	Clock           func() time.Time
}

// Transformer converts raw source users into target-shaped inserts,
// applying skip rules and capability-gated field derivation.
type Transformer struct {
	capabilities    target.Capabilities
	tempEmailDomain string
	clock           func() time.Time
}

// NewTransformer constructs a Transformer with the run's capability
// descriptor. Capabilities are immutable for the run.
func NewTransformer(cfg TransformerConfig) *Transformer {
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Transformer{
		capabilities:    cfg.Capabilities,
		tempEmailDomain: cfg.TempEmailDomain,
		clock:           clock,
	}
}

// Transform projects one source user into a UserInsert. The second return is
// false when the record must be skipped. Skip rules short-circuit in order:
// no contact point at all, phone-only without phone support, soft-deleted,
// and banned without ban handling.
func (t *Transformer) Transform(user source.User) (UserInsert, bool) {
	email := stringValue(user.Email)
	phone := stringValue(user.Phone)

	if email == "" && phone == "" {
		return UserInsert{}, false
	}
	if email == "" && !t.capabilities.PhoneNumber {
		return UserInsert{}, false
	}
	if user.DeletedAt != nil {
		return UserInsert{}, false
	}
	if user.BannedUntil != nil && !t.capabilities.Admin {
		return UserInsert{}, false
	}

	insert := UserInsert{
		ID:            user.ID,
		Name:          t.deriveName(user, email, phone),
		EmailVerified: user.EmailConfirmedAt != nil,
		CreatedAt:     user.CreatedAt,
		UpdatedAt:     user.UpdatedAt,
	}

	if email != "" {
		insert.Email = &email
	} else {
		synthetic := t.syntheticEmail(phone)
		insert.Email = &synthetic
	}

	if image := deriveImage(user); image != "" {
		insert.Image = &image
	}

	if t.capabilities.Anonymous {
		anonymous := user.IsAnonymous
		insert.IsAnonymous = &anonymous
	}

	if t.capabilities.PhoneNumber && phone != "" {
		insert.PhoneNumber = &phone
		verified := user.PhoneConfirmedAt != nil
		insert.PhoneNumberVerified = &verified
	}

	if t.capabilities.Admin {
		role := "user"
		if user.IsSuperAdmin {
			role = "admin"
		} else if stored := stringValue(user.Role); stored != "" {
			role = stored
		}
		insert.Role = &role

		banned := false
		if user.BannedUntil != nil && user.BannedUntil.After(t.clock()) {
			banned = true
			expires := *user.BannedUntil
			reason := banReasonMigrated
			insert.BanExpires = &expires
			insert.BanReason = &reason
		}
		insert.Banned = &banned
	}

	if len(user.UserMetadata()) > 0 {
		metadata := user.RawUserMetaData
		insert.UserMetadata = &metadata
	}
	if len(user.AppMetadata()) > 0 {
		metadata := user.RawAppMetaData
		insert.AppMetadata = &metadata
	}
	if user.InvitedAt != nil {
		insert.InvitedAt = user.InvitedAt
	}
	if user.LastSignInAt != nil {
		insert.LastSignInAt = user.LastSignInAt
	}

	return insert, true
}

// syntheticEmail builds an address for phone-only users from the phone's
// digits and the configured temporary domain.
func (t *Transformer) syntheticEmail(phone string) string {
	var digits strings.Builder
	for _, character := range phone {
		if character >= '0' && character <= '9' {
			digits.WriteRune(character)
		}
	}
	return digits.String() + "@" + t.tempEmailDomain
}

func (t *Transformer) deriveName(user source.User, email, phone string) string {
	userMetadata := user.UserMetadata()
	for _, key := range []string{"name", "full_name", "username", "user_name"} {
		if value := metadataString(userMetadata, key); value != "" {
			return value
		}
	}

	if len(user.Identities) > 0 {
		identityData := user.Identities[0].Data()
		for _, key := range []string{"name", "full_name", "username", "preferred_username"} {
			if value := metadataString(identityData, key); value != "" {
				return value
			}
		}
	}

	if email != "" {
		if at := strings.Index(email, "@"); at > 0 {
			return email[:at]
		}
		return email
	}
	if phone != "" {
		return phone
	}
	return "Unknown"
}

func deriveImage(user source.User) string {
	userMetadata := user.UserMetadata()
	for _, key := range []string{"avatar_url", "picture"} {
		if value := metadataString(userMetadata, key); value != "" {
			return value
		}
	}
	if len(user.Identities) > 0 {
		identityData := user.Identities[0].Data()
		for _, key := range []string{"avatar_url", "picture"} {
			if value := metadataString(identityData, key); value != "" {
				return value
			}
		}
	}
	return ""
}

func metadataString(metadata map[string]any, key string) string {
	if raw, ok := metadata[key]; ok {
		if value, ok := raw.(string); ok {
			return value
		}
	}
	return ""
}

func stringValue(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
