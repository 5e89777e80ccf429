package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleOrganizer Role = "organizer"
	RoleAdmin     Role = "admin"
	RoleStaff     Role = "staff"
	RoleScanner   Role = "scanner"
)

func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleOrganizer, RoleAdmin, RoleStaff, RoleScanner:
		return true
	}
	return false
}

const ProviderCredentials = "credentials"

type User struct {
	ID              primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Email           string             `bson:"email" json:"email" validate:"required,email"`
	Name            string             `bson:"name" json:"name" validate:"max=120"`
	PasswordHash    string             `bson:"passwordHash,omitempty" json:"-"`
	Provider        string             `bson:"provider" json:"provider"`
	ProviderSubject string             `bson:"providerSubject,omitempty" json:"-"`
	Role            Role               `bson:"role" json:"role"`
	Phone           string             `bson:"phone,omitempty" json:"phone,omitempty"`
	AvatarURL       string             `bson:"avatarUrl,omitempty" json:"avatarUrl,omitempty"`
	IsVerified      bool               `bson:"isVerified" json:"isVerified"`
	CreatedAt       time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt       time.Time          `bson:"updatedAt" json:"updatedAt"`
}

type UserUpdate struct {
	Name      *string `json:"name" validate:"omitempty,min=1,max=120"`
	Phone     *string `json:"phone" validate:"omitempty,max=32"`
	AvatarURL *string `json:"avatarUrl" validate:"omitempty,url"`
}

func (u UserUpdate) Empty() bool {
	return u.Name == nil && u.Phone == nil && u.AvatarURL == nil
}

// VerificationCode is a pending signup confirmation. Documents expire through
// a TTL index on expiresAt.
type VerificationCode struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Email     string             `bson:"email" json:"email"`
	Code      string             `bson:"code" json:"-"`
	Attempts  int                `bson:"attempts" json:"attempts"`
	ExpiresAt time.Time          `bson:"expiresAt" json:"expiresAt"`
	CreatedAt time.Time          `bson:"createdAt" json:"createdAt"`
}

const MaxVerificationAttempts = 5
