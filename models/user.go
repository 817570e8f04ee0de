package models

import "go.mongodb.org/mongo-driver/bson/primitive"

// Role is a user's position within the system.
type Role string

// All user roles.
const (
	RoleCitizen    Role = "citizen"
	RoleWorker     Role = "worker"
	RoleSubhead    Role = "subhead"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "super-admin"
)

// Badge is an earned achievement. Badges are monotonic: once earned they are
// never removed.
type Badge struct {
	Name     string             `bson:"name" json:"name"`
	EarnedAt primitive.DateTime `bson:"earnedAt" json:"earnedAt"`
}

// User represents a registered user
type User struct {
	ID                primitive.ObjectID  `bson:"_id,omitempty" json:"id,omitempty"`
	Name              string              `bson:"name" json:"name"`
	Email             string              `bson:"email" json:"email"`
	Password          string              `bson:"password,omitempty" json:"-"`
	AvatarURL         string              `bson:"avatarUrl,omitempty" json:"avatarUrl,omitempty"`
	PhoneNumber       string              `bson:"phoneNumber,omitempty" json:"phoneNumber,omitempty"`
	Address           Address             `bson:"address,omitempty" json:"address,omitempty"`
	Role              Role                `bson:"role" json:"role"`
	Zone              *primitive.ObjectID `bson:"zone,omitempty" json:"zone,omitempty"`
	Department        *primitive.ObjectID `bson:"department,omitempty" json:"department,omitempty"`
	Points            int                 `bson:"points" json:"points"`
	Badges            []Badge             `bson:"badges,omitempty" json:"badges,omitempty"`
	PushToken         string              `bson:"pushToken,omitempty" json:"pushToken,omitempty"`
	PreferredLanguage string              `bson:"preferredLanguage,omitempty" json:"preferredLanguage,omitempty"`
	CreatedAt         primitive.DateTime  `bson:"createdAt" json:"createdAt"`
	UpdatedAt         primitive.DateTime  `bson:"updatedAt" json:"updatedAt"`
}

// HasBadge reports whether the user already earned the named badge.
func (u *User) HasBadge(name string) bool {
	for _, b := range u.Badges {
		if b.Name == name {
			return true
		}
	}
	return false
}
