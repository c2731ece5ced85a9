package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type PlatformRole string

const (
	RoleSuperAdmin PlatformRole = "super_admin"
	RoleUser       PlatformRole = "user"
)

func ParsePlatformRole(s string) (PlatformRole, error) {
	switch r := PlatformRole(s); r {
	case RoleSuperAdmin, RoleUser:
		return r, nil
	}
	return "", Validationf("invalid role %q, must be super_admin or user", s)
}

// PlatformUser is an operator account keyed by the identity provider uid.
type PlatformUser struct {
	ID          uuid.UUID
	FirebaseUID string
	Email       string
	DisplayName string
	Role        PlatformRole
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func NewPlatformUser(uid, email, displayName string, role PlatformRole, now time.Time) (PlatformUser, error) {
	uid, email = strings.TrimSpace(uid), strings.TrimSpace(email)
	if uid == "" || email == "" {
		return PlatformUser{}, Validationf("firebase_uid and email are required")
	}
	if role == "" {
		role = RoleUser
	}
	if _, err := ParsePlatformRole(string(role)); err != nil {
		return PlatformUser{}, err
	}
	return PlatformUser{
		ID:          uuid.New(),
		FirebaseUID: uid,
		Email:       email,
		DisplayName: strings.TrimSpace(displayName),
		Role:        role,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}
