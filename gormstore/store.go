// Package gormstore is a ready-made [authcore.CredentialStore] on top
// of GORM. It exists for callers that do not want to hand-roll the
// store contract; anything with different persistence needs implements
// the interface directly.
package gormstore

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/obsidiansec/authcore"
)

type principalRecord struct {
	ID            string `gorm:"primaryKey;size:36"`
	Username      string `gorm:"uniqueIndex;size:64;not null"`
	PasswordHash  string `gorm:"size:256;not null"`
	Roles         string `gorm:"size:256"`
	Email         string `gorm:"index;size:256"`
	EmailVerified bool
	Code          string `gorm:"size:16"`
	CodeExpiresAt *time.Time
	CreatedAt     time.Time
}

func (principalRecord) TableName() string { return "principals" }

type linkedIdentityRecord struct {
	ID         string `gorm:"primaryKey;size:36"`
	Provider   string `gorm:"size:32;not null;uniqueIndex:idx_provider_subject"`
	SubjectID  string `gorm:"size:128;not null;uniqueIndex:idx_provider_subject"`
	Email      string `gorm:"index;size:256"`
	Name       string `gorm:"size:128"`
	AvatarURL  string `gorm:"size:512"`
	FirstLogin time.Time
	LastLogin  time.Time
	LoginCount int
	Roles      string `gorm:"size:256"`
}

func (linkedIdentityRecord) TableName() string { return "linked_identities" }

// Store implements authcore.CredentialStore over a *gorm.DB.
type Store struct {
	db *gorm.DB
}

// New migrates the two tables and returns a Store.
func New(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&principalRecord{}, &linkedIdentityRecord{}); err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) FindByUsername(ctx context.Context, username string) (*authcore.Principal, error) {
	var rec principalRecord
	err := s.db.WithContext(ctx).Where("username = ?", username).First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return toPrincipal(&rec), nil
}

func (s *Store) FindByEmail(ctx context.Context, email string) (*authcore.Principal, error) {
	var rec principalRecord
	err := s.db.WithContext(ctx).Where("LOWER(email) = LOWER(?)", email).First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return toPrincipal(&rec), nil
}

func (s *Store) SaveUser(ctx context.Context, p *authcore.Principal) error {
	return s.db.WithContext(ctx).Save(fromPrincipal(p)).Error
}

func (s *Store) DeleteUser(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Delete(&principalRecord{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return authcore.ErrNotFound
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]authcore.Principal, error) {
	var recs []principalRecord
	if err := s.db.WithContext(ctx).Find(&recs).Error; err != nil {
		return nil, err
	}
	out := make([]authcore.Principal, 0, len(recs))
	for i := range recs {
		out = append(out, *toPrincipal(&recs[i]))
	}
	return out, nil
}

func (s *Store) FindByProviderSubject(ctx context.Context, provider, subjectID string) (*authcore.LinkedIdentity, error) {
	var rec linkedIdentityRecord
	err := s.db.WithContext(ctx).
		Where("provider = ? AND subject_id = ?", provider, subjectID).
		First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return toLinkedIdentity(&rec), nil
}

func (s *Store) SaveLinkedIdentity(ctx context.Context, li *authcore.LinkedIdentity) error {
	return s.db.WithContext(ctx).Save(fromLinkedIdentity(li)).Error
}

func (s *Store) DeleteLinkedIdentity(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Delete(&linkedIdentityRecord{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return authcore.ErrNotFound
	}
	return nil
}

// WithinTx runs fn against a Store bound to a database transaction.
func (s *Store) WithinTx(ctx context.Context, fn func(authcore.CredentialStore) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx})
	})
}

func toPrincipal(rec *principalRecord) *authcore.Principal {
	return &authcore.Principal{
		ID:            rec.ID,
		Username:      rec.Username,
		PasswordHash:  rec.PasswordHash,
		Roles:         splitRoles(rec.Roles),
		Email:         rec.Email,
		EmailVerified: rec.EmailVerified,
		Code:          rec.Code,
		CodeExpiresAt: rec.CodeExpiresAt,
		CreatedAt:     rec.CreatedAt,
	}
}

func fromPrincipal(p *authcore.Principal) *principalRecord {
	return &principalRecord{
		ID:            p.ID,
		Username:      p.Username,
		PasswordHash:  p.PasswordHash,
		Roles:         joinRoles(p.Roles),
		Email:         p.Email,
		EmailVerified: p.EmailVerified,
		Code:          p.Code,
		CodeExpiresAt: p.CodeExpiresAt,
		CreatedAt:     p.CreatedAt,
	}
}

func toLinkedIdentity(rec *linkedIdentityRecord) *authcore.LinkedIdentity {
	return &authcore.LinkedIdentity{
		ID:         rec.ID,
		Email:      rec.Email,
		Name:       rec.Name,
		AvatarURL:  rec.AvatarURL,
		Provider:   rec.Provider,
		SubjectID:  rec.SubjectID,
		FirstLogin: rec.FirstLogin,
		LastLogin:  rec.LastLogin,
		LoginCount: rec.LoginCount,
		Roles:      splitRoles(rec.Roles),
	}
}

func fromLinkedIdentity(li *authcore.LinkedIdentity) *linkedIdentityRecord {
	return &linkedIdentityRecord{
		ID:         li.ID,
		Email:      li.Email,
		Name:       li.Name,
		AvatarURL:  li.AvatarURL,
		Provider:   li.Provider,
		SubjectID:  li.SubjectID,
		FirstLogin: li.FirstLogin,
		LastLogin:  li.LastLogin,
		LoginCount: li.LoginCount,
		Roles:      joinRoles(li.Roles),
	}
}

func splitRoles(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

func joinRoles(roles []string) string {
	return strings.Join(roles, ",")
}
