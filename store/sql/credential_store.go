package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-pushsync/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// CredentialStore keeps one credential row per (user, dashboard, provider)
// with both secrets encrypted at rest. Reads decrypt; a record that fails to
// decrypt surfaces an encryption error instead of an empty secret.
type CredentialStore struct {
	db     *bun.DB
	repo   repository.Repository[*credentialRecord]
	cipher core.SecretCipher
}

func NewCredentialStore(db *bun.DB, cipher core.SecretCipher) (*CredentialStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	if cipher == nil {
		return nil, fmt.Errorf("sqlstore: secret cipher is required")
	}
	repo := repository.NewRepository[*credentialRecord](db, credentialHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid credential repository wiring: %w", err)
		}
	}
	return &CredentialStore{db: db, repo: repo, cipher: cipher}, nil
}

func (s *CredentialStore) Save(ctx context.Context, in core.SaveCredentialInput) (core.Credential, error) {
	if s == nil || s.db == nil || s.cipher == nil {
		return core.Credential{}, fmt.Errorf("sqlstore: credential store is not configured")
	}
	in.Owner = in.Owner.Normalize()
	in.ProviderID = strings.TrimSpace(in.ProviderID)
	if err := in.Owner.Validate(); err != nil {
		return core.Credential{}, err
	}
	if in.ProviderID == "" {
		return core.Credential{}, fmt.Errorf("sqlstore: provider id is required")
	}
	if strings.TrimSpace(in.AccessSecret) == "" {
		return core.Credential{}, fmt.Errorf("sqlstore: access secret is required")
	}

	encryptedAccess, err := s.cipher.Encrypt(ctx, []byte(in.AccessSecret))
	if err != nil {
		return core.Credential{}, err
	}
	var encryptedRefresh []byte
	if in.RefreshSecret != "" {
		encryptedRefresh, err = s.cipher.Encrypt(ctx, []byte(in.RefreshSecret))
		if err != nil {
			return core.Credential{}, err
		}
	}

	now := time.Now().UTC()
	var saved *credentialRecord
	err = s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		existing, findErr := findCredentialTx(ctx, tx, in.Owner, in.ProviderID)
		if findErr != nil {
			return findErr
		}
		if existing == nil {
			record := &credentialRecord{
				ID:                     uuid.NewString(),
				UserID:                 in.Owner.UserID,
				DashboardID:            in.Owner.DashboardID,
				ProviderID:             in.ProviderID,
				EncryptedAccessSecret:  encryptedAccess,
				EncryptedRefreshSecret: encryptedRefresh,
				InstallationID:         strings.TrimSpace(in.InstallationID),
				CreatedAt:              now,
				UpdatedAt:              now,
			}
			if !in.ExpiresAt.IsZero() {
				expires := in.ExpiresAt.UTC()
				record.ExpiresAt = &expires
			}
			if _, insertErr := tx.NewInsert().Model(record).Exec(ctx); insertErr != nil {
				return insertErr
			}
			saved = record
			return nil
		}

		// Re-authorization replaces the secret pair in place.
		existing.EncryptedAccessSecret = encryptedAccess
		existing.EncryptedRefreshSecret = encryptedRefresh
		existing.InstallationID = strings.TrimSpace(in.InstallationID)
		existing.UpdatedAt = now
		existing.ExpiresAt = nil
		if !in.ExpiresAt.IsZero() {
			expires := in.ExpiresAt.UTC()
			existing.ExpiresAt = &expires
		}
		if _, updateErr := tx.NewUpdate().
			Model(existing).
			Where("id = ?", existing.ID).
			Exec(ctx); updateErr != nil {
			return updateErr
		}
		saved = existing
		return nil
	})
	if err != nil {
		return core.Credential{}, err
	}
	return saved.toDomain(in.AccessSecret, in.RefreshSecret), nil
}

func (s *CredentialStore) Find(ctx context.Context, owner core.OwnerRef, providerID string) (core.Credential, error) {
	if s == nil || s.repo == nil {
		return core.Credential{}, fmt.Errorf("sqlstore: credential store is not configured")
	}
	owner = owner.Normalize()
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("user_id", "=", owner.UserID),
		repository.SelectBy("dashboard_id", "=", owner.DashboardID),
		repository.SelectBy("provider_id", "=", strings.TrimSpace(providerID)),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		return core.Credential{}, err
	}
	if len(records) == 0 {
		return core.Credential{}, core.NewCredentialNotFoundError(
			fmt.Sprintf("sqlstore: credential not found for %s provider %q", owner, providerID),
		)
	}
	return s.decryptRecord(ctx, records[0])
}

func (s *CredentialStore) FindAllForDashboard(ctx context.Context, owner core.OwnerRef) ([]core.Credential, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: credential store is not configured")
	}
	owner = owner.Normalize()
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("user_id", "=", owner.UserID),
		repository.SelectBy("dashboard_id", "=", owner.DashboardID),
		repository.OrderBy("provider_id ASC"),
	)
	if err != nil {
		return nil, err
	}
	out := make([]core.Credential, 0, len(records))
	for _, record := range records {
		credential, decryptErr := s.decryptRecord(ctx, record)
		if decryptErr != nil {
			return nil, decryptErr
		}
		out = append(out, credential)
	}
	return out, nil
}

func (s *CredentialStore) Rotate(ctx context.Context, in core.RotateCredentialInput) (core.Credential, error) {
	if s == nil || s.db == nil || s.cipher == nil {
		return core.Credential{}, fmt.Errorf("sqlstore: credential store is not configured")
	}
	id := strings.TrimSpace(in.ID)
	if id == "" {
		return core.Credential{}, fmt.Errorf("sqlstore: credential id is required")
	}
	if strings.TrimSpace(in.AccessSecret) == "" {
		return core.Credential{}, fmt.Errorf("sqlstore: rotated access secret is required")
	}

	encryptedAccess, err := s.cipher.Encrypt(ctx, []byte(in.AccessSecret))
	if err != nil {
		return core.Credential{}, err
	}
	var encryptedRefresh []byte
	if in.RefreshSecret != "" {
		encryptedRefresh, err = s.cipher.Encrypt(ctx, []byte(in.RefreshSecret))
		if err != nil {
			return core.Credential{}, err
		}
	}

	record := &credentialRecord{}
	err = s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if scanErr := tx.NewSelect().
			Model(record).
			Where("?TableAlias.id = ?", id).
			Scan(ctx); scanErr != nil {
			if errors.Is(scanErr, sql.ErrNoRows) {
				return core.NewCredentialNotFoundError("sqlstore: credential not found for rotate: " + id)
			}
			return scanErr
		}
		record.EncryptedAccessSecret = encryptedAccess
		if encryptedRefresh != nil {
			record.EncryptedRefreshSecret = encryptedRefresh
		}
		record.UpdatedAt = time.Now().UTC()
		record.ExpiresAt = nil
		if !in.ExpiresAt.IsZero() {
			expires := in.ExpiresAt.UTC()
			record.ExpiresAt = &expires
		}
		_, updateErr := tx.NewUpdate().
			Model(record).
			Where("id = ?", record.ID).
			Exec(ctx)
		return updateErr
	})
	if err != nil {
		return core.Credential{}, err
	}
	return s.decryptRecord(ctx, record)
}

func (s *CredentialStore) Delete(ctx context.Context, owner core.OwnerRef, providerID string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: credential store is not configured")
	}
	owner = owner.Normalize()
	// Idempotent: deleting an absent row is not an error.
	_, err := s.db.NewDelete().
		Model((*credentialRecord)(nil)).
		Where("user_id = ?", owner.UserID).
		Where("dashboard_id = ?", owner.DashboardID).
		Where("provider_id = ?", strings.TrimSpace(providerID)).
		Exec(ctx)
	return err
}

func (s *CredentialStore) decryptRecord(ctx context.Context, record *credentialRecord) (core.Credential, error) {
	accessSecret, err := s.cipher.Decrypt(ctx, record.EncryptedAccessSecret)
	if err != nil {
		return core.Credential{}, err
	}
	refreshSecret := []byte(nil)
	if len(record.EncryptedRefreshSecret) > 0 {
		refreshSecret, err = s.cipher.Decrypt(ctx, record.EncryptedRefreshSecret)
		if err != nil {
			return core.Credential{}, err
		}
	}
	return record.toDomain(string(accessSecret), string(refreshSecret)), nil
}

func findCredentialTx(ctx context.Context, tx bun.Tx, owner core.OwnerRef, providerID string) (*credentialRecord, error) {
	record := &credentialRecord{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.user_id = ?", owner.UserID).
		Where("?TableAlias.dashboard_id = ?", owner.DashboardID).
		Where("?TableAlias.provider_id = ?", providerID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if strings.TrimSpace(record.ID) == "" {
		return nil, nil
	}
	return record, nil
}
