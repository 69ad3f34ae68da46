package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/slack-lackey/maid-server/core"
	"github.com/slack-lackey/maid-server/security"
	"github.com/uptrace/bun"
)

const plaintextKeyID = "plain"

// TenantCredentialStore persists one access token per workspace. When a
// SecretProvider is set, tokens are sealed before they reach the table.
type TenantCredentialStore struct {
	db      *bun.DB
	repo    repository.Repository[*tenantCredentialRecord]
	secrets core.SecretProvider
	keyID   string
	now     func() time.Time
}

func NewTenantCredentialStore(db *bun.DB, secrets core.SecretProvider) (*TenantCredentialStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*tenantCredentialRecord](db, tenantCredentialHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid tenant credential repository wiring: %w", err)
		}
	}
	keyID := plaintextKeyID
	if keyed, ok := secrets.(interface{ KeyID() string }); ok {
		if id := strings.TrimSpace(keyed.KeyID()); id != "" {
			keyID = id
		}
	}
	return &TenantCredentialStore{
		db:      db,
		repo:    repo,
		secrets: secrets,
		keyID:   keyID,
		now: func() time.Time {
			return time.Now().UTC()
		},
	}, nil
}

func (s *TenantCredentialStore) Put(ctx context.Context, tenantID string, accessToken string) error {
	if s == nil || s.repo == nil || s.db == nil {
		return fmt.Errorf("sqlstore: tenant credential store is not configured")
	}
	tenantID = strings.TrimSpace(tenantID)
	accessToken = strings.TrimSpace(accessToken)
	if tenantID == "" {
		return core.BadInput("sqlstore: tenant id is required", nil)
	}
	if accessToken == "" {
		return core.BadInput("sqlstore: access token is required", map[string]any{"tenant_id": tenantID})
	}

	stored, err := s.seal(ctx, accessToken)
	if err != nil {
		return err
	}
	now := s.now()

	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		existing := new(tenantCredentialRecord)
		findErr := tx.NewSelect().
			Model(existing).
			Where("?TableAlias.tenant_id = ?", tenantID).
			Limit(1).
			Scan(ctx)
		switch {
		case errors.Is(findErr, sql.ErrNoRows):
			_, createErr := s.repo.CreateTx(ctx, tx, &tenantCredentialRecord{
				ID:          uuid.NewString(),
				TenantID:    tenantID,
				AccessToken: stored,
				KeyID:       s.keyID,
				CreatedAt:   now,
				UpdatedAt:   now,
			})
			return createErr
		case findErr != nil:
			return findErr
		}

		_, updateErr := tx.NewUpdate().
			Model((*tenantCredentialRecord)(nil)).
			Set("access_token = ?", stored).
			Set("key_id = ?", s.keyID).
			Set("updated_at = ?", now).
			Where("id = ?", existing.ID).
			Exec(ctx)
		return updateErr
	})
}

func (s *TenantCredentialStore) Get(ctx context.Context, tenantID string) (core.TenantCredential, error) {
	if s == nil || s.repo == nil {
		return core.TenantCredential{}, fmt.Errorf("sqlstore: tenant credential store is not configured")
	}
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return core.TenantCredential{}, core.ErrCredentialNotFound
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("tenant_id", "=", tenantID),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		return core.TenantCredential{}, err
	}
	if len(records) == 0 {
		return core.TenantCredential{}, core.ErrCredentialNotFound
	}

	record := records[0]
	token, err := s.open(ctx, record)
	if err != nil {
		return core.TenantCredential{}, err
	}
	return core.TenantCredential{
		TenantID:    record.TenantID,
		AccessToken: token,
		UpdatedAt:   record.UpdatedAt.UTC(),
	}, nil
}

func (s *TenantCredentialStore) seal(ctx context.Context, accessToken string) ([]byte, error) {
	if s.secrets == nil {
		return []byte(accessToken), nil
	}
	sealed, err := s.secrets.Encrypt(ctx, []byte(accessToken))
	if err != nil {
		return nil, fmt.Errorf("sqlstore: seal access token: %w", err)
	}
	return sealed, nil
}

// open returns rows written before a key was configured as-is.
func (s *TenantCredentialStore) open(ctx context.Context, record *tenantCredentialRecord) (string, error) {
	if !security.IsSealed(record.AccessToken) {
		return string(record.AccessToken), nil
	}
	if s.secrets == nil {
		return "", fmt.Errorf("sqlstore: credential for tenant %q is sealed but no key is configured", record.TenantID)
	}
	opened, err := s.secrets.Decrypt(ctx, record.AccessToken)
	if err != nil {
		return "", fmt.Errorf("sqlstore: open access token for tenant %q: %w", record.TenantID, err)
	}
	return string(opened), nil
}
