package sqlstore

import (
	"time"

	"github.com/uptrace/bun"
)

type tenantCredentialRecord struct {
	bun.BaseModel `bun:"table:maid_tenant_credentials,alias:mtc"`

	ID          string    `bun:"id,pk"`
	TenantID    string    `bun:"tenant_id,notnull"`
	AccessToken []byte    `bun:"access_token,notnull"`
	KeyID       string    `bun:"key_id,notnull"`
	CreatedAt   time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt   time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}
