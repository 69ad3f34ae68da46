package query

import (
	"context"
	"strings"
	"time"

	"github.com/slack-lackey/maid-server/core"
)

type CredentialReader interface {
	Get(ctx context.Context, tenantID string) (core.TenantCredential, error)
}

// TenantCredentialView describes a stored credential without exposing the token.
type TenantCredentialView struct {
	TenantID  string
	TokenHint string
	UpdatedAt time.Time
}

type GetTenantCredentialQuery struct {
	reader CredentialReader
}

func NewGetTenantCredentialQuery(reader CredentialReader) *GetTenantCredentialQuery {
	return &GetTenantCredentialQuery{reader: reader}
}

func (q *GetTenantCredentialQuery) Query(ctx context.Context, msg GetTenantCredentialMessage) (TenantCredentialView, error) {
	if q == nil || q.reader == nil {
		return TenantCredentialView{}, core.Internal("query: credential reader is required", nil)
	}
	if err := msg.Validate(); err != nil {
		return TenantCredentialView{}, err
	}
	credential, err := q.reader.Get(ctx, strings.TrimSpace(msg.TenantID))
	if err != nil {
		return TenantCredentialView{}, err
	}
	return TenantCredentialView{
		TenantID:  credential.TenantID,
		TokenHint: MaskToken(credential.AccessToken),
		UpdatedAt: credential.UpdatedAt,
	}, nil
}

// MaskToken keeps the token prefix and its last four characters.
func MaskToken(token string) string {
	token = strings.TrimSpace(token)
	if token == "" {
		return ""
	}
	prefix := ""
	if idx := strings.Index(token, "-"); idx > 0 && idx < 6 {
		prefix = token[:idx+1]
	}
	if len(token)-len(prefix) <= 4 {
		return prefix + "****"
	}
	return prefix + "****" + token[len(token)-4:]
}
