package slack

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	slackapi "github.com/slack-go/slack"
	"github.com/slack-lackey/maid-server/core"
)

// Client is a chat client bound to one workspace token.
type Client struct {
	tenantID string
	api      *slackapi.Client
	cfg      Config
}

func NewClient(credential core.TenantCredential, cfg Config) (*Client, error) {
	tenantID := strings.TrimSpace(credential.TenantID)
	token := strings.TrimSpace(credential.AccessToken)
	if tenantID == "" || token == "" {
		return nil, fmt.Errorf("slack: tenant id and access token are required")
	}
	cfg = cfg.normalized()
	return &Client{
		tenantID: tenantID,
		api:      slackapi.New(token, cfg.apiOptions()...),
		cfg:      cfg,
	}, nil
}

// NewClientFactory returns the factory the client resolver uses to build
// per-tenant clients.
func NewClientFactory(cfg Config) core.ClientFactory {
	return func(_ context.Context, credential core.TenantCredential) (core.ChatClient, error) {
		return NewClient(credential, cfg)
	}
}

func (c *Client) TenantID() string {
	return c.tenantID
}

func (c *Client) GetUser(ctx context.Context, userID string) (core.User, error) {
	ctx, cancel := c.bound(ctx)
	defer cancel()

	user, err := c.api.GetUserInfoContext(ctx, userID)
	if err != nil {
		return core.User{}, c.external(err, "users.info", map[string]any{"user_id": userID})
	}
	return core.User{
		ID:          user.ID,
		DisplayName: user.Profile.DisplayName,
		RealName:    firstNonEmpty(user.RealName, user.Profile.RealName),
	}, nil
}

func (c *Client) GetFile(ctx context.Context, fileID string) (core.File, error) {
	ctx, cancel := c.bound(ctx)
	defer cancel()

	file, _, _, err := c.api.GetFileInfoContext(ctx, fileID, 0, 0)
	if err != nil {
		return core.File{}, c.external(err, "files.info", map[string]any{"file_id": fileID})
	}
	return core.File{
		ID:          file.ID,
		Name:        file.Name,
		Title:       file.Title,
		Filetype:    file.Filetype,
		Mode:        file.Mode,
		UserID:      file.User,
		Channels:    append([]string(nil), file.Channels...),
		DownloadURL: file.URLPrivateDownload,
		Preview:     file.Preview,
	}, nil
}

// GetFileContent downloads the private file body. When no download URL is
// available the inline preview is returned instead.
func (c *Client) GetFileContent(ctx context.Context, file core.File) (string, error) {
	if strings.TrimSpace(file.DownloadURL) == "" {
		if file.Preview != "" {
			return file.Preview, nil
		}
		return "", c.external(fmt.Errorf("slack: file has no downloadable content"), "files.download", map[string]any{"file_id": file.ID})
	}

	ctx, cancel := c.bound(ctx)
	defer cancel()

	var buf bytes.Buffer
	if err := c.api.GetFileContext(ctx, file.DownloadURL, &buf); err != nil {
		if file.Preview != "" {
			return file.Preview, nil
		}
		return "", c.external(err, "files.download", map[string]any{"file_id": file.ID})
	}
	return buf.String(), nil
}

func (c *Client) PostMessage(ctx context.Context, channelID string, reply core.Reply) error {
	ctx, cancel := c.bound(ctx)
	defer cancel()

	if _, _, err := c.api.PostMessageContext(ctx, channelID, MessageOptions(reply)...); err != nil {
		return c.external(err, "chat.postMessage", map[string]any{"channel_id": channelID})
	}
	return nil
}

func (c *Client) PostEphemeral(ctx context.Context, channelID string, userID string, reply core.Reply) error {
	ctx, cancel := c.bound(ctx)
	defer cancel()

	if _, err := c.api.PostEphemeralContext(ctx, channelID, userID, MessageOptions(reply)...); err != nil {
		return c.external(err, "chat.postEphemeral", map[string]any{"channel_id": channelID, "user_id": userID})
	}
	return nil
}

func (c *Client) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if c.cfg.CallTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.cfg.CallTimeout)
}

func (c *Client) external(err error, method string, metadata map[string]any) error {
	fields := map[string]any{"tenant_id": c.tenantID, "method": method}
	for key, value := range metadata {
		fields[key] = value
	}
	return core.ExternalAPIError(err, "slack", fields)
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

var _ core.ChatClient = (*Client)(nil)
