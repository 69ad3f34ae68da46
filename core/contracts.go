package core

import (
	"context"
	"strings"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

const (
	EventTypeMessage     = "message"
	EventTypeFileCreated = "file_created"
	EventTypeFileShared  = "file_shared"
	EventTypeAppMention  = "app_mention"
)

type SnippetKind string

const (
	SnippetKindMessage SnippetKind = "message"
	SnippetKindFile    SnippetKind = "file"
)

// TenantCredential is the single access credential held for one installed workspace.
type TenantCredential struct {
	TenantID    string
	AccessToken string
	UpdatedAt   time.Time
}

type CredentialStore interface {
	Put(ctx context.Context, tenantID string, accessToken string) error
	Get(ctx context.Context, tenantID string) (TenantCredential, error)
}

type SecretProvider interface {
	Encrypt(ctx context.Context, plaintext []byte) ([]byte, error)
	Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error)
}

type User struct {
	ID          string
	DisplayName string
	RealName    string
}

// Name prefers the profile display name, then the real name, then the raw id.
func (u User) Name() string {
	if name := strings.TrimSpace(u.DisplayName); name != "" {
		return name
	}
	if name := strings.TrimSpace(u.RealName); name != "" {
		return name
	}
	return strings.TrimSpace(u.ID)
}

type File struct {
	ID          string
	Name        string
	Title       string
	Filetype    string
	Mode        string
	UserID      string
	Channels    []string
	DownloadURL string
	Preview     string
}

func (f File) IsSnippet() bool {
	return strings.EqualFold(strings.TrimSpace(f.Mode), "snippet")
}

// PrimaryChannel returns the first channel the file was shared into.
func (f File) PrimaryChannel() string {
	for _, channel := range f.Channels {
		if trimmed := strings.TrimSpace(channel); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

// ChatClient is a tenant-bound handle on the chat platform API.
type ChatClient interface {
	TenantID() string
	GetUser(ctx context.Context, userID string) (User, error)
	GetFile(ctx context.Context, fileID string) (File, error)
	GetFileContent(ctx context.Context, file File) (string, error)
	PostMessage(ctx context.Context, channelID string, reply Reply) error
	PostEphemeral(ctx context.Context, channelID string, userID string, reply Reply) error
}

type ClientFactory func(ctx context.Context, credential TenantCredential) (ChatClient, error)

type Visibility string

const (
	VisibilityEphemeral Visibility = "ephemeral"
	VisibilityChannel   Visibility = "in_channel"
)

type ActionStyle string

const (
	ActionStyleDefault ActionStyle = ""
	ActionStylePrimary ActionStyle = "primary"
	ActionStyleDanger  ActionStyle = "danger"
)

type ReplyAction struct {
	ID    string
	Label string
	Value string
	Style ActionStyle
}

// Reply is a provider-neutral message template rendered by the chat provider.
type Reply struct {
	Text            string
	Actions         []ReplyAction
	ImageURL        string
	ImageAlt        string
	ReplaceOriginal bool
	Visibility      Visibility
}

type ResponsePoster interface {
	PostResponse(ctx context.Context, responseURL string, reply Reply) error
}

type InnerEvent struct {
	Type    string
	Subtype string
	User    string
	Channel string
	Text    string
	TS      string
	FileID  string
	BotID   string
}

type InboundEnvelope struct {
	TenantID  string
	EventID   string
	EventType string
	Event     InnerEvent
	RawBody   []byte
	Headers   map[string]string
}

type ActionPayload struct {
	ActionID    string
	Value       string
	UserID      string
	TenantID    string
	ChannelID   string
	ResponseURL string
	TriggerID   string
}

type PendingSnippet struct {
	CorrelationToken string
	TenantID         string
	ChannelID        string
	AuthorID         string
	SourceText       string
	SourceKind       SnippetKind
	FileID           string
	Filename         string
	Filetype         string
	CreatedAt        time.Time
}

type GistRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Content     string `json:"content"`
}

type CorrelationStore interface {
	// Store assigns a fresh correlation token and returns the stored record.
	Store(ctx context.Context, snippet PendingSnippet) (PendingSnippet, error)
	// Redeem removes and returns the record; a token is redeemable at most once.
	Redeem(ctx context.Context, token string) (PendingSnippet, error)
}

type ReplayLedger interface {
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
	// Release forgets a claim so the next delivery of key is accepted.
	Release(ctx context.Context, key string) error
}

type InboundRequest struct {
	Surface  string
	Headers  map[string]string
	Body     []byte
	Metadata map[string]any
}

type InboundResult struct {
	Accepted    bool
	StatusCode  int
	Body        []byte
	ContentType string
	Metadata    map[string]any
}
