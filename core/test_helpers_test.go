package core

import (
	"context"
	"sync"
)

type stubLogger struct{}

func (stubLogger) Trace(string, ...any) {}
func (stubLogger) Debug(string, ...any) {}
func (stubLogger) Info(string, ...any)  {}
func (stubLogger) Warn(string, ...any)  {}
func (stubLogger) Error(string, ...any) {}
func (stubLogger) Fatal(string, ...any) {}
func (s stubLogger) WithContext(context.Context) Logger {
	return s
}

type stubLoggerProvider struct {
	logger Logger
}

func (s stubLoggerProvider) GetLogger(string) Logger {
	return s.logger
}

type stubChatClient struct {
	tenantID string
	token    string
}

func (c *stubChatClient) TenantID() string { return c.tenantID }

func (c *stubChatClient) GetUser(_ context.Context, userID string) (User, error) {
	return User{ID: userID}, nil
}

func (c *stubChatClient) GetFile(_ context.Context, fileID string) (File, error) {
	return File{ID: fileID}, nil
}

func (c *stubChatClient) GetFileContent(context.Context, File) (string, error) {
	return "", nil
}

func (c *stubChatClient) PostMessage(context.Context, string, Reply) error { return nil }

func (c *stubChatClient) PostEphemeral(context.Context, string, string, Reply) error { return nil }

// factorySpy counts how many clients were built per tenant.
type factorySpy struct {
	mu     sync.Mutex
	calls  map[string]int
	gate   chan struct{}
	failOn string
}

func newFactorySpy() *factorySpy {
	return &factorySpy{calls: map[string]int{}}
}

func (f *factorySpy) Build(_ context.Context, credential TenantCredential) (ChatClient, error) {
	f.mu.Lock()
	f.calls[credential.TenantID]++
	gate := f.gate
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	if credential.TenantID == f.failOn {
		return nil, context.DeadlineExceeded
	}
	return &stubChatClient{tenantID: credential.TenantID, token: credential.AccessToken}, nil
}

func (f *factorySpy) Calls(tenantID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[tenantID]
}
