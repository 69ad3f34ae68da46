package webhooks

import (
	"context"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/slack-lackey/maid-server/core"
)

var fixedNow = time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)

func newTestVerifier() SigningSecretVerifier {
	verifier := NewSigningSecretVerifier("8f742231b10e8888abcd99yyyzzz85a5", 0)
	verifier.Now = func() time.Time { return fixedNow }
	return verifier
}

func TestSigningSecretVerifier_AcceptsValidSignature(t *testing.T) {
	verifier := newTestVerifier()
	body := []byte(`{"type":"event_callback","team_id":"T1"}`)
	req := core.InboundRequest{Body: body, Headers: verifier.SignedHeaders(body)}
	if err := verifier.Verify(context.Background(), req); err != nil {
		t.Fatalf("expected valid signature, got %v", err)
	}
}

func TestSigningSecretVerifier_HeaderLookupIsCaseInsensitive(t *testing.T) {
	verifier := newTestVerifier()
	body := []byte(`payload=%7B%7D`)
	headers := map[string]string{}
	for key, value := range verifier.SignedHeaders(body) {
		headers[strings.ToLower(key)] = value
	}
	if err := verifier.Verify(context.Background(), core.InboundRequest{Body: body, Headers: headers}); err != nil {
		t.Fatalf("expected lowercase headers to verify, got %v", err)
	}
}

func TestSigningSecretVerifier_Rejects(t *testing.T) {
	verifier := newTestVerifier()
	body := []byte(`{"type":"event_callback"}`)
	valid := verifier.SignedHeaders(body)
	stale := fixedNow.Add(-6 * time.Minute).Unix()
	future := fixedNow.Add(6 * time.Minute).Unix()

	cases := []struct {
		name    string
		body    []byte
		headers map[string]string
	}{
		{name: "missing headers", body: body, headers: nil},
		{name: "tampered body", body: []byte(`{"type":"event_callback","x":1}`), headers: valid},
		{name: "wrong secret", body: body, headers: map[string]string{
			HeaderRequestTimestamp: valid[HeaderRequestTimestamp],
			HeaderSignature:        SigningSecretVerifier{Secret: "other"}.Sign(fixedNow.Unix(), body),
		}},
		{name: "stale timestamp", body: body, headers: map[string]string{
			HeaderRequestTimestamp: strconv.FormatInt(stale, 10),
			HeaderSignature:        verifier.Sign(stale, body),
		}},
		{name: "future timestamp", body: body, headers: map[string]string{
			HeaderRequestTimestamp: strconv.FormatInt(future, 10),
			HeaderSignature:        verifier.Sign(future, body),
		}},
		{name: "bad version", body: body, headers: map[string]string{
			HeaderRequestTimestamp: valid[HeaderRequestTimestamp],
			HeaderSignature:        strings.Replace(valid[HeaderSignature], "v0=", "v1=", 1),
		}},
		{name: "non hex", body: body, headers: map[string]string{
			HeaderRequestTimestamp: valid[HeaderRequestTimestamp],
			HeaderSignature:        "v0=zz",
		}},
		{name: "non numeric timestamp", body: body, headers: map[string]string{
			HeaderRequestTimestamp: "yesterday",
			HeaderSignature:        valid[HeaderSignature],
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := verifier.Verify(context.Background(), core.InboundRequest{Body: tc.body, Headers: tc.headers})
			if err == nil {
				t.Fatalf("expected verification to fail")
			}
		})
	}
}

func TestSigningSecretVerifier_WithinSkewAccepted(t *testing.T) {
	verifier := newTestVerifier()
	body := []byte(`{}`)
	recent := fixedNow.Add(-4 * time.Minute).Unix()
	req := core.InboundRequest{Body: body, Headers: map[string]string{
		HeaderRequestTimestamp: strconv.FormatInt(recent, 10),
		HeaderSignature:        verifier.Sign(recent, body),
	}}
	if err := verifier.Verify(context.Background(), req); err != nil {
		t.Fatalf("expected timestamp inside skew to verify, got %v", err)
	}
}

func TestSigningSecretVerifier_RequiresSecret(t *testing.T) {
	verifier := SigningSecretVerifier{Now: func() time.Time { return fixedNow }}
	body := []byte(`{}`)
	req := core.InboundRequest{Body: body, Headers: verifier.SignedHeaders(body)}
	if err := verifier.Verify(context.Background(), req); err == nil {
		t.Fatalf("expected missing secret to fail closed")
	}
}
