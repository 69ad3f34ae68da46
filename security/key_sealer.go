package security

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/slack-lackey/maid-server/core"
)

const (
	sealedPrefix    = "maid.sealed.v1:"
	sealedAlgorithm = "aes-256-gcm"
	defaultKeyID    = "maid-key"
)

type sealedToken struct {
	KeyID      string `json:"kid"`
	Algorithm  string `json:"alg"`
	Nonce      string `json:"nonce"`
	Ciphertext string `json:"ct"`
}

// KeySealer encrypts tokens with AES-GCM under a single application key.
// Keys that are not 16, 24 or 32 bytes long are stretched with SHA-256.
type KeySealer struct {
	key   []byte
	keyID string
}

func NewKeySealer(keyMaterial string, keyID string) (*KeySealer, error) {
	material := bytes.TrimSpace([]byte(keyMaterial))
	if len(material) == 0 {
		return nil, fmt.Errorf("security: key material is required")
	}
	keyID = strings.TrimSpace(keyID)
	if keyID == "" {
		keyID = defaultKeyID
	}
	return &KeySealer{key: normalizeKey(material), keyID: keyID}, nil
}

// NewKeySealerFromConfig returns nil when no encryption key is configured.
func NewKeySealerFromConfig(cfg core.CredentialsConfig) (*KeySealer, error) {
	if strings.TrimSpace(cfg.EncryptionKey) == "" {
		return nil, nil
	}
	return NewKeySealer(cfg.EncryptionKey, cfg.KeyID)
}

func (s *KeySealer) KeyID() string {
	if s == nil {
		return ""
	}
	return s.keyID
}

func (s *KeySealer) Encrypt(_ context.Context, plaintext []byte) ([]byte, error) {
	if s == nil {
		return nil, fmt.Errorf("security: sealer is nil")
	}
	if len(plaintext) == 0 {
		return nil, fmt.Errorf("security: plaintext is required")
	}
	gcm, err := s.aead()
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("security: nonce generation failed: %w", err)
	}

	data, err := json.Marshal(sealedToken{
		KeyID:      s.keyID,
		Algorithm:  sealedAlgorithm,
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		Ciphertext: base64.StdEncoding.EncodeToString(gcm.Seal(nil, nonce, plaintext, []byte(s.keyID))),
	})
	if err != nil {
		return nil, fmt.Errorf("security: encode sealed token: %w", err)
	}
	return append([]byte(sealedPrefix), data...), nil
}

func (s *KeySealer) Decrypt(_ context.Context, ciphertext []byte) ([]byte, error) {
	if s == nil {
		return nil, fmt.Errorf("security: sealer is nil")
	}
	if !IsSealed(ciphertext) {
		return nil, fmt.Errorf("security: value is not sealed")
	}

	var parsed sealedToken
	if err := json.Unmarshal(bytes.TrimPrefix(ciphertext, []byte(sealedPrefix)), &parsed); err != nil {
		return nil, fmt.Errorf("security: decode sealed token: %w", err)
	}
	if parsed.Algorithm != sealedAlgorithm {
		return nil, fmt.Errorf("security: unsupported algorithm %q", parsed.Algorithm)
	}
	if parsed.KeyID != s.keyID {
		return nil, fmt.Errorf("security: key id mismatch: got %q want %q", parsed.KeyID, s.keyID)
	}
	nonce, err := base64.StdEncoding.DecodeString(parsed.Nonce)
	if err != nil {
		return nil, fmt.Errorf("security: decode nonce: %w", err)
	}
	sealed, err := base64.StdEncoding.DecodeString(parsed.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("security: decode ciphertext: %w", err)
	}

	gcm, err := s.aead()
	if err != nil {
		return nil, err
	}
	if len(nonce) != gcm.NonceSize() {
		return nil, fmt.Errorf("security: nonce has %d bytes, want %d", len(nonce), gcm.NonceSize())
	}
	plaintext, err := gcm.Open(nil, nonce, sealed, []byte(parsed.KeyID))
	if err != nil {
		return nil, fmt.Errorf("security: open sealed token: %w", err)
	}
	return plaintext, nil
}

// IsSealed reports whether value carries the sealed token prefix.
func IsSealed(value []byte) bool {
	return bytes.HasPrefix(value, []byte(sealedPrefix))
}

func (s *KeySealer) aead() (cipher.AEAD, error) {
	block, err := aes.NewCipher(s.key)
	if err != nil {
		return nil, fmt.Errorf("security: create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("security: create gcm: %w", err)
	}
	return gcm, nil
}

func normalizeKey(value []byte) []byte {
	if len(value) == 16 || len(value) == 24 || len(value) == 32 {
		key := make([]byte, len(value))
		copy(key, value)
		return key
	}
	sum := sha256.Sum256(value)
	return sum[:]
}

var _ core.SecretProvider = (*KeySealer)(nil)
