package encryption

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

const (
	algorithm = "AES-256-GCM"

	// tokenPrefix marks a sealed string column. Values without it were
	// written before encryption was enabled and are returned unchanged.
	tokenPrefix = "enc:v1:"
)

// KeyProvider supplies the data encryption key of a tenant
type KeyProvider interface {
	TenantDataKey(ctx context.Context, tenantID string) ([]byte, error)
}

// PIIEncryptor handles envelope encryption of buyer PII and stored credentials
type PIIEncryptor struct {
	keys       KeyProvider
	keyCache   map[string]*cachedKey
	cacheMutex sync.RWMutex
	cacheTTL   time.Duration
	now        func() time.Time
}

type cachedKey struct {
	key       []byte
	expiresAt time.Time
}

// NewPIIEncryptor creates a new PII encryptor
func NewPIIEncryptor(keys KeyProvider) *PIIEncryptor {
	return &PIIEncryptor{
		keys:     keys,
		keyCache: make(map[string]*cachedKey),
		cacheTTL: 5 * time.Minute,
		now:      time.Now,
	}
}

// EncryptedData represents encrypted PII data
type EncryptedData struct {
	Ciphertext  string `json:"ciphertext"`  // Base64 encoded encrypted data
	Nonce       string `json:"nonce"`       // Base64 encoded nonce
	KeyVersion  int    `json:"keyVersion"`  // Key version used
	Algorithm   string `json:"algorithm"`   // Encryption algorithm
	EncryptedAt int64  `json:"encryptedAt"` // Unix timestamp
}

// NewEncryptedData wraps raw column bytes
func NewEncryptedData(ciphertext, nonce []byte, keyVersion int) *EncryptedData {
	return &EncryptedData{
		Ciphertext: base64.StdEncoding.EncodeToString(ciphertext),
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		KeyVersion: keyVersion,
		Algorithm:  algorithm,
	}
}

// Raw decodes the ciphertext and nonce for storage in binary columns
func (d *EncryptedData) Raw() (ciphertext, nonce []byte, err error) {
	ciphertext, err = base64.StdEncoding.DecodeString(d.Ciphertext)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to decode ciphertext: %w", err)
	}
	nonce, err = base64.StdEncoding.DecodeString(d.Nonce)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to decode nonce: %w", err)
	}
	return ciphertext, nonce, nil
}

// PIIFields are the buyer fields kept encrypted at rest
type PIIFields struct {
	Email    *string `json:"email,omitempty"`
	FullName *string `json:"fullName,omitempty"`
}

// GetDataEncryptionKey returns the tenant's key, cached for a few minutes
func (e *PIIEncryptor) GetDataEncryptionKey(ctx context.Context, tenantID string) ([]byte, int, error) {
	if tenantID == "" {
		return nil, 0, errors.New("tenant id is required for encryption")
	}
	cacheKey := fmt.Sprintf("dek_%s", tenantID)

	e.cacheMutex.RLock()
	if cached, ok := e.keyCache[cacheKey]; ok && e.now().Before(cached.expiresAt) {
		e.cacheMutex.RUnlock()
		return cached.key, 1, nil
	}
	e.cacheMutex.RUnlock()

	key, err := e.keys.TenantDataKey(ctx, tenantID)
	if err != nil {
		return nil, 0, err
	}
	if len(key) != 32 {
		return nil, 0, fmt.Errorf("data encryption key for tenant %s has %d bytes, want 32", tenantID, len(key))
	}

	e.cacheMutex.Lock()
	e.keyCache[cacheKey] = &cachedKey{
		key:       key,
		expiresAt: e.now().Add(e.cacheTTL),
	}
	e.cacheMutex.Unlock()

	return key, 1, nil
}

// EncryptPII encrypts PII fields for a tenant
func (e *PIIEncryptor) EncryptPII(ctx context.Context, tenantID string, pii *PIIFields) (*EncryptedData, error) {
	if pii == nil {
		return nil, nil
	}

	key, keyVersion, err := e.GetDataEncryptionKey(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to get encryption key: %w", err)
	}

	plaintext, err := json.Marshal(pii)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize PII: %w", err)
	}

	nonce, ciphertext, err := seal(key, plaintext)
	if err != nil {
		return nil, err
	}

	data := NewEncryptedData(ciphertext, nonce, keyVersion)
	data.EncryptedAt = e.now().Unix()
	return data, nil
}

// DecryptPII decrypts PII fields for a tenant
func (e *PIIEncryptor) DecryptPII(ctx context.Context, tenantID string, encrypted *EncryptedData) (*PIIFields, error) {
	if encrypted == nil {
		return nil, nil
	}

	key, _, err := e.GetDataEncryptionKey(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to get encryption key: %w", err)
	}

	ciphertext, nonce, err := encrypted.Raw()
	if err != nil {
		return nil, err
	}

	plaintext, err := open(key, nonce, ciphertext)
	if err != nil {
		return nil, err
	}

	var pii PIIFields
	if err := json.Unmarshal(plaintext, &pii); err != nil {
		return nil, fmt.Errorf("failed to deserialize PII: %w", err)
	}
	return &pii, nil
}

// EncryptString seals a single value into a text-safe form. The empty
// string stays empty.
func (e *PIIEncryptor) EncryptString(ctx context.Context, tenantID, value string) (string, error) {
	if value == "" || IsEncrypted(value) {
		return value, nil
	}

	key, _, err := e.GetDataEncryptionKey(ctx, tenantID)
	if err != nil {
		return "", fmt.Errorf("failed to get encryption key: %w", err)
	}

	nonce, ciphertext, err := seal(key, []byte(value))
	if err != nil {
		return "", err
	}
	return tokenPrefix + base64.StdEncoding.EncodeToString(append(nonce, ciphertext...)), nil
}

// DecryptString reverses EncryptString
func (e *PIIEncryptor) DecryptString(ctx context.Context, tenantID, value string) (string, error) {
	encoded, ok := strings.CutPrefix(value, tokenPrefix)
	if !ok {
		return value, nil
	}

	key, _, err := e.GetDataEncryptionKey(ctx, tenantID)
	if err != nil {
		return "", fmt.Errorf("failed to get encryption key: %w", err)
	}

	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("failed to decode ciphertext: %w", err)
	}
	gcm, err := newGCM(key)
	if err != nil {
		return "", err
	}
	if len(raw) < gcm.NonceSize() {
		return "", errors.New("ciphertext too short")
	}

	plaintext, err := open(key, raw[:gcm.NonceSize()], raw[gcm.NonceSize():])
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

// IsEncrypted reports whether value was produced by EncryptString
func IsEncrypted(value string) bool {
	return strings.HasPrefix(value, tokenPrefix)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}

func seal(key, plaintext []byte) (nonce, ciphertext []byte, err error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, nil, err
	}
	nonce = make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return nonce, gcm.Seal(nil, nonce, plaintext, nil), nil
}

func open(key, nonce, ciphertext []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt: %w", err)
	}
	return plaintext, nil
}

// StaticKeyProvider derives per-tenant keys from one master key. It serves
// deployments without Secret Manager and tests.
type StaticKeyProvider struct {
	master []byte
}

// NewStaticKeyProvider parses a base64 encoded 32-byte master key
func NewStaticKeyProvider(encoded string) (*StaticKeyProvider, error) {
	master, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
	if err != nil {
		return nil, fmt.Errorf("failed to decode master key: %w", err)
	}
	if len(master) != 32 {
		return nil, fmt.Errorf("master key has %d bytes, want 32", len(master))
	}
	return &StaticKeyProvider{master: master}, nil
}

// TenantDataKey derives the tenant's key with HMAC-SHA256
func (p *StaticKeyProvider) TenantDataKey(_ context.Context, tenantID string) ([]byte, error) {
	mac := hmac.New(sha256.New, p.master)
	mac.Write([]byte("dek:" + tenantID))
	return mac.Sum(nil), nil
}
