package crypto

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/scrypt"

	"github.com/nimbuslabs/nimbus/internal/platform"
)

// API keys are formatted nm_{environment}_{type}_{random}. The type segment
// is abbreviated: pk (public), sk (secret), sr (service_role).
const (
	keyPrefix       = "nm"
	keySecretLength = 40
	previewLength   = 20

	scryptN      = 1 << 15
	scryptR      = 8
	scryptP      = 1
	scryptKeyLen = 32
	saltLength   = 16
)

var keyTypeAbbrev = map[string]string{
	"public":       "pk",
	"secret":       "sk",
	"service_role": "sr",
}

// GenerateAPIKey returns a new raw API key for the given environment and key
// type. The raw key is shown to the caller exactly once; only its hash and a
// truncated preview are ever persisted.
func GenerateAPIKey(environment, keyType string) (string, error) {
	abbrev, ok := keyTypeAbbrev[keyType]
	if !ok {
		return "", fmt.Errorf("unknown api key type %q", keyType)
	}
	return fmt.Sprintf("%s_%s_%s_%s", keyPrefix, environment, abbrev, platform.NewSecret(keySecretLength)), nil
}

// HashAPIKey computes a salted scrypt hash of the raw key, encoded as
// "salt$hash" in hex.
func HashAPIKey(rawKey string) (string, error) {
	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}

	dk, err := scrypt.Key([]byte(rawKey), salt, scryptN, scryptR, scryptP, scryptKeyLen)
	if err != nil {
		return "", fmt.Errorf("hash api key: %w", err)
	}

	return hex.EncodeToString(salt) + "$" + hex.EncodeToString(dk), nil
}

// VerifyAPIKey reports whether the raw key matches the stored "salt$hash".
func VerifyAPIKey(rawKey, stored string) (bool, error) {
	saltHex, hashHex, found := strings.Cut(stored, "$")
	if !found {
		return false, fmt.Errorf("malformed stored key hash")
	}

	salt, err := hex.DecodeString(saltHex)
	if err != nil {
		return false, fmt.Errorf("decode salt: %w", err)
	}
	want, err := hex.DecodeString(hashHex)
	if err != nil {
		return false, fmt.Errorf("decode hash: %w", err)
	}

	dk, err := scrypt.Key([]byte(rawKey), salt, scryptN, scryptR, scryptP, scryptKeyLen)
	if err != nil {
		return false, fmt.Errorf("hash api key: %w", err)
	}

	return subtle.ConstantTimeCompare(dk, want) == 1, nil
}

// KeyPreview returns the truncated preview retained in project metadata.
func KeyPreview(rawKey string) string {
	if len(rawKey) <= previewLength {
		return rawKey
	}
	return rawKey[:previewLength] + "..."
}
