package partners

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	apiKeyScheme      = "pk"
	apiKeyDelimiter   = "_"
	keyPrefixBytes    = 4
	keySecretBytes    = 24
	hashSaltBytes     = 16
	hashMemoryKiB     = 19 * 1024
	hashIterations    = 2
	hashParallelism   = 1
	hashKeyLength     = 32
	encodedHashFields = 6
)

// generateKey returns a raw key pk_<prefix>_<secret> and its lookup prefix.
func generateKey() (string, string, error) {
	prefix := make([]byte, keyPrefixBytes)
	if _, err := rand.Read(prefix); err != nil {
		return "", "", fmt.Errorf("generate key prefix: %w", err)
	}
	secret := make([]byte, keySecretBytes)
	if _, err := rand.Read(secret); err != nil {
		return "", "", fmt.Errorf("generate key secret: %w", err)
	}
	encodedPrefix := hex.EncodeToString(prefix)
	rawKey := strings.Join([]string{apiKeyScheme, encodedPrefix, hex.EncodeToString(secret)}, apiKeyDelimiter)
	return rawKey, encodedPrefix, nil
}

// splitKey returns the lookup prefix of a raw key.
func splitKey(rawKey string) (string, error) {
	parts := strings.Split(strings.TrimSpace(rawKey), apiKeyDelimiter)
	if len(parts) != 3 || parts[0] != apiKeyScheme || len(parts[1]) != keyPrefixBytes*2 || len(parts[2]) != keySecretBytes*2 {
		return "", ErrInvalidAPIKey
	}
	return parts[1], nil
}

// hashKey encodes an Argon2id hash as $argon2id$v=19$m=...,t=...,p=...$<salt>$<hash>.
func hashKey(rawKey string) (string, error) {
	salt := make([]byte, hashSaltBytes)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate key salt: %w", err)
	}
	hash := argon2.IDKey([]byte(rawKey), salt, hashIterations, hashMemoryKiB, hashParallelism, hashKeyLength)
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, hashMemoryKiB, hashIterations, hashParallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash),
	), nil
}

func verifyKey(rawKey string, encodedHash string) bool {
	parts := strings.Split(encodedHash, "$")
	if len(parts) != encodedHashFields || parts[1] != "argon2id" {
		return false
	}
	var memory, iterations uint32
	var parallelism uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &iterations, &parallelism); err != nil {
		return false
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false
	}
	expected, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return false
	}
	computed := argon2.IDKey([]byte(rawKey), salt, iterations, memory, parallelism, uint32(len(expected)))
	return subtle.ConstantTimeCompare(computed, expected) == 1
}
