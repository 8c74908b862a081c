package cache

import (
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/blake2b"

	"salespulse/internal/config"
	"salespulse/pkg/contracts/domain"
)

// FingerprintSize is the digest length in bytes (128 bits)
const FingerprintSize = 16

// Fingerprint returns the hex BLAKE2b-128 digest of an uploaded file's bytes
func Fingerprint(data []byte) string {
	h, err := blake2b.New(FingerprintSize, nil)
	if err != nil {
		// only reachable with an invalid size or key
		panic(err)
	}
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// ValidFingerprint reports whether s looks like a value returned by Fingerprint
func ValidFingerprint(s string) bool {
	if len(s) != FingerprintSize*2 {
		return false
	}
	for _, r := range s {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			return false
		}
	}
	return true
}

// Key builds the cache key analysis:{fingerprint}:{kind}
func Key(fingerprint string, kind domain.AnalysisKind) string {
	return FingerprintPrefix(fingerprint) + string(kind)
}

// FingerprintPrefix is the key prefix shared by every analysis of one upload
func FingerprintPrefix(fingerprint string) string {
	return config.CacheKeyPrefix + ":" + fingerprint + ":"
}

// kindOf extracts the analysis kind from a key, or "" for foreign keys
func kindOf(key string) string {
	if !strings.HasPrefix(key, config.CacheKeyPrefix+":") {
		return ""
	}
	i := strings.LastIndexByte(key, ':')
	return key[i+1:]
}
