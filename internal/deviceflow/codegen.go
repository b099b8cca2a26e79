package deviceflow

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
)

// UserCodeCharset excludes vowels and look-alike characters, per RFC 8628 section 6.1.
const UserCodeCharset = "BCDFGHJKLMNPQRSTVWXZ"

const (
	userCodeGroup    = 4
	deviceCodeLength = 32
)

// generateDeviceCode returns 32 random bytes, hex encoded.
func generateDeviceCode() (string, error) {
	b := make([]byte, deviceCodeLength)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating device code: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// generateUserCode returns a code of the form XXXX-XXXX.
func generateUserCode() (string, error) {
	size := big.NewInt(int64(len(UserCodeCharset)))
	var b strings.Builder
	for i := 0; i < 2*userCodeGroup; i++ {
		if i == userCodeGroup {
			b.WriteByte('-')
		}
		n, err := rand.Int(rand.Reader, size)
		if err != nil {
			return "", fmt.Errorf("generating user code: %w", err)
		}
		b.WriteByte(UserCodeCharset[n.Int64()])
	}
	return b.String(), nil
}

// NormalizeUserCode uppercases code and drops separators and any character
// outside UserCodeCharset, then restores the XXXX-XXXX form. Codes of the
// wrong length are returned without a separator so they never match.
func NormalizeUserCode(code string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(code) {
		if strings.ContainsRune(UserCodeCharset, r) {
			b.WriteRune(r)
		}
	}
	s := b.String()
	if len(s) != 2*userCodeGroup {
		return s
	}
	return s[:userCodeGroup] + "-" + s[userCodeGroup:]
}
