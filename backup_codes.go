package authcore

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/big"
)

// generateBackupCodes mints n single-use recovery codes in the 0000-0000
// form. Plaintext codes are returned to the caller exactly once; only their
// hashes are handed to the UserStore.
func generateBackupCodes(n int) ([]string, error) {
	codes := make([]string, 0, n)
	for i := 0; i < n; i++ {
		a, err := randomUint16Mod(10000)
		if err != nil {
			return nil, err
		}
		b, err := randomUint16Mod(10000)
		if err != nil {
			return nil, err
		}
		codes = append(codes, fmt.Sprintf("%04d-%04d", a, b))
	}
	return codes, nil
}

func randomUint16Mod(mod int64) (int64, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(mod))
	if err != nil {
		return 0, err
	}
	return n.Int64(), nil
}

// hashBackupCode is the storage form of a backup code. Unsalted so the
// store can consume a code with a direct lookup by digest.
func hashBackupCode(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}
