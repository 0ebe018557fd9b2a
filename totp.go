package authcore

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/base32"
	"encoding/binary"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// totpManager implements RFC 6238 time-based one-time passwords over
// RFC 4226 HOTP. SHA-1 only: that is what authenticator apps interoperate
// with, and the otpauth URL omits the algorithm parameter for the same
// reason.
type totpManager struct {
	config TOTPConfig
	now    func() time.Time
}

func newTOTPManager(cfg TOTPConfig) *totpManager {
	return &totpManager{config: cfg, now: time.Now}
}

// GenerateSecret returns a fresh random secret as padded base32, the format
// authenticator apps expect in provisioning URLs.
func (m *totpManager) GenerateSecret() (string, error) {
	raw := make([]byte, m.config.SecretLength)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}

	return base32.StdEncoding.EncodeToString(raw), nil
}

// ProvisioningURL builds the otpauth URL encoded into the enrollment QR code.
func (m *totpManager) ProvisioningURL(secretBase32, account string) string {
	issuer := m.config.Issuer
	label := url.PathEscape(issuer + ":" + account)

	v := url.Values{}
	v.Set("secret", secretBase32)
	v.Set("issuer", issuer)

	return "otpauth://totp/" + label + "?" + v.Encode()
}

// VerifyCode checks a submitted code against the secret, accepting the
// configured number of adjacent time steps to absorb clock drift.
func (m *totpManager) VerifyCode(secretBase32, code string) (bool, error) {
	trimmed := strings.TrimSpace(code)
	if len(trimmed) != m.config.Digits || !isNumericString(trimmed) {
		return false, nil
	}

	secret, err := base32.StdEncoding.DecodeString(strings.ToUpper(secretBase32))
	if err != nil {
		return false, errors.New("malformed totp secret")
	}
	if len(secret) == 0 {
		return false, errors.New("empty totp secret")
	}

	baseCounter := m.now().Unix() / int64(m.config.Period)
	for step := -m.config.Skew; step <= m.config.Skew; step++ {
		counter := baseCounter + int64(step)
		if counter < 0 {
			continue
		}
		generated := hotpCode(secret, counter, m.config.Digits)
		if subtle.ConstantTimeCompare([]byte(generated), []byte(trimmed)) == 1 {
			return true, nil
		}
	}

	return false, nil
}

func hotpCode(secret []byte, counter int64, digits int) string {
	var msg [8]byte
	binary.BigEndian.PutUint64(msg[:], uint64(counter))

	mac := hmac.New(sha1.New, secret)
	_, _ = mac.Write(msg[:])
	sum := mac.Sum(nil)

	offset := sum[len(sum)-1] & 0x0f
	bin := (int(sum[offset])&0x7f)<<24 |
		(int(sum[offset+1])&0xff)<<16 |
		(int(sum[offset+2])&0xff)<<8 |
		(int(sum[offset+3]) & 0xff)

	mod := 1
	for i := 0; i < digits; i++ {
		mod *= 10
	}

	return fmt.Sprintf("%0*d", digits, bin%mod)
}

func isNumericString(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}
