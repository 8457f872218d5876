package authn

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/base32"
	"encoding/binary"
	"fmt"
	"net/url"
	"time"

	"harmonia.org/internal/fault"
)

const (
	totpDigits = 6
	totpPeriod = 30 * time.Second
	// totpSkew tolerates clock drift of one period on either side.
	totpSkew = 1

	secretBytes = 20
)

// OTPCipher protects stored TOTP secrets with AES-256-GCM. Each encryption
// draws a fresh random nonce, stored alongside the ciphertext.
type OTPCipher struct {
	aead cipher.AEAD
}

// NewOTPCipher builds a cipher from a 32-byte key.
func NewOTPCipher(key []byte) (*OTPCipher, error) {
	if len(key) != 32 {
		return nil, fault.Bad("one-time-password key must be 32 bytes")
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fault.Internal("build secret cipher", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fault.Internal("build secret cipher", err)
	}
	return &OTPCipher{aead: aead}, nil
}

// EncryptSecret seals a TOTP secret, returning ciphertext and nonce.
func (c *OTPCipher) EncryptSecret(secret []byte) (cipherText, nonce []byte, err error) {
	nonce = make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, fault.Internal("draw nonce", err)
	}
	return c.aead.Seal(nil, nonce, secret, nil), nonce, nil
}

// DecryptSecret opens a sealed TOTP secret.
func (c *OTPCipher) DecryptSecret(cipherText, nonce []byte) ([]byte, error) {
	secret, err := c.aead.Open(nil, nonce, cipherText, nil)
	if err != nil {
		return nil, fault.ByteConversion("open sealed secret", err)
	}
	return secret, nil
}

// GenerateSecret draws a fresh 160-bit TOTP secret.
func GenerateSecret() ([]byte, error) {
	secret := make([]byte, secretBytes)
	if _, err := rand.Read(secret); err != nil {
		return nil, fault.Internal("draw secret", err)
	}
	return secret, nil
}

// CodeAt computes the RFC 6238 code (SHA-1, six digits) for the period
// containing t.
func CodeAt(secret []byte, t time.Time) string {
	counter := uint64(t.Unix()) / uint64(totpPeriod/time.Second)
	var msg [8]byte
	binary.BigEndian.PutUint64(msg[:], counter)
	mac := hmac.New(sha1.New, secret)
	mac.Write(msg[:])
	sum := mac.Sum(nil)
	offset := sum[len(sum)-1] & 0x0f
	code := binary.BigEndian.Uint32(sum[offset:offset+4]) & 0x7fffffff
	return fmt.Sprintf("%06d", code%1_000_000)
}

// CheckCode reports whether code matches the secret within the allowed
// drift window.
func CheckCode(secret []byte, code string, now time.Time) bool {
	if len(code) != totpDigits {
		return false
	}
	for skew := -totpSkew; skew <= totpSkew; skew++ {
		want := CodeAt(secret, now.Add(time.Duration(skew)*totpPeriod))
		if subtle.ConstantTimeCompare([]byte(want), []byte(code)) == 1 {
			return true
		}
	}
	return false
}

// ProvisioningURI renders the otpauth URI that authenticator apps enroll
// from.
func ProvisioningURI(secret []byte, email string) string {
	encoded := base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(secret)
	return fmt.Sprintf(
		"otpauth://totp/Harmonia:%s?secret=%s&issuer=Harmonia&algorithm=SHA1&digits=%d&period=%d",
		url.PathEscape(email), encoded, totpDigits, int(totpPeriod/time.Second),
	)
}
