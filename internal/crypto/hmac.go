package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strconv"
	"time"
)

// APICredentials holds the L2 credential triple returned by the venue's
// derive-api-key endpoint. Secret is base64url encoded.
type APICredentials struct {
	APIKey     string `json:"apiKey"`
	Secret     string `json:"secret"`
	Passphrase string `json:"passphrase"`
}

// L2Headers builds the signed HMAC headers for an authenticated CLOB request.
// body must be exactly the bytes sent on the wire, or empty for GET/DELETE
// requests without one.
func L2Headers(creds APICredentials, address, method, path string, body []byte) (map[string]string, error) {
	return L2HeadersAt(creds, address, method, path, body, time.Now().Unix())
}

// L2HeadersAt is L2Headers with an explicit Unix timestamp, which keeps the
// signature deterministic under test.
func L2HeadersAt(creds APICredentials, address, method, path string, body []byte, ts int64) (map[string]string, error) {
	timestamp := strconv.FormatInt(ts, 10)

	message := timestamp + method + path
	if len(body) > 0 {
		message += string(body)
	}

	sig, err := hmacSHA256Base64(creds.Secret, message)
	if err != nil {
		return nil, err
	}

	return map[string]string{
		"POLY_ADDRESS":    address,
		"POLY_API_KEY":    creds.APIKey,
		"POLY_TIMESTAMP":  timestamp,
		"POLY_PASSPHRASE": creds.Passphrase,
		"POLY_SIGNATURE":  sig,
	}, nil
}

// hmacSHA256Base64 signs message with the base64url-decoded secret and
// returns the base64url-encoded digest.
func hmacSHA256Base64(secret, message string) (string, error) {
	key, err := base64.URLEncoding.DecodeString(secret)
	if err != nil {
		return "", fmt.Errorf("crypto/hmac: decoding secret: %w", err)
	}

	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(message))
	return base64.URLEncoding.EncodeToString(mac.Sum(nil)), nil
}
