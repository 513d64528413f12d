// Package crypto provides request signing and encrypted credential storage
// for the Bybit v5 API.
package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"
)

// HMACAuth holds the credentials for signed Bybit v5 requests.
type HMACAuth struct {
	Key        string // API key
	Secret     string // API secret
	RecvWindow int64  // request validity window in ms; 0 uses the default
}

const defaultRecvWindowMs = 5000

// Headers returns the authentication headers for a private v5 request. The
// signature is HMAC-SHA256(secret, timestamp + key + recvWindow + payload)
// hex-encoded; payload is the query string for GET and the JSON body for
// POST.
func (h *HMACAuth) Headers(payload string) map[string]string {
	return h.HeadersAt(payload, time.Now().UnixMilli())
}

// HeadersAt is like Headers but lets the caller supply the millisecond
// timestamp (useful for deterministic testing).
func (h *HMACAuth) HeadersAt(payload string, unixMs int64) map[string]string {
	ts := strconv.FormatInt(unixMs, 10)
	recv := h.RecvWindow
	if recv <= 0 {
		recv = defaultRecvWindowMs
	}
	recvStr := strconv.FormatInt(recv, 10)

	message := ts + h.Key + recvStr + payload
	sig := hmacSHA256Hex([]byte(h.Secret), message)

	return map[string]string{
		"X-BAPI-API-KEY":     h.Key,
		"X-BAPI-TIMESTAMP":   ts,
		"X-BAPI-RECV-WINDOW": recvStr,
		"X-BAPI-SIGN":        sig,
	}
}

// hmacSHA256Hex computes HMAC-SHA256 of message using key, hex-encoded.
func hmacSHA256Hex(key []byte, message string) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(message))
	return hex.EncodeToString(mac.Sum(nil))
}

// String returns a redacted representation suitable for logging.
func (h *HMACAuth) String() string {
	redact := func(s string) string {
		if len(s) <= 4 {
			return "****"
		}
		return s[:4] + "****"
	}
	return fmt.Sprintf("HMACAuth{key=%s, secret=%s}", redact(h.Key), redact(h.Secret))
}
