package gateways

import (
	"crypto/hmac"
	"crypto/md5"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"strings"
)

// HMACSHA256Hex returns the lowercase hex HMAC-SHA256 digest of data.
func HMACSHA256Hex(key, data []byte) string {
	mac := hmac.New(sha256.New, key)
	mac.Write(data)
	return hex.EncodeToString(mac.Sum(nil))
}

// HMACSHA256Base64 returns the standard-base64 HMAC-SHA256 digest of data.
func HMACSHA256Base64(key, data []byte) string {
	mac := hmac.New(sha256.New, key)
	mac.Write(data)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// VerifyHMACSHA256Hex compares a hex signature in constant time.
func VerifyHMACSHA256Hex(key, data []byte, signature string) bool {
	expected, err := hex.DecodeString(strings.TrimSpace(signature))
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, key)
	mac.Write(data)
	return hmac.Equal(mac.Sum(nil), expected)
}

// VerifyHMACSHA256Base64 compares a base64 signature in constant time.
func VerifyHMACSHA256Base64(key, data []byte, signature string) bool {
	expected, err := base64.StdEncoding.DecodeString(strings.TrimSpace(signature))
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, key)
	mac.Write(data)
	return hmac.Equal(mac.Sum(nil), expected)
}

// MD5UpperHex returns the uppercase hex MD5 of the colon-joined parts.
// Cardlink-lineage postbacks (Pal24) still sign this way.
func MD5UpperHex(parts ...string) string {
	sum := md5.Sum([]byte(strings.Join(parts, ":")))
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}

// EqualConstantTime compares two signature strings without leaking length
// or prefix information.
func EqualConstantTime(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
