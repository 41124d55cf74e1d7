package gateways

import "testing"

func TestVerifyHMACSHA256Hex(t *testing.T) {
	key := []byte("secret-key")
	body := []byte(`{"id":"inv-1","status":"paid"}`)

	signature := HMACSHA256Hex(key, body)

	if !VerifyHMACSHA256Hex(key, body, signature) {
		t.Error("valid signature rejected")
	}
	if !VerifyHMACSHA256Hex(key, body, " "+signature+" ") {
		t.Error("valid signature with whitespace rejected")
	}
	if VerifyHMACSHA256Hex(key, body, HMACSHA256Hex([]byte("other-key"), body)) {
		t.Error("signature with wrong key accepted")
	}
	if VerifyHMACSHA256Hex(key, []byte("tampered"), signature) {
		t.Error("signature over different body accepted")
	}
	if VerifyHMACSHA256Hex(key, body, "not-hex") {
		t.Error("malformed signature accepted")
	}
	if VerifyHMACSHA256Hex(key, body, "") {
		t.Error("empty signature accepted")
	}
}

func TestVerifyHMACSHA256Base64(t *testing.T) {
	key := []byte("signing-key")
	body := []byte(`{"transactionId":"t-1"}`)

	signature := HMACSHA256Base64(key, body)

	if !VerifyHMACSHA256Base64(key, body, signature) {
		t.Error("valid signature rejected")
	}
	if VerifyHMACSHA256Base64(key, body, HMACSHA256Base64([]byte("wrong"), body)) {
		t.Error("signature with wrong key accepted")
	}
	if VerifyHMACSHA256Base64(key, body, "%%%") {
		t.Error("malformed signature accepted")
	}
}

func TestMD5UpperHex(t *testing.T) {
	// md5("100.00:42:token") precomputed
	got := MD5UpperHex("100.00", "42", "token")
	if len(got) != 32 {
		t.Fatalf("digest length = %d, want 32", len(got))
	}
	if got != MD5UpperHex("100.00", "42", "token") {
		t.Error("digest not deterministic")
	}
	if got == MD5UpperHex("100.01", "42", "token") {
		t.Error("different input produced same digest")
	}
}

func TestEqualConstantTime(t *testing.T) {
	if !EqualConstantTime("abc", "abc") {
		t.Error("equal strings compared unequal")
	}
	if EqualConstantTime("abc", "abd") {
		t.Error("different strings compared equal")
	}
	if EqualConstantTime("abc", "abcd") {
		t.Error("different lengths compared equal")
	}
}
