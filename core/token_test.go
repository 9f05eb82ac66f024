package core_test

import (
	"strings"
	"testing"
	"time"

	"chedauth/core"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignVerify_RoundTrip(t *testing.T) {
	codec := newTestCodec(t)

	user := core.SessionUser{
		UserID:      "naver_user_1",
		UserName:    "Tester",
		UserImage:   "https://example.com/avatar.jpg",
		AccessToken: "access_token_value",
	}
	signed := signSessionToken(t, codec, user, time.Now().Add(time.Hour))

	var claims core.SessionClaims
	err := codec.Verify(signed, &claims, core.SubjectSession)

	require.NoError(t, err)
	assert.Equal(t, user, claims.User)
}

func TestVerify_TamperedPayload(t *testing.T) {
	codec := newTestCodec(t)

	signed := signSessionToken(t, codec, core.SessionUser{UserID: "u1"}, time.Now().Add(time.Hour))

	// Flip one character in the payload segment.
	parts := strings.Split(signed, ".")
	require.Len(t, parts, 3)
	payload := []byte(parts[1])
	mid := len(payload) / 2
	if payload[mid] == 'A' {
		payload[mid] = 'B'
	} else {
		payload[mid] = 'A'
	}
	tampered := parts[0] + "." + string(payload) + "." + parts[2]

	var claims core.SessionClaims
	err := codec.Verify(tampered, &claims, core.SubjectSession)

	assert.ErrorIs(t, err, core.ErrInvalidToken)
}

func TestVerify_Expired(t *testing.T) {
	codec := newTestCodec(t)

	signed := signSessionToken(t, codec, core.SessionUser{UserID: "u1"}, time.Now().Add(-time.Minute))

	var claims core.SessionClaims
	err := codec.Verify(signed, &claims, core.SubjectSession)

	assert.ErrorIs(t, err, core.ErrExpiredToken)
}

func TestVerify_WrongKey(t *testing.T) {
	codec := newTestCodec(t)
	otherCodec := newTestCodec(t)

	signed := signSessionToken(t, codec, core.SessionUser{UserID: "u1"}, time.Now().Add(time.Hour))

	var claims core.SessionClaims
	err := otherCodec.Verify(signed, &claims, core.SubjectSession)

	assert.ErrorIs(t, err, core.ErrInvalidToken)
}

func TestVerify_WrongSubject(t *testing.T) {
	codec := newTestCodec(t)

	// A state token presented where a session token is expected must be
	// rejected outright.
	claims := &core.StateClaims{
		State: core.StatePayload{ID: "id", URL: "https://cheda.kr/"},
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   core.SubjectState,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	signed, err := codec.Sign(claims)
	require.NoError(t, err)

	var sessionClaims core.SessionClaims
	err = codec.Verify(signed, &sessionClaims, core.SubjectSession)

	assert.ErrorIs(t, err, core.ErrInvalidToken)
}

func TestVerify_MissingExpiry(t *testing.T) {
	codec := newTestCodec(t)

	claims := &core.SessionClaims{
		User:             core.SessionUser{UserID: "u1"},
		RegisteredClaims: jwt.RegisteredClaims{Subject: core.SubjectSession},
	}
	signed, err := codec.Sign(claims)
	require.NoError(t, err)

	var parsed core.SessionClaims
	err = codec.Verify(signed, &parsed, core.SubjectSession)

	assert.ErrorIs(t, err, core.ErrInvalidToken)
}

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	codec := newTestCodec(t)

	signed := signSessionToken(t, codec, core.SessionUser{UserID: "u1"}, time.Now().Add(time.Hour))

	envelope, err := codec.Encrypt(signed)
	require.NoError(t, err)
	assert.NotContains(t, envelope, signed)

	decrypted, err := codec.Decrypt(envelope)
	require.NoError(t, err)
	assert.Equal(t, signed, decrypted)
}

func TestDecrypt_WrongKey(t *testing.T) {
	codec := newTestCodec(t)
	otherCodec := newTestCodec(t)

	signed := signSessionToken(t, codec, core.SessionUser{UserID: "u1"}, time.Now().Add(time.Hour))
	envelope, err := codec.Encrypt(signed)
	require.NoError(t, err)

	_, err = otherCodec.Decrypt(envelope)

	assert.ErrorIs(t, err, core.ErrDecryption)
}

func TestDecrypt_Garbage(t *testing.T) {
	codec := newTestCodec(t)

	_, err := codec.Decrypt("definitely.not.a.jwe.token")

	assert.ErrorIs(t, err, core.ErrDecryption)
}

func TestDecrypt_TamperedEnvelope(t *testing.T) {
	codec := newTestCodec(t)

	signed := signSessionToken(t, codec, core.SessionUser{UserID: "u1"}, time.Now().Add(time.Hour))
	envelope, err := codec.Encrypt(signed)
	require.NoError(t, err)

	parts := strings.Split(envelope, ".")
	require.Len(t, parts, 5)
	ciphertext := []byte(parts[3])
	if ciphertext[0] == 'A' {
		ciphertext[0] = 'B'
	} else {
		ciphertext[0] = 'A'
	}
	parts[3] = string(ciphertext)

	_, err = codec.Decrypt(strings.Join(parts, "."))

	assert.ErrorIs(t, err, core.ErrDecryption)
}
