package core

import (
	"errors"
	"fmt"

	"github.com/go-jose/go-jose/v4"
	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
	ErrDecryption   = errors.New("decryption failed")
)

// Token subjects. Each cookie payload is a distinct claims shape and a token
// presented with the wrong subject is rejected outright.
const (
	SubjectSession = "session"
	SubjectSecured = "session:secured"
	SubjectState   = "state"
)

// SessionUser is the client-readable session payload. It deliberately never
// carries the refresh token.
type SessionUser struct {
	UserID      string `json:"userId"`
	UserName    string `json:"userName"`
	UserImage   string `json:"userImage"`
	AccessToken string `json:"accessToken"`
}

type SessionClaims struct {
	User SessionUser `json:"user"`
	jwt.RegisteredClaims
}

// SecuredUser is the httpOnly session payload: the refresh token and nothing
// else. It only ever travels inside an encrypted envelope.
type SecuredUser struct {
	RefreshToken string `json:"refreshToken"`
}

type SecuredClaims struct {
	User SecuredUser `json:"user"`
	jwt.RegisteredClaims
}

type StatePayload struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

type StateClaims struct {
	State StatePayload `json:"state"`
	jwt.RegisteredClaims
}

// TokenCodec signs/verifies compact ES256 JWTs and wraps/unwraps them in
// compact JWE envelopes (ECDH-ES+A256KW, A256GCM). Pure functions over the
// key set; no I/O.
type TokenCodec struct {
	keys *KeySet
}

func NewTokenCodec(keys *KeySet) *TokenCodec {
	return &TokenCodec{keys: keys}
}

func (c *TokenCodec) Sign(claims jwt.Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodES256, claims)
	signed, err := token.SignedString(c.keys.SigningKey)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

// Verify parses tokenString into claims and checks the signature, expiry and
// subject. Any failure other than expiry is reported as ErrInvalidToken so
// callers cannot tell a forged token from a malformed one.
func (c *TokenCodec) Verify(tokenString string, claims jwt.Claims, subject string) error {
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodECDSA); !ok {
			return nil, ErrInvalidToken
		}
		return &c.keys.SigningKey.PublicKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodES256.Alg()}), jwt.WithExpirationRequired())

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return ErrExpiredToken
		}
		return ErrInvalidToken
	}
	if !token.Valid {
		return ErrInvalidToken
	}

	sub, err := claims.GetSubject()
	if err != nil || sub != subject {
		return ErrInvalidToken
	}

	return nil
}

// Encrypt wraps a signed token in an authenticated-encryption envelope so the
// holder cannot read the claims.
func (c *TokenCodec) Encrypt(signed string) (string, error) {
	recipient := jose.Recipient{
		Algorithm: jose.ECDH_ES_A256KW,
		Key:       &c.keys.EncryptionKey.PublicKey,
	}

	enc, err := jose.NewEncrypter(
		jose.A256GCM,
		recipient,
		(&jose.EncrypterOptions{}).WithContentType("JWT"),
	)
	if err != nil {
		return "", fmt.Errorf("creating encrypter: %w", err)
	}

	obj, err := enc.Encrypt([]byte(signed))
	if err != nil {
		return "", fmt.Errorf("encrypting token: %w", err)
	}

	return obj.CompactSerialize()
}

func (c *TokenCodec) Decrypt(envelope string) (string, error) {
	obj, err := jose.ParseEncrypted(envelope,
		[]jose.KeyAlgorithm{jose.ECDH_ES_A256KW},
		[]jose.ContentEncryption{jose.A256GCM},
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecryption, err)
	}

	plaintext, err := obj.Decrypt(c.keys.EncryptionKey)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecryption, err)
	}

	return string(plaintext), nil
}
