package core_test

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"fmt"
	"testing"
	"time"

	"chedauth/core"
	"chedauth/core/providers"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

// outageProvider simulates a provider whose token endpoint is down: every
// refresh fails without saying anything about the refresh token itself.
type outageProvider struct {
	*providers.MockProvider
}

func (p *outageProvider) RefreshAccessToken(ctx context.Context, refreshToken string) (*core.OAuthTokens, error) {
	return nil, fmt.Errorf("%w: status 502", core.ErrProviderRefreshToken)
}

func newTestKeySet(t *testing.T) *core.KeySet {
	t.Helper()

	signingKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	encryptionKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	return &core.KeySet{
		SigningKey:    signingKey,
		EncryptionKey: encryptionKey,
	}
}

func newTestCodec(t *testing.T) *core.TokenCodec {
	t.Helper()
	return core.NewTokenCodec(newTestKeySet(t))
}

// signSessionToken mints a public session token directly, bypassing the
// session manager, so tests can control the embedded expiry.
func signSessionToken(t *testing.T, codec *core.TokenCodec, user core.SessionUser, expiresAt time.Time) string {
	t.Helper()

	claims := &core.SessionClaims{
		User: user,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   core.SubjectSession,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := codec.Sign(claims)
	require.NoError(t, err)
	return signed
}

// signSecuredToken mints an encrypted secured session token carrying
// refreshToken.
func signSecuredToken(t *testing.T, codec *core.TokenCodec, refreshToken string, expiresAt time.Time) string {
	t.Helper()

	claims := &core.SecuredClaims{
		User: core.SecuredUser{RefreshToken: refreshToken},
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   core.SubjectSecured,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := codec.Sign(claims)
	require.NoError(t, err)

	envelope, err := codec.Encrypt(signed)
	require.NoError(t, err)
	return envelope
}
