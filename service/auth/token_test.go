package auth

import (
	"context"
	"testing"
	"time"

	errs "SCProject/tools/errs"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "abc.def.ghi", "abc.def.ghi"},
		{"whitespace", "  tok  ", "tok"},
		{"double quoted", `"tok"`, "tok"},
		{"single quoted", "'tok'", "tok"},
		{"nested quotes", `"'tok'"`, "tok"},
		{"quoted whitespace", `" tok "`, "tok"},
		{"null literal", "null", ""},
		{"undefined literal", "undefined", ""},
		{"quoted null", `"null"`, ""},
		{"uppercase null", "NULL", ""},
		{"empty", "", ""},
		{"lone quote", `"`, `"`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Normalize(tc.in))
		})
	}
}

func TestPick(t *testing.T) {
	assert.Equal(t, "form", Pick("form", "query"), "explicit transport wins")
	assert.Equal(t, "query", Pick("", "query"))
	assert.Equal(t, "query", Pick("null", "query"), "junk explicit falls through")
	assert.Equal(t, "", Pick("", ""))
}

func signToken(t *testing.T, secret []byte, claims jwtlib.MapClaims) string {
	t.Helper()
	tok := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	s, err := tok.SignedString(secret)
	require.NoError(t, err)
	return s
}

func TestJWTResolverResolve(t *testing.T) {
	secret := []byte("test-secret")
	r := NewJWTResolver(secret)
	ctx := context.Background()

	t.Run("string subject", func(t *testing.T) {
		tok := signToken(t, secret, jwtlib.MapClaims{"sub": "42"})
		id, err := r.Resolve(ctx, tok)
		require.NoError(t, err)
		assert.Equal(t, int64(42), id)
	})

	t.Run("numeric subject", func(t *testing.T) {
		tok := signToken(t, secret, jwtlib.MapClaims{"sub": 42})
		id, err := r.Resolve(ctx, tok)
		require.NoError(t, err)
		assert.Equal(t, int64(42), id)
	})

	t.Run("quoted credential", func(t *testing.T) {
		tok := signToken(t, secret, jwtlib.MapClaims{"sub": "42"})
		id, err := r.Resolve(ctx, `"`+tok+`"`)
		require.NoError(t, err)
		assert.Equal(t, int64(42), id)
	})

	t.Run("wrong secret", func(t *testing.T) {
		tok := signToken(t, []byte("other"), jwtlib.MapClaims{"sub": "42"})
		_, err := r.Resolve(ctx, tok)
		assert.True(t, errors.Is(err, errs.ErrUnauthorized))
	})

	t.Run("expired", func(t *testing.T) {
		tok := signToken(t, secret, jwtlib.MapClaims{
			"sub": "42",
			"exp": time.Now().Add(-time.Hour).Unix(),
		})
		_, err := r.Resolve(ctx, tok)
		assert.True(t, errors.Is(err, errs.ErrUnauthorized))
	})

	t.Run("missing subject", func(t *testing.T) {
		tok := signToken(t, secret, jwtlib.MapClaims{"name": "nobody"})
		_, err := r.Resolve(ctx, tok)
		assert.True(t, errors.Is(err, errs.ErrUnauthorized))
	})

	t.Run("non positive subject", func(t *testing.T) {
		tok := signToken(t, secret, jwtlib.MapClaims{"sub": "0"})
		_, err := r.Resolve(ctx, tok)
		assert.True(t, errors.Is(err, errs.ErrUnauthorized))
	})

	t.Run("empty credential", func(t *testing.T) {
		_, err := r.Resolve(ctx, "null")
		assert.True(t, errors.Is(err, errs.ErrUnauthorized))
	})
}
