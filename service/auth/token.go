package auth

import (
	"context"
	"strconv"
	"strings"

	errs "SCProject/tools/errs"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

// Resolver maps an opaque bearer credential to a stable user identity.
type Resolver interface {
	Resolve(ctx context.Context, credential string) (int64, error)
}

// Normalize cleans up a credential as received from the wire: surrounding
// whitespace and quote characters are stripped (some client/proxy combos
// deliver the token quoted), and the literal strings "null"/"undefined"
// map to empty. The result is what an application token actually looks like.
func Normalize(raw string) string {
	s := strings.TrimSpace(raw)
	for len(s) >= 2 {
		first, last := s[0], s[len(s)-1]
		if (first == '"' && last == '"') || (first == '\'' && last == '\'') {
			s = strings.TrimSpace(s[1 : len(s)-1])
			continue
		}
		break
	}
	switch strings.ToLower(s) {
	case "null", "undefined":
		return ""
	}
	return s
}

// Pick applies the credential precedence contract: the explicit transport
// (form field) wins over the fallback (query param) when both are present.
// Both inputs are normalized before comparison.
func Pick(explicit, fallback string) string {
	if t := Normalize(explicit); t != "" {
		return t
	}
	return Normalize(fallback)
}

// JWTResolver verifies HS256 tokens; the `sub` claim carries the user id.
type JWTResolver struct {
	secret []byte
}

func NewJWTResolver(secret []byte) *JWTResolver {
	return &JWTResolver{secret: secret}
}

func (r *JWTResolver) Resolve(_ context.Context, credential string) (int64, error) {
	credential = Normalize(credential)
	if credential == "" {
		return 0, errs.ErrUnauthorized.WithDetail("missing credential")
	}

	parsed, err := jwtlib.Parse(credential, func(t *jwtlib.Token) (interface{}, error) {
		// HMAC family only
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, errs.ErrUnauthorized.WithDetail("unexpected signing method")
		}
		return r.secret, nil
	})
	if err != nil || !parsed.Valid {
		return 0, errs.ErrUnauthorized.WithDetail("invalid token")
	}

	claims, ok := parsed.Claims.(jwtlib.MapClaims)
	if !ok {
		return 0, errs.ErrUnauthorized.WithDetail("invalid claims")
	}
	return subjectID(claims)
}

func subjectID(claims jwtlib.MapClaims) (int64, error) {
	switch sub := claims["sub"].(type) {
	case string:
		id, err := strconv.ParseInt(sub, 10, 64)
		if err != nil || id <= 0 {
			return 0, errs.ErrUnauthorized.WithDetail("invalid subject")
		}
		return id, nil
	case float64:
		if sub <= 0 {
			return 0, errs.ErrUnauthorized.WithDetail("invalid subject")
		}
		return int64(sub), nil
	default:
		return 0, errs.ErrUnauthorized.WithDetail("missing subject")
	}
}
