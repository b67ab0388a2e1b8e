package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/vetdesk/vet-booking/internal/directory"
)

const actorKey contextKey = "actor"

// Claims carry the requester identity: the subject is the actor id, the kind
// tags what the id refers to (owner, practitioner, or staff).
type Claims struct {
	Kind string `json:"kind"`
	jwt.RegisteredClaims
}

type Auth struct {
	secret []byte
}

func NewAuth(secret string) *Auth {
	return &Auth{secret: []byte(secret)}
}

// IssueToken mints a bearer token for the actor. Used by cmd/seed and tests;
// a real deployment puts an identity provider in front.
func (a *Auth) IssueToken(actor directory.Actor, ttl time.Duration) (string, error) {
	claims := Claims{
		Kind: string(actor.Kind),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor.ID.String(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

func (a *Auth) parse(tokenString string) (directory.Actor, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return a.secret, nil
	})
	if err != nil {
		return directory.Actor{}, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return directory.Actor{}, errors.New("invalid token")
	}

	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return directory.Actor{}, errors.New("invalid subject")
	}

	kind := directory.ActorKind(claims.Kind)
	switch kind {
	case directory.ActorOwner, directory.ActorPractitioner, directory.ActorStaff:
	default:
		return directory.Actor{}, errors.New("invalid actor kind")
	}

	return directory.Actor{ID: id, Kind: kind}, nil
}

// Authenticate requires a valid bearer token and puts the actor on the
// request context.
func (a *Auth) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			writeError(w, http.StatusUnauthorized, "missing_token", "Authorization header is required")
			return
		}

		parts := strings.Split(header, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			writeError(w, http.StatusUnauthorized, "invalid_token", "expected Bearer token")
			return
		}

		actor, err := a.parse(parts[1])
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid_token", err.Error())
			return
		}

		ctx := context.WithValue(r.Context(), actorKey, actor)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetActor retrieves the authenticated actor from context.
func GetActor(ctx context.Context) (directory.Actor, bool) {
	actor, ok := ctx.Value(actorKey).(directory.Actor)
	return actor, ok
}
