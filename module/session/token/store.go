package token

import (
	"context"
	"time"

	"PSession/module/session/model"
	"PSession/module/session/store"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Store issues signed claims and owns their expiry sweep. Token lifetimes
// are independent of connection/room/user lifecycles.
type Store struct {
	db     store.DB
	secret []byte
}

func NewStore(db store.DB, secret []byte) *Store {
	return &Store{db: db, secret: secret}
}

// Issue mints a signed claim valid for ttl and persists the token record.
func (s *Store) Issue(ctx context.Context, kind string, ttl time.Duration) (*model.Token, error) {
	key := uuid.NewString()
	expires := time.Now().Add(ttl)

	claim := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"jti":  key,
		"kind": kind,
		"exp":  expires.Unix(),
		"iat":  time.Now().Unix(),
	})
	signed, err := claim.SignedString(s.secret)
	if err != nil {
		return nil, err
	}

	rec := &model.Token{
		Key:     key,
		Expires: expires.UnixMilli(),
		Claim:   signed,
	}
	if err := s.db.InsertToken(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Get fails with ErrTokenNotFound when absent (or already swept).
func (s *Store) Get(ctx context.Context, key string) (*model.Token, error) {
	return s.db.FindToken(ctx, key)
}

// SweepExpired removes every token whose expiry is strictly in the past.
func (s *Store) SweepExpired(ctx context.Context, now time.Time) (int64, error) {
	return s.db.DeleteExpiredTokens(ctx, now.UnixMilli())
}
