package state

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/guido-cesarano/fieldtrack/pkg/model"
	"github.com/redis/go-redis/v9"
)

// Session slot keys. The session is a Redis hash so a Clear can drop every
// field in one DEL; the device id lives outside it because it must survive
// logout (it identifies the installation, not the user).
const (
	keySession  = "fieldtrack:session"
	keyDeviceID = "fieldtrack:device_id"
)

// Hash fields of the session slot.
const (
	fieldToken     = "token"
	fieldUsername  = "username"
	fieldFirstName = "first_name"
	fieldLastName  = "last_name"
	fieldRole      = "role"
	fieldEmail     = "email"
	fieldUserID    = "user_id"
	fieldPhotoURL  = "photo_url"
	fieldIssuedAt  = "issued_at"
	fieldLifetime  = "lifetime_ms"
)

// SessionStore holds the authenticated user's token and identity. Every
// backend call is gated on IsLoggedIn; the token is read per request, never
// cached, so an expiry or logout takes effect immediately.
type SessionStore struct {
	rdb *redis.Client

	mu  sync.Mutex
	now func() time.Time
}

// NewSessionStore creates a session store backed by the local Redis
// instance at addr.
func NewSessionStore(addr string) *SessionStore {
	return &SessionStore{
		rdb: redis.NewClient(&redis.Options{Addr: addr}),
		now: time.Now,
	}
}

// Save records a fresh login. The issued-at timestamp is taken from the
// local clock at the moment of saving; token validity is measured from it.
func (s *SessionStore) Save(ctx context.Context, sess model.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.rdb.HSet(ctx, keySession, map[string]interface{}{
		fieldToken:     sess.Token,
		fieldUsername:  sess.Username,
		fieldFirstName: sess.FirstName,
		fieldLastName:  sess.LastName,
		fieldRole:      sess.Role,
		fieldEmail:     sess.Email,
		fieldUserID:    sess.UserID,
		fieldPhotoURL:  sess.ProfilePhotoURL,
		fieldIssuedAt:  s.now().UnixMilli(),
		fieldLifetime:  sess.TokenLifetimeMillis,
	}).Err()
}

// Current returns the stored session. Absent fields come back zero-valued;
// callers should check IsLoggedIn first.
func (s *SessionStore) Current(ctx context.Context) model.Session {
	fields, err := s.rdb.HGetAll(ctx, keySession).Result()
	if err != nil {
		return model.Session{}
	}

	userID, _ := strconv.Atoi(fields[fieldUserID])
	lifetime, _ := strconv.ParseInt(fields[fieldLifetime], 10, 64)
	return model.Session{
		Token:               fields[fieldToken],
		Username:            fields[fieldUsername],
		FirstName:           fields[fieldFirstName],
		LastName:            fields[fieldLastName],
		Role:                fields[fieldRole],
		Email:               fields[fieldEmail],
		UserID:              userID,
		TokenLifetimeMillis: lifetime,
		ProfilePhotoURL:     fields[fieldPhotoURL],
	}
}

// Token returns the stored auth token, or "" when no session exists.
func (s *SessionStore) Token(ctx context.Context) string {
	v, err := s.rdb.HGet(ctx, keySession, fieldToken).Result()
	if err != nil {
		return ""
	}
	return v
}

// UserID returns the logged-in user's id, or 0 when no session exists.
func (s *SessionStore) UserID(ctx context.Context) int {
	v, err := s.rdb.HGet(ctx, keySession, fieldUserID).Int()
	if err != nil {
		return 0
	}
	return v
}

// FullName returns "FirstName LastName", trimmed.
func (s *SessionStore) FullName(ctx context.Context) string {
	sess := s.Current(ctx)
	switch {
	case sess.FirstName == "":
		return sess.LastName
	case sess.LastName == "":
		return sess.FirstName
	default:
		return sess.FirstName + " " + sess.LastName
	}
}

// IsLoggedIn reports whether a token is present and not yet expired.
func (s *SessionStore) IsLoggedIn(ctx context.Context) bool {
	return s.Token(ctx) != "" && !s.tokenExpired(ctx)
}

func (s *SessionStore) tokenExpired(ctx context.Context) bool {
	issuedAt, err := s.rdb.HGet(ctx, keySession, fieldIssuedAt).Int64()
	if err != nil || issuedAt == 0 {
		return true
	}
	lifetime, err := s.rdb.HGet(ctx, keySession, fieldLifetime).Int64()
	if err != nil || lifetime == 0 {
		return true
	}
	return s.now().UnixMilli() >= issuedAt+lifetime
}

// Clear wipes the whole session atomically (logout, expiry detection).
// The device id is deliberately left in place.
func (s *SessionStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rdb.Del(ctx, keySession).Err()
}

// DeviceID returns this installation's stable identifier, generating and
// persisting one on first use. It is sent along with the notification token
// registration so the backend can address this device.
func (s *SessionStore) DeviceID(ctx context.Context) (string, error) {
	id := uuid.New().String()
	// SetNX keeps the first id ever written, so concurrent first calls agree.
	if err := s.rdb.SetNX(ctx, keyDeviceID, id, 0).Err(); err != nil {
		return "", err
	}
	return s.rdb.Get(ctx, keyDeviceID).Result()
}
