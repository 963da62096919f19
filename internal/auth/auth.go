// Package auth implements the Nostr challenge/response flow: the
// server hands out single-use nonces, clients return them inside a
// signed event, and a successful verification yields a bearer session
// token. The engine itself never inspects signatures.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nbd-wtf/go-nostr"
	"github.com/rs/zerolog"
)

const kindClientAuth = 22242

// maximum clock skew accepted on the signed event's timestamp
const timestampSkew = 300 * time.Second

var (
	ErrChallengeNotFound = errors.New("auth: challenge not found or already used")
	ErrChallengeExpired  = errors.New("auth: challenge expired")
	ErrBadSignature      = errors.New("auth: invalid event signature")
	ErrBadEvent          = errors.New("auth: malformed auth event")
	ErrSessionInvalid    = errors.New("auth: invalid or expired session")
)

// Profile is the identity record handed to the coordinator after a
// successful authentication.
type Profile struct {
	Identity         string `json:"identity"` // hex pubkey
	Handle           string `json:"handle"`
	Avatar           string `json:"avatar,omitempty"`
	LightningAddress string `json:"lightning_address,omitempty"`
	Chips            int64  `json:"chips"`
}

// Store is the persistence surface the service needs. Challenge
// consumption must be atomic so a nonce can never be replayed.
type Store interface {
	CreateChallenge(ctx context.Context, challengeID, nonce string, expiresAt int64) error
	ConsumeChallenge(ctx context.Context, challengeID string) (nonce string, expiresAt int64, err error)
	UpsertPlayer(ctx context.Context, identity, handle, avatar, lightningAddress string) (*Profile, error)
	SetSessionToken(ctx context.Context, identity, token string, expiresAt int64) error
	GetPlayerBySessionToken(ctx context.Context, token string) (*Profile, int64, error)
}

type Options struct {
	ChallengeTTL time.Duration
	SessionTTL   time.Duration
}

type Service struct {
	store   Store
	options Options
	logger  zerolog.Logger
}

func NewService(store Store, options Options, logger zerolog.Logger) *Service {
	if options.ChallengeTTL == 0 {
		options.ChallengeTTL = 5 * time.Minute
	}
	if options.SessionTTL == 0 {
		options.SessionTTL = 24 * time.Hour
	}
	return &Service{store: store, options: options, logger: logger}
}

// NewChallenge mints a single-use challenge with a 32-byte random
// nonce.
func (s *Service) NewChallenge(ctx context.Context) (challengeID, nonce string, err error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", "", fmt.Errorf("auth: nonce entropy: %w", err)
	}

	challengeID = uuid.New().String()
	nonce = hex.EncodeToString(raw)
	expiresAt := time.Now().Add(s.options.ChallengeTTL).Unix()

	if err := s.store.CreateChallenge(ctx, challengeID, nonce, expiresAt); err != nil {
		return "", "", fmt.Errorf("auth: store challenge: %w", err)
	}
	return challengeID, nonce, nil
}

// authMetadata is the optional profile payload in the event content.
type authMetadata struct {
	Handle string `json:"handle"`
	Avatar string `json:"avatar"`
	Lud16  string `json:"lud16"`
}

/*
Verify consumes a challenge and checks the signed event: a valid
signature over the auth kind, a timestamp within the accepted skew,
and a challenge tag carrying the nonce. Challenges are marked used on
consumption, so replays fail before any signature work.
*/
func (s *Service) Verify(ctx context.Context, challengeID string, signedEvent json.RawMessage) (string, *Profile, error) {
	nonce, expiresAt, err := s.store.ConsumeChallenge(ctx, challengeID)
	if err != nil {
		return "", nil, ErrChallengeNotFound
	}
	if time.Now().Unix() > expiresAt {
		return "", nil, ErrChallengeExpired
	}

	var event nostr.Event
	if err := json.Unmarshal(signedEvent, &event); err != nil {
		return "", nil, ErrBadEvent
	}
	if event.Kind != kindClientAuth {
		return "", nil, ErrBadEvent
	}

	drift := time.Since(event.CreatedAt.Time())
	if drift > timestampSkew || drift < -timestampSkew {
		return "", nil, ErrBadEvent
	}

	if !challengeTagMatches(event.Tags, nonce) {
		return "", nil, ErrBadEvent
	}

	ok, err := event.CheckSignature()
	if err != nil || !ok {
		return "", nil, ErrBadSignature
	}

	var meta authMetadata
	_ = json.Unmarshal([]byte(event.Content), &meta)
	handle := meta.Handle
	if handle == "" {
		handle = shortIdentity(event.PubKey)
	}

	profile, err := s.store.UpsertPlayer(ctx, event.PubKey, handle, meta.Avatar, meta.Lud16)
	if err != nil {
		return "", nil, fmt.Errorf("auth: upsert player: %w", err)
	}

	token := uuid.New().String()
	sessionExpiry := time.Now().Add(s.options.SessionTTL).Unix()
	if err := s.store.SetSessionToken(ctx, event.PubKey, token, sessionExpiry); err != nil {
		return "", nil, fmt.Errorf("auth: store session: %w", err)
	}

	s.logger.Info().Str("identity", shortIdentity(event.PubKey)).Msg("session issued")
	return token, profile, nil
}

// ValidateSession resolves a bearer token to its profile.
func (s *Service) ValidateSession(ctx context.Context, token string) (*Profile, error) {
	if token == "" {
		return nil, ErrSessionInvalid
	}
	profile, expiresAt, err := s.store.GetPlayerBySessionToken(ctx, token)
	if err != nil {
		return nil, ErrSessionInvalid
	}
	if time.Now().Unix() > expiresAt {
		return nil, ErrSessionInvalid
	}
	return profile, nil
}

func challengeTagMatches(tags nostr.Tags, nonce string) bool {
	for _, tag := range tags {
		if len(tag) >= 2 && tag[0] == "challenge" && tag[1] == nonce {
			return true
		}
	}
	return false
}

func shortIdentity(pubkey string) string {
	if len(pubkey) <= 12 {
		return pubkey
	}
	return pubkey[:12]
}
