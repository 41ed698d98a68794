package authservice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zanzhit/securecam/internal/domain/errs"
	"github.com/zanzhit/securecam/internal/domain/models"
	"github.com/zanzhit/securecam/internal/domain/policy"
	"github.com/zanzhit/securecam/internal/lib/jwt"
	"github.com/zanzhit/securecam/internal/lib/sl"
)

const (
	TokenType = "bearer"

	// PermanentLifetime stands in for a token that never expires.
	PermanentLifetime = 100 * 365 * 24 * time.Hour

	maxCacheTTL = 24 * time.Hour
)

type Config struct {
	Secret     string
	Algorithm  string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

type AuthService struct {
	log           *slog.Logger
	cfg           Config
	passwords     PasswordVerifier
	userProvider  UserProvider
	subscriptions SubscriptionProvider
	tokens        TokenStorage
	cache         PATCache
	now           func() time.Time

	dummyOnce sync.Once
	dummyHash string
}

type PasswordVerifier interface {
	HashNew(password string) (string, error)
	Verify(password, stored string) bool
}

type UserProvider interface {
	User(ctx context.Context, ref models.UserRef) (models.User, error)
}

type SubscriptionProvider interface {
	UserCameraIDs(ctx context.Context, userID int64) ([]int64, error)
}

type TokenStorage interface {
	SaveRefreshToken(ctx context.Context, token models.RefreshToken) (models.RefreshToken, error)
	RotateRefreshToken(ctx context.Context, token string, now time.Time, issue func(old models.RefreshToken) (string, error)) (models.RefreshToken, error)
	DeleteRefreshToken(ctx context.Context, token string, userID int64) error
	DeleteUserRefreshTokens(ctx context.Context, userID int64) (int64, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
	SavePAT(ctx context.Context, pat models.PersonalAccessToken) (models.PersonalAccessToken, error)
	PAT(ctx context.Context, id string) (models.PersonalAccessToken, error)
	PATs(ctx context.Context, userID int64) ([]models.PersonalAccessToken, error)
	DeletePAT(ctx context.Context, id string) error
}

// PATCache is an optional read-through cache of personal access tokens.
// A revoked token is kept as a tombstone: PAT reports it found with owner 0.
type PATCache interface {
	SetPAT(ctx context.Context, id string, userID int64, ttl time.Duration) error
	// AddPAT stores the owner only when the id has no entry yet, so a stale
	// read never overwrites a tombstone.
	AddPAT(ctx context.Context, id string, userID int64, ttl time.Duration) (bool, error)
	RevokePAT(ctx context.Context, id string, ttl time.Duration) error
	PAT(ctx context.Context, id string) (userID int64, found bool, err error)
}

func New(
	log *slog.Logger,
	cfg Config,
	passwords PasswordVerifier,
	userProvider UserProvider,
	subscriptions SubscriptionProvider,
	tokens TokenStorage,
) *AuthService {
	return &AuthService{
		log:           log,
		cfg:           cfg,
		passwords:     passwords,
		userProvider:  userProvider,
		subscriptions: subscriptions,
		tokens:        tokens,
		now:           time.Now,
	}
}

func (s *AuthService) WithCache(cache PATCache) *AuthService {
	s.cache = cache
	return s
}

func (s *AuthService) WithClock(now func() time.Time) *AuthService {
	s.now = now
	return s
}

// Login returns the same error for an unknown email and a wrong password.
func (s *AuthService) Login(ctx context.Context, email, password string, deviceInfo *string) (models.TokenPair, error) {
	const op = "service.auth.Login"

	log := s.log.With(
		slog.String("op", op),
		slog.String("email", email),
	)

	log.Info("attempting to login user")

	user, err := s.userProvider.User(ctx, models.ByEmail(email))
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			// keep the timing of an unknown email close to a wrong password
			s.passwords.Verify(password, s.dummy())

			log.Warn("user not found")

			return models.TokenPair{}, fmt.Errorf("%s: %w", op, errs.ErrInvalidCredentials)
		}

		log.Error("failed to get user", sl.Err(err))

		return models.TokenPair{}, fmt.Errorf("%s: %w", op, err)
	}

	if !s.passwords.Verify(password, user.PasswordHash) {
		log.Info("invalid credentials")

		return models.TokenPair{}, fmt.Errorf("%s: %w", op, errs.ErrInvalidCredentials)
	}

	now := s.now()

	access, err := s.encode(user.ID, jwt.KindAccess, uuid.NewString(), now, now.Add(s.cfg.AccessTTL))
	if err != nil {
		log.Error("failed to generate access token", sl.Err(err))

		return models.TokenPair{}, fmt.Errorf("%s: %w", op, err)
	}

	expiresAt := now.Add(s.cfg.RefreshTTL).Truncate(time.Second)

	refresh, err := s.encode(user.ID, jwt.KindRefresh, uuid.NewString(), now, expiresAt)
	if err != nil {
		log.Error("failed to generate refresh token", sl.Err(err))

		return models.TokenPair{}, fmt.Errorf("%s: %w", op, err)
	}

	_, err = s.tokens.SaveRefreshToken(ctx, models.RefreshToken{
		Token:      refresh,
		UserID:     user.ID,
		ExpiresAt:  expiresAt,
		DeviceInfo: deviceInfo,
	})
	if err != nil {
		log.Error("failed to save refresh token", sl.Err(err))

		return models.TokenPair{}, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("user logged in successfully", slog.Int64("user_id", user.ID))

	return models.TokenPair{AccessToken: access, RefreshToken: refresh, TokenType: TokenType}, nil
}

// Refresh rotates a refresh token. The new one keeps the absolute expiry of the old one.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (models.TokenPair, error) {
	const op = "service.auth.Refresh"

	log := s.log.With(slog.String("op", op))

	payload, err := jwt.Decode(refreshToken, s.cfg.Secret, s.cfg.Algorithm)
	if err != nil || payload.Kind != jwt.KindRefresh {
		log.Info("rejected refresh token")

		return models.TokenPair{}, fmt.Errorf("%s: %w", op, errs.ErrRefreshTokenInvalid)
	}

	now := s.now()

	rotated, err := s.tokens.RotateRefreshToken(ctx, refreshToken, now, func(old models.RefreshToken) (string, error) {
		return s.encode(old.UserID, jwt.KindRefresh, uuid.NewString(), now, old.ExpiresAt)
	})
	if err != nil {
		if errors.Is(err, errs.ErrUnauthorized) {
			log.Info("refresh token is unknown or expired")
		} else {
			log.Error("failed to rotate refresh token", sl.Err(err))
		}

		return models.TokenPair{}, fmt.Errorf("%s: %w", op, err)
	}

	access, err := s.encode(rotated.UserID, jwt.KindAccess, uuid.NewString(), now, now.Add(s.cfg.AccessTTL))
	if err != nil {
		log.Error("failed to generate access token", sl.Err(err))

		return models.TokenPair{}, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("refresh token rotated", slog.Int64("user_id", rotated.UserID))

	return models.TokenPair{AccessToken: access, RefreshToken: rotated.Token, TokenType: TokenType}, nil
}

// PATLifetime resolves the requested lifetime: nil means the access token
// default, 0 means permanent, negative values are rejected.
func (s *AuthService) PATLifetime(minutes *int) (time.Duration, error) {
	switch {
	case minutes == nil:
		return s.cfg.AccessTTL, nil
	case *minutes < 0:
		return 0, fmt.Errorf("%w: lifetime cannot be negative", errs.ErrInvalidArgument)
	case *minutes == 0:
		return PermanentLifetime, nil
	}

	return time.Duration(*minutes) * time.Minute, nil
}

// IssuePAT creates a personal access token. It has no refresh token and is
// revocable through its record.
func (s *AuthService) IssuePAT(ctx context.Context, userID int64, name string, minutes *int) (models.TokenPair, models.PersonalAccessToken, error) {
	const op = "service.auth.IssuePAT"

	log := s.log.With(
		slog.String("op", op),
		slog.Int64("user_id", userID),
	)

	lifetime, err := s.PATLifetime(minutes)
	if err != nil {
		return models.TokenPair{}, models.PersonalAccessToken{}, fmt.Errorf("%s: %w", op, err)
	}

	now := s.now()
	id := uuid.NewString()
	expiresAt := now.Add(lifetime).Truncate(time.Second)

	token, err := s.encode(userID, jwt.KindPAT, id, now, expiresAt)
	if err != nil {
		log.Error("failed to generate token", sl.Err(err))

		return models.TokenPair{}, models.PersonalAccessToken{}, fmt.Errorf("%s: %w", op, err)
	}

	pat, err := s.tokens.SavePAT(ctx, models.PersonalAccessToken{
		ID:        id,
		UserID:    userID,
		Name:      name,
		ExpiresAt: expiresAt,
	})
	if err != nil {
		log.Error("failed to save token", sl.Err(err))

		return models.TokenPair{}, models.PersonalAccessToken{}, fmt.Errorf("%s: %w", op, err)
	}

	s.cachePAT(ctx, log, pat)

	log.Info("personal access token issued", slog.String("token_id", id))

	return models.TokenPair{AccessToken: token, TokenType: TokenType}, pat, nil
}

func (s *AuthService) PATs(ctx context.Context, userID int64) ([]models.PersonalAccessToken, error) {
	const op = "service.auth.PATs"

	pats, err := s.tokens.PATs(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return pats, nil
}

// RevokePAT deletes a token owned by the caller. Admins may revoke any token.
// A token of another user is reported as not found.
func (s *AuthService) RevokePAT(ctx context.Context, caller policy.Caller, id string) error {
	const op = "service.auth.RevokePAT"

	log := s.log.With(
		slog.String("op", op),
		slog.Int64("user_id", caller.ID),
		slog.String("token_id", id),
	)

	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("%s: %w", op, errs.ErrTokenNotFound)
	}

	pat, err := s.tokens.PAT(ctx, id)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if !policy.CanAccess(caller, policy.KindUser, policy.User(pat.UserID), policy.ActionUpdate) {
		return fmt.Errorf("%s: %w", op, errs.ErrTokenNotFound)
	}

	if err := s.tokens.DeletePAT(ctx, id); err != nil {
		log.Error("failed to delete token", sl.Err(err))

		return fmt.Errorf("%s: %w", op, err)
	}

	if s.cache != nil {
		if ttl := cacheTTL(pat.ExpiresAt, s.now()); ttl > 0 {
			if err := s.cache.RevokePAT(ctx, id, ttl); err != nil {
				log.Warn("failed to mark token revoked in cache", sl.Err(err))
			}
		}
	}

	log.Info("personal access token revoked")

	return nil
}

// Logout ends one session. The refresh token must belong to the caller.
func (s *AuthService) Logout(ctx context.Context, refreshToken string, userID int64) error {
	const op = "service.auth.Logout"

	if err := s.tokens.DeleteRefreshToken(ctx, refreshToken, userID); err != nil {
		s.log.Info("logout rejected", slog.String("op", op), slog.Int64("user_id", userID), sl.Err(err))

		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// LogoutAll ends every session of the user. Having none is not an error.
func (s *AuthService) LogoutAll(ctx context.Context, userID int64) (int64, error) {
	const op = "service.auth.LogoutAll"

	n, err := s.tokens.DeleteUserRefreshTokens(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	s.log.Info("sessions revoked", slog.String("op", op), slog.Int64("user_id", userID), slog.Int64("count", n))

	return n, nil
}

// Authenticate resolves a bearer token into the calling user and their cameras.
// Refresh tokens are not accepted as bearer tokens.
func (s *AuthService) Authenticate(ctx context.Context, bearer string) (models.Principal, error) {
	const op = "service.auth.Authenticate"

	payload, err := jwt.Decode(bearer, s.cfg.Secret, s.cfg.Algorithm)
	if err != nil {
		return models.Principal{}, fmt.Errorf("%s: %w", op, err)
	}

	if payload.Kind == jwt.KindRefresh {
		return models.Principal{}, fmt.Errorf("%s: %w: refresh token used as bearer", op, errs.ErrInvalidToken)
	}

	userID, err := payload.UserID()
	if err != nil {
		return models.Principal{}, fmt.Errorf("%s: %w", op, err)
	}

	if payload.Kind == jwt.KindPAT {
		if err := s.checkPAT(ctx, payload.ID, userID); err != nil {
			return models.Principal{}, fmt.Errorf("%s: %w", op, err)
		}
	}

	user, err := s.userProvider.User(ctx, models.ByID(userID))
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return models.Principal{}, fmt.Errorf("%s: %w: user no longer exists", op, errs.ErrInvalidToken)
		}
		return models.Principal{}, fmt.Errorf("%s: %w", op, err)
	}

	cameraIDs, err := s.subscriptions.UserCameraIDs(ctx, userID)
	if err != nil {
		return models.Principal{}, fmt.Errorf("%s: %w", op, err)
	}

	return models.Principal{User: user, CameraIDs: cameraIDs}, nil
}

// SweepExpired deletes expired refresh tokens and token records.
func (s *AuthService) SweepExpired(ctx context.Context) (int64, error) {
	const op = "service.auth.SweepExpired"

	n, err := s.tokens.DeleteExpired(ctx, s.now())
	if err != nil {
		s.log.Error("failed to sweep expired tokens", slog.String("op", op), sl.Err(err))

		return 0, fmt.Errorf("%s: %w", op, err)
	}

	if n > 0 {
		s.log.Info("expired tokens swept", slog.String("op", op), slog.Int64("count", n))
	}

	return n, nil
}

func (s *AuthService) checkPAT(ctx context.Context, id string, userID int64) error {
	if s.cache != nil {
		owner, found, err := s.cache.PAT(ctx, id)
		if err != nil {
			s.log.Warn("token cache unavailable", sl.Err(err))
		} else if found {
			if owner == 0 {
				return fmt.Errorf("%w: token revoked", errs.ErrInvalidToken)
			}
			if owner != userID {
				return fmt.Errorf("%w: token owner mismatch", errs.ErrInvalidToken)
			}
			return nil
		}
	}

	pat, err := s.tokens.PAT(ctx, id)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return fmt.Errorf("%w: token revoked", errs.ErrInvalidToken)
		}
		return err
	}

	if pat.UserID != userID {
		return fmt.Errorf("%w: token owner mismatch", errs.ErrInvalidToken)
	}

	if s.cache != nil {
		if ttl := cacheTTL(pat.ExpiresAt, s.now()); ttl > 0 {
			if _, err := s.cache.AddPAT(ctx, pat.ID, pat.UserID, ttl); err != nil {
				s.log.Warn("failed to cache token", sl.Err(err))
			}
		}
	}

	return nil
}

func (s *AuthService) cachePAT(ctx context.Context, log *slog.Logger, pat models.PersonalAccessToken) {
	if s.cache == nil {
		return
	}

	ttl := cacheTTL(pat.ExpiresAt, s.now())
	if ttl <= 0 {
		return
	}

	if err := s.cache.SetPAT(ctx, pat.ID, pat.UserID, ttl); err != nil {
		log.Warn("failed to cache token", sl.Err(err))
	}
}

func cacheTTL(expiresAt, now time.Time) time.Duration {
	return min(expiresAt.Sub(now), maxCacheTTL)
}

func (s *AuthService) encode(userID int64, kind jwt.Kind, id string, issuedAt, expiresAt time.Time) (string, error) {
	return jwt.Encode(jwt.HS(s.cfg.Algorithm), jwt.Payload{
		Subject:   strconv.FormatInt(userID, 10),
		IssuedAt:  issuedAt,
		ExpiresAt: expiresAt,
		ID:        id,
		Kind:      kind,
	}, s.cfg.Secret)
}

func (s *AuthService) dummy() string {
	s.dummyOnce.Do(func() {
		hash, err := s.passwords.HashNew("not-a-real-password")
		if err == nil {
			s.dummyHash = hash
		}
	})

	return s.dummyHash
}
