package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/amirk1998/car-rental-client/internal/api"
	"github.com/amirk1998/car-rental-client/internal/audit"
	"github.com/amirk1998/car-rental-client/internal/logging"
	"github.com/amirk1998/car-rental-client/internal/models"
	"github.com/amirk1998/car-rental-client/internal/ratelimit"
	"github.com/amirk1998/car-rental-client/internal/session"
	"github.com/amirk1998/car-rental-client/pkg/errors"
	"github.com/amirk1998/car-rental-client/pkg/validator"
)

type AuthService struct {
	api         *api.Client
	session     *session.Manager
	validator   *validator.Validator
	rateLimiter *ratelimit.RateLimiter
	auditLogger audit.Recorder
	log         *zap.Logger
}

// NewAuthService creates a new authentication service
func NewAuthService(
	client *api.Client,
	sess *session.Manager,
	rateLimiter *ratelimit.RateLimiter,
	auditLogger audit.Recorder,
	log *zap.Logger,
) *AuthService {
	if auditLogger == nil {
		auditLogger = audit.Nop{}
	}
	return &AuthService{
		api:         client,
		session:     sess,
		validator:   validator.New(),
		rateLimiter: rateLimiter,
		auditLogger: auditLogger,
		log:         logging.OrNop(log).Named("auth"),
	}
}

// Login obtains a token, fetches the profile with it and hands the token to
// the session. The profile is cached only once the session is authenticated.
func (s *AuthService) Login(ctx context.Context, username, password string) (*models.UserProfile, error) {
	username = s.validator.SanitizeString(username)
	if username == "" || password == "" {
		return nil, errors.NewAppError(errors.ErrInvalidInput, "Please enter username and password", 0)
	}

	if s.rateLimiter != nil {
		if err := s.rateLimiter.CheckLimit(ratelimit.UserKey(ratelimit.OpLogin, username)); err != nil {
			return nil, err
		}
	}

	token, err := s.api.ObtainToken(ctx, models.LoginRequest{Username: username, Password: password})
	if err != nil {
		s.log.Info("token request failed", zap.String("username", username), zap.Error(err))
		return nil, err
	}

	profile, err := s.api.MeWithToken(ctx, token.Access)
	if err != nil {
		return nil, err
	}

	s.session.Login(ctx, token.Access)
	if !s.session.Snapshot().Authenticated() {
		// Login already alerted the user.
		return nil, errors.NewAppError(errors.ErrNotAuthenticated, "Could not save your session", 0)
	}

	// The session stands without a cached profile; "profile --refresh" refetches it.
	if err := s.session.SaveProfile(ctx, profile); err != nil {
		s.log.Warn("failed to cache profile", zap.Error(err))
	}

	return profile, nil
}

// Register creates the account and logs in with the same credentials.
func (s *AuthService) Register(ctx context.Context, req models.RegisterRequest) (*models.UserProfile, error) {
	if s.rateLimiter != nil {
		if err := s.rateLimiter.CheckLimit(ratelimit.Key{Op: ratelimit.OpRegister}); err != nil {
			return nil, err
		}
	}

	req.Username = s.validator.SanitizeString(req.Username)
	req.Email = s.validator.SanitizeString(req.Email)
	req.FirstName = s.validator.SanitizeString(req.FirstName)
	req.LastName = s.validator.SanitizeString(req.LastName)
	req.PhoneNumber = s.validator.SanitizeString(req.PhoneNumber)

	if err := s.validator.ValidateUsername(req.Username); err != nil {
		return nil, err
	}
	if err := s.validator.ValidateEmail(req.Email); err != nil {
		return nil, err
	}
	if err := s.validator.ValidatePassword(req.Password); err != nil {
		return nil, err
	}
	if req.Password2 == "" {
		req.Password2 = req.Password
	}
	if req.Password2 != req.Password {
		return nil, errors.NewAppError(errors.ErrInvalidInput, "Passwords do not match", 0)
	}
	if req.PhoneNumber != "" {
		if err := s.validator.ValidatePhone(req.PhoneNumber); err != nil {
			return nil, err
		}
	}

	if err := s.api.Register(ctx, req); err != nil {
		return nil, err
	}

	if err := s.auditLogger.Log(&audit.Event{
		Level:    audit.LevelInfo,
		Action:   "USER_REGISTERED",
		Resource: "auth",
		Success:  true,
		Metadata: req.Username,
	}); err != nil {
		s.log.Warn("failed to record audit event", zap.String("action", "USER_REGISTERED"), zap.Error(err))
	}

	return s.Login(ctx, req.Username, req.Password)
}

// UpdateProfile edits the server record and overwrites the cached copy.
func (s *AuthService) UpdateProfile(ctx context.Context, req models.UpdateProfileRequest) (*models.UserProfile, error) {
	req.Email = s.validator.SanitizeString(req.Email)
	req.FirstName = s.validator.SanitizeString(req.FirstName)
	req.LastName = s.validator.SanitizeString(req.LastName)
	req.PhoneNumber = s.validator.SanitizeString(req.PhoneNumber)

	if err := s.validator.ValidateEmail(req.Email); err != nil {
		return nil, err
	}
	if req.PhoneNumber != "" {
		if err := s.validator.ValidatePhone(req.PhoneNumber); err != nil {
			return nil, err
		}
	}

	profile, err := s.api.UpdateMe(ctx, req)
	if err != nil {
		return nil, err
	}

	if err := s.session.SaveProfile(ctx, profile); err != nil {
		return nil, errors.NewAppError(err, "Profile updated but could not be cached", 0)
	}

	return profile, nil
}

// RefreshProfile reloads the profile from the server into the cache.
func (s *AuthService) RefreshProfile(ctx context.Context) (*models.UserProfile, error) {
	profile, err := s.api.Me(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.session.SaveProfile(ctx, profile); err != nil {
		return nil, err
	}
	return profile, nil
}

func (s *AuthService) Logout(ctx context.Context) {
	s.session.Logout(ctx)
}
