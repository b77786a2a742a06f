package authcore

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/sethvargo/go-retry"
	"golang.org/x/crypto/bcrypt"

	"github.com/microplat/authcore/cache"
	"github.com/microplat/authcore/directory"
	"github.com/microplat/authcore/internal"
	"github.com/microplat/authcore/jwt"
	"github.com/microplat/authcore/logging"
	"github.com/microplat/authcore/store"
)

const (
	reasonLogout    = "user logged out"
	reasonLogoutAll = "user logged out from all devices"
)

// Engine orchestrates the token lifecycle across the signer, the durable
// store, the revocation cache, and the user directory. Build one through
// [Builder]; all methods are safe for concurrent use afterwards.
type Engine struct {
	config      Config
	jwtManager  *jwt.Manager
	tokens      store.Store
	revocations *cache.Revocations
	directory   directory.Client
	audit       *auditDispatcher
	metrics     *Metrics
	log         logging.Logger
}

// Close stops the audit dispatcher after draining buffered events.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped reports how many audit events were dropped under
// back-pressure.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a point-in-time copy of the engine counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) metricAdd(id MetricID, n int64) {
	if e == nil || e.metrics == nil || n <= 0 {
		return
	}
	e.metrics.Add(id, uint64(n))
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d)
}

// retryRead runs fn with a single retry after a constant pause. Only
// idempotent reads go through here; fn decides which errors are
// retryable.
func (e *Engine) retryRead(ctx context.Context, fn func(ctx context.Context) error) error {
	backoff := retry.WithMaxRetries(1, retry.NewConstant(e.config.Cache.ReadRetryInterval))
	return retry.Do(ctx, backoff, fn)
}

/*
====================================
LOGIN
====================================
*/

// Login authenticates email/password against the user directory, signs an
// ACCESS token, and issues an opaque refresh token persisted in the store.
//
// Every failure reaches the caller as ErrAuthenticationFailed with no
// detail: unknown email, wrong password, inactive account, and directory
// outage are indistinguishable from outside. Internals go to logs and
// audit. Login is never retried.
func (e *Engine) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	if e == nil || e.tokens == nil {
		return nil, ErrEngineNotReady
	}
	if email == "" || password == "" {
		return e.failLogin(ctx, 0, email, "empty_credentials", nil)
	}

	dirCtx, cancel := withTimeout(ctx, e.config.Directory.Timeout)
	user, err := e.directory.GetByEmail(dirCtx, email)
	cancel()
	if err != nil {
		reason := "directory_unreachable"
		if errors.Is(err, directory.ErrNotFound) {
			reason = "user_not_found"
		}
		return e.failLogin(ctx, 0, email, reason, err)
	}

	if !user.Active {
		return e.failLogin(ctx, user.ID, email, "account_inactive", nil)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return e.failLogin(ctx, user.ID, email, "password_mismatch", nil)
	}

	identity := jwt.Identity{
		UserID:     user.ID,
		Email:      user.Email,
		Roles:      user.Roles,
		Privileges: user.Privileges,
	}
	accessToken, err := e.jwtManager.Sign(identity, jwt.ClassAccess)
	if err != nil {
		e.log.Error(ctx, "access token signing failed", "user_id", user.ID, "error", err)
		return e.failLogin(ctx, user.ID, email, "signing_failure", err)
	}

	now := time.Now()
	refreshToken := internal.NewOpaqueToken()
	rec := &store.RefreshToken{
		Token:             refreshToken,
		UserID:            user.ID,
		UserEmail:         user.Email,
		ExpiresAt:         now.Add(e.config.JWT.RefreshTTL),
		IPAddress:         clientIPFromContext(ctx),
		UserAgent:         userAgentFromContext(ctx),
		DeviceFingerprint: deviceFingerprintFromContext(ctx),
		CreatedAt:         now,
	}

	storeCtx, cancel := withTimeout(ctx, e.config.Store.Timeout)
	err = e.tokens.Create(storeCtx, rec)
	cancel()
	if err != nil {
		e.log.Error(ctx, "refresh token persistence failed", "user_id", user.ID, "error", err)
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, user.ID, email, ErrStoreUnavailable, nil)
		return nil, ErrStoreUnavailable
	}

	e.trackIssued(ctx, user.ID, refreshToken)

	e.metricInc(MetricLoginSuccess)
	e.metricInc(MetricTokenIssued)
	e.emitAudit(ctx, auditEventLoginSuccess, true, user.ID, email, nil, nil)

	return &LoginResult{
		AccessToken:     accessToken,
		RefreshToken:    refreshToken,
		TokenType:       TokenTypeBearer,
		ExpiresIn:       int64(e.config.JWT.AccessTTL.Seconds()),
		UserID:          user.ID,
		Email:           user.Email,
		Roles:           user.Roles,
		Privileges:      user.Privileges,
		AuthenticatedAt: now,
	}, nil
}

// failLogin funnels every login failure through one exit so the caller-facing
// error is always the same shape.
func (e *Engine) failLogin(ctx context.Context, userID int64, email, reason string, cause error) (*LoginResult, error) {
	e.log.Info(ctx, "login rejected", "email", email, "reason", reason, "error", cause)
	e.metricInc(MetricLoginFailure)
	e.emitAudit(ctx, auditEventLoginFailure, false, userID, email, ErrAuthenticationFailed, func() map[string]string {
		return map[string]string{"reason": reason}
	})
	return nil, ErrAuthenticationFailed
}

// trackIssued records the token in the per-user cache set. Best effort: a
// cache outage degrades logout-all coverage, never a login.
func (e *Engine) trackIssued(ctx context.Context, userID int64, token string) {
	cacheCtx, cancel := withTimeout(ctx, e.config.Cache.Timeout)
	defer cancel()

	if err := e.revocations.TrackIssued(cacheCtx, userID, token, e.config.JWT.RefreshTTL); err != nil {
		e.cacheDegraded(ctx, "track_issued", err)
	}
}

func (e *Engine) cacheDegraded(ctx context.Context, op string, err error) {
	e.log.Warn(ctx, "revocation cache degraded", "op", op, "error", err)
	e.metricInc(MetricCacheDegraded)
	e.emitAudit(ctx, auditEventCacheDegraded, false, 0, "", ErrCacheUnavailable, func() map[string]string {
		return map[string]string{"op": op}
	})
}

/*
====================================
REFRESH
====================================
*/

// Refresh exchanges a live refresh token for a new ACCESS token. The
// refresh token itself is not rotated.
//
// Check order: strict format, blacklist fast path, then the store as the
// authority. Roles and privileges are re-fetched from the directory so the
// new access token reflects grants changed since login. The usage counter
// increments atomically once per successful refresh.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*RefreshResult, error) {
	if e == nil || e.tokens == nil {
		return nil, ErrEngineNotReady
	}

	if err := internal.ValidateOpaqueToken(refreshToken); err != nil {
		return e.failRefresh(ctx, 0, "malformed_token", ErrInvalidToken)
	}

	if e.isBlacklisted(ctx, refreshToken) {
		e.metricInc(MetricBlacklistHit)
		return e.failRefresh(ctx, 0, "blacklisted", ErrInvalidToken)
	}

	rec, err := e.findToken(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return e.failRefresh(ctx, 0, "unknown_token", ErrInvalidToken)
		}
		e.log.Error(ctx, "token store unreachable during refresh", "error", err)
		e.metricInc(MetricRefreshFailure)
		return nil, ErrStoreUnavailable
	}

	now := time.Now()
	if rec.Revoked || rec.Deleted {
		return e.failRefresh(ctx, rec.UserID, "revoked_token", ErrInvalidToken)
	}
	if rec.Expired(now) {
		return e.failRefresh(ctx, rec.UserID, "expired_token", ErrTokenExpired)
	}

	if err := e.checkDeviceFingerprint(ctx, rec); err != nil {
		return e.failRefresh(ctx, rec.UserID, "device_mismatch", err)
	}

	dirCtx, cancel := withTimeout(ctx, e.config.Directory.Timeout)
	user, err := e.directory.GetByID(dirCtx, rec.UserID)
	cancel()
	if err != nil {
		reason := "directory_unreachable"
		if errors.Is(err, directory.ErrNotFound) {
			reason = "user_gone"
		}
		e.log.Info(ctx, "refresh rejected by directory", "user_id", rec.UserID, "reason", reason, "error", err)
		return e.failRefresh(ctx, rec.UserID, reason, ErrInvalidToken)
	}
	if !user.Active {
		return e.failRefresh(ctx, rec.UserID, "account_inactive", ErrInvalidToken)
	}

	identity := jwt.Identity{
		UserID:     user.ID,
		Email:      user.Email,
		Roles:      user.Roles,
		Privileges: user.Privileges,
	}
	accessToken, err := e.jwtManager.Sign(identity, jwt.ClassAccess)
	if err != nil {
		e.log.Error(ctx, "access token signing failed", "user_id", user.ID, "error", err)
		e.metricInc(MetricRefreshFailure)
		return nil, ErrInvalidToken
	}

	storeCtx, cancel := withTimeout(ctx, e.config.Store.Timeout)
	err = e.tokens.IncrementUsage(storeCtx, refreshToken, now)
	cancel()
	if err != nil {
		// The token was consumed concurrently or the store went away
		// between the read and the write. Either way the new access token
		// must not leave the engine.
		if errors.Is(err, store.ErrNotFound) {
			return e.failRefresh(ctx, rec.UserID, "token_gone", ErrInvalidToken)
		}
		e.log.Error(ctx, "usage increment failed", "user_id", user.ID, "error", err)
		e.metricInc(MetricRefreshFailure)
		return nil, ErrStoreUnavailable
	}

	e.metricInc(MetricRefreshSuccess)
	e.emitAudit(ctx, auditEventRefreshSuccess, true, user.ID, user.Email, nil, nil)

	return &RefreshResult{
		AccessToken: accessToken,
		TokenType:   TokenTypeBearer,
		ExpiresIn:   int64(e.config.JWT.AccessTTL.Seconds()),
		RefreshedAt: now,
	}, nil
}

func (e *Engine) failRefresh(ctx context.Context, userID int64, reason string, sentinel error) (*RefreshResult, error) {
	e.log.Info(ctx, "refresh rejected", "user_id", userID, "reason", reason)
	e.metricInc(MetricRefreshFailure)
	e.emitAudit(ctx, auditEventRefreshInvalid, false, userID, "", sentinel, func() map[string]string {
		return map[string]string{"reason": reason}
	})
	return nil, sentinel
}

// isBlacklisted consults the cache fast path. An unreachable cache answers
// "not blacklisted": the store check that follows is authoritative.
func (e *Engine) isBlacklisted(ctx context.Context, token string) bool {
	var blacklisted bool
	err := e.retryRead(ctx, func(ctx context.Context) error {
		cacheCtx, cancel := withTimeout(ctx, e.config.Cache.Timeout)
		defer cancel()

		v, err := e.revocations.IsBlacklisted(cacheCtx, token)
		if err != nil {
			return retry.RetryableError(err)
		}
		blacklisted = v
		return nil
	})
	if err != nil {
		e.cacheDegraded(ctx, "is_blacklisted", err)
		return false
	}
	return blacklisted
}

func (e *Engine) findToken(ctx context.Context, token string) (*store.RefreshToken, error) {
	var rec *store.RefreshToken
	err := e.retryRead(ctx, func(ctx context.Context) error {
		storeCtx, cancel := withTimeout(ctx, e.config.Store.Timeout)
		defer cancel()

		found, err := e.tokens.FindActive(storeCtx, token)
		if err != nil {
			if errors.Is(err, store.ErrUnavailable) {
				return retry.RetryableError(err)
			}
			return err
		}
		rec = found
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (e *Engine) checkDeviceFingerprint(ctx context.Context, rec *store.RefreshToken) error {
	presented := deviceFingerprintFromContext(ctx)
	if presented == "" || rec.DeviceFingerprint == "" || presented == rec.DeviceFingerprint {
		return nil
	}

	e.metricInc(MetricDeviceMismatch)
	e.emitAudit(ctx, auditEventDeviceMismatch, false, rec.UserID, rec.UserEmail, nil, nil)

	if e.config.Security.EnforceDeviceMatch {
		return ErrInvalidToken
	}
	e.log.Warn(ctx, "device fingerprint mismatch on refresh", "user_id", rec.UserID)
	return nil
}

/*
====================================
MAINTENANCE
====================================
*/

// PurgeExpired hard-deletes rows whose expiry precedes now minus the
// configured retention. Intended for an out-of-band sweeper, not request
// paths.
func (e *Engine) PurgeExpired(ctx context.Context) (int64, error) {
	if e == nil || e.tokens == nil {
		return 0, ErrEngineNotReady
	}

	before := time.Now().Add(-e.config.Store.Retention)

	storeCtx, cancel := withTimeout(ctx, e.config.Store.Timeout)
	defer cancel()

	purged, err := e.tokens.PurgeExpired(storeCtx, before)
	if err != nil {
		return 0, ErrStoreUnavailable
	}

	e.metricAdd(MetricTokensPurged, purged)
	if purged > 0 {
		e.emitAudit(ctx, auditEventTokensPurged, true, 0, "", nil, func() map[string]string {
			return map[string]string{"purged": formatInt(purged)}
		})
	}
	return purged, nil
}

func formatInt(n int64) string {
	return strconv.FormatInt(n, 10)
}
