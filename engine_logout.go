package authcore

import (
	"context"
	"errors"
	"time"

	"github.com/microplat/authcore/internal"
	"github.com/microplat/authcore/store"
)

// Logout revokes refresh tokens. Single-token mode revokes the given token
// and blacklists it for its remaining lifetime; all-devices mode revokes
// every live token of LogoutRequest.UserID.
//
// Revocation is idempotent and monotonic. TokensRevoked counts the rows
// this call transitioned, so a repeated logout succeeds with a zero count.
func (e *Engine) Logout(ctx context.Context, req LogoutRequest) (*LogoutResult, error) {
	if e == nil || e.tokens == nil {
		return nil, ErrEngineNotReady
	}

	switch {
	case req.AllDevices:
		if req.UserID <= 0 {
			return nil, ErrValidationFailed
		}
		return e.logoutAll(ctx, req.UserID)
	case req.RefreshToken != "":
		return e.logoutToken(ctx, req.RefreshToken)
	default:
		return nil, ErrValidationFailed
	}
}

func (e *Engine) logoutToken(ctx context.Context, token string) (*LogoutResult, error) {
	now := time.Now()

	// A token that could never have been issued is a no-op, same as an
	// unknown one.
	if err := internal.ValidateOpaqueToken(token); err != nil {
		e.metricInc(MetricLogout)
		e.emitAudit(ctx, auditEventLogout, true, 0, "", nil, func() map[string]string {
			return map[string]string{"outcome": "malformed_noop"}
		})
		return &LogoutResult{Success: true, TokensRevoked: 0, LoggedOutAt: now}, nil
	}

	rec, err := e.findToken(ctx, token)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			e.metricInc(MetricLogout)
			e.emitAudit(ctx, auditEventLogout, true, 0, "", nil, func() map[string]string {
				return map[string]string{"outcome": "unknown_noop"}
			})
			return &LogoutResult{Success: true, TokensRevoked: 0, LoggedOutAt: now}, nil
		}
		return nil, ErrStoreUnavailable
	}

	storeCtx, cancel := withTimeout(ctx, e.config.Store.Timeout)
	revoked, err := e.tokens.Revoke(storeCtx, token, reasonLogout, now)
	cancel()
	if err != nil {
		e.log.Error(ctx, "revocation failed", "user_id", rec.UserID, "error", err)
		return nil, ErrStoreUnavailable
	}

	// Blacklist only for the token's remaining lifetime; an entry that
	// outlives the token blocks nothing.
	if ttl := internal.RemainingLifetime(rec.ExpiresAt, now); ttl > 0 {
		cacheCtx, cancel := withTimeout(ctx, e.config.Cache.Timeout)
		if err := e.revocations.Blacklist(cacheCtx, token, ttl); err != nil {
			e.cacheDegraded(ctx, "blacklist", err)
		}
		cancel()
	}

	e.metricInc(MetricLogout)
	e.metricAdd(MetricTokenRevoked, revoked)
	if revoked > 0 {
		e.emitAudit(ctx, auditEventTokenRevoked, true, rec.UserID, rec.UserEmail, nil, nil)
	}
	e.emitAudit(ctx, auditEventLogout, true, rec.UserID, rec.UserEmail, nil, func() map[string]string {
		return map[string]string{"tokens_revoked": formatInt(revoked)}
	})

	return &LogoutResult{Success: true, TokensRevoked: revoked, LoggedOutAt: now}, nil
}

func (e *Engine) logoutAll(ctx context.Context, userID int64) (*LogoutResult, error) {
	now := time.Now()

	storeCtx, cancel := withTimeout(ctx, e.config.Store.Timeout)
	revoked, err := e.tokens.RevokeAllForUser(storeCtx, userID, reasonLogoutAll, now)
	cancel()
	if err != nil {
		e.log.Error(ctx, "logout-all revocation failed", "user_id", userID, "error", err)
		return nil, ErrStoreUnavailable
	}

	cacheCtx, cancel := withTimeout(ctx, e.config.Cache.Timeout)
	if err := e.revocations.ClearAllForUser(cacheCtx, userID, e.config.JWT.RefreshTTL); err != nil {
		e.cacheDegraded(ctx, "clear_all_for_user", err)
	}
	cancel()

	e.metricInc(MetricLogoutAll)
	e.metricAdd(MetricTokenRevoked, revoked)
	e.emitAudit(ctx, auditEventLogoutAll, true, userID, "", nil, func() map[string]string {
		return map[string]string{"tokens_revoked": formatInt(revoked)}
	})

	return &LogoutResult{Success: true, TokensRevoked: revoked, LoggedOutAt: now}, nil
}
