package service

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	domainauth "github.com/target/webfront-auth/internal/domain/auth"
	apperrors "github.com/target/webfront-auth/internal/errors"
	"github.com/target/webfront-auth/internal/observability/metrics"
)

// ImpersonateTarget selects the user to impersonate by name or by id.
type ImpersonateTarget struct {
	UserName string
	UserID   int
	ByID     bool
}

// Impersonate switches the current user of an authenticated info. Targeting the
// actual user clears impersonation.
func (s *WebFrontService) Impersonate(ctx context.Context, current domainauth.AuthenticationInfo, target ImpersonateTarget) (domainauth.AuthenticationInfo, error) {
	ctx, span := s.tracer.Start(ctx, "webfront.impersonate")
	defer span.End()

	if s.impersonation == nil {
		return domainauth.None, apperrors.NotFound("impersonation is not available")
	}
	now := s.clock.Now()
	actual := current.ActualUser()
	if actual.IsAnonymous() || current.Level(now) < domainauth.LevelNormal {
		s.metrics.Impersonation(metrics.ResultDenied)
		return domainauth.None, apperrors.Forbidden("authentication required")
	}
	if !target.ByID && strings.TrimSpace(target.UserName) == "" {
		return domainauth.None, apperrors.ValidationField("userName", "userName is required")
	}
	span.SetAttributes(attribute.Int("webfront.actual_user_id", actual.ID))

	if (target.ByID && target.UserID == actual.ID) || (!target.ByID && target.UserName == actual.Name) {
		s.metrics.Impersonation(metrics.ResultSuccess)
		return current.ClearImpersonation(), nil
	}

	var (
		user *domainauth.UserInfo
		err  error
	)
	if target.ByID {
		user, err = s.impersonation.ImpersonateByID(ctx, actual, target.UserID)
	} else {
		user, err = s.impersonation.ImpersonateByName(ctx, actual, target.UserName)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "impersonation service failure")
		s.metrics.Impersonation(metrics.ResultError)
		s.logger.ErrorContext(ctx, "impersonation lookup failed", "actual_user_id", actual.ID, "error", err)
		return domainauth.None, apperrors.Upstream(err, "impersonation service failure")
	}
	if user == nil || user.IsAnonymous() {
		s.metrics.Impersonation(metrics.ResultDenied)
		return domainauth.None, apperrors.Forbidden("impersonation denied")
	}

	s.metrics.Impersonation(metrics.ResultSuccess)
	s.logger.InfoContext(ctx, "impersonation started", "actual_user_id", actual.ID, "user_id", user.ID)
	return current.Impersonate(*user), nil
}
