package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	domainauth "github.com/target/webfront-auth/internal/domain/auth"
	apperrors "github.com/target/webfront-auth/internal/errors"
	"github.com/target/webfront-auth/internal/observability/metrics"
	"github.com/target/webfront-auth/internal/ports"
)

// BasicLogin checks a user name and password. A rejected login is not an error:
// the outcome carries the failure code and reason.
func (s *WebFrontService) BasicLogin(ctx context.Context, userName, password string) (*LoginOutcome, error) {
	ctx, span := s.tracer.Start(ctx, "webfront.basic_login")
	defer span.End()

	if !s.login.HasBasicLogin() {
		return nil, apperrors.NotFound("basic login is not available")
	}
	if strings.TrimSpace(userName) == "" || password == "" {
		return nil, apperrors.Validation("userName and password are required")
	}

	started := time.Now()
	lr, err := s.login.BasicLogin(ctx, userName, password)
	if err != nil {
		s.logger.ErrorContext(ctx, "basic login failed", "error", err)
		s.recordDirect(span, metrics.KindBasic, domainauth.SchemeBasic, metrics.ResultError, started, err)
		return nil, apperrors.Upstream(err, "login service failure")
	}
	return s.directOutcome(ctx, span, metrics.KindBasic, domainauth.SchemeBasic, lr, started)
}

// UnsafeDirectLogin hands a scheme payload straight to the login service.
// Callers must have checked that the request is allowed to do so.
func (s *WebFrontService) UnsafeDirectLogin(ctx context.Context, scheme string, payload any, current domainauth.AuthenticationInfo) (*LoginOutcome, error) {
	ctx, span := s.tracer.Start(ctx, "webfront.unsafe_direct_login")
	defer span.End()

	if strings.TrimSpace(scheme) == "" {
		return nil, apperrors.ValidationField("provider", "provider is required")
	}

	started := time.Now()
	lr, err := s.login.Login(ctx, ports.LoginRequest{Scheme: scheme, Payload: payload, Current: s.trusted(current, s.clock.Now())})
	switch {
	case errors.Is(err, ports.ErrInvalidPayload):
		s.recordDirect(span, metrics.KindUnsafe, scheme, metrics.ResultRejected, started, err)
		return nil, apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid payload")
	case err != nil:
		s.logger.ErrorContext(ctx, "unsafe direct login failed", "scheme", scheme, "error", err)
		s.recordDirect(span, metrics.KindUnsafe, scheme, metrics.ResultError, started, err)
		return nil, apperrors.Upstream(err, "login service failure")
	}
	return s.directOutcome(ctx, span, metrics.KindUnsafe, scheme, lr, started)
}

func (s *WebFrontService) directOutcome(
	ctx context.Context,
	span trace.Span,
	kind, scheme string,
	lr domainauth.LoginResult,
	started time.Time,
) (*LoginOutcome, error) {
	now := s.clock.Now()
	outcome := &LoginOutcome{Now: now, InitialScheme: scheme, CallingScheme: scheme}
	if !lr.Succeeded() {
		failed := domainauth.LoginFailed(lr.FailureCode, lr.FailureReason)
		outcome.FailureCode, outcome.FailureReason = failed.FailureCode, failed.FailureReason
		s.recordDirect(span, kind, scheme, metrics.ResultFailure, started, nil)
		return outcome, nil
	}
	if err := s.succeed(outcome, *lr.User, now); err != nil {
		return nil, err
	}
	s.recordDirect(span, kind, scheme, metrics.ResultSuccess, started, nil)
	s.logger.InfoContext(ctx, "direct login succeeded", "kind", kind, "scheme", scheme, "user_id", lr.User.ID)
	return outcome, nil
}

func (s *WebFrontService) recordDirect(span trace.Span, kind, scheme, result string, started time.Time, err error) {
	span.SetAttributes(
		attribute.String("webfront.scheme", scheme),
		attribute.String("webfront.result", result),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, result)
	}
	s.metrics.Login(metrics.LoginMetric{
		Kind: kind, Scheme: scheme, Result: result, Duration: time.Since(started), Err: err,
	})
}
