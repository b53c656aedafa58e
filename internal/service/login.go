package service

import (
	"context"
	"errors"
	"net/url"
	"slices"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/target/webfront-auth/internal/data/cryptoutil"
	domainauth "github.com/target/webfront-auth/internal/domain/auth"
	apperrors "github.com/target/webfront-auth/internal/errors"
	"github.com/target/webfront-auth/internal/observability/metrics"
	"github.com/target/webfront-auth/internal/ports"
)

// Protocol error identifiers reported through the errorId channel.
const (
	ErrorIDUnknownScheme        = "UnknownScheme"
	ErrorIDChallengeFailed      = "ChallengeFailed"
	ErrorIDRemoteAuthentication = "RemoteAuthentication"
	ErrorIDInvalidPayload       = "InvalidPayload"
	ErrorIDLoginService         = "LoginServiceError"
)

// LoginOutcome is the end of a login flow as delivered to the client, by
// redirect when ReturnURL is set and by postMessage to CallerOrigin otherwise.
type LoginOutcome struct {
	Info        domainauth.AuthenticationInfo
	Token       string
	Refreshable bool
	Now         time.Time

	FailureCode   domainauth.LoginFailureCode
	FailureReason string
	ErrorID       string
	ErrorText     string

	InitialScheme string
	CallingScheme string
	UserData      map[string]string
	ReturnURL     string
	CallerOrigin  string
}

// Succeeded reports whether the outcome carries an authenticated user.
func (o *LoginOutcome) Succeeded() bool { return !o.Info.IsNone() }

// StartLoginInput groups the parameters of a remote login start.
type StartLoginInput struct {
	Scheme       string
	ReturnURL    string
	CallerOrigin string
	UserData     map[string]string
	Current      domainauth.AuthenticationInfo
	// RequestOrigin is the origin the request was served on. It is the default caller origin.
	RequestOrigin string
	// CallbackURL is where the provider must send the browser back.
	CallbackURL string
}

// StartLoginResult holds either the provider URL or an immediate outcome.
type StartLoginResult struct {
	RedirectURL string
	Outcome     *LoginOutcome
}

// StartLogin seals a continuation and asks the provider for its challenge URL.
// Only malformed input is returned as an error; provider problems become an
// error outcome.
func (s *WebFrontService) StartLogin(ctx context.Context, in StartLoginInput) (*StartLoginResult, error) {
	if strings.TrimSpace(in.Scheme) == "" {
		return nil, apperrors.ValidationField("scheme", "scheme is required")
	}
	returnURL, err := s.checkReturnURL(in.ReturnURL)
	if err != nil {
		return nil, err
	}
	callerOrigin, err := s.checkCallerOrigin(in.CallerOrigin, in.RequestOrigin)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	outcome := &LoginOutcome{
		Now:           now,
		InitialScheme: in.Scheme,
		CallingScheme: in.Scheme,
		UserData:      in.UserData,
		ReturnURL:     returnURL,
		CallerOrigin:  callerOrigin,
	}

	provider, ok := s.providers[in.Scheme]
	if !ok {
		outcome.ErrorID, outcome.ErrorText = ErrorIDUnknownScheme, "Unknown login scheme '"+in.Scheme+"'."
		return &StartLoginResult{Outcome: outcome}, nil
	}

	cont := domainauth.Continuation{
		Scheme:       in.Scheme,
		ReturnURL:    returnURL,
		CallerOrigin: callerOrigin,
		IssuedAt:     now,
	}
	if prior := s.trusted(in.Current, now); !prior.IsNone() {
		if cont.PriorInfo, err = s.envelope.ProtectInfo(cryptoutil.PurposeCookie, prior); err != nil {
			return nil, err
		}
	}
	if len(in.UserData) > 0 {
		if cont.UserData, err = s.envelope.ProtectData(in.UserData); err != nil {
			return nil, err
		}
	}
	state, err := s.envelope.protectContinuation(cont)
	if err != nil {
		return nil, err
	}

	target, err := provider.Challenge(ctx, ports.ChallengeInput{State: state, RedirectURL: in.CallbackURL})
	if err != nil {
		s.logger.WarnContext(ctx, "login challenge failed", "scheme", in.Scheme, "error", err)
		outcome.ErrorID, outcome.ErrorText = ErrorIDChallengeFailed, apperrors.GetMessage(err, "Unable to reach the login provider.")
		return &StartLoginResult{Outcome: outcome}, nil
	}
	return &StartLoginResult{RedirectURL: target}, nil
}

// CallbackInput is a provider callback.
type CallbackInput struct {
	Scheme      string
	Query       url.Values
	CallbackURL string
}

// CallbackResult is what the callback page posts to endLogin.
type CallbackResult struct {
	Completion string
	ReturnURL  string
}

// CompleteRemoteLogin finishes the provider exchange and resolves the user with
// the login service. The result is sealed so that endLogin can trust it.
func (s *WebFrontService) CompleteRemoteLogin(ctx context.Context, in CallbackInput) (*CallbackResult, error) {
	ctx, span := s.tracer.Start(ctx, "webfront.remote_login")
	defer span.End()
	span.SetAttributes(attribute.String("webfront.scheme", in.Scheme))

	provider, ok := s.providers[in.Scheme]
	if !ok {
		return nil, apperrors.NotFound("unknown login scheme")
	}

	started := time.Now()
	remote, remoteErr := provider.Complete(ctx, ports.CompleteInput{Query: in.Query, RedirectURL: in.CallbackURL})
	if remote.State == "" {
		if remoteErr != nil {
			s.logger.WarnContext(ctx, "login callback without state", "scheme", in.Scheme, "error", remoteErr)
		}
		return nil, apperrors.Validation("missing login state")
	}
	cont, err := s.openContinuation(remote.State)
	if err != nil {
		return nil, err
	}
	if cont.Scheme != in.Scheme {
		return nil, apperrors.Validation("login state does not match the scheme")
	}

	completion := domainauth.LoginCompletion{Continuation: remote.State, IssuedAt: s.clock.Now()}
	result := metrics.ResultSuccess
	var loginErr error
	switch {
	case remoteErr != nil:
		s.logger.WarnContext(ctx, "remote authentication failed", "scheme", in.Scheme, "error", remoteErr)
		completion.ErrorID = ErrorIDRemoteAuthentication
		completion.ErrorText = apperrors.GetMessage(remoteErr, "Remote authentication failed.")
		result, loginErr = metrics.ResultError, remoteErr
	default:
		prior := domainauth.None
		if cont.PriorInfo != "" {
			if info, err := s.envelope.UnprotectInfo(cryptoutil.PurposeCookie, cont.PriorInfo); err == nil {
				prior = info
			}
		}
		lr, err := s.login.Login(ctx, ports.LoginRequest{Scheme: in.Scheme, Payload: remote.Payload, Current: prior})
		switch {
		case errors.Is(err, ports.ErrInvalidPayload):
			completion.ErrorID, completion.ErrorText = ErrorIDInvalidPayload, err.Error()
			result, loginErr = metrics.ResultRejected, err
		case err != nil:
			s.logger.ErrorContext(ctx, "login service failed", "scheme", in.Scheme, "error", err)
			completion.ErrorID, completion.ErrorText = ErrorIDLoginService, "Login service failure."
			result, loginErr = metrics.ResultError, err
		case lr.Succeeded():
			completion.User = lr.User
		default:
			failed := domainauth.LoginFailed(lr.FailureCode, lr.FailureReason)
			completion.FailureCode, completion.FailureReason = failed.FailureCode, failed.FailureReason
			result = metrics.ResultFailure
		}
	}
	if loginErr != nil {
		span.RecordError(loginErr)
		span.SetStatus(codes.Error, completion.ErrorID)
	}
	s.metrics.Login(metrics.LoginMetric{
		Kind: metrics.KindRemote, Scheme: in.Scheme, Result: result, Duration: time.Since(started), Err: loginErr,
	})

	sealed, err := s.envelope.protectCompletion(completion)
	if err != nil {
		return nil, err
	}
	return &CallbackResult{Completion: sealed, ReturnURL: cont.ReturnURL}, nil
}

// EndLoginInput is the form posted by the callback page.
type EndLoginInput struct {
	Completion string
	ReturnURL  string
}

// EndLogin turns a sealed completion into the final outcome. The response mode
// comes from the continuation, never from the posted form.
func (s *WebFrontService) EndLogin(ctx context.Context, in EndLoginInput) (*LoginOutcome, error) {
	completion, err := s.envelope.unprotectCompletion(in.Completion)
	if err != nil {
		return nil, apperrors.Validation("malformed login completion")
	}
	now := s.clock.Now()
	if s.expired(completion.IssuedAt, now) {
		return nil, apperrors.Validation("login completion expired")
	}
	cont, err := s.openContinuation(completion.Continuation)
	if err != nil {
		return nil, err
	}
	if in.ReturnURL != cont.ReturnURL {
		return nil, apperrors.Validation("return url does not match the login")
	}

	outcome := &LoginOutcome{
		Now:           now,
		InitialScheme: cont.Scheme,
		CallingScheme: cont.Scheme,
		ReturnURL:     cont.ReturnURL,
		CallerOrigin:  cont.CallerOrigin,
		FailureCode:   completion.FailureCode,
		FailureReason: completion.FailureReason,
		ErrorID:       completion.ErrorID,
		ErrorText:     completion.ErrorText,
	}
	if cont.UserData != "" {
		if outcome.UserData, err = s.envelope.UnprotectData(cont.UserData); err != nil {
			return nil, apperrors.Validation("malformed login user data")
		}
	}

	if completion.User != nil && !completion.User.IsAnonymous() {
		if err := s.succeed(outcome, *completion.User, now); err != nil {
			return nil, err
		}
		s.logger.InfoContext(ctx, "remote login succeeded", "scheme", cont.Scheme, "user_id", completion.User.ID)
	}
	return outcome, nil
}

// succeed fills outcome with a fresh login info for user.
func (s *WebFrontService) succeed(outcome *LoginOutcome, user domainauth.UserInfo, now time.Time) error {
	info := s.NewLoginInfo(user, now)
	token, err := s.CreateToken(info)
	if err != nil {
		return err
	}
	outcome.Info, outcome.Token, outcome.Now = info, token, now
	outcome.Refreshable = s.Refreshable(info, now)
	outcome.FailureCode, outcome.FailureReason = domainauth.LoginFailureNone, ""
	return nil
}

func (s *WebFrontService) openContinuation(sealed string) (domainauth.Continuation, error) {
	cont, err := s.envelope.unprotectContinuation(sealed)
	if err != nil || cont.Scheme == "" {
		return domainauth.Continuation{}, apperrors.Validation("malformed login continuation")
	}
	if s.expired(cont.IssuedAt, s.clock.Now()) {
		return domainauth.Continuation{}, apperrors.Validation("login continuation expired")
	}
	return cont, nil
}

func (s *WebFrontService) expired(issued, now time.Time) bool {
	return issued.IsZero() || now.Sub(issued) > s.opts.LoginTimeout
}

// checkReturnURL accepts local paths and absolute URLs on an allowed origin.
func (s *WebFrontService) checkReturnURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", nil
	}
	if strings.HasPrefix(raw, "/") {
		if strings.HasPrefix(raw, "//") || strings.HasPrefix(raw, "/\\") {
			return "", apperrors.ValidationField("returnUrl", "returnUrl must be a local path or an allowed origin")
		}
		return raw, nil
	}
	u, err := url.Parse(raw)
	if err != nil || u.User != nil {
		return "", apperrors.ValidationField("returnUrl", "returnUrl is malformed")
	}
	origin, ok := originOf(u)
	if !ok || !slices.Contains(s.opts.AllowedReturnOrigins, origin) {
		return "", apperrors.ValidationField("returnUrl", "returnUrl must be a local path or an allowed origin")
	}
	return raw, nil
}

// checkCallerOrigin defaults to the request origin and otherwise requires an allowed origin.
func (s *WebFrontService) checkCallerOrigin(raw, requestOrigin string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return requestOrigin, nil
	}
	u, err := url.Parse(raw)
	if err != nil || u.User != nil || (u.Path != "" && u.Path != "/") || u.RawQuery != "" || u.Fragment != "" {
		return "", apperrors.ValidationField("callerOrigin", "callerOrigin must be an origin")
	}
	origin, ok := originOf(u)
	if !ok {
		return "", apperrors.ValidationField("callerOrigin", "callerOrigin must be an origin")
	}
	if origin != requestOrigin && !slices.Contains(s.opts.AllowedReturnOrigins, origin) {
		return "", apperrors.ValidationField("callerOrigin", "callerOrigin is not allowed")
	}
	return origin, nil
}

func originOf(u *url.URL) (string, bool) {
	scheme := strings.ToLower(u.Scheme)
	if (scheme != "http" && scheme != "https") || u.Host == "" {
		return "", false
	}
	return scheme + "://" + strings.ToLower(u.Host), true
}
