package httpx

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	domainauth "github.com/target/webfront-auth/internal/domain/auth"
	apperrors "github.com/target/webfront-auth/internal/errors"
	"github.com/target/webfront-auth/internal/observability/metrics"
	"github.com/target/webfront-auth/internal/ports"
	"github.com/target/webfront-auth/internal/service"
)

// WebFrontHandlers serves the authentication protocol endpoints.
type WebFrontHandlers struct {
	Svc     *service.WebFrontService
	Cookies CookieConfig
	// Allower gates unsafeDirectLogin. A nil Allower hides the endpoint.
	Allower   ports.UnsafeDirectLoginAllower
	EntryPath string
	Metrics   *metrics.Recorder
	Logger    *slog.Logger
}

// authResponse is the refresh-shaped body shared by every protocol endpoint.
// A nil Info or Token renders as null.
type authResponse struct {
	Info        *domainauth.AuthenticationInfo `json:"info"`
	Token       *string                        `json:"token"`
	Refreshable bool                           `json:"refreshable"`
	Schemes     []string                       `json:"schemes,omitempty"`
	Version     string                         `json:"version,omitempty"`

	LoginFailureCode   domainauth.LoginFailureCode `json:"loginFailureCode,omitempty"`
	LoginFailureReason string                      `json:"loginFailureReason,omitempty"`
	ErrorID            string                      `json:"errorId,omitempty"`
	ErrorText          string                      `json:"errorText,omitempty"`
	InitialScheme      string                      `json:"initialScheme,omitempty"`
	CallingScheme      string                      `json:"callingScheme,omitempty"`
	UserData           map[string]string           `json:"userData,omitempty"`
}

func (h *WebFrontHandlers) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

// resolve returns the resolution computed by Authenticate, or computes it when
// the handler is mounted without the middleware.
func (h *WebFrontHandlers) resolve(r *http.Request) service.Resolution {
	if res, ok := ResolutionFromContext(r.Context()); ok {
		return res
	}
	return h.Svc.Authenticate(r.Context(), h.Cookies.credentials(r))
}

// infoResponse builds the response for an authentication info.
func (h *WebFrontHandlers) infoResponse(info domainauth.AuthenticationInfo, token string, refreshable bool) authResponse {
	var resp authResponse
	if !info.IsNone() {
		resp.Info = &info
		resp.Refreshable = refreshable
	}
	if token != "" {
		resp.Token = &token
	}
	return resp
}

// outcomeResponse builds the response for a login outcome.
func (h *WebFrontHandlers) outcomeResponse(o *service.LoginOutcome) authResponse {
	resp := h.infoResponse(o.Info, o.Token, o.Refreshable)
	resp.LoginFailureCode = o.FailureCode
	resp.LoginFailureReason = o.FailureReason
	resp.ErrorID = o.ErrorID
	resp.ErrorText = o.ErrorText
	resp.InitialScheme = o.InitialScheme
	resp.CallingScheme = o.CallingScheme
	resp.UserData = o.UserData
	return resp
}

// setCookies emits the cookies of info.
func (h *WebFrontHandlers) setCookies(w http.ResponseWriter, r *http.Request, info domainauth.AuthenticationInfo) error {
	if !h.Cookies.Enabled() {
		return nil
	}
	vals, err := h.Svc.IssueCookies(info, h.Svc.Now())
	if err != nil {
		return err
	}
	h.Cookies.write(w, r, vals)
	return nil
}

// Refresh returns the current authentication and re-emits it, applying sliding expiration.
func (h *WebFrontHandlers) Refresh(w http.ResponseWriter, r *http.Request) {
	res := h.resolve(r)
	token, err := h.Svc.CreateToken(res.Info)
	if err != nil {
		writeAppError(w, r, h.logger(), err)
		return
	}
	if res.Source != service.SourceToken {
		if err := h.setCookies(w, r, res.Info); err != nil {
			writeAppError(w, r, h.logger(), err)
			return
		}
	}

	resp := h.infoResponse(res.Info, token, h.Svc.Refreshable(res.Info, res.Now))
	q := r.URL.Query()
	full := q.Has("full")
	if full || q.Has("schemes") {
		resp.Schemes = h.Svc.Schemes(r.Context())
	}
	if full {
		resp.Version = h.Svc.Options().Version
	}
	h.Metrics.Refresh(res.Level().String())
	WriteJSON(w, http.StatusOK, resp)
}

// Token renders the raw authentication info. Anonymous callers get {}.
func (h *WebFrontHandlers) Token(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, h.resolve(r).Info)
}

// BasicLogin handles POST {userName, password}.
func (h *WebFrontHandlers) BasicLogin(w http.ResponseWriter, r *http.Request) {
	if !h.Svc.HasBasicLogin() {
		writeAppError(w, r, h.logger(), apperrors.NotFound("basic login is not available"))
		return
	}
	body, err := readJSONObject(r, maxBasicLoginBody)
	if err != nil {
		writeAppError(w, r, h.logger(), bodyError(err))
		return
	}
	userName, _, err := body.str("userName")
	if err != nil {
		writeAppError(w, r, h.logger(), apperrors.ValidationField("userName", err.Error()))
		return
	}
	password, _, err := body.str("password")
	if err != nil {
		writeAppError(w, r, h.logger(), apperrors.ValidationField("password", err.Error()))
		return
	}

	outcome, err := h.Svc.BasicLogin(r.Context(), userName, password)
	if err != nil {
		writeAppError(w, r, h.logger(), err)
		return
	}
	h.writeDirectOutcome(w, r, outcome)
}

// UnsafeDirectLogin handles POST {provider, payload}. The allower is asked
// before the login service sees the payload.
func (h *WebFrontHandlers) UnsafeDirectLogin(w http.ResponseWriter, r *http.Request) {
	if h.Allower == nil {
		http.NotFound(w, r)
		return
	}
	body, err := readJSONObject(r, maxUnsafeLoginBody)
	if err != nil {
		writeAppError(w, r, h.logger(), bodyError(err))
		return
	}
	scheme, _, err := body.str("provider")
	if err != nil || strings.TrimSpace(scheme) == "" {
		writeAppError(w, r, h.logger(), apperrors.ValidationField("provider", "provider is required"))
		return
	}
	if !h.Allower.AllowUnsafeDirectLogin(r, scheme) {
		h.Metrics.Login(metrics.LoginMetric{Kind: metrics.KindUnsafe, Scheme: scheme, Result: metrics.ResultDenied})
		writeAppError(w, r, h.logger(), apperrors.Forbidden("unsafe direct login is not allowed"))
		return
	}
	payload, _ := body.lookup("payload")

	outcome, err := h.Svc.UnsafeDirectLogin(r.Context(), scheme, payload, h.resolve(r).Info)
	if err != nil {
		writeAppError(w, r, h.logger(), err)
		return
	}
	h.writeDirectOutcome(w, r, outcome)
}

// writeDirectOutcome answers a direct login: 200 with cookies on success,
// 401 with a null info otherwise.
func (h *WebFrontHandlers) writeDirectOutcome(w http.ResponseWriter, r *http.Request, o *service.LoginOutcome) {
	if !o.Succeeded() {
		WriteJSON(w, http.StatusUnauthorized, h.outcomeResponse(o))
		return
	}
	if err := h.setCookies(w, r, o.Info); err != nil {
		writeAppError(w, r, h.logger(), err)
		return
	}
	WriteJSON(w, http.StatusOK, h.outcomeResponse(o))
}

// reservedLoginParams are not echoed back as user data.
var reservedLoginParams = map[string]struct{}{
	"scheme":       {},
	"returnurl":    {},
	"callerorigin": {},
}

// StartLogin redirects to the provider of ?scheme. The remaining form and
// query values are sealed and returned as userData at the end of the login.
func (h *WebFrontHandlers) StartLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeAppError(w, r, h.logger(), apperrors.Wrap(err, apperrors.ErrCodeValidation, "Malformed form."))
		return
	}
	in := service.StartLoginInput{
		Scheme:        strings.TrimSpace(r.Form.Get("scheme")),
		ReturnURL:     r.Form.Get("returnUrl"),
		CallerOrigin:  r.Form.Get("callerOrigin"),
		Current:       h.resolve(r).Info,
		RequestOrigin: h.requestOrigin(r),
	}
	for k, v := range r.Form {
		if _, reserved := reservedLoginParams[strings.ToLower(k)]; reserved || len(v) == 0 {
			continue
		}
		if in.UserData == nil {
			in.UserData = make(map[string]string)
		}
		in.UserData[k] = v[0]
	}
	if in.Scheme != "" {
		in.CallbackURL = in.RequestOrigin + h.EntryPath + "/c/callback/" + url.PathEscape(in.Scheme)
	}

	res, err := h.Svc.StartLogin(r.Context(), in)
	if err != nil {
		writeAppError(w, r, h.logger(), err)
		return
	}
	if res.Outcome != nil {
		h.completeLogin(w, r, res.Outcome)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	http.Redirect(w, r, res.RedirectURL, http.StatusFound)
}

// Callback receives the provider redirect and forwards the sealed result to endLogin.
func (h *WebFrontHandlers) Callback(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeAppError(w, r, h.logger(), apperrors.Wrap(err, apperrors.ErrCodeValidation, "Malformed form."))
		return
	}
	scheme := r.PathValue("scheme")
	res, err := h.Svc.CompleteRemoteLogin(r.Context(), service.CallbackInput{
		Scheme:      scheme,
		Query:       r.Form,
		CallbackURL: h.requestOrigin(r) + h.EntryPath + "/c/callback/" + url.PathEscape(scheme),
	})
	if err != nil {
		writeAppError(w, r, h.logger(), err)
		return
	}
	h.writePage(w, r, "callback.gohtml", callbackPage{
		Action:     h.EntryPath + "/c/endLogin",
		Completion: res.Completion,
		ReturnURL:  res.ReturnURL,
	})
}

// EndLogin handles the form {s, r} posted by the callback page.
func (h *WebFrontHandlers) EndLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeAppError(w, r, h.logger(), apperrors.Wrap(err, apperrors.ErrCodeValidation, "Malformed form."))
		return
	}
	sealed := r.PostForm.Get("s")
	if sealed == "" {
		writeAppError(w, r, h.logger(), apperrors.ValidationField("s", "login completion is required"))
		return
	}
	outcome, err := h.Svc.EndLogin(r.Context(), service.EndLoginInput{Completion: sealed, ReturnURL: r.PostForm.Get("r")})
	if err != nil {
		writeAppError(w, r, h.logger(), err)
		return
	}
	h.completeLogin(w, r, outcome)
}

// completeLogin delivers a login outcome: by redirect to its return URL, or by
// a page posting the response to the caller origin.
func (h *WebFrontHandlers) completeLogin(w http.ResponseWriter, r *http.Request, o *service.LoginOutcome) {
	if o.Succeeded() {
		if err := h.setCookies(w, r, o.Info); err != nil {
			writeAppError(w, r, h.logger(), err)
			return
		}
	}
	if o.ReturnURL != "" {
		w.Header().Set("Cache-Control", "no-store")
		http.Redirect(w, r, failureURL(o), http.StatusFound)
		return
	}
	h.writePage(w, r, "postmessage.gohtml", postMessagePage{
		Data:   h.outcomeResponse(o),
		Origin: o.CallerOrigin,
	})
}

// failureURL appends the failure details of o to its return URL.
func failureURL(o *service.LoginOutcome) string {
	if o.Succeeded() || (o.FailureCode == domainauth.LoginFailureNone && o.ErrorID == "") {
		return o.ReturnURL
	}
	u, err := url.Parse(o.ReturnURL)
	if err != nil {
		return o.ReturnURL
	}
	q := u.Query()
	if o.FailureCode != domainauth.LoginFailureNone {
		q.Set("loginFailureCode", strconv.Itoa(int(o.FailureCode)))
		q.Set("loginFailureReason", o.FailureReason)
	}
	if o.ErrorID != "" {
		q.Set("errorId", o.ErrorID)
		q.Set("errorText", o.ErrorText)
	}
	q.Set("initialScheme", o.InitialScheme)
	q.Set("callingScheme", o.CallingScheme)
	u.RawQuery = q.Encode()
	return u.String()
}

// Logout clears the authentication cookie, and the unsafe cookie with ?full.
func (h *WebFrontHandlers) Logout(w http.ResponseWriter, r *http.Request) {
	h.Cookies.clear(w, r, h.Cookies.Name)
	if r.URL.Query().Has("full") {
		h.Cookies.clear(w, r, h.Cookies.UnsafeName)
	}
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
}

// Impersonate handles POST {userName} or {userId}.
func (h *WebFrontHandlers) Impersonate(w http.ResponseWriter, r *http.Request) {
	if !h.Svc.HasImpersonation() {
		http.NotFound(w, r)
		return
	}
	body, err := readJSONObject(r, maxImpersonateBody)
	if err != nil {
		writeAppError(w, r, h.logger(), bodyError(err))
		return
	}
	target, err := impersonateTarget(body)
	if err != nil {
		writeAppError(w, r, h.logger(), err)
		return
	}

	res := h.resolve(r)
	info, err := h.Svc.Impersonate(r.Context(), res.Info, target)
	if err != nil {
		writeAppError(w, r, h.logger(), err)
		return
	}
	token, err := h.Svc.CreateToken(info)
	if err != nil {
		writeAppError(w, r, h.logger(), err)
		return
	}
	if res.Source != service.SourceToken {
		if err := h.setCookies(w, r, info); err != nil {
			writeAppError(w, r, h.logger(), err)
			return
		}
	}
	WriteJSON(w, http.StatusOK, h.infoResponse(info, token, h.Svc.Refreshable(info, res.Now)))
}

// impersonateTarget requires exactly one of userName and userId.
func impersonateTarget(body jsonObject) (service.ImpersonateTarget, error) {
	name, hasName, err := body.str("userName")
	if err != nil {
		return service.ImpersonateTarget{}, apperrors.ValidationField("userName", err.Error())
	}
	rawID, hasID := body.lookup("userId")
	if hasID && rawID == nil {
		hasID = false
	}
	if hasName == hasID {
		return service.ImpersonateTarget{}, apperrors.Validation("exactly one of userName and userId is required")
	}
	if hasName {
		return service.ImpersonateTarget{UserName: name}, nil
	}

	var id int64
	switch v := rawID.(type) {
	case json.Number:
		id, err = v.Int64()
	case string:
		id, err = strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	default:
		err = apperrors.Validation("userId must be an integer")
	}
	if err != nil || id <= 0 || id > int64(^uint32(0)>>1) {
		return service.ImpersonateTarget{}, apperrors.ValidationField("userId", "userId must be a positive integer")
	}
	return service.ImpersonateTarget{UserID: int(id), ByID: true}, nil
}

// requestOrigin is the origin the request was served on.
func (h *WebFrontHandlers) requestOrigin(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil || (h.Cookies.TrustForwardedProto && strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")) {
		scheme = "https"
	}
	return scheme + "://" + strings.ToLower(r.Host)
}
