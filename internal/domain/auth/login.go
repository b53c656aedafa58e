package auth

import "time"

// Well-known schemes.
const (
	SchemeBasic = "Basic"
)

// LoginFailureCode classifies a login rejected by a login service.
type LoginFailureCode int

const (
	LoginFailureNone LoginFailureCode = iota
	LoginFailureUnspecified
	LoginFailureInvalidCredentials
	LoginFailureUnregisteredUser
	LoginFailureDisabled
)

// DefaultReason returns the text used when a login service gives no reason.
func (c LoginFailureCode) DefaultReason() string {
	switch c {
	case LoginFailureNone:
		return ""
	case LoginFailureInvalidCredentials:
		return "Invalid credentials."
	case LoginFailureUnregisteredUser:
		return "User is not registered."
	case LoginFailureDisabled:
		return "User is disabled."
	default:
		return "Login failed."
	}
}

// LoginResult is what a login service answers: either a user or a failure.
type LoginResult struct {
	User          *UserInfo
	FailureCode   LoginFailureCode
	FailureReason string
}

// Succeeded reports whether r carries a non anonymous user.
func (r LoginResult) Succeeded() bool { return r.User != nil && !r.User.IsAnonymous() }

// LoginSucceeded builds a successful result.
func LoginSucceeded(u UserInfo) LoginResult { return LoginResult{User: &u} }

// LoginFailed builds a failed result. An empty reason uses the code's default.
func LoginFailed(code LoginFailureCode, reason string) LoginResult {
	if code == LoginFailureNone {
		code = LoginFailureUnspecified
	}
	if reason == "" {
		reason = code.DefaultReason()
	}
	return LoginResult{FailureCode: code, FailureReason: reason}
}

// Continuation travels sealed through the client between startLogin and endLogin.
// PriorInfo and UserData are themselves sealed strings.
type Continuation struct {
	Scheme       string    `json:"s"`
	PriorInfo    string    `json:"c,omitempty"`
	ReturnURL    string    `json:"r,omitempty"`
	CallerOrigin string    `json:"o,omitempty"`
	UserData     string    `json:"d,omitempty"`
	IssuedAt     time.Time `json:"t"`
}

// LoginCompletion is sealed by the provider callback and posted to endLogin.
// Either User is set or one of the failure channels is.
type LoginCompletion struct {
	Continuation  string           `json:"c"`
	User          *UserInfo        `json:"u,omitempty"`
	FailureCode   LoginFailureCode `json:"fc,omitempty"`
	FailureReason string           `json:"fr,omitempty"`
	ErrorID       string           `json:"e,omitempty"`
	ErrorText     string           `json:"et,omitempty"`
	IssuedAt      time.Time        `json:"t"`
}
