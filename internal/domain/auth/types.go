package auth

// Package auth contains domain-level types for web front authentication.
// It is pure and free of framework/adapter concerns: every transition returns a new value.

import "time"

// Level is the trust level of an AuthenticationInfo at a given instant.
// It is always derived, never stored.
type Level int

const (
	LevelNone Level = iota
	LevelUnsafe
	LevelNormal
	LevelCritical
)

// String returns the wire name of the level.
func (l Level) String() string {
	switch l {
	case LevelUnsafe:
		return "Unsafe"
	case LevelNormal:
		return "Normal"
	case LevelCritical:
		return "Critical"
	default:
		return "None"
	}
}

// SchemeUsage records when a user last logged in with a scheme.
type SchemeUsage struct {
	Name     string
	LastUsed time.Time
}

// UserInfo is a resolved identity. ID 0 with an empty Name is the anonymous user.
type UserInfo struct {
	ID      int
	Name    string
	Schemes []SchemeUsage
}

// Anonymous is the anonymous user.
var Anonymous = UserInfo{}

// NewUserInfo builds a UserInfo. A zero id or an empty name yields Anonymous so
// that id == 0 and name == "" always go together.
func NewUserInfo(id int, name string, schemes []SchemeUsage) UserInfo {
	if id == 0 || name == "" {
		return Anonymous
	}
	return UserInfo{ID: id, Name: name, Schemes: append([]SchemeUsage(nil), schemes...)}
}

// IsAnonymous reports whether u is the anonymous user.
func (u UserInfo) IsAnonymous() bool { return u.ID == 0 }

// Same reports whether u and o denote the same identity.
func (u UserInfo) Same(o UserInfo) bool { return u.ID == o.ID && u.Name == o.Name }

// WithSchemeUsed returns a copy of u where scheme is moved first with lastUsed at.
func (u UserInfo) WithSchemeUsed(scheme string, at time.Time) UserInfo {
	if u.IsAnonymous() || scheme == "" {
		return u
	}
	out := make([]SchemeUsage, 0, len(u.Schemes)+1)
	out = append(out, SchemeUsage{Name: scheme, LastUsed: at.UTC()})
	for _, s := range u.Schemes {
		if s.Name != scheme {
			out = append(out, s)
		}
	}
	u.Schemes = out
	return u
}

// AuthenticationInfo is the authentication state carried by cookies and tokens.
// Fields are unexported so invariants hold for every value; use the transition methods.
type AuthenticationInfo struct {
	user            UserInfo
	actualUser      UserInfo
	expires         *time.Time
	criticalExpires *time.Time
}

// None is the anonymous, non-expiring AuthenticationInfo.
var None = AuthenticationInfo{}

// Create returns the info of a non impersonated user.
func Create(user UserInfo, expires, criticalExpires *time.Time) AuthenticationInfo {
	return build(user, user, expires, criticalExpires)
}

// build enforces the invariants: anonymous actual user means no impersonation,
// anonymous means no expiration, critical expiration requires and is bounded by expiration.
func build(user, actualUser UserInfo, expires, criticalExpires *time.Time) AuthenticationInfo {
	if actualUser.IsAnonymous() {
		user = actualUser
	}
	if user.IsAnonymous() {
		return None
	}
	info := AuthenticationInfo{user: user, actualUser: actualUser}
	if expires != nil {
		e := expires.UTC()
		info.expires = &e
		if criticalExpires != nil {
			c := criticalExpires.UTC()
			if c.After(e) {
				c = e
			}
			info.criticalExpires = &c
		}
	}
	return info
}

// User is the current (possibly impersonated) user.
func (a AuthenticationInfo) User() UserInfo { return a.user }

// ActualUser is the user that actually authenticated.
func (a AuthenticationInfo) ActualUser() UserInfo { return a.actualUser }

// Expires returns the expiration, or nil for a non-expiring info.
func (a AuthenticationInfo) Expires() *time.Time { return cloneTime(a.expires) }

// CriticalExpires returns the critical expiration, or nil.
func (a AuthenticationInfo) CriticalExpires() *time.Time { return cloneTime(a.criticalExpires) }

// IsNone reports whether a is the anonymous info.
func (a AuthenticationInfo) IsNone() bool { return a.user.IsAnonymous() }

// IsImpersonated reports whether the current user differs from the actual one.
func (a AuthenticationInfo) IsImpersonated() bool { return !a.user.Same(a.actualUser) }

// Level computes the trust level at now.
func (a AuthenticationInfo) Level(now time.Time) Level {
	if a.user.IsAnonymous() {
		return LevelNone
	}
	if a.expires == nil {
		return LevelNormal
	}
	if !now.Before(*a.expires) {
		return LevelUnsafe
	}
	if a.criticalExpires != nil && now.Before(*a.criticalExpires) {
		return LevelCritical
	}
	return LevelNormal
}

// SetExpires returns a copy with a new expiration. A nil expiration also clears
// the critical one.
func (a AuthenticationInfo) SetExpires(expires *time.Time) AuthenticationInfo {
	if expires == nil {
		return build(a.user, a.actualUser, nil, nil)
	}
	return build(a.user, a.actualUser, expires, a.criticalExpires)
}

// SetCriticalExpires returns a copy with a new critical expiration. When it is
// after the expiration, the expiration is pushed to it.
func (a AuthenticationInfo) SetCriticalExpires(criticalExpires *time.Time) AuthenticationInfo {
	expires := a.expires
	if criticalExpires != nil && (expires == nil || criticalExpires.After(*expires)) {
		expires = criticalExpires
	}
	return build(a.user, a.actualUser, expires, criticalExpires)
}

// Impersonate returns a copy whose current user is target. It is a no-op when
// the actual user is anonymous or target is anonymous.
func (a AuthenticationInfo) Impersonate(target UserInfo) AuthenticationInfo {
	if a.actualUser.IsAnonymous() || target.IsAnonymous() {
		return a
	}
	return build(target, a.actualUser, a.expires, a.criticalExpires)
}

// ClearImpersonation returns a copy whose current user is the actual user.
func (a AuthenticationInfo) ClearImpersonation() AuthenticationInfo {
	return build(a.actualUser, a.actualUser, a.expires, a.criticalExpires)
}

// Equal reports whether both infos carry the same users and instants.
func (a AuthenticationInfo) Equal(o AuthenticationInfo) bool {
	return sameUser(a.user, o.user) && sameUser(a.actualUser, o.actualUser) &&
		sameTime(a.expires, o.expires) && sameTime(a.criticalExpires, o.criticalExpires)
}

func sameUser(a, b UserInfo) bool {
	if !a.Same(b) || len(a.Schemes) != len(b.Schemes) {
		return false
	}
	for i := range a.Schemes {
		if a.Schemes[i].Name != b.Schemes[i].Name || !a.Schemes[i].LastUsed.Equal(b.Schemes[i].LastUsed) {
			return false
		}
	}
	return true
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
