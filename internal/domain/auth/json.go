package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrMalformedInfo is returned when a serialized info or user violates the model invariants.
var ErrMalformedInfo = errors.New("malformed authentication info")

type schemeJSON struct {
	Name     string    `json:"name"`
	LastUsed time.Time `json:"lastUsed"`
}

type userJSON struct {
	ID      int          `json:"id"`
	Name    string       `json:"name"`
	Schemes []schemeJSON `json:"schemes"`
}

type infoJSON struct {
	User       *userJSON  `json:"user,omitempty"`
	ActualUser *userJSON  `json:"actualUser,omitempty"`
	Expires    *time.Time `json:"exp,omitempty"`
	CExpires   *time.Time `json:"cexp,omitempty"`
}

func toUserJSON(u UserInfo) *userJSON {
	out := &userJSON{ID: u.ID, Name: u.Name, Schemes: make([]schemeJSON, 0, len(u.Schemes))}
	for _, s := range u.Schemes {
		out.Schemes = append(out.Schemes, schemeJSON{Name: s.Name, LastUsed: s.LastUsed.UTC()})
	}
	return out
}

func (j *userJSON) toUserInfo() (UserInfo, error) {
	if j == nil {
		return Anonymous, nil
	}
	if (j.ID == 0) != (j.Name == "") {
		return Anonymous, fmt.Errorf("%w: user id %d with name %q", ErrMalformedInfo, j.ID, j.Name)
	}
	schemes := make([]SchemeUsage, 0, len(j.Schemes))
	for _, s := range j.Schemes {
		if s.Name == "" {
			return Anonymous, fmt.Errorf("%w: empty scheme name", ErrMalformedInfo)
		}
		schemes = append(schemes, SchemeUsage{Name: s.Name, LastUsed: s.LastUsed.UTC()})
	}
	return NewUserInfo(j.ID, j.Name, schemes), nil
}

// MarshalJSON writes {id, name, schemes:[{name, lastUsed}]}.
func (u UserInfo) MarshalJSON() ([]byte, error) {
	return json.Marshal(toUserJSON(u))
}

// UnmarshalJSON reads the shape written by MarshalJSON.
func (u *UserInfo) UnmarshalJSON(data []byte) error {
	var j userJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	v, err := j.toUserInfo()
	if err != nil {
		return err
	}
	*u = v
	return nil
}

// MarshalJSON writes {user, actualUser?, exp?, cexp?}. None is written as {}.
// actualUser is only present when impersonating.
func (a AuthenticationInfo) MarshalJSON() ([]byte, error) {
	var j infoJSON
	if !a.IsNone() {
		j.User = toUserJSON(a.user)
		if a.IsImpersonated() {
			j.ActualUser = toUserJSON(a.actualUser)
		}
		j.Expires = a.Expires()
		j.CExpires = a.CriticalExpires()
	}
	return json.Marshal(j)
}

// UnmarshalJSON reads the shape written by MarshalJSON and rejects values that
// break the model invariants.
func (a *AuthenticationInfo) UnmarshalJSON(data []byte) error {
	var j infoJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	user, err := j.User.toUserInfo()
	if err != nil {
		return err
	}
	actual := user
	if j.ActualUser != nil {
		if actual, err = j.ActualUser.toUserInfo(); err != nil {
			return err
		}
		if actual.IsAnonymous() && !user.IsAnonymous() {
			return fmt.Errorf("%w: impersonation from anonymous", ErrMalformedInfo)
		}
	}
	if j.CExpires != nil && (j.Expires == nil || j.CExpires.After(*j.Expires)) {
		return fmt.Errorf("%w: critical expiration after expiration", ErrMalformedInfo)
	}
	*a = build(user, actual, j.Expires, j.CExpires)
	return nil
}
