package service

import (
	"encoding/json"
	"fmt"

	"github.com/target/webfront-auth/internal/data/cryptoutil"
	domainauth "github.com/target/webfront-auth/internal/domain/auth"
	"github.com/target/webfront-auth/internal/observability/metrics"
)

// Envelope seals domain values with a key ring. Every unprotect failure wraps
// cryptoutil.ErrInvalidEnvelope.
type Envelope struct {
	keys    *cryptoutil.KeyRing
	metrics *metrics.Recorder
}

// NewEnvelope returns an Envelope over keys. rec may be nil.
func NewEnvelope(keys *cryptoutil.KeyRing, rec *metrics.Recorder) *Envelope {
	return &Envelope{keys: keys, metrics: rec}
}

// ProtectInfo seals info for purpose p.
func (e *Envelope) ProtectInfo(p cryptoutil.Purpose, info domainauth.AuthenticationInfo) (string, error) {
	return e.protect(p, info)
}

// UnprotectInfo opens a value sealed by ProtectInfo with the same purpose.
func (e *Envelope) UnprotectInfo(p cryptoutil.Purpose, sealed string) (domainauth.AuthenticationInfo, error) {
	var info domainauth.AuthenticationInfo
	if err := e.unprotect(p, sealed, &info); err != nil {
		return domainauth.None, err
	}
	return info, nil
}

// ProtectData seals a string map for the Extra purpose.
func (e *Envelope) ProtectData(data map[string]string) (string, error) {
	return e.protect(cryptoutil.PurposeExtra, data)
}

// UnprotectData opens a value sealed by ProtectData.
func (e *Envelope) UnprotectData(sealed string) (map[string]string, error) {
	var data map[string]string
	if err := e.unprotect(cryptoutil.PurposeExtra, sealed, &data); err != nil {
		return nil, err
	}
	return data, nil
}

func (e *Envelope) protectContinuation(c domainauth.Continuation) (string, error) {
	return e.protect(cryptoutil.PurposeExtra, c)
}

func (e *Envelope) unprotectContinuation(sealed string) (domainauth.Continuation, error) {
	var c domainauth.Continuation
	err := e.unprotect(cryptoutil.PurposeExtra, sealed, &c)
	return c, err
}

func (e *Envelope) protectCompletion(c domainauth.LoginCompletion) (string, error) {
	return e.protect(cryptoutil.PurposeExtra, c)
}

func (e *Envelope) unprotectCompletion(sealed string) (domainauth.LoginCompletion, error) {
	var c domainauth.LoginCompletion
	err := e.unprotect(cryptoutil.PurposeExtra, sealed, &c)
	return c, err
}

func (e *Envelope) protect(p cryptoutil.Purpose, v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal %s value: %w", p, err)
	}
	return e.keys.Seal(p, raw)
}

func (e *Envelope) unprotect(p cryptoutil.Purpose, sealed string, v any) error {
	raw, err := e.keys.Open(p, sealed)
	if err != nil {
		e.metrics.EnvelopeRejected(string(p))
		return err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		e.metrics.EnvelopeRejected(string(p))
		return fmt.Errorf("%w: %s payload: %w", cryptoutil.ErrInvalidEnvelope, p, err)
	}
	return nil
}
