package stalker

import (
	"context"

	sklog "github.com/snapetech/stalkerkit/internal/log"
)

// RetryState is the single reauthorize-then-retry budget of a call site.
//
//	Fresh --fail--> Retrying --fail--> Failed
//
// Retrying also covers "retried and recovered": the budget is spent either way.
type RetryState int

const (
	RetryFresh RetryState = iota
	RetryRetrying
	RetryFailed
)

func (r RetryState) String() string {
	switch r {
	case RetryFresh:
		return "fresh"
	case RetryRetrying:
		return "retrying"
	case RetryFailed:
		return "failed"
	}
	return "unknown"
}

// spend reports whether a retry may be taken and advances the state.
func (r *RetryState) spend() bool {
	if *r == RetryFresh {
		*r = RetryRetrying
		return true
	}
	*r = RetryFailed
	return false
}

// withRetry runs attempt; if it fails and the budget allows, runs recover and attempt once more.
func withRetry[T any](state *RetryState, action string, attempt func() (T, bool), recover func()) (T, bool) {
	v, ok := attempt()
	if ok {
		return v, true
	}
	if !state.spend() {
		retryOutcomes.WithLabelValues(action, state.String()).Inc()
		return v, false
	}
	recover()
	v, ok = attempt()
	if !ok {
		*state = RetryFailed
	}
	retryOutcomes.WithLabelValues(action, state.String()).Inc()
	return v, ok
}

// authState is what a reauthorization changes on a session.
type authState struct {
	Token       string
	TokenRandom string
	PlayToken   string
	Status      int
	Blocked     string
}

func (a authState) apply(s *Session) {
	s.Token, s.TokenRandom, s.PlayToken = a.Token, a.TokenRandom, a.PlayToken
	s.Status, s.Blocked = a.Status, a.Blocked
}

// Reauthorize runs handshake plus profile for s. Concurrent calls for the same session key share
// one in-flight exchange and all receive its result.
func (c *Client) Reauthorize(ctx context.Context, s *Session, trigger string) error {
	key := s.Key().String()
	v, err, shared := c.reauth.Do(key, func() (any, error) {
		cp := *s
		if _, err := c.authenticate(ctx, &cp); err != nil {
			return nil, err
		}
		return authState{
			Token: cp.Token, TokenRandom: cp.TokenRandom, PlayToken: cp.PlayToken,
			Status: cp.Status, Blocked: cp.Blocked,
		}, nil
	})
	if err != nil {
		reauthTotal.WithLabelValues(trigger, "failed", boolLabel(shared)).Inc()
		c.log.Warn().Err(err).Str(sklog.FieldMAC, sklog.MaskMAC(s.MAC)).Str("trigger", trigger).Msg("reauthorization failed")
		s.Token = ""
		return err
	}
	v.(authState).apply(s)
	reauthTotal.WithLabelValues(trigger, "ok", boolLabel(shared)).Inc()
	c.log.Debug().Str(sklog.FieldMAC, sklog.MaskMAC(s.MAC)).Str("trigger", trigger).Bool("shared", shared).
		Int("token_len", len(s.Token)).Msg("reauthorized")
	return nil
}
