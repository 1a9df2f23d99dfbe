package stalker

import (
	"context"
	"time"

	"github.com/snapetech/stalkerkit/internal/discovery"
	sklog "github.com/snapetech/stalkerkit/internal/log"
)

// Refresh runs the full connect sequence for s: discovery, handshake, profile (full then basic),
// account check, Xtream discovery and validity derivation. Protocol outcomes land on s (Valid,
// Expiry, Status, ...); the returned error only names the step that stopped the sequence.
func (c *Client) Refresh(ctx context.Context, s *Session) error {
	start := time.Now()
	if s.Timezone == "" {
		s.Timezone = c.timezone
	}
	resetVolatile(s)
	logger := c.log.With().Str(sklog.FieldHost, s.Host).Str(sklog.FieldMAC, sklog.MaskMAC(s.MAC)).
		Int(sklog.FieldIndex, s.Index).Logger()

	res, err := c.discovery.Discover(ctx, discovery.Target{Host: s.Host, ConfiguredURL: s.URL, Header: c.header(s, "")})
	if err != nil {
		s.Valid = false
		logger.Info().Err(err).Msg("no portal found")
		return actionErr("discover", s.Host, ErrNoPortal)
	}
	s.Portal, s.PathPrefix, s.Version = res.Portal, res.PrefixURL(s.Host), res.Version

	basicSent, err := c.authenticate(ctx, s)
	if err != nil {
		s.DeriveValid()
		logger.Info().Err(err).Str(sklog.FieldPortal, s.Portal).Msg("handshake failed")
		return err
	}

	accountOK := c.checkAccount(ctx, s, basicSent)
	c.discoverXtream(ctx, s)

	s.DeriveValid()
	if !accountOK {
		s.Valid = false
	}
	logger.Info().Str(sklog.FieldPortal, s.Portal).Bool("valid", s.Valid).Str("expiry", s.Expiry).
		Int(sklog.FieldStatus, s.Status).Str("blocked", s.Blocked).Int("token_len", len(s.Token)).
		Dur("took", time.Since(start)).Msg("session refreshed")
	if !accountOK {
		return actionErr("get_main_info", s.Portal, ErrAccount)
	}
	return ctx.Err()
}

func resetVolatile(s *Session) {
	s.Token, s.TokenRandom, s.PlayToken = "", "", ""
	s.Status, s.Blocked, s.Valid, s.Expiry = 0, "0", false, ""
	s.XtreamUsername, s.XtreamPassword = "", ""
	s.XtreamGetAPI, s.XtreamPlayerAPI = "", ""
	s.ActiveConnections, s.MaxConnections = "", ""
}
