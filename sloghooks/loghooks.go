// Package sloghooks reports offcache lifecycle events to a *slog.Logger.
package sloghooks

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync/atomic"

	"github.com/unkn0wn-root/offcache"
)

type Options struct {
	// Sampling for the fetch hot path; 0/1 = log all.
	SelfHealEvery uint64
	// Optional key redactor. Defaults to SHA-256 prefix.
	Redact func(string) string
}

type Hooks struct {
	l    *slog.Logger
	opts Options

	selfHealCtr atomic.Uint64
}

var _ offcache.Hooks = (*Hooks)(nil)

func New(l *slog.Logger, opts Options) *Hooks {
	return &Hooks{l: l, opts: opts}
}

func (h *Hooks) redact(k string) string {
	if h.opts.Redact != nil {
		return h.opts.Redact(k)
	}
	sum := sha256.Sum256([]byte(k))
	return hex.EncodeToString(sum[:8])
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n == 0 || n == 1 {
		return true
	}
	return ctr.Add(1)%n == 0
}

func (h *Hooks) InstallFailed(version string, err error) {
	if h.l == nil {
		return
	}
	h.l.Error("offcache.install_failed",
		"version", version,
		"err", err)
}

func (h *Hooks) StaleDeleteFailed(name string, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("offcache.stale_delete_failed",
		"generation", name,
		"err", err)
}

func (h *Hooks) EntrySelfHeal(storageKey, reason string) {
	if h.l == nil || !sample(h.opts.SelfHealEvery, &h.selfHealCtr) {
		return
	}
	h.l.Debug("offcache.entry_self_heal",
		"key", h.redact(storageKey),
		"reason", reason)
}

func (h *Hooks) ProviderSetRejected(storageKey string) {
	if h.l == nil {
		return
	}
	h.l.Warn("offcache.provider_set_rejected",
		"key", h.redact(storageKey))
}

func (h *Hooks) ClientsClaimed(version string, n int) {
	if h.l == nil {
		return
	}
	h.l.Info("offcache.clients_claimed",
		"version", version,
		"clients", n)
}

func (h *Hooks) Superseded(version string) {
	if h.l == nil {
		return
	}
	h.l.Info("offcache.superseded",
		"version", version)
}
