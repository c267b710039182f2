// Package proxy maintains the pool of outbound proxy descriptors and
// answers selection queries for the dispatch path. The pool is assembled
// once from configuration and is read-only afterwards.
package proxy

import (
	"log/slog"
	"math/rand"

	"github.com/solvenet/recaptcha-api/internal/config"
	"github.com/solvenet/recaptcha-api/internal/domain"
	"github.com/solvenet/recaptcha-api/internal/redact"
)

// Selector owns the proxy pool and picks entries for outbound solves.
// Selection is uniform-random; the random source is injected so tests
// can make it deterministic.
type Selector struct {
	pool []*domain.Proxy
	rng  *rand.Rand
}

// NewSelector assembles the pool from configuration: the dedicated ipv4
// and ipv6 slots (at most one each) plus any free-form pool strings.
// Malformed pool strings are dropped and logged; they never abort
// initialization. A nil rng falls back to the shared math/rand source.
func NewSelector(cfg config.ProxyConfig, rng *rand.Rand, logger *slog.Logger) *Selector {
	s := &Selector{rng: rng}

	if ipv4 := slotProxy(cfg.IPv4, domain.ProxyClassIPv4); ipv4 != nil {
		s.pool = append(s.pool, ipv4)
		logger.Info("added ipv4 proxy", "host", ipv4.Host, "port", ipv4.Port)
	}

	if ipv6 := slotProxy(cfg.IPv6, domain.ProxyClassIPv6); ipv6 != nil {
		s.pool = append(s.pool, ipv6)
		logger.Info("added ipv6 proxy", "host", ipv6.Host, "port", ipv6.Port)
	}

	for _, raw := range cfg.Pool {
		p, err := Parse(raw)
		if err != nil {
			logger.Error("dropping malformed proxy string", "proxy", redact.String(raw), "error", redact.Error(err))
			continue
		}
		s.pool = append(s.pool, p)
		logger.Info("added pool proxy", "host", p.Host, "port", p.Port)
	}

	if len(s.pool) == 0 {
		logger.Warn("no proxies configured, running without proxy support")
	}

	return s
}

// slotProxy builds a proxy from a dedicated config slot, or nil when the
// slot is unset.
func slotProxy(slot config.ProxySlot, class string) *domain.Proxy {
	if slot.Host == "" {
		return nil
	}
	return &domain.Proxy{
		Protocol: "http",
		Host:     slot.Host,
		Port:     slot.Port,
		Username: slot.Username,
		Password: slot.Password,
		Class:    class,
	}
}

// Select picks a proxy from the pool. With an empty pool it returns nil,
// which callers treat as the valid "no proxy configured" state. A class
// hint narrows selection to entries of that class; when no entry of the
// hinted class exists, selection falls back to the entire pool.
func (s *Selector) Select(classHint string) *domain.Proxy {
	if len(s.pool) == 0 {
		return nil
	}

	if classHint != "" {
		matching := s.AllOfClass(classHint)
		if len(matching) > 0 {
			return matching[s.intn(len(matching))]
		}
	}

	return s.pool[s.intn(len(s.pool))]
}

// AllOfClass returns every pool entry tagged with the given class.
func (s *Selector) AllOfClass(class string) []*domain.Proxy {
	var matching []*domain.Proxy
	for _, p := range s.pool {
		if p.Class == class {
			matching = append(matching, p)
		}
	}
	return matching
}

// All returns a copy of the full pool.
func (s *Selector) All() []*domain.Proxy {
	out := make([]*domain.Proxy, len(s.pool))
	copy(out, s.pool)
	return out
}

// Size returns the number of configured proxies.
func (s *Selector) Size() int {
	return len(s.pool)
}

func (s *Selector) intn(n int) int {
	if s.rng != nil {
		return s.rng.Intn(n)
	}
	return rand.Intn(n)
}
