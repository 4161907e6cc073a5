// internal/driver/cache.go

package driver

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/xkilldash9x/pagedriver/api/schemas"
)

// DomainSettings are per-domain overrides the dispatcher consults when
// executing commands against pages on that domain. Sites with unusually slow
// rendering or nonstandard content containers get tuned entries here.
type DomainSettings struct {
	// WaitTimeout overrides the default wait/exists deadline.
	WaitTimeout time.Duration `json:"waitTimeout,omitempty"`
	// ContentSelector overrides main-content detection with a known
	// container selector for the domain.
	ContentSelector string `json:"contentSelector,omitempty"`
	// ExtraSettle is added to the layout settle delay.
	ExtraSettle time.Duration `json:"extraSettle,omitempty"`
}

// DomainCache is an LRU of per-domain settings, owned by the dispatcher.
// It is an explicit service with clear/invalidate operations rather than
// ambient package state.
type DomainCache struct {
	lru *lru.Cache[string, DomainSettings]
}

func NewDomainCache(size int) (*DomainCache, error) {
	if size <= 0 {
		size = 128
	}
	c, err := lru.New[string, DomainSettings](size)
	if err != nil {
		return nil, err
	}
	return &DomainCache{lru: c}, nil
}

func (c *DomainCache) Get(domain string) (DomainSettings, bool) {
	return c.lru.Get(domain)
}

func (c *DomainCache) Set(domain string, s DomainSettings) {
	c.lru.Add(domain, s)
}

func (c *DomainCache) Invalidate(domain string) {
	c.lru.Remove(domain)
}

func (c *DomainCache) Clear() {
	c.lru.Purge()
}

// EmbedRegistry remembers the interactive elements last captured per host,
// so repeat visits can replay actions without re-scanning the page.
type EmbedRegistry struct {
	lru *lru.Cache[string, []schemas.CapturedElement]
}

func NewEmbedRegistry(size int) (*EmbedRegistry, error) {
	if size <= 0 {
		size = 128
	}
	c, err := lru.New[string, []schemas.CapturedElement](size)
	if err != nil {
		return nil, err
	}
	return &EmbedRegistry{lru: c}, nil
}

func (r *EmbedRegistry) Get(host string) ([]schemas.CapturedElement, bool) {
	return r.lru.Get(host)
}

func (r *EmbedRegistry) Set(host string, elems []schemas.CapturedElement) {
	r.lru.Add(host, elems)
}

func (r *EmbedRegistry) Invalidate(host string) {
	r.lru.Remove(host)
}

func (r *EmbedRegistry) Clear() {
	r.lru.Purge()
}
