// Package registry loads the resolved set of sites a process talks to.
// Sites are immutable after load and live for the process lifetime.
package registry

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Site describes one independently operated backend instance.
type Site struct {
	Code          string `toml:"code"`
	Name          string `toml:"name"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	CredentialRef string `toml:"credential_ref"`
	Context       string `toml:"context"`

	PoolSize         int `toml:"pool_size"`
	ConnectTimeoutMS int `toml:"connect_timeout_ms"`
	CallTimeoutMS    int `toml:"call_timeout_ms"`
	AcquireWaitMS    int `toml:"acquire_wait_ms"`
	IdleTTLMS        int `toml:"idle_ttl_ms"`
}

func (s Site) Addr() string {
	return s.Host + ":" + strconv.Itoa(s.Port)
}

func (s Site) ConnectTimeout() time.Duration { return ms(s.ConnectTimeoutMS) }
func (s Site) CallTimeout() time.Duration    { return ms(s.CallTimeoutMS) }
func (s Site) AcquireWait() time.Duration    { return ms(s.AcquireWaitMS) }
func (s Site) IdleTTL() time.Duration        { return ms(s.IdleTTLMS) }

func ms(v int) time.Duration {
	return time.Duration(v) * time.Millisecond
}

// Registry is the full resolved site set for one deployment.
type Registry struct {
	PrimarySite string `toml:"primary_site"`
	BroadcastMS int    `toml:"broadcast_deadline_ms"`
	Sites       []Site `toml:"sites"`
}

func (r Registry) BroadcastDeadline() time.Duration { return ms(r.BroadcastMS) }

// Codes returns the site codes in declaration order.
func (r Registry) Codes() []string {
	out := make([]string, 0, len(r.Sites))
	for _, s := range r.Sites {
		out = append(out, s.Code)
	}
	return out
}

// Lookup returns the site with the given code.
func (r Registry) Lookup(code string) (Site, bool) {
	for _, s := range r.Sites {
		if s.Code == code {
			return s, true
		}
	}
	return Site{}, false
}

// Load reads, defaults, and validates a registry file.
func Load(path string) (Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Registry{}, fmt.Errorf("registry load failed (%s): %w", path, err)
	}
	var reg Registry
	if err := toml.Unmarshal(data, &reg); err != nil {
		return Registry{}, fmt.Errorf("registry parse failed (%s): %w", path, err)
	}
	applyDefaults(&reg)
	if err := Validate(reg); err != nil {
		return Registry{}, err
	}
	return reg, nil
}

func applyDefaults(reg *Registry) {
	if reg.BroadcastMS == 0 {
		reg.BroadcastMS = 30000
	}
	for i := range reg.Sites {
		s := &reg.Sites[i]
		if s.Port == 0 {
			s.Port = 9430
		}
		if s.PoolSize == 0 {
			s.PoolSize = 4
		}
		if s.ConnectTimeoutMS == 0 {
			s.ConnectTimeoutMS = 5000
		}
		if s.CallTimeoutMS == 0 {
			s.CallTimeoutMS = 15000
		}
		if s.AcquireWaitMS == 0 {
			s.AcquireWaitMS = 10000
		}
		if s.IdleTTLMS == 0 {
			s.IdleTTLMS = 90000
		}
	}
}

func Validate(reg Registry) error {
	if len(reg.Sites) == 0 {
		return fmt.Errorf("registry has no sites")
	}
	seen := make(map[string]bool, len(reg.Sites))
	for i, s := range reg.Sites {
		if err := validateSite(s); err != nil {
			return fmt.Errorf("site[%d] invalid: %w", i, err)
		}
		if seen[s.Code] {
			return fmt.Errorf("site[%d] invalid: duplicate code %q", i, s.Code)
		}
		seen[s.Code] = true
	}
	if reg.PrimarySite != "" && !seen[reg.PrimarySite] {
		return fmt.Errorf("primary_site %q is not a configured site", reg.PrimarySite)
	}
	return nil
}

func validateSite(s Site) error {
	if strings.TrimSpace(s.Code) == "" {
		return fmt.Errorf("code is required")
	}
	if strings.TrimSpace(s.Host) == "" {
		return fmt.Errorf("host is required")
	}
	if s.Port <= 0 || s.Port > 65535 {
		return fmt.Errorf("port %d out of range", s.Port)
	}
	if strings.TrimSpace(s.CredentialRef) == "" {
		return fmt.Errorf("credential_ref is required")
	}
	if strings.TrimSpace(s.Context) == "" {
		return fmt.Errorf("context is required")
	}
	if s.PoolSize < 0 {
		return fmt.Errorf("pool_size must not be negative")
	}
	return nil
}
