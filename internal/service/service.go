// Package service wires the runtime stack: site registry in, aggregator
// out. Both the daemon and the CLI build the same stack through here so
// their behavior never drifts.
package service

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/openvista/vistalink/internal/aggregate"
	"github.com/openvista/vistalink/internal/broker"
	"github.com/openvista/vistalink/internal/fanout"
	"github.com/openvista/vistalink/internal/identity"
	"github.com/openvista/vistalink/internal/pool"
	"github.com/openvista/vistalink/internal/registry"
)

// Service is one fully wired runtime: registry, per-site pools behind an
// invoker, identity resolver, and aggregator.
type Service struct {
	Registry   registry.Registry
	Invoker    *fanout.Invoker
	Resolver   *identity.Resolver
	Aggregator *aggregate.Aggregator

	log zerolog.Logger
}

// New loads the site registry at cfgPath and builds the stack on top of
// it. Credentials resolve through secrets at build time so a missing
// credential fails startup, not the first patient request.
func New(cfgPath string, secrets registry.Secrets, log zerolog.Logger) (*Service, error) {
	reg, err := registry.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("service: load registry: %w", err)
	}

	iv := fanout.NewInvoker(log)
	for _, site := range reg.Sites {
		cred, err := secrets.Lookup(site.CredentialRef)
		if err != nil {
			iv.Close()
			return nil, fmt.Errorf("service: site %s: %w", site.Code, err)
		}
		p := pool.New(site.Code, connectionFactory(site, cred, log), pool.Config{
			MaxSize:     site.PoolSize,
			AcquireWait: site.AcquireWait(),
			IdleTTL:     site.IdleTTL(),
		})
		iv.AddSite(site.Code, p, site.CallTimeout())
		log.Info().
			Str("site", site.Code).
			Str("addr", site.Addr()).
			Int("pool_size", site.PoolSize).
			Msg("site registered")
	}

	resolver := identity.NewResolver(iv, reg.BroadcastDeadline(), log)
	agg := aggregate.New(iv, resolver, reg.PrimarySite, log,
		aggregate.WithDeadline(reg.BroadcastDeadline()))

	return &Service{
		Registry:   reg,
		Invoker:    iv,
		Resolver:   resolver,
		Aggregator: agg,
		log:        log,
	}, nil
}

// connectionFactory returns a pool factory that yields fully established
// sessions: connected, authenticated, and scoped to the site's context.
// A connection that cannot finish all three never enters the pool.
func connectionFactory(site registry.Site, cred registry.Credential, log zerolog.Logger) pool.Factory {
	cfg := broker.Config{
		ConnectTimeout:   site.ConnectTimeout(),
		HandshakeTimeout: site.ConnectTimeout(),
		CallTimeout:      site.CallTimeout(),
		WriteTimeout:     site.CallTimeout(),
	}
	return func(ctx context.Context) (pool.Conn, error) {
		c := broker.New(site.Code, site.Addr(), cfg, log)
		if err := c.Connect(ctx); err != nil {
			return nil, err
		}
		if err := c.Login(cred.Access, cred.Verify); err != nil {
			return nil, err
		}
		if err := c.SetContext(site.Context); err != nil {
			c.Disconnect()
			return nil, err
		}
		return c, nil
	}
}

// Close drains every site pool and disconnects their sessions.
func (s *Service) Close() {
	s.Invoker.Close()
}
