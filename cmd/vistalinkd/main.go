package main

import (
	"flag"
	"os"

	"github.com/openvista/vistalink/internal/observability"
	"github.com/openvista/vistalink/internal/registry"
	"github.com/openvista/vistalink/internal/server"
	"github.com/openvista/vistalink/internal/service"
)

func main() {
	cfgPath := flag.String("config", envOr("VISTALINK_CONFIG", "sites.toml"), "site registry file")
	addr := flag.String("listen", envOr("VISTALINK_LISTEN", ":9430"), "http listen address")
	flag.Parse()

	log := observability.InitLogger("vistalinkd")
	observability.RegisterMetrics()

	secrets := registry.EnvSecrets{Prefix: "VISTALINK_CRED_"}
	svc, err := service.New(*cfgPath, secrets, log)
	if err != nil {
		log.Fatal().Err(err).Str("config", *cfgPath).Msg("startup failed")
	}
	defer svc.Close()

	srv := server.New(svc, log, server.WithAPIToken(os.Getenv("VISTALINK_API_TOKEN")))
	if err := srv.Run(*addr); err != nil {
		log.Fatal().Err(err).Msg("http listener failed")
	}
}

func envOr(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}
