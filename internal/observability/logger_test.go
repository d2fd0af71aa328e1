package observability

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/openvista/vistalink/internal/logging"
)

func TestInitLoggerTagsProcessLogger(t *testing.T) {
	logging.ConfigureTests()
	var buf bytes.Buffer
	log.Logger = zerolog.New(&buf)

	logger := InitLogger("vistalinkd")
	logger.Info().Msg("boot")

	out := buf.String()
	if !strings.Contains(out, `"app":"vistalinkd"`) {
		t.Fatalf("app tag missing from output: %s", out)
	}
	// the global logger carries the tag too, so components that pull
	// log.Logger inherit it
	log.Info().Msg("inherited")
	if got := buf.String(); strings.Count(got, `"app":"vistalinkd"`) != 2 {
		t.Fatalf("global logger not tagged: %s", got)
	}
}
