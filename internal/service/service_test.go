package service_test

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/openvista/vistalink/internal/identity"
	"github.com/openvista/vistalink/internal/protocol"
	"github.com/openvista/vistalink/internal/registry"
	"github.com/openvista/vistalink/internal/service"
	"github.com/openvista/vistalink/internal/testutil/fakesite"
	"github.com/openvista/vistalink/internal/testutil/testlog"
)

func siteScript(dfn string, meds protocol.Response) fakesite.Script {
	return fakesite.Script{
		AccessCode: "doctor.1",
		VerifyCode: "secret#99",
		Contexts:   []string{"OR CPRS GUI CHART"},
		Responses: map[string]protocol.Response{
			identity.ResolveRPC: protocol.ScalarResponse(dfn),
			"ORWPT ID INFO":     protocol.ScalarResponse(dfn + "^666120001^2450301^M^AGGREGATE,PATIENT A"),
			"ORWPS ACTIVE":      meds,
		},
	}
}

func writeConfig(t *testing.T, sites map[string]string) string {
	t.Helper()
	cfg := "primary_site = \"500\"\nbroadcast_deadline_ms = 5000\n"
	for code, addr := range sites {
		host, port, err := net.SplitHostPort(addr)
		if err != nil {
			t.Fatalf("split %q: %v", addr, err)
		}
		cfg += fmt.Sprintf(`
[[sites]]
code = %q
name = "Site %s"
host = %q
port = %s
credential_ref = "shared"
context = "OR CPRS GUI CHART"
pool_size = 2
`, code, code, host, port)
	}
	path := filepath.Join(t.TempDir(), "sites.toml")
	if err := os.WriteFile(path, []byte(cfg), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestServiceAggregatesAcrossLiveSites(t *testing.T) {
	testlog.Start(t)
	siteA := fakesite.Start(t, siteScript("100022",
		protocol.ArrayResponse("11^METFORMIN TAB^500MG^active^3240115")))
	siteB := fakesite.Start(t, siteScript("7218",
		protocol.ArrayResponse("93^METFORMIN TAB^850MG^active^3240115")))

	cfgPath := writeConfig(t, map[string]string{"500": siteA.Addr(), "640": siteB.Addr()})
	secrets := registry.StaticSecrets{
		"shared": {Access: "doctor.1", Verify: "secret#99"},
	}

	svc, err := service.New(cfgPath, secrets, zerolog.Nop())
	if err != nil {
		t.Fatalf("service.New: %v", err)
	}
	defer svc.Close()

	rec, err := svc.Aggregator.Aggregate(context.Background(), "1008714701V416111",
		[]string{"medications"}, svc.Invoker.Sites())
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}

	if rec.Sites["500"] != "100022" || rec.Sites["640"] != "7218" {
		t.Fatalf("resolved sites = %v", rec.Sites)
	}
	if len(rec.Errors) != 0 {
		t.Fatalf("errors = %+v", rec.Errors)
	}
	meds := rec.Domains["medications"]
	if len(meds) != 1 {
		t.Fatalf("medications = %d entries, want 1 merged", len(meds))
	}
	if meds[0].Fields["dosage"] != "500MG" {
		t.Fatalf("dosage = %q, want primary site's", meds[0].Fields["dosage"])
	}
	if len(rec.Conflicts) != 1 || rec.Conflicts[0].Field != "dosage" {
		t.Fatalf("conflicts = %+v", rec.Conflicts)
	}
	if rec.Demographics.Name != "AGGREGATE,PATIENT A" {
		t.Fatalf("demographics = %+v", rec.Demographics)
	}
}

func TestServiceRejectsMissingCredential(t *testing.T) {
	testlog.Start(t)
	siteA := fakesite.Start(t, siteScript("100022", protocol.ArrayResponse()))
	cfgPath := writeConfig(t, map[string]string{"500": siteA.Addr()})

	if _, err := service.New(cfgPath, registry.StaticSecrets{}, zerolog.Nop()); err == nil {
		t.Fatal("missing credential did not fail startup")
	}
}

func TestServiceBadVerifyCodeSurfacesAsAuthError(t *testing.T) {
	testlog.Start(t)
	siteA := fakesite.Start(t, siteScript("100022", protocol.ArrayResponse()))
	cfgPath := writeConfig(t, map[string]string{"500": siteA.Addr()})
	secrets := registry.StaticSecrets{
		"shared": {Access: "doctor.1", Verify: "wrong"},
	}

	svc, err := service.New(cfgPath, secrets, zerolog.Nop())
	if err != nil {
		t.Fatalf("service.New: %v", err)
	}
	defer svc.Close()

	rec, err := svc.Aggregator.Aggregate(context.Background(), "1008714701V416111",
		[]string{"medications"}, svc.Invoker.Sites())
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if len(rec.Errors) == 0 {
		t.Fatal("bad credentials produced no recorded errors")
	}
	for _, se := range rec.Errors {
		if se.Kind != "auth" {
			t.Fatalf("error kind = %q, want auth", se.Kind)
		}
	}
}
