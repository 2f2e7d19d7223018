package cli

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/TwigBush/ordergate/internal/fixtures"
)

func TestReportFixturesKeepsTokenOutOfLogs(t *testing.T) {
	var logs bytes.Buffer
	old := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&logs, nil)))
	t.Cleanup(func() { slog.SetDefault(old) })

	res := &fixtures.Result{Tokens: map[string]string{"admin": "secret-admin-token"}, AdminToken: "secret-admin-token"}

	var out bytes.Buffer
	reportFixtures(&out, res, false)
	if strings.Contains(logs.String(), "secret-admin-token") {
		t.Fatalf("admin token leaked into logs:\n%s", logs.String())
	}
	if out.Len() != 0 {
		t.Fatalf("token printed without --demo: %q", out.String())
	}

	reportFixtures(&out, res, true)
	if strings.Contains(logs.String(), "secret-admin-token") {
		t.Fatalf("admin token leaked into logs:\n%s", logs.String())
	}
	if !strings.Contains(out.String(), "secret-admin-token") {
		t.Fatalf("demo run should print the admin token, got %q", out.String())
	}
}
