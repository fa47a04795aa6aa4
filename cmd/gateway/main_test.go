// cmd/gateway/main_test.go
package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gotest.tools/v3/assert"

	"github.com/tamzrod/modbus-mqtt-gateway/internal/config"
)

func execute(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	assert.NilError(t, cmd.Execute())
	return out.String()
}

func TestVersionCmd(t *testing.T) {
	assert.Equal(t, execute(t, "version"), version+"\n")
}

func TestCatalogCmd(t *testing.T) {
	out := execute(t, "catalog")
	assert.Assert(t, strings.Contains(out, "601\tholding\tfixed1\ttemperature_external"))
	assert.Assert(t, strings.Contains(out, "700\tholding\tbitfield16\tbits_base"))
	assert.Assert(t, strings.Contains(out, "bit 15\tio_burner_7_1"))
}

func TestRun_InvalidConfig(t *testing.T) {
	p := filepath.Join(t.TempDir(), "gateway.yaml")
	assert.NilError(t, os.WriteFile(p, []byte("mqtt:\n  topic: diematic\n"), 0o600))
	t.Setenv(config.EnvFieldbusDev, "")

	err := run(context.Background(), p, "")
	assert.ErrorContains(t, err, "config validation failed")
}

func TestRun_MissingConfig(t *testing.T) {
	err := run(context.Background(), filepath.Join(t.TempDir(), "absent.yaml"), "")
	assert.ErrorContains(t, err, "config load failed")
}

func TestMDNSPort(t *testing.T) {
	assert.Equal(t, mdnsPort(":9100"), 9100)
	assert.Equal(t, mdnsPort("127.0.0.1:8080"), 8080)
}
