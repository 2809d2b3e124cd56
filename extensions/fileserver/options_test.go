package fileserver

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfigFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestReadOptionsYAML(t *testing.T) {
	path := writeConfigFile(t, "config.yaml", `
root: /srv/www
gzip: true
max_connections: 64
read_header_timeout: 5s
idle_timeout: 1m
shutdown_timeout: 2s
metrics_listen: 127.0.0.1:9100
log_level: debug
`)
	options, err := ReadOptions(path)
	if err != nil {
		t.Fatal(err)
	}
	if options.Root != "/srv/www" || !options.Gzip || options.MaxConnections != 64 {
		t.Errorf("unexpected options: %+v", options)
	}
	if options.ReadHeaderTimeout != 5*time.Second || options.IdleTimeout != time.Minute || options.ShutdownTimeout != 2*time.Second {
		t.Errorf("unexpected timeouts: %+v", options.Config)
	}
	if options.MetricsListen != "127.0.0.1:9100" || options.LogLevel != "debug" {
		t.Errorf("unexpected options: %+v", options)
	}
	if options.Listen != DefaultListen || options.ServerName != DefaultServerName {
		t.Errorf("file must not change listen or server name: %+v", options.Config)
	}
}

func TestReadOptionsJSON(t *testing.T) {
	path := writeConfigFile(t, "config.json", `{"root": "public", "max_connections": 8, "log_level": "warn"}`)
	options, err := ReadOptions(path)
	if err != nil {
		t.Fatal(err)
	}
	if options.Root != "public" || options.MaxConnections != 8 || options.LogLevel != "warn" {
		t.Errorf("unexpected options: %+v", options)
	}
}

func TestReadOptionsErrors(t *testing.T) {
	tests := map[string]string{
		"bad level":    "log_level: loud\n",
		"negative":     "max_connections: -4\n",
		"bad duration": "idle_timeout: soon\n",
		"not yaml":     "root: [unterminated\n",
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := ReadOptions(writeConfigFile(t, "config.yaml", content)); err == nil {
				t.Error("expected error")
			}
		})
	}
	if _, err := ReadOptions(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for a missing file")
	}
}
