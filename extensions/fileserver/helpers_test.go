package fileserver

import (
	"io"
	"net/netip"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
)

func discardLogger() *logrus.Entry {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logrus.NewEntry(logger)
}

func writeFiles(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func testConfig(root string) Config {
	config := DefaultConfig()
	config.Root = root
	config.Listen = netip.MustParseAddrPort("127.0.0.1:0")
	return config
}

func newTestServer(t *testing.T, config Config) *Server {
	t.Helper()
	s, err := New(config, discardLogger())
	if err != nil {
		t.Fatal(err)
	}
	return s
}
