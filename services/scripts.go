package services

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"path"
	"strings"
	"text/template"

	"github.com/alessio/shellescape"
	sprig "github.com/go-task/slim-sprig/v3"

	"github.com/gammadia/flotilla/remote"
)

//go:embed scripts/*.sh.tmpl templates
var assets embed.FS

var scripts = template.Must(template.New("scripts").Funcs(sprig.TxtFuncMap()).ParseFS(assets, "scripts/*.sh.tmpl"))

// DefaultRootDir is where the storage helper puts the root volume data directory.
const DefaultRootDir = "/media/root"

type downloadParams struct {
	URL         string
	Destination string
	SHA512      string
	Attempts    int
	RetryDelay  int
}

type buildParams struct {
	Repository    string
	Commit        string
	Destination   string
	BuildCommands []string
}

// runScript uploads one of the helper scripts to the node and runs it.
func runScript(ctx context.Context, s remote.Session, name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := scripts.ExecuteTemplate(&buf, name+".sh.tmpl", data); err != nil {
		return "", fmt.Errorf("failed to render script '%s': %w", name, err)
	}

	remotePath := fmt.Sprintf("/tmp/flotilla-%s.sh", name)
	if err := s.WriteFile(ctx, buf.Bytes(), remotePath, 0o755); err != nil {
		return "", err
	}

	return s.Run(ctx, "bash "+shellescape.Quote(remotePath))
}

// DiscoverStorage formats and mounts the node's extra block devices if needed and
// returns the resulting layout. Devices that already carry a file system are left as they are.
func DiscoverStorage(ctx context.Context, s remote.Session, rootDir string) (StorageDirs, error) {
	if rootDir == "" {
		rootDir = DefaultRootDir
	}

	out, err := runScript(ctx, s, "setup-storage", struct{ RootDir string }{rootDir})
	if err != nil {
		return StorageDirs{}, fmt.Errorf("failed to set up storage: %w", err)
	}

	var dirs StorageDirs
	if err := json.Unmarshal([]byte(lastLine(out)), &dirs); err != nil {
		return StorageDirs{}, fmt.Errorf("failed to parse storage layout %q: %w", out, err)
	}
	if dirs.Root == "" {
		return StorageDirs{}, fmt.Errorf("storage helper did not report a root directory")
	}

	return dirs, nil
}

// EnsureJava installs a Java runtime unless one is already present on the node.
func EnsureJava(ctx context.Context, s remote.Session, version int) error {
	if _, err := runScript(ctx, s, "ensure-java", struct{ Version int }{version}); err != nil {
		return fmt.Errorf("failed to ensure java %d: %w", version, err)
	}
	return nil
}

// writeConfig renders the service's embedded configuration templates into dir.
func writeConfig(ctx context.Context, s remote.Session, service, dir string, mapping map[string]string, names ...string) error {
	for _, name := range names {
		raw, err := assets.ReadFile(path.Join("templates", service, name))
		if err != nil {
			return fmt.Errorf("missing template '%s/%s': %w", service, name, err)
		}

		if err := s.WriteFile(ctx, []byte(Render(string(raw), mapping)), path.Join(dir, name), 0o644); err != nil {
			return err
		}
	}
	return nil
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return lines[len(lines)-1]
}
