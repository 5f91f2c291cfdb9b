package ledgerstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gopkg.in/yaml.v3"

	"kubecompat/lib/ledger"
)

var tracer = otel.Tracer("kubecompat/lib/ledgerstore")

var ErrInvalidApp = errors.New("invalid application name")

// Store persists one ledger per application.
type Store interface {
	// Load returns false when no ledger has been written for the app yet.
	Load(ctx context.Context, app string) (ledger.Ledger, bool, error)
	Save(ctx context.Context, app string, l ledger.Ledger) error
	List(ctx context.Context) ([]string, error)
}

// FileStore keeps ledgers as <dir>/<app>.yaml.
type FileStore struct {
	dir string
}

func NewFileStore(dir string) FileStore {
	return FileStore{dir: dir}
}

var appNameRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

func (s FileStore) Path(app string) (string, error) {
	if !appNameRegex.MatchString(app) || strings.Contains(app, "..") {
		return "", fmt.Errorf("%w: %q", ErrInvalidApp, app)
	}
	return filepath.Join(s.dir, app+".yaml"), nil
}

func (s FileStore) Load(ctx context.Context, app string) (ledger.Ledger, bool, error) {
	ctx, span := tracer.Start(ctx, "Load")
	defer span.End()
	span.SetAttributes(attribute.String("app", app))

	path, err := s.Path(app)
	if err != nil {
		return ledger.Ledger{}, false, err
	}

	contents, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		slog.DebugContext(ctx, "no ledger on disk", "app", app, "path", path)
		return ledger.Ledger{}, false, nil
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to read ledger")
		return ledger.Ledger{}, false, err
	}
	if len(bytes.TrimSpace(contents)) == 0 {
		return ledger.Ledger{}, false, nil
	}

	l, err := Decode(contents)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to parse ledger")
		return ledger.Ledger{}, false, fmt.Errorf("parse %s: %w", path, err)
	}
	return l, true, nil
}

// Save writes the ledger to a temporary file in the same directory and
// renames it over the old one, readers never observe a partial ledger.
func (s FileStore) Save(ctx context.Context, app string, l ledger.Ledger) error {
	ctx, span := tracer.Start(ctx, "Save")
	defer span.End()
	span.SetAttributes(
		attribute.String("app", app),
		attribute.Int("versions", len(l.Versions)),
	)

	path, err := s.Path(app)
	if err != nil {
		return err
	}

	contents, err := Encode(l)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to encode ledger")
		return err
	}

	err = os.MkdirAll(s.dir, 0755)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.dir, "."+app+".*.yaml")
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to create temp file")
		return err
	}
	defer os.Remove(tmp.Name())

	_, err = tmp.Write(contents)
	if err != nil {
		tmp.Close()
		return err
	}
	err = tmp.Sync()
	if err != nil {
		tmp.Close()
		return err
	}
	err = tmp.Close()
	if err != nil {
		return err
	}
	err = os.Chmod(tmp.Name(), 0644)
	if err != nil {
		return err
	}

	err = os.Rename(tmp.Name(), path)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to replace ledger")
		return err
	}

	slog.DebugContext(ctx, "wrote ledger", "app", app, "path", path, "versions", len(l.Versions))
	return nil
}

// List returns the names of every application with a ledger on disk.
func (s FileStore) List(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var apps []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || filepath.Ext(name) != ".yaml" {
			continue
		}
		apps = append(apps, strings.TrimSuffix(name, ".yaml"))
	}
	sort.Strings(apps)
	return apps, nil
}

func Decode(contents []byte) (ledger.Ledger, error) {
	var l ledger.Ledger
	err := yaml.Unmarshal(contents, &l)
	if err != nil {
		return ledger.Ledger{}, err
	}
	for i, v := range l.Versions {
		if v.Kube == nil {
			l.Versions[i].Kube = []string{}
		}
	}
	return l, nil
}

func Encode(l ledger.Ledger) ([]byte, error) {
	if l.Versions == nil {
		l.Versions = []ledger.VersionRecord{}
	}

	var buf bytes.Buffer
	encoder := yaml.NewEncoder(&buf)
	encoder.SetIndent(2)
	err := encoder.Encode(l)
	if err != nil {
		return nil, err
	}
	err = encoder.Close()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
