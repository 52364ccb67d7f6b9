// Package workspace manages the scratch container a run writes its
// intermediate and output datasets to.
package workspace

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/sells-group/lrs-events/internal/geoerr"
)

// LayerRefName is the layer reference file kept next to the containers. A
// failed run can leave it behind, so Prepare removes it first.
const LayerRefName = "work_routes_lyr"

// Extension is the scratch container file extension.
const Extension = ".sqlite"

// Options configures Prepare.
type Options struct {
	Root   string
	Prefix string
	// Now stamps the container name. Defaults to time.Now.
	Now func() time.Time
}

// Workspace is an open scratch container.
type Workspace struct {
	root string
	path string
	db   *sql.DB
	log  *zap.Logger

	mu        sync.Mutex
	resources []resource
}

// Prepare validates the workspace root, clears a stale layer reference and
// creates a new container named <prefix>_<YYYYMMDD_HHMM>.sqlite. An existing
// container with the same name is never reused.
func Prepare(ctx context.Context, opts Options) (*Workspace, error) {
	const op = "workspace: prepare"

	if opts.Prefix == "" || strings.ContainsAny(opts.Prefix, `/\`) {
		return nil, geoerr.Errorf(geoerr.InvalidInput, op, "invalid container prefix %q", opts.Prefix)
	}
	if err := checkWritableDir(opts.Root); err != nil {
		return nil, geoerr.New(geoerr.InvalidInput, op, err)
	}

	log := zap.L().With(zap.String("component", "workspace"))

	ref := filepath.Join(opts.Root, LayerRefName)
	switch err := os.Remove(ref); {
	case err == nil:
		log.Warn("removed stale layer reference", zap.String("path", ref))
	case !os.IsNotExist(err):
		return nil, eris.Wrapf(err, "workspace: remove stale layer reference %s", ref)
	}

	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}
	name := ContainerName(opts.Prefix, now())
	path := filepath.Join(opts.Root, name)

	// Claim the name atomically so two runs in the same minute cannot share
	// a container.
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return nil, geoerr.Errorf(geoerr.ContainerExists, op, "%s already exists", path)
		}
		return nil, eris.Wrapf(err, "workspace: create container %s", path)
	}
	_ = f.Close()

	w, err := open(ctx, opts.Root, path)
	if err != nil {
		_ = os.Remove(path)
		return nil, err
	}
	w.log.Info("workspace prepared", zap.String("container", path))
	return w, nil
}

// Open opens an existing container, e.g. one left by a run with cleanup
// disabled.
func Open(ctx context.Context, path string) (*Workspace, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, eris.Wrapf(err, "workspace: stat %s", path)
	}
	if info.IsDir() {
		return nil, geoerr.Errorf(geoerr.InvalidInput, "workspace: open", "%s is a directory", path)
	}
	return open(ctx, filepath.Dir(path), path)
}

func open(ctx context.Context, root, path string) (*Workspace, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrap(err, "workspace: open")
	}
	// One connection keeps pragmas and transactions on the same handle.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "workspace: exec %s", pragma)
		}
	}
	if _, err := db.ExecContext(ctx, migration); err != nil {
		db.Close() //nolint:errcheck
		return nil, eris.Wrap(err, "workspace: migrate")
	}

	return &Workspace{
		root: root,
		path: path,
		db:   db,
		log:  zap.L().With(zap.String("component", "workspace"), zap.String("container", filepath.Base(path))),
	}, nil
}

const migration = `
CREATE TABLE IF NOT EXISTS datasets (
	name       TEXT PRIMARY KEY,
	kind       TEXT NOT NULL,
	role       TEXT NOT NULL DEFAULT 'output',
	count      INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	workflow    TEXT NOT NULL,
	status      TEXT NOT NULL,
	report      TEXT,
	started_at  DATETIME NOT NULL,
	finished_at DATETIME
);
`

// ContainerName formats the container file name for prefix at t.
func ContainerName(prefix string, t time.Time) string {
	return fmt.Sprintf("%s_%s%s", prefix, t.Format("20060102_1504"), Extension)
}

// Path returns the container file path.
func (w *Workspace) Path() string { return w.path }

// Root returns the directory holding the container.
func (w *Workspace) Root() string { return w.root }

// Close closes the container. Pending tracked resources are not released.
func (w *Workspace) Close() error {
	return eris.Wrap(w.db.Close(), "workspace: close")
}

// WriteLayerRef records which dataset the run's route layer points at. The
// file is released by Cleanup.
func (w *Workspace) WriteLayerRef(dataset string) error {
	ref := filepath.Join(w.root, LayerRefName)
	content := fmt.Sprintf("%s|%s\n", w.path, dataset)
	if err := os.WriteFile(ref, []byte(content), 0o644); err != nil {
		return eris.Wrapf(err, "workspace: write layer reference %s", ref)
	}
	w.Track(LayerRefName, func(context.Context) error {
		if err := os.Remove(ref); err != nil && !os.IsNotExist(err) {
			return eris.Wrapf(err, "workspace: remove layer reference %s", ref)
		}
		return nil
	})
	return nil
}

func checkWritableDir(root string) error {
	if root == "" {
		return eris.New("workspace root is empty")
	}
	info, err := os.Stat(root)
	if err != nil {
		return eris.Wrapf(err, "workspace root %s", root)
	}
	if !info.IsDir() {
		return eris.Errorf("workspace root %s is not a directory", root)
	}
	f, err := os.CreateTemp(root, ".lrs-write-check-*")
	if err != nil {
		return eris.Wrapf(err, "workspace root %s is not writable", root)
	}
	name := f.Name()
	_ = f.Close()
	_ = os.Remove(name)
	return nil
}

// ContainerInfo describes a container file found under a root.
type ContainerInfo struct {
	Name    string    `json:"name" yaml:"name"`
	Path    string    `json:"path" yaml:"path"`
	Size    int64     `json:"size" yaml:"size"`
	ModTime time.Time `json:"mod_time" yaml:"mod_time"`
}

// List returns the containers under root whose names start with prefix,
// sorted by name.
func List(root, prefix string) ([]ContainerInfo, error) {
	matches, err := filepath.Glob(filepath.Join(root, prefix+"_*"+Extension))
	if err != nil {
		return nil, eris.Wrap(err, "workspace: list")
	}
	sort.Strings(matches)

	out := make([]ContainerInfo, 0, len(matches))
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil {
			return nil, eris.Wrapf(err, "workspace: stat %s", m)
		}
		if info.IsDir() {
			continue
		}
		out = append(out, ContainerInfo{
			Name:    info.Name(),
			Path:    m,
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}
	return out, nil
}
