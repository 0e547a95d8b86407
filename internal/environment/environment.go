// Package environment installs a task's declared runtime packages into an
// ephemeral, per-task location and guarantees their removal on every exit
// path. Installation shells out to `uv venv` + `uv pip install --prefix`.
package environment

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/taskmesh/taskmesh/internal/types"
)

// Handle is a live, acquired environment: SitePackages is the directory a
// task process should prepend to its import search path. A zero-value
// Handle (no packages requested) has an empty SitePackages and Release is
// a no-op.
type Handle struct {
	root         string
	SitePackages string
}

// Installer runs the two external commands needed to materialize an
// environment. Production code uses uvInstaller; tests substitute a fake.
type Installer interface {
	CreateVenv(ctx context.Context, dir string) error
	InstallPackages(ctx context.Context, dir string, packages []string) error
}

type uvInstaller struct {
	offline  bool
	cacheDir string
}

// NewUVInstaller returns an Installer backed by the `uv` binary, configured
// from the FIAB_OFFLINE / FIAB_CACHE environment variables.
func NewUVInstaller() Installer {
	return uvInstaller{
		offline:  os.Getenv("FIAB_OFFLINE") == "YES",
		cacheDir: os.Getenv("FIAB_CACHE"),
	}
}

func (u uvInstaller) CreateVenv(ctx context.Context, dir string) error {
	cmd := exec.CommandContext(ctx, "uv", "venv", dir)
	if out, err := cmd.CombinedOutput(); err != nil {
		return errors.Wrapf(err, "uv venv failed: %s", out)
	}
	return nil
}

func (u uvInstaller) InstallPackages(ctx context.Context, dir string, packages []string) error {
	args := []string{"pip", "install", "--prefix", dir}
	if u.offline {
		args = append(args, "--offline")
	}
	if u.cacheDir != "" {
		args = append(args, "--cache-dir", u.cacheDir)
	}
	args = append(args, dedupe(packages)...)
	cmd := exec.CommandContext(ctx, "uv", args...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return errors.Wrapf(err, "uv pip install failed: %s", out)
	}
	return nil
}

func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, p := range in {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}

// Acquire installs env.Packages (if any) into a fresh temporary directory
// and returns a Handle whose SitePackages a caller should prepend to the
// child process's import path. If env declares no packages, Acquire
// returns immediately with an empty Handle.
func Acquire(ctx context.Context, inst Installer, env types.TaskEnvironment) (Handle, error) {
	if len(env.Packages) == 0 {
		return Handle{}, nil
	}
	dir, err := os.MkdirTemp("", "taskmesh-env-*")
	if err != nil {
		return Handle{}, errors.Wrap(err, "creating environment directory")
	}
	if err := inst.CreateVenv(ctx, dir); err != nil {
		os.RemoveAll(dir)
		return Handle{}, err
	}
	if err := inst.InstallPackages(ctx, dir, dedupe(env.Packages)); err != nil {
		os.RemoveAll(dir)
		return Handle{}, err
	}
	return Handle{
		root:         dir,
		SitePackages: filepath.Join(dir, "lib", "python3.11", "site-packages"),
	}, nil
}

// Release removes the environment's backing directory, if one was
// created. Safe to call on a zero-value Handle and safe to call more than
// once.
func (h Handle) Release() {
	if h.root == "" {
		return
	}
	if err := os.RemoveAll(h.root); err != nil {
		log.Warn().Err(err).Str("dir", h.root).Msg("failed to clean up task environment")
	}
}
