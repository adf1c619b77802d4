package oracle

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/go-git/go-git/v5"
	"go.uber.org/zap"
)

// Workspace strategies.
const (
	StrategyCopy = "copy"
	StrategyGit  = "git"
)

// Sandbox materializes throwaway copies of a project tree so candidates are
// never tested against the live checkout.
type Sandbox struct {
	logger   *zap.Logger
	strategy string
	tempDir  string
	ignore   map[string]struct{}
}

// NewSandbox creates a sandbox using the given strategy. Directories named in
// ignoreDirs are skipped by the copy strategy.
func NewSandbox(strategy, tempDir string, ignoreDirs []string, logger *zap.Logger) *Sandbox {
	if strategy == "" {
		strategy = StrategyCopy
	}
	ignore := make(map[string]struct{}, len(ignoreDirs))
	for _, d := range ignoreDirs {
		ignore[d] = struct{}{}
	}
	return &Sandbox{
		logger:   logger.Named("sandbox"),
		strategy: strategy,
		tempDir:  tempDir,
		ignore:   ignore,
	}
}

// Prepare creates an isolated copy of root and returns its path together with
// a cleanup function that removes it. The cleanup function is never nil when
// err is nil.
func (s *Sandbox) Prepare(ctx context.Context, root string) (workspace string, cleanup func(), err error) {
	info, err := os.Stat(root)
	if err != nil {
		return "", nil, fmt.Errorf("project root is not accessible: %w", err)
	}
	if !info.IsDir() {
		return "", nil, fmt.Errorf("project root %q is not a directory", root)
	}

	tempDir, err := os.MkdirTemp(s.tempDir, "codedoc-oracle-")
	if err != nil {
		return "", nil, fmt.Errorf("could not create temp dir: %w", err)
	}

	cleanupFunc := func() {
		if err := os.RemoveAll(tempDir); err != nil {
			s.logger.Error("Failed to clean up temporary workspace.", zap.String("dir", tempDir), zap.Error(err))
			return
		}
		s.logger.Debug("Temporary workspace cleaned up.", zap.String("dir", tempDir))
	}

	switch s.strategy {
	case StrategyGit:
		err = s.clone(ctx, root, tempDir)
	default:
		err = s.copyTree(ctx, root, tempDir)
	}
	if err != nil {
		cleanupFunc()
		return "", nil, err
	}

	s.logger.Debug("Workspace created.", zap.String("path", tempDir), zap.String("strategy", s.strategy))
	return tempDir, cleanupFunc, nil
}

// clone checks out the committed state of the repository at root. Untracked
// and modified files are not part of the workspace.
func (s *Sandbox) clone(ctx context.Context, root, dst string) error {
	_, err := git.PlainCloneContext(ctx, dst, false, &git.CloneOptions{
		URL: root,
	})
	if err != nil {
		return fmt.Errorf("failed to clone source repository: %w", err)
	}
	return nil
}

func (s *Sandbox) copyTree(ctx context.Context, root, dst string) error {
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		target := filepath.Join(dst, rel)

		if d.IsDir() {
			if _, skip := s.ignore[d.Name()]; skip {
				return filepath.SkipDir
			}
			return os.MkdirAll(target, 0o755)
		}

		switch {
		case d.Type()&fs.ModeSymlink != 0:
			link, err := os.Readlink(path)
			if err != nil {
				return err
			}
			return os.Symlink(link, target)
		case d.Type().IsRegular():
			info, err := d.Info()
			if err != nil {
				return err
			}
			return copyFile(path, target, info.Mode().Perm())
		default:
			// Sockets, devices and pipes have no place in a test tree.
			return nil
		}
	})
	if err != nil {
		return fmt.Errorf("failed to copy project tree: %w", err)
	}
	return nil
}

func copyFile(src, dst string, perm fs.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
