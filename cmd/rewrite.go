package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/renameio/v2"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/imagesize-intrinsic/internal/imgsize"
)

type rewriteOptions struct {
	out string
}

// pageFile is one HTML file found under a walk root.
type pageFile struct {
	path string
	id   string
}

func newRewriteCmd() *cobra.Command {
	var opts rewriteOptions
	cmd := &cobra.Command{
		Use:   "rewrite [paths...]",
		Short: "Annotate HTML files in place or into an output directory",
		Long: `Walks each path for .html and .htm files, processes every file as one
page of a single run, and writes the result. Files are rewritten in place
unless --out is given. The dimension cache and run report are persisted
once all files are done.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRewrite(cmd.Context(), args, opts)
		},
	}
	cmd.Flags().StringVar(&opts.out, "out", "", "write results under this directory instead of in place")
	return cmd
}

func runRewrite(ctx context.Context, args []string, opts rewriteOptions) error {
	rt, err := resolveSession(ctx)
	if err != nil {
		return err
	}
	if len(args) == 0 {
		args = []string{"."}
	}
	var pages []pageFile
	for _, root := range args {
		found, err := collectPages(root)
		if err != nil {
			return err
		}
		pages = append(pages, found...)
	}

	proc := rt.newProcessor()
	// Errors are per file; the remaining pages keep running.
	var g errgroup.Group
	g.SetLimit(rt.cfg.Concurrency)
	fileErrs := make([]error, len(pages))
	for i, page := range pages {
		g.Go(func() error {
			if err := rewriteFile(ctx, proc, page, opts.out); err != nil {
				rt.logger.Warn("page not rewritten", zap.String("page", page.id), zap.Error(err))
				fileErrs[i] = err
			}
			return nil
		})
	}
	_ = g.Wait()

	totals, err := proc.FinalizeRun(ctx)
	if err != nil {
		rt.logger.Warn("run finalized with errors", zap.Error(err))
	}
	rt.logger.Debug("rewrite finished", zap.Int("files", len(pages)), zap.Int("wrote", totals.Wrote))
	return errors.Join(fileErrs...)
}

// collectPages lists HTML files under root. Page ids are slash paths relative
// to root; a file argument is its own root's only page.
func collectPages(root string) ([]pageFile, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", root, err)
	}
	if !info.IsDir() {
		return []pageFile{{path: root, id: filepath.ToSlash(filepath.Base(root))}}, nil
	}
	var pages []pageFile
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !isHTML(path) {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		pages = append(pages, pageFile{path: path, id: filepath.ToSlash(rel)})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}
	return pages, nil
}

func isHTML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".html", ".htm":
		return true
	default:
		return false
	}
}

func rewriteFile(ctx context.Context, proc imgsize.Processor, page pageFile, outDir string) error {
	data, err := os.ReadFile(page.path)
	if err != nil {
		return fmt.Errorf("read %s: %w", page.path, err)
	}
	out, err := proc.ProcessPage(ctx, page.id, string(data))
	if err != nil {
		return fmt.Errorf("process %s: %w", page.id, err)
	}
	target := page.path
	if outDir != "" {
		target = filepath.Join(outDir, filepath.FromSlash(page.id))
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	} else if out == string(data) {
		return nil
	}
	if err := renameio.WriteFile(target, []byte(out), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", target, err)
	}
	return nil
}
