package engine

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/fastgit/fgit/internal/download"
	"github.com/fastgit/fgit/internal/repourl"
	"github.com/fastgit/fgit/internal/safety"
)

// downloadArchive fetches <repo>-<branch>.zip from the first ranked mirror
// that serves a valid archive.
func (o *Orchestrator) downloadArchive(ctx context.Context, args []string) (Result, error) {
	if len(args) < 1 {
		return Result{}, fmt.Errorf("download: %w: repository", ErrMissingArgument)
	}
	if o.deps.Fetcher == nil {
		return Result{}, errors.New("download: no fetcher configured")
	}
	canonical := repourl.Normalize(args[0])
	name := archiveName(canonical, o.opts.Branch)
	root := o.opts.WorkDir
	if root == "" {
		root = "."
	}
	destPath, err := safety.SafeJoinUnder(root, name)
	if err != nil {
		return Result{}, fmt.Errorf("download: archive path: %w", err)
	}

	if _, err := os.Stat(destPath); err == nil {
		o.logger.Warn("archive already exists", "path", name)
		return Result{Outcome: Skipped}, nil
	}

	if !o.confirmExists(ctx, canonical, "downloading") {
		return Result{Outcome: Failed}, nil
	}

	ids, err := o.ranking(ctx)
	if err != nil {
		return Result{}, err
	}
	for i, id := range ids {
		if err := cancelled(ctx); err != nil {
			return Result{}, err
		}
		mirrored, err := repourl.Rewrite(canonical, id)
		if err != nil {
			o.logger.Warn("skipping mirror", "mirror", id, "error", err)
			continue
		}
		target := repourl.ArchiveURL(mirrored, o.opts.Branch)
		o.logger.Info("trying mirror", "mirror", id, "attempt", fmt.Sprintf("%d/%d", i+1, len(ids)), "url", target)

		a := o.begin(DownloadCommand, canonical, id, target)
		_, err = o.deps.Fetcher.Fetch(ctx, download.FetchOptions{
			URL:        target,
			DestPath:   destPath,
			ChunkSize:  o.opts.ChunkSize,
			MinSize:    o.opts.MinFileSize,
			OnProgress: o.opts.OnProgress,
		})
		if err == nil {
			o.finish(a, true, 0)
			return Result{Outcome: Succeeded, Route: id}, nil
		}
		if ctx.Err() != nil {
			return Result{}, fmt.Errorf("operation cancelled: %w", ctx.Err())
		}
		o.finish(a, false, 1)
		o.logger.Warn("download failed", "mirror", id, "error", err)
	}

	o.logger.Error("all mirrors failed")
	return Result{Outcome: Failed}, nil
}
