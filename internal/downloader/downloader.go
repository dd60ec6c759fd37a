package downloader

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
)

// Downloader fetches one media item into a destination directory. The fetch is
// a black box: it either succeeds or returns an error, and it honors ctx
// cancellation.
type Downloader interface {
	Download(ctx context.Context, req Request) error
}

// Request describes one download invocation.
type Request struct {
	Bvid string
	// Dest is the resolved destination directory.
	Dest string
	// Batch enables multi-part mode for items with several sub-items.
	Batch bool
	// NameTemplate overrides the tool's subpath template when set.
	NameTemplate string
}

// YuttoDownloader shells out to the external yutto tool.
type YuttoDownloader struct {
	binary   string
	sessdata string
	logger   *slog.Logger
}

// NewYuttoDownloader creates a subprocess-backed downloader. binary defaults
// to "yutto" when empty.
func NewYuttoDownloader(binary, sessdata string, logger *slog.Logger) *YuttoDownloader {
	if binary == "" {
		binary = "yutto"
	}

	return &YuttoDownloader{
		binary:   binary,
		sessdata: sessdata,
		logger:   logger,
	}
}

// buildArgs assembles the command line for one request.
func (d *YuttoDownloader) buildArgs(req Request) []string {
	args := []string{
		"-d", req.Dest,
		"--no-danmaku",
		"--no-subtitle",
		"--with-metadata",
		"--save-cover",
		"--no-color",
		"--no-progress",
	}
	if d.sessdata != "" {
		args = append(args, "-c", d.sessdata)
	}
	if req.Batch {
		args = append(args, "--batch")
	}
	if req.NameTemplate != "" {
		args = append(args, "--subpath-template", req.NameTemplate)
	}
	args = append(args, fmt.Sprintf("https://www.bilibili.com/video/%s", req.Bvid))
	return args
}

// Download runs the external tool until it exits or ctx expires.
func (d *YuttoDownloader) Download(ctx context.Context, req Request) error {
	if err := os.MkdirAll(req.Dest, 0o755); err != nil {
		return fmt.Errorf("failed to create download directory %s: %w", req.Dest, err)
	}

	args := d.buildArgs(req)

	d.logger.Info("Starting download",
		slog.String("bvid", req.Bvid),
		slog.String("dest", req.Dest),
		slog.Bool("batch", req.Batch),
	)

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, d.binary, args...)
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("download of %s failed: %w (stderr: %s)", req.Bvid, err, stderr.String())
	}

	d.logger.Info("Download finished",
		slog.String("bvid", req.Bvid),
	)

	return nil
}
