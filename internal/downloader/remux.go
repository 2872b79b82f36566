package downloader

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Remuxer repackages a stream into a local file without re-encoding
type Remuxer interface {
	Remux(ctx context.Context, streamURL, outputPath string) error
}

// FFmpegRemuxer shells out to ffmpeg
type FFmpegRemuxer struct {
	Bin string
}

// Args returns the ffmpeg argument list for one remux
func (r FFmpegRemuxer) Args(streamURL, outputPath string) []string {
	return []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-i", streamURL,
		"-c", "copy",
		"-movflags", "+faststart",
		outputPath,
	}
}

// Remux runs ffmpeg and fails on a non-zero exit
func (r FFmpegRemuxer) Remux(ctx context.Context, streamURL, outputPath string) error {
	bin := r.Bin
	if bin == "" {
		bin = "ffmpeg"
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, r.Args(streamURL, outputPath)...)
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("%w: %s", err, lastLine(msg))
		}
		return err
	}
	return nil
}

func lastLine(s string) string {
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}
