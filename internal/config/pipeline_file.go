package config

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/Gateworks/gst-gateworks-apps/internal/pipeline"
)

// ErrEmptyPipeline is returned when a pipeline file has no description.
var ErrEmptyPipeline = errors.New("pipeline file contains no description")

// LoadPipelineFile reads a launch description from path. Lines starting
// with '#' are comments; the remaining lines are joined with spaces so a
// long description can be split across lines. The result must parse.
func LoadPipelineFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}

	var parts []string
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts = append(parts, line)
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}

	description := strings.Join(parts, " ")
	if description == "" {
		return "", fmt.Errorf("%s: %w", path, ErrEmptyPipeline)
	}
	if _, err := pipeline.Parse(description); err != nil {
		return "", fmt.Errorf("%s: %w", path, err)
	}
	return description, nil
}

// PipelineOptions are the options that select the launch description.
type PipelineOptions struct {
	UserPipeline string // full description, wins over everything else
	PipelineFile string // file read with LoadPipelineFile
	SrcElement   string // source of the default pipeline
	CapsFilter   string // optional caps after the source
}

// ResolvePipeline returns the launch description to run. builtin reports
// whether the stock template was used; only then is the capture device
// written to the source.
func ResolvePipeline(opts PipelineOptions) (description string, builtin bool, err error) {
	switch {
	case opts.UserPipeline != "":
		if _, err := pipeline.Parse(opts.UserPipeline); err != nil {
			return "", false, err
		}
		return opts.UserPipeline, false, nil
	case opts.PipelineFile != "":
		description, err := LoadPipelineFile(opts.PipelineFile)
		return description, false, err
	}

	src := opts.SrcElement
	if src == "" {
		src = "v4l2src"
	}
	return pipeline.DefaultDescription(src, opts.CapsFilter), true, nil
}
