// Package render turns generated animation source into video artifacts by
// driving the Manim renderer as a subprocess.
package render

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"regexp"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
)

// ErrNoCode indicates the generated text carried no recognizable code block.
// No subprocess is started in that case.
var ErrNoCode = errors.New("render: no python code block found")

// RenderError reports a renderer subprocess that exited non-zero, carrying
// the combined stdout/stderr diagnostics.
type RenderError struct {
	Output string
	Err    error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render: manim failed: %v: %s", e.Err, strings.TrimSpace(e.Output))
}

func (e *RenderError) Unwrap() error { return e.Err }

var (
	codeBlockRe = regexp.MustCompile("(?s)```python\n(.*?)\n```")
	nonWordRe   = regexp.MustCompile(`\W+`)
)

// maxOutputName bounds the artifact stem passed to the renderer.
const maxOutputName = 20

// ExtractCode returns the contents of the first python-fenced block in text.
func ExtractCode(text string) (string, error) {
	m := codeBlockRe.FindStringSubmatch(text)
	if m == nil {
		return "", ErrNoCode
	}
	return m[1], nil
}

// SanitizeName reduces a caller-supplied visualization name to a
// filesystem-safe token: runs of non-alphanumerics collapse to a single
// underscore, leading/trailing underscores are trimmed, and the result is
// truncated to the renderer's output-name bound.
func SanitizeName(name string) string {
	s := nonWordRe.ReplaceAllString(name, "_")
	s = strings.Trim(s, "_")
	if len(s) > maxOutputName {
		s = strings.Trim(s[:maxOutputName], "_")
	}
	if s == "" {
		s = "scene"
	}
	return s
}

// Options configures a Runner.
type Options struct {
	// PythonBin is the interpreter used to launch manim, e.g. "python" or an
	// absolute path into a virtualenv.
	PythonBin string
	// MediaDir is the renderer's media output root.
	MediaDir string
	// SceneName is the fixed scene entry point the generated code must define.
	SceneName string
	// Workers bounds how many renders run at once.
	Workers int64
	Logger  *zerolog.Logger

	// Exec overrides subprocess execution. Tests use it to avoid invoking a
	// real renderer.
	Exec func(ctx context.Context, name string, args ...string) ([]byte, error)
}

// Runner executes extracted animation code through the external renderer.
// Concurrency is bounded by a weighted semaphore so renders cannot saturate
// the host.
type Runner struct {
	pythonBin string
	mediaDir  string
	sceneName string
	sem       *semaphore.Weighted
	logger    zerolog.Logger
	exec      func(ctx context.Context, name string, args ...string) ([]byte, error)
}

// NewRunner constructs a Runner with defaults filled in.
func NewRunner(opts Options) (*Runner, error) {
	pythonBin := strings.TrimSpace(opts.PythonBin)
	if pythonBin == "" {
		pythonBin = "python"
	}
	mediaDir := strings.TrimSpace(opts.MediaDir)
	if mediaDir == "" {
		return nil, errors.New("render: media dir is required")
	}
	sceneName := strings.TrimSpace(opts.SceneName)
	if sceneName == "" {
		sceneName = "Scene"
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = 4
	}
	var logger zerolog.Logger
	if opts.Logger != nil {
		logger = *opts.Logger
	} else {
		logger = zerolog.New(io.Discard)
	}
	execFn := opts.Exec
	if execFn == nil {
		execFn = func(ctx context.Context, name string, args ...string) ([]byte, error) {
			return exec.CommandContext(ctx, name, args...).CombinedOutput()
		}
	}
	if err := os.MkdirAll(mediaDir, 0o755); err != nil {
		return nil, fmt.Errorf("render: ensure media dir: %w", err)
	}
	return &Runner{
		pythonBin: pythonBin,
		mediaDir:  mediaDir,
		sceneName: sceneName,
		sem:       semaphore.NewWeighted(workers),
		logger:    logger,
		exec:      execFn,
	}, nil
}

// Render extracts the python block from text, writes it to a scratch file and
// invokes the renderer with the sanitized output name. The scratch file is
// removed on every exit path. It returns the combined renderer output on
// success; a non-zero exit surfaces as *RenderError and a missing code block
// as ErrNoCode.
func (r *Runner) Render(ctx context.Context, text, name string) (string, error) {
	code, err := ExtractCode(text)
	if err != nil {
		return "", err
	}
	outputName := SanitizeName(name)

	if err := r.sem.Acquire(ctx, 1); err != nil {
		return "", fmt.Errorf("render: acquire worker: %w", err)
	}
	defer r.sem.Release(1)

	tmp, err := os.CreateTemp("", "vizgen-*.py")
	if err != nil {
		return "", fmt.Errorf("render: create scratch file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.WriteString(code); err != nil {
		tmp.Close()
		return "", fmt.Errorf("render: write scratch file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("render: close scratch file: %w", err)
	}

	args := []string{
		"-m", "manim", "render", tmp.Name(), r.sceneName,
		"-o", outputName,
		"--media_dir", r.mediaDir,
		"--disable_caching",
		"--flush_cache",
		"-v", "ERROR",
		"--progress_bar", "none",
	}
	r.logger.Debug().Str("scene", r.sceneName).Str("output", outputName).Msg("render: invoking manim")

	out, err := r.exec(ctx, r.pythonBin, args...)
	if err != nil {
		return "", &RenderError{Output: string(out), Err: err}
	}
	return string(out), nil
}

// OutputName reports the artifact filename a successful render of name produces.
func OutputName(name string) string {
	return SanitizeName(name) + ".mp4"
}
