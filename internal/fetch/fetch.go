package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"rawbench/internal/archive"
	"rawbench/internal/config"
	"rawbench/internal/logging"
	"rawbench/internal/services"
)

// Request describes one file download.
type Request struct {
	URL    string
	Dest   string
	Header map[string]string
}

// Option configures the fetcher.
type Option func(*Fetcher)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec Executor) Option {
	return func(f *Fetcher) {
		if exec != nil {
			f.exec = exec
		}
	}
}

// WithHTTPClient replaces the client used by the in-process download path.
func WithHTTPClient(client *http.Client) Option {
	return func(f *Fetcher) {
		if client != nil {
			f.client = client
		}
	}
}

// WithLookPath overrides binary discovery (primarily for tests).
func WithLookPath(fn func(string) (string, error)) Option {
	return func(f *Fetcher) {
		if fn != nil {
			f.lookPath = fn
		}
	}
}

// WithProgress renders in-process download progress to w. A nil writer
// disables progress output.
func WithProgress(w io.Writer) Option {
	return func(f *Fetcher) {
		f.progress = w
	}
}

// WithLogger sets the logger used for fallback diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(f *Fetcher) {
		f.logger = logging.NewComponentLogger(logger, "fetch")
	}
}

// WithExternalTools toggles the external tool strategies.
func WithExternalTools(enabled bool) Option {
	return func(f *Fetcher) {
		f.preferExternal = enabled
	}
}

// WithBinaries overrides the external tool names. Empty values keep defaults.
func WithBinaries(wget, unzip, git string) Option {
	return func(f *Fetcher) {
		if wget = strings.TrimSpace(wget); wget != "" {
			f.wget = wget
		}
		if unzip = strings.TrimSpace(unzip); unzip != "" {
			f.unzip = unzip
		}
		if git = strings.TrimSpace(git); git != "" {
			f.git = git
		}
	}
}

// Fetcher downloads files, unpacks zip archives, and clones repositories.
type Fetcher struct {
	wget           string
	unzip          string
	git            string
	preferExternal bool
	client         *http.Client
	exec           Executor
	lookPath       func(string) (string, error)
	progress       io.Writer
	logger         *slog.Logger
}

// New constructs a fetcher that prefers external tools.
func New(opts ...Option) *Fetcher {
	f := &Fetcher{
		wget:           "wget",
		unzip:          "unzip",
		git:            "git",
		preferExternal: true,
		client:         &http.Client{},
		exec:           commandExecutor{},
		lookPath:       exec.LookPath,
		logger:         logging.NewComponentLogger(nil, "fetch"),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// NewFromConfig constructs a fetcher from the fetch configuration section.
// Caller options are applied last.
func NewFromConfig(cfg *config.Config, logger *slog.Logger, opts ...Option) *Fetcher {
	base := []Option{WithLogger(logger)}
	if cfg != nil {
		base = append(base,
			WithBinaries(cfg.WgetBinary(), cfg.UnzipBinary(), cfg.GitBinary()),
			WithExternalTools(cfg.Fetch.PreferExternal),
		)
		if cfg.Fetch.HTTPTimeoutSeconds > 0 {
			base = append(base, WithHTTPClient(&http.Client{
				Timeout: time.Duration(cfg.Fetch.HTTPTimeoutSeconds) * time.Second,
			}))
		}
	}
	return New(append(base, opts...)...)
}

// Download writes the resource at req.URL to req.Dest, overwriting any
// existing file. wget is tried first; the in-process client takes over when
// wget is unavailable or exits non-zero. Both strategies write to a .part file
// renamed into place on success, so req.Dest only ever holds a complete body.
func (f *Fetcher) Download(ctx context.Context, req Request) error {
	if strings.TrimSpace(req.URL) == "" || strings.TrimSpace(req.Dest) == "" {
		return services.Wrap(services.ErrConfiguration, "", "download", "url and destination required", nil)
	}
	if err := os.MkdirAll(filepath.Dir(req.Dest), 0o755); err != nil {
		return fmt.Errorf("create download dir: %w", err)
	}

	part := req.Dest + ".part"
	extErr := f.runExternal(ctx, f.wget, wgetArgs(req, part))
	if extErr == nil {
		if extErr = os.Rename(part, req.Dest); extErr == nil {
			return nil
		}
	}
	_ = os.Remove(part)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	f.noteFallback("download", f.wget, req.URL, extErr)

	httpErr := f.httpDownload(ctx, req)
	if httpErr == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return services.Wrap(services.ErrNetwork, "", "download", req.URL, errors.Join(extErr, httpErr))
}

// Unzip extracts a zip archive into destDir with the unzip tool, or in process
// when the tool is unavailable or fails.
func (f *Fetcher) Unzip(ctx context.Context, archivePath, destDir string) error {
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return fmt.Errorf("create extraction dir: %w", err)
	}
	extErr := f.runExternal(ctx, f.unzip, []string{"-q", "-o", archivePath, "-d", destDir})
	if extErr == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	f.noteFallback("unzip", f.unzip, archivePath, extErr)
	return archive.Extract(ctx, archivePath, archive.FormatZip, destDir)
}

// Clone checks out repoURL into destDir, replacing anything already there.
// When ref is set that branch or tag is checked out instead of the default.
func (f *Fetcher) Clone(ctx context.Context, repoURL, ref, destDir string) error {
	if err := os.RemoveAll(destDir); err != nil {
		return fmt.Errorf("clear clone dir: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(destDir), 0o755); err != nil {
		return fmt.Errorf("create clone parent: %w", err)
	}

	args := []string{"clone", "--depth", "1"}
	if ref = strings.TrimSpace(ref); ref != "" {
		args = append(args, "--branch", ref)
	}
	args = append(args, repoURL, destDir)

	extErr := f.runExternal(ctx, f.git, args)
	if extErr == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	f.noteFallback("clone", f.git, repoURL, extErr)
	if err := os.RemoveAll(destDir); err != nil {
		return fmt.Errorf("clear partial clone: %w", err)
	}

	if err := cloneInProcess(ctx, repoURL, ref, destDir); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return services.Wrap(services.ErrNetwork, "", "clone", repoURL, errors.Join(extErr, err))
	}
	return nil
}

// runExternal reports ErrToolUnavailable when the strategy is disabled or the
// binary cannot be found.
func (f *Fetcher) runExternal(ctx context.Context, binary string, args []string) error {
	if !f.preferExternal {
		return services.Wrap(services.ErrToolUnavailable, "", binary, "external tools disabled", nil)
	}
	if _, err := f.lookPath(binary); err != nil {
		return services.Wrap(services.ErrToolUnavailable, "", binary, "not found on PATH", err)
	}
	var tail []string
	err := f.exec.Run(ctx, binary, args, func(line string) {
		tail = append(tail, line)
		if len(tail) > 5 {
			tail = tail[1:]
		}
		f.logger.Debug("tool output", logging.String("tool", binary), logging.String("line", line))
	})
	if err != nil {
		if len(tail) > 0 {
			return services.Wrap(services.ErrExternalTool, "", binary, strings.Join(tail, " | "), err)
		}
		return services.Wrap(services.ErrExternalTool, "", binary, "", err)
	}
	return nil
}

func (f *Fetcher) noteFallback(operation, binary, target string, cause error) {
	if errors.Is(cause, services.ErrToolUnavailable) {
		f.logger.Debug("external tool unavailable, using in-process fallback",
			logging.String("operation", operation),
			logging.String("tool", binary),
			logging.String("target", target),
		)
		return
	}
	logging.WarnWithContext(f.logger, "external tool failed, using in-process fallback", "fetch_fallback",
		logging.String("operation", operation),
		logging.String("tool", binary),
		logging.String("target", target),
		logging.Error(cause),
		logging.String(logging.FieldErrorHint, "check the tool installation and network connectivity"),
		logging.String(logging.FieldImpact, "slower acquisition via built-in implementation"),
	)
}

func wgetArgs(req Request, dest string) []string {
	args := []string{"-q", "-O", dest}
	keys := make([]string, 0, len(req.Header))
	for k := range req.Header {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		args = append(args, "--header", k+": "+req.Header[k])
	}
	return append(args, req.URL)
}
