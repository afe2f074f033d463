// Package videogen assembles per-token sign clips into a single MP4 under
// a content-addressed cache. The output filename is a pure function of the
// gloss sequence, so regeneration is idempotent and concurrent identical
// requests collapse into one ffmpeg invocation.
package videogen

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"golang.org/x/sync/singleflight"

	"github.com/tafahom/backend/internal/glossary"
)

// Runner executes the external concatenation tool. Split out so tests can
// count invocations without ffmpeg installed.
type Runner interface {
	Run(ctx context.Context, bin string, args ...string) error
}

// ExecRunner shells out.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, bin string, args ...string) error {
	cmd := exec.CommandContext(ctx, bin, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s: %w: %s", bin, err, tail(out, 512))
	}
	return nil
}

// URLCache fronts the disk check with a shared URL lookup. Implementations
// must be safe for concurrent use; misses are cheap so errors degrade to
// misses.
type URLCache interface {
	Get(ctx context.Context, key string) (string, bool)
	Set(ctx context.Context, key, url string)
}

// Assembler renders gloss sequences into videos.
type Assembler struct {
	glossary  *glossary.Glossary
	signsDir  string
	outDir    string
	baseURL   string
	ffmpeg    string
	runner    Runner
	cache     URLCache
	group     singleflight.Group
	log       *slog.Logger
}

type Options struct {
	Glossary      *glossary.Glossary
	MediaRoot     string // holds signs/ and generated/
	PublicBaseURL string // e.g. https://media.example.com/media
	FFmpegBin     string
	Runner        Runner
	Cache         URLCache
	Logger        *slog.Logger
}

func New(opts Options) (*Assembler, error) {
	if opts.FFmpegBin == "" {
		opts.FFmpegBin = "ffmpeg"
	}
	if opts.Runner == nil {
		opts.Runner = ExecRunner{}
	}
	if opts.Cache == nil {
		opts.Cache = nopCache{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	outDir := filepath.Join(opts.MediaRoot, "generated")
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	return &Assembler{
		glossary: opts.Glossary,
		signsDir: filepath.Join(opts.MediaRoot, "signs"),
		outDir:   outDir,
		baseURL:  strings.TrimRight(opts.PublicBaseURL, "/"),
		ffmpeg:   opts.FFmpegBin,
		runner:   opts.Runner,
		cache:    opts.Cache,
		log:      opts.Logger,
	}, nil
}

// Fingerprint is the content address of a gloss sequence: a truncated
// SHA-256 of the joined tokens.
func Fingerprint(tokens []string) string {
	sum := sha256.Sum256([]byte(strings.Join(tokens, "_")))
	return hex.EncodeToString(sum[:])[:32]
}

// Assemble renders the video for a resolved gloss sequence and returns its
// public URL. Cache hits (shared cache or disk) return immediately without
// touching ffmpeg.
func (a *Assembler) Assemble(ctx context.Context, tokens []string) (string, error) {
	if len(tokens) == 0 {
		return "", fmt.Errorf("empty gloss list")
	}

	clips := make([]string, 0, len(tokens))
	for _, token := range tokens {
		token = strings.TrimSpace(token)
		clip, ok := a.glossary.Clip(token)
		if !ok {
			return "", fmt.Errorf("no sign clip for gloss %q", token)
		}
		clips = append(clips, filepath.Join(a.signsDir, clip))
	}

	hash := Fingerprint(tokens)
	outPath := filepath.Join(a.outDir, hash+".mp4")
	url := a.baseURL + "/generated/" + hash + ".mp4"

	if cached, ok := a.cache.Get(ctx, hash); ok {
		return cached, nil
	}
	if _, err := os.Stat(outPath); err == nil {
		a.cache.Set(ctx, hash, url)
		return url, nil
	}

	// Collapse concurrent builds of the same sequence.
	_, err, _ := a.group.Do(hash, func() (any, error) {
		if _, err := os.Stat(outPath); err == nil {
			return nil, nil
		}
		return nil, a.concat(ctx, hash, clips, outPath)
	})
	if err != nil {
		return "", fmt.Errorf("video concat failed: %w", err)
	}

	a.cache.Set(ctx, hash, url)
	return url, nil
}

func (a *Assembler) concat(ctx context.Context, hash string, clips []string, outPath string) error {
	manifest := filepath.Join(os.TempDir(), hash+".txt")
	var b strings.Builder
	for _, clip := range clips {
		fmt.Fprintf(&b, "file '%s'\n", clip)
	}
	if err := os.WriteFile(manifest, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("write concat manifest: %w", err)
	}
	defer os.Remove(manifest)

	err := a.runner.Run(ctx, a.ffmpeg,
		"-y",
		"-f", "concat",
		"-safe", "0",
		"-i", manifest,
		"-vf", "scale=720:1280,fps=30",
		"-c:v", "libx264",
		"-pix_fmt", "yuv420p",
		"-movflags", "+faststart",
		outPath,
	)
	if err != nil {
		// Leave no partial output behind.
		os.Remove(outPath)
		return err
	}

	a.log.Info("sign_video_generated", "hash", hash, "clips", len(clips))
	return nil
}

type nopCache struct{}

func (nopCache) Get(context.Context, string) (string, bool) { return "", false }
func (nopCache) Set(context.Context, string, string)        {}

func tail(b []byte, n int) string {
	if len(b) > n {
		b = b[len(b)-n:]
	}
	return string(b)
}
