// Command keepsake-editor compiles an event's contributor clips into a
// single video from the terminal and publishes it for watching. It drives
// the same editing session the interactive editor uses, minus the preview.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/schollz/progressbar/v3"

	"github.com/keepsake/keepsake/internal/compile"
	"github.com/keepsake/keepsake/internal/editor"
	"github.com/keepsake/keepsake/internal/eventapi"
	"github.com/keepsake/keepsake/internal/media"
	"github.com/keepsake/keepsake/internal/playback"
	"github.com/keepsake/keepsake/internal/timeline"
	"github.com/keepsake/keepsake/internal/validate"
)

func main() {
	api := flag.String("api", "http://localhost:8080", "base URL of the keepsake server")
	token := flag.String("token", os.Getenv("KEEPSAKE_TOKEN"), "access token (defaults to KEEPSAKE_TOKEN)")
	eventID := flag.String("event", "", "event to compile")
	ffmpegPath := flag.String("ffmpeg", "ffmpeg", "path to the ffmpeg binary")
	force := flag.Bool("force", false, "recompile even when a compilation is already published")
	verbose := flag.Bool("v", false, "verbose logging")
	flag.Parse()

	if *eventID == "" {
		fmt.Fprintln(os.Stderr, "usage: keepsake-editor -event <id> [-api URL] [-token TOKEN] [extra clips...]")
		os.Exit(2)
	}
	if *token == "" {
		fmt.Fprintln(os.Stderr, "an access token is required: pass -token or set KEEPSAKE_TOKEN")
		os.Exit(2)
	}

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, *api, *token, *eventID, *ffmpegPath, *force, flag.Args(), logger); err != nil {
		fmt.Fprintf(os.Stderr, "keepsake-editor: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, api, token, eventID, ffmpegPath string, force bool, extraClips []string, logger *slog.Logger) error {
	client := eventapi.New(api, token, logger)

	if !force {
		url, exists, err := client.GetCompiled(ctx, eventID)
		if err != nil {
			return fmt.Errorf("check existing compilation: %w", err)
		}
		if exists {
			fmt.Printf("already published: %s\n(use -force to recompile)\n", url)
			return nil
		}
	}

	runner, err := compile.NewRunner(ffmpegPath)
	if err != nil {
		return fmt.Errorf("ffmpeg unavailable: %w", err)
	}
	defer runner.Close()

	registry, err := timeline.NewRegistry(media.NewInspector())
	if err != nil {
		return err
	}
	loader := timeline.NewLoader(registry, client)

	session := editor.NewSession(eventID, registry, playback.Discard{}, compile.NewEngine(runner), client, loader, logger)
	defer session.Close()

	fmt.Println("fetching contributor clips...")
	if err := session.LoadRemoteClips(ctx); err != nil {
		return err
	}

	for _, path := range extraClips {
		if err := addLocalClip(session, path); err != nil {
			return err
		}
	}

	n := registry.Len()
	if n == 0 {
		return fmt.Errorf("event %s has no clips to compile", eventID)
	}
	fmt.Printf("compiling %d clips...\n", n)

	bar := progressbar.NewOptions(100,
		progressbar.OptionSetDescription("Compiling"),
		progressbar.OptionSetWidth(50),
		progressbar.OptionShowCount(),
		progressbar.OptionSetRenderBlankState(true),
	)
	url, err := session.Compile(ctx, func(pct int) {
		_ = bar.Set(pct)
	})
	fmt.Println()
	if err != nil {
		return err
	}

	fmt.Printf("published: %s\n", url)
	return nil
}

// addLocalClip appends a clip that was never uploaded through an invite
// link, e.g. the host's own intro recording.
func addLocalClip(session *editor.Session, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if _, err := session.AddClip(name, validate.MP4ContentType, info.Size(), f); err != nil {
		return fmt.Errorf("add %s: %w", path, err)
	}
	return nil
}
