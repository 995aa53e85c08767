// Command retry is a standalone generation loop: it sends one visualization
// prompt, renders the reply, and on renderer failure resubmits the
// diagnostics as a follow-up prompt in the same conversation, up to a fixed
// bound. It is deliberately not wired into the service's job pipeline, which
// stays single-attempt.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"vizgen/internal/infra"
	"vizgen/internal/jobs"
	"vizgen/internal/prompt"
	"vizgen/internal/providers/claude"
	"vizgen/internal/render"
)

const maxIterations = 5

func main() {
	_ = godotenv.Load()

	query := flag.String("query", "Integrate xsinx / (1+cos^2x) in range 0 to pi", "visualization query")
	name := flag.String("name", "", "visualization name")
	theme := flag.String("theme", "Dark", "theme")
	accent := flag.String("accent", "Blue", "accent color")
	resolution := flag.String("resolution", "(1920x1080)", "output resolution")
	flag.Parse()

	cfg, err := infra.LoadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx := context.Background()
	client, err := claude.NewClient(ctx, claude.Options{
		SessionCookie: cfg.SessionCookie,
		BaseURL:       cfg.ClaudeBaseURL,
		Logger:        &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("retry: client construction failed")
	}

	runner, err := render.NewRunner(render.Options{
		PythonBin: cfg.PythonBin,
		MediaDir:  cfg.MediaDir,
		SceneName: cfg.SceneName,
		Workers:   1,
		Logger:    &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("retry: renderer configuration failed")
	}

	req := jobs.Request{
		Query:       *query,
		Name:        *name,
		Theme:       *theme,
		AccentColor: *accent,
		Resolution:  *resolution,
	}
	displayName := req.DisplayName()

	conv, err := client.CreateConversation(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("retry: conversation creation failed")
	}

	send := prompt.Build(req, displayName)
	for i := 1; i <= maxIterations; i++ {
		logger.Info().Int("iteration", i).Msg("retry: sending prompt")
		reply, err := client.SendMessage(ctx, send, conv.UUID, claude.SendOptions{
			Timeout: cfg.SendTimeout,
			Sink:    os.Stdout,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("retry: generation failed")
		}

		out, err := runner.Render(ctx, reply, displayName)
		if err == nil {
			logger.Info().Str("filename", render.OutputName(displayName)).Msg("retry: render succeeded")
			fmt.Println(out)
			return
		}
		logger.Warn().Err(err).Int("iteration", i).Msg("retry: render failed")
		send = prompt.BuildRetry(err.Error())
	}
	logger.Error().Int("iterations", maxIterations).Msg("retry: giving up")
	os.Exit(1)
}
