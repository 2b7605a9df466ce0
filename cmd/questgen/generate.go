package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/yungbote/questweaver/internal/app"
	"github.com/yungbote/questweaver/internal/domain/quest"
	"github.com/yungbote/questweaver/internal/modules/quest/backend"
	"github.com/yungbote/questweaver/internal/modules/quest/pipeline"
)

type generateFlags struct {
	prompt     string
	difficulty string
	spots      int
	themes     []string
	lat        float64
	lng        float64
	radiusKm   float64
	mode       string
	out        string
	quiet      bool
}

func (f generateFlags) request() quest.QuestGenerationRequest {
	req := quest.QuestGenerationRequest{
		Prompt:     f.prompt,
		Difficulty: quest.Difficulty(f.difficulty),
		SpotCount:  f.spots,
		ThemeTags:  f.themes,
		RadiusKm:   f.radiusKm,
	}
	if f.lat != 0 || f.lng != 0 {
		req.CenterLocation = &quest.LatLng{Lat: f.lat, Lng: f.lng}
	}
	return req
}

func newGenerateCmd() *cobra.Command {
	var f generateFlags
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Run one quest generation and print the result as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			mode, err := backend.ParseMode(f.mode)
			if err != nil {
				return err
			}
			req := f.request()
			if err := req.Validate(); err != nil {
				return err
			}

			cfg, err := app.LoadConfig()
			if err != nil {
				return err
			}
			log, err := app.NewLogger(cfg.LogMode)
			if err != nil {
				return err
			}
			defer log.Sync()

			gen, clients, err := app.NewStandaloneGeneration(cmd.Context(), log, cfg)
			if err != nil {
				return err
			}
			defer clients.Close()

			progress := cmd.ErrOrStderr()
			if f.quiet {
				progress = io.Discard
			}
			out, err := gen.Selector.Generate(cmd.Context(), req, mode, pipeline.Callbacks{
				OnProgress: func(ev quest.ProgressEvent) {
					fmt.Fprintf(progress, "[%3d%%] %s %s\n", ev.Progress, ev.StepName, ev.Message)
				},
			})
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), f.out, out)
		},
	}

	fs := cmd.Flags()
	fs.StringVarP(&f.prompt, "prompt", "p", "", "what the quest should be about (env: QUESTGEN_PROMPT)")
	fs.StringVarP(&f.difficulty, "difficulty", "d", string(quest.DifficultyNormal), "easy, normal or hard (env: QUESTGEN_DIFFICULTY)")
	fs.IntVarP(&f.spots, "spots", "n", 5, "number of stops (env: QUESTGEN_SPOTS)")
	fs.StringSliceVar(&f.themes, "theme", nil, "theme tag, repeatable (env: QUESTGEN_THEME)")
	fs.Float64Var(&f.lat, "lat", 0, "search center latitude (env: QUESTGEN_LAT)")
	fs.Float64Var(&f.lng, "lng", 0, "search center longitude (env: QUESTGEN_LNG)")
	fs.Float64Var(&f.radiusKm, "radius-km", 0, "search radius around the center (env: QUESTGEN_RADIUS_KM)")
	fs.StringVar(&f.mode, "mode", string(backend.ModeAuto), "auto, direct, workflow or temporal (env: QUESTGEN_MODE)")
	fs.StringVarP(&f.out, "out", "o", "", "write JSON to this file instead of stdout (env: QUESTGEN_OUT)")
	fs.BoolVarP(&f.quiet, "quiet", "q", false, "suppress progress output (env: QUESTGEN_QUIET)")
	bindEnv(fs)
	return cmd
}

func writeJSON(stdout io.Writer, path string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')
	if path == "" {
		_, err = stdout.Write(b)
		return err
	}
	return os.WriteFile(path, b, 0o644)
}
