package main

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/Newrona-pi/textgame-chatapp/internal/app"
	"github.com/Newrona-pi/textgame-chatapp/internal/character"
	"github.com/Newrona-pi/textgame-chatapp/internal/config"
	"github.com/Newrona-pi/textgame-chatapp/internal/observability"
	"github.com/Newrona-pi/textgame-chatapp/internal/prompt"
	"github.com/Newrona-pi/textgame-chatapp/internal/protocol"
	"github.com/Newrona-pi/textgame-chatapp/internal/situation"
)

func loadOffline() (config.Config, zerolog.Logger, error) {
	cfg, err := config.LoadOffline(envFile)
	if err != nil {
		return config.Config{}, zerolog.Nop(), err
	}
	return cfg, observability.NewLogger("textgame", cfg.LogLevel, cfg.LogPretty), nil
}

func newRosterCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "roster",
		Short: "Load the character table and list it",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadOffline()
			if err != nil {
				return err
			}
			roster, err := app.LoadRoster(cfg, log)
			if err != nil {
				return err
			}
			return printRoster(cmd.OutOrStdout(), roster)
		},
	}
}

func printRoster(out io.Writer, roster *character.Roster) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tAGE\tPERSONALITY")
	for _, c := range roster.List() {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", c.ID, c.Name, c.Age, c.Personality)
	}
	return tw.Flush()
}

type promptFlags struct {
	kind      string
	affection int
	lat       float64
	lon       float64
	choice    string
	message   string
}

func newPromptCmd() *cobra.Command {
	var f promptFlags
	cmd := &cobra.Command{
		Use:   "prompt <character_id>",
		Short: "Render a generation prompt without calling the model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadOffline()
			if err != nil {
				return err
			}
			roster, err := app.LoadRoster(cfg, log)
			if err != nil {
				return err
			}
			char, err := roster.Get(args[0])
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}

			builder, err := situation.NewBuilder(cfg.Timezone, app.NewResolver(cfg, log, nil))
			if err != nil {
				return err
			}
			var coords *protocol.Coordinates
			if cmd.Flags().Changed("lat") && cmd.Flags().Changed("lon") {
				coords = &protocol.Coordinates{Lat: f.lat, Lon: f.lon}
			}

			in := prompt.Input{
				Character:        char,
				Situation:        builder.Build(cmd.Context(), coords),
				Affection:        f.affection,
				UserChoice:       f.choice,
				CharacterMessage: f.message,
			}
			text, err := renderPrompt(prompt.MustComposer(), f.kind, in)
			if err != nil {
				return err
			}
			_, err = io.WriteString(cmd.OutOrStdout(), text)
			return err
		},
	}
	cmd.Flags().StringVar(&f.kind, "kind", "character", "prompt to render: character|options|dialogue")
	cmd.Flags().IntVar(&f.affection, "affection", 50, "affection level 0-100")
	cmd.Flags().Float64Var(&f.lat, "lat", 0, "latitude")
	cmd.Flags().Float64Var(&f.lon, "lon", 0, "longitude")
	cmd.Flags().StringVar(&f.choice, "choice", "", "option the user picked last")
	cmd.Flags().StringVar(&f.message, "message", "", "character line the options answer")
	return cmd
}

func renderPrompt(c *prompt.Composer, kind string, in prompt.Input) (string, error) {
	switch kind {
	case "character":
		return c.CharacterMessage(in)
	case "options":
		if in.CharacterMessage == "" {
			return "", errors.New("--message is required for options prompts")
		}
		return c.Options(in)
	case "dialogue":
		return c.Dialogue(in)
	default:
		return "", fmt.Errorf("unknown prompt kind %q", kind)
	}
}
