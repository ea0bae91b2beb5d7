package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/sanjayabhattarai/katkut.ai/internal/models"
	"github.com/sanjayabhattarai/katkut.ai/internal/render"
	"github.com/sanjayabhattarai/katkut.ai/internal/timeline"
	"github.com/sanjayabhattarai/katkut.ai/internal/validation"
)

func newStylesCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "styles",
		Short: "List the editing styles",
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog, err := ctx.catalog()
			if err != nil {
				return err
			}
			var rows [][]string
			for _, p := range catalog.Profiles() {
				effect := ""
				if p.Effect != nil {
					effect = p.Effect.Kind
				}
				rows = append(rows, []string{
					p.ID,
					p.Label,
					string(p.Category),
					fmt.Sprintf("%.1f-%.1fs", p.MinCutDuration, p.MaxCutDuration),
					string(p.Transition),
					effect,
				})
			}
			headers := []string{"ID", "Label", "Category", "Cut", "Transition", "Effect"}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(headers, rows, []columnAlignment{alignLeft, alignLeft, alignLeft, alignRight}))
			return nil
		},
	}
}

func newGenerateCommand(ctx *commandContext) *cobra.Command {
	var styleID string
	var seed uint64
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "generate <clips.json|->",
		Short: "Cut a timeline from a JSON list of source clips",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog, err := ctx.catalog()
			if err != nil {
				return err
			}
			var clips []models.SourceClip
			if err := readJSON(cmd, args[0], &clips); err != nil {
				return err
			}
			for i, c := range clips {
				if err := validation.ValidateSourceClip(c); err != nil {
					return fmt.Errorf("clip %d: %v", i, validation.FormatValidationErrors(err))
				}
			}

			gen := timeline.NewGenerator(catalog)
			if cmd.Flags().Changed("seed") {
				gen = timeline.NewSeededGenerator(catalog, seed)
			}
			tl := gen.Generate(clips, styleID)

			if asJSON {
				return writeJSON(cmd.OutOrStdout(), tl)
			}
			fmt.Fprintln(cmd.OutOrStdout(), timelineTable(tl))
			return nil
		},
	}

	cmd.Flags().StringVarP(&styleID, "style", "s", "", "Style id (unknown ids use the first catalog entry)")
	cmd.Flags().Uint64Var(&seed, "seed", 0, "Random seed for a reproducible timeline")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the timeline as JSON")
	return cmd
}

func newAssembleCommand() *cobra.Command {
	var out render.Output

	cmd := &cobra.Command{
		Use:   "assemble <timeline.json|->",
		Short: "Print the render request for a timeline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var tl models.Timeline
			if err := readJSON(cmd, args[0], &tl); err != nil {
				return err
			}
			if !tl.Valid() {
				return fmt.Errorf("timeline is empty or has windows outside their source")
			}
			return writeJSON(cmd.OutOrStdout(), render.Assembler{Output: out}.Assemble(tl))
		},
	}

	cmd.Flags().StringVar(&out.Format, "format", "mp4", "Output container")
	cmd.Flags().StringVar(&out.Resolution, "resolution", "sd", "Output resolution")
	return cmd
}

func timelineTable(tl models.Timeline) string {
	rows := make([][]string, 0, len(tl)+1)
	var at float64
	for i, w := range tl {
		rows = append(rows, []string{
			strconv.Itoa(i + 1),
			w.URL,
			seconds(w.TrimStart),
			seconds(w.TrimDuration),
			seconds(at),
			w.Transition,
		})
		at += w.TrimDuration
	}
	rows = append(rows, []string{"", "total", "", seconds(tl.TotalLength()), "", ""})
	headers := []string{"#", "Source", "Trim start", "Length", "At", "Transition"}
	return renderTable(headers, rows, []columnAlignment{alignRight, alignLeft, alignRight, alignRight, alignRight})
}

func seconds(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64) + "s"
}
