package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/huh/spinner"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/lonelymovie/lonelymovie/internal/extract"
	"github.com/lonelymovie/lonelymovie/internal/models"
	"github.com/lonelymovie/lonelymovie/internal/util"
)

var extractCmd = &cobra.Command{
	Use:   "extract <titleId>",
	Short: "Extract the stream of one title and print it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ref, err := titleFromFlags(cmd, args[0])
		if err != nil {
			return err
		}

		a, err := newApp(cmd.Context(), headless(cmd))
		if err != nil {
			return err
		}
		defer a.Close()
		ctx, cancel := context.WithTimeout(cmd.Context(), settings.Extraction.RequestTimeout)
		defer cancel()

		source := lo.Must(cmd.Flags().GetString("source"))
		if source == "" {
			source = a.registry.Default()
		}
		out, err := runExtraction(ctx, a.engine, extract.NewRequest(ref, source))
		if lo.Must(cmd.Flags().GetBool("json")) {
			return printJSON(cmd.OutOrStdout(), out, err)
		}
		return printOutcome(cmd.OutOrStdout(), out, err)
	},
}

func init() {
	extractFlags(extractCmd)
}

func extractFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("source", "s", "", "source id (default from the profile table)")
	cmd.Flags().StringP("type", "t", "movie", "movie or tv")
	cmd.Flags().Int("season", 0, "season number for tv")
	cmd.Flags().IntP("episode", "e", 0, "episode number for tv")
	cmd.Flags().Bool("json", false, "print the outcome as JSON")
}

func titleFromFlags(cmd *cobra.Command, id string) (models.TitleRef, error) {
	if !models.IsIMDBID(id) {
		return models.TitleRef{}, errors.Errorf("%q is not an IMDb id", id)
	}
	mt, err := models.ParseMediaType(lo.Must(cmd.Flags().GetString("type")))
	if err != nil {
		return models.TitleRef{}, err
	}
	ref := models.TitleRef{ID: id, Type: mt}
	if mt == models.MediaTypeEpisode {
		ref.Season = lo.Must(cmd.Flags().GetInt("season"))
		ref.Episode = lo.Must(cmd.Flags().GetInt("episode"))
	}
	if err := ref.Validate(); err != nil {
		return models.TitleRef{}, err
	}
	return ref, nil
}

// runExtraction shows a spinner while the engine works
func runExtraction(ctx context.Context, engine *extract.Engine, req extract.Request) (out extract.Outcome, err error) {
	action := func() { out, err = engine.Extract(ctx, req) }
	if util.IsDebug {
		// the spinner would hide the log lines
		action()
		return out, err
	}
	if serr := spinner.New().
		Title(fmt.Sprintf("Extracting %s from %s...", req.Title, req.SourceID)).
		Type(spinner.Dots).
		Action(action).
		Run(); serr != nil && err == nil {
		return out, errors.Wrap(serr, "spinner")
	}
	return out, err
}

func printOutcome(w io.Writer, out extract.Outcome, err error) error {
	switch {
	case err != nil && extract.KindOf(err).Degrades():
		_, _ = fmt.Fprintln(w, util.WarningStyle.Render("No direct stream ("+string(extract.KindOf(err))+")"))
		_, _ = fmt.Fprintln(w, "Embed:", out.EmbedURL)
		return nil
	case err != nil:
		return err
	case out.Fallback():
		_, _ = fmt.Fprintln(w, util.WarningStyle.Render("No direct stream detected"))
		_, _ = fmt.Fprintln(w, "Embed:", out.EmbedURL)
		return nil
	}

	d := out.Descriptor
	_, _ = fmt.Fprintln(w, util.SuccessStyle.Render("Found "+d.Subtype.Format()+" stream"))
	_, _ = fmt.Fprintln(w, d.URL)
	for k, val := range d.Headers {
		_, _ = fmt.Fprintln(w, util.MutedStyle.Render(k+": "+val))
	}
	_, _ = fmt.Fprintln(w, util.MutedStyle.Render(fmt.Sprintf("confidence %s, %d attempt(s), %s, cached=%t",
		d.Confidence, out.Attempts, out.Elapsed.Round(time.Millisecond), out.Cached)))
	return nil
}

func printJSON(w io.Writer, out extract.Outcome, err error) error {
	body := map[string]any{"outcome": out}
	if err != nil {
		body["error"] = err.Error()
		body["kind"] = extract.KindOf(err)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(body)
}
