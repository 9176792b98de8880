package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/huh/spinner"
	fuzzyfinder "github.com/ktr0731/go-fuzzyfinder"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/lonelymovie/lonelymovie/internal/extract"
	"github.com/lonelymovie/lonelymovie/internal/models"
	"github.com/lonelymovie/lonelymovie/internal/sources"
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search a title, pick it and extract its stream",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()
		a, err := newApp(ctx, headless(cmd))
		if err != nil {
			return err
		}
		defer a.Close()

		query := strings.Join(args, " ")
		var results []models.TitleCandidate
		_ = spinner.New().
			Title(fmt.Sprintf("Searching %q...", query)).
			Type(spinner.Dots).
			Action(func() {
				sctx, scancel := context.WithTimeout(ctx, 20*time.Second)
				defer scancel()
				results = a.titles.Search(sctx, query, 20)
			}).
			Run()

		picked, err := pickTitle(results)
		if err != nil {
			return err
		}
		ref := models.TitleRef{ID: picked.IMDBID, Type: models.MediaTypeMovie}
		if picked.Type == "tv" {
			if ref, err = askEpisode(picked.IMDBID); err != nil {
				return err
			}
		}
		source, err := pickSource(a.registry, ref.Type)
		if err != nil {
			return err
		}

		ectx, ecancel := context.WithTimeout(ctx, settings.Extraction.RequestTimeout)
		defer ecancel()
		out, err := runExtraction(ectx, a.engine, extract.NewRequest(ref, source))
		return printOutcome(cmd.OutOrStdout(), out, err)
	},
}

func pickTitle(results []models.TitleCandidate) (models.TitleCandidate, error) {
	if len(results) == 0 {
		return models.TitleCandidate{}, errors.New("no titles found")
	}
	idx, err := fuzzyfinder.Find(
		results,
		func(i int) string {
			r := results[i]
			if r.Year != "" {
				return fmt.Sprintf("%s (%s) [%s]", r.Title, r.Year, r.Type)
			}
			return fmt.Sprintf("%s [%s]", r.Title, r.Type)
		},
	)
	if err != nil {
		return models.TitleCandidate{}, errors.Wrap(err, "failed to select title with go-fuzzyfinder")
	}
	if idx < 0 || idx >= len(results) {
		return models.TitleCandidate{}, errors.New("invalid index returned by fuzzyfinder")
	}
	return results[idx], nil
}

func askEpisode(id string) (models.TitleRef, error) {
	var season, episode string
	form := huh.NewForm(huh.NewGroup(
		huh.NewInput().Title("Season").Value(&season).Validate(positive),
		huh.NewInput().Title("Episode").Value(&episode).Validate(positive),
	))
	if err := form.Run(); err != nil {
		return models.TitleRef{}, errors.Wrap(err, "episode prompt")
	}
	ref := models.TitleRef{ID: id, Type: models.MediaTypeEpisode}
	_, _ = fmt.Sscan(season, &ref.Season)
	_, _ = fmt.Sscan(episode, &ref.Episode)
	if err := ref.Validate(); err != nil {
		return models.TitleRef{}, err
	}
	return ref, nil
}

func positive(s string) error {
	var n int
	if _, err := fmt.Sscan(s, &n); err != nil || n < 1 {
		return errors.New("enter a number of at least 1")
	}
	return nil
}

// pickSource asks which source to use, listing only those that serve mt
func pickSource(reg *sources.Registry, mt models.MediaType) (string, error) {
	profiles := lo.Filter(reg.All(), func(p sources.Profile, _ int) bool { return p.Supports(mt) })
	if len(profiles) == 0 {
		return "", errors.Errorf("no source serves %s", mt.PublicName())
	}
	choice := reg.Default()
	menu := huh.NewSelect[string]().
		Title("Source").
		Options(lo.Map(profiles, func(p sources.Profile, _ int) huh.Option[string] {
			return huh.NewOption(lo.Ternary(p.Name != "", p.Name, p.ID), p.ID)
		})...).
		Value(&choice)
	if err := menu.Run(); err != nil {
		return "", errors.Wrap(err, "source menu")
	}
	return choice, nil
}
