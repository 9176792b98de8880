package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/lonelymovie/lonelymovie/internal/models"
	"github.com/lonelymovie/lonelymovie/internal/sources"
	"github.com/lonelymovie/lonelymovie/internal/tracking"
	"github.com/lonelymovie/lonelymovie/internal/util"
)

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List the configured sources and their recorded health",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		reg, err := sources.Load(settings.ProfilesFile)
		if err != nil {
			return err
		}
		health := loadHealth(cmd.Context())

		t := table.New().
			Border(lipgloss.RoundedBorder()).
			BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("#6366F1"))).
			Headers("ID", "NAME", "TYPES", "TIMEOUT", "ATTEMPTS", "SUCCESS")
		for _, p := range reg.All() {
			id := p.ID
			if id == reg.Default() {
				id += " *"
			}
			t.Row(id, p.Name, types(p), p.Timeout.String(), fmt.Sprint(p.Attempts), rate(health, p.ID))
		}
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), util.TitleStyle.Render("Sources")+util.MutedStyle.Render("  * default"))
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), t.Render())
		return nil
	},
}

func types(p sources.Profile) string {
	var out []string
	for _, mt := range []models.MediaType{models.MediaTypeMovie, models.MediaTypeEpisode} {
		if p.Supports(mt) {
			out = append(out, mt.PublicName())
		}
	}
	return strings.Join(out, ",")
}

func loadHealth(ctx context.Context) map[string]tracking.SourceHealth {
	byID := map[string]tracking.SourceHealth{}
	ledger, err := tracking.Open(settings.TrackingDB)
	if err != nil {
		util.Debug("Source health unavailable", "error", err)
		return byID
	}
	defer ledger.Close()
	all, err := ledger.All(ctx)
	if err != nil {
		util.Debug("Reading source health", "error", err)
	}
	for _, h := range all {
		byID[h.SourceID] = h
	}
	return byID
}

func rate(health map[string]tracking.SourceHealth, id string) string {
	h, ok := health[id]
	if !ok || h.Attempts == 0 {
		return util.MutedStyle.Render("n/a")
	}
	return fmt.Sprintf("%.0f%% of %d", h.SuccessRate()*100, h.Attempts)
}
