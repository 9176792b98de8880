// Command lonelymovie runs the stream extraction server and its companion
// command-line tools.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/lonelymovie/lonelymovie/internal/config"
	"github.com/lonelymovie/lonelymovie/internal/util"
	"github.com/lonelymovie/lonelymovie/internal/version"
)

var (
	v        = config.New()
	settings config.Settings
)

var rootCmd = &cobra.Command{
	Use:           config.Name,
	Short:         "Find the direct media stream behind an embed page",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		// a missing .env is fine
		_ = godotenv.Load(".env")

		file := lo.Must(cmd.Flags().GetString("config"))
		s, err := config.Load(v, file)
		if err != nil {
			return err
		}
		settings = s

		util.SetDebugMode(s.Debug)
		util.InitLogger()
		util.Debug("Configuration loaded", "file", v.ConfigFileUsed(), "addr", s.Addr, "pool", s.Pool.Size)
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, _ []string) {
		version.ShowVersion(cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default ./lonelymovie.toml)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "enable debug logging")
	lo.Must0(v.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug")))
	rootCmd.PersistentFlags().String("profiles", "", "source profile table (default built-in)")
	lo.Must0(v.BindPFlag("profiles_file", rootCmd.PersistentFlags().Lookup("profiles")))
	rootCmd.PersistentFlags().Bool("headful", false, "show the browser windows")

	rootCmd.AddCommand(serveCmd, extractCmd, searchCmd, sourcesCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, util.ErrorHandler(err))
		os.Exit(1)
	}
}

// headless honours --headful over the configured pool setting
func headless(cmd *cobra.Command) bool {
	if lo.Must(cmd.Flags().GetBool("headful")) {
		return false
	}
	return settings.Pool.Headless
}
