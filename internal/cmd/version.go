package cmd

import (
	"runtime"

	"github.com/spf13/cobra"

	"github.com/openhands/ohc/internal/update"
)

// Set at build time via -ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func newVersionCmd() *cobra.Command {
	var check bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: RunE(func(cmd *cobra.Command, _ []string) error {
			var result *update.CheckResult
			if check {
				result = update.CheckForUpdate(cmd.Context(), version)
			}

			if isJSON(cmd) {
				payload := map[string]any{
					"version": version,
					"commit":  commit,
					"date":    date,
					"go":      runtime.Version(),
					"os":      runtime.GOOS,
					"arch":    runtime.GOARCH,
				}
				if result != nil {
					payload["latest_version"] = result.LatestVersion
					payload["update_available"] = result.UpdateAvailable
					if result.UpdateURL != "" {
						payload["update_url"] = result.UpdateURL
					}
				}
				return printJSON(cmd, payload)
			}

			printIfNotQuiet(cmd, "ohc %s (commit %s, built %s, %s %s/%s)\n",
				version, commit, date, runtime.Version(), runtime.GOOS, runtime.GOARCH)
			if check {
				switch {
				case result == nil:
					printIfNotQuiet(cmd, "Update check skipped for development builds.\n")
				case result.UpdateAvailable:
					printIfNotQuiet(cmd, "Update available: %s -> %s\n", result.CurrentVersion, result.LatestVersion)
					if result.UpdateURL != "" {
						printIfNotQuiet(cmd, "  %s\n", result.UpdateURL)
					}
				default:
					printIfNotQuiet(cmd, "%s You are on the latest version.\n", green("✓"))
				}
			}
			return nil
		}),
	}

	cmd.Flags().BoolVar(&check, "check", false, "Check GitHub for a newer release")
	return cmd
}

// Version returns the build version string.
func Version() string {
	return version
}
