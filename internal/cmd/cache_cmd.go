package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/openhands/ohc/internal/cache"
)

func newCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the local listing cache",
	}
	cmd.AddCommand(newCacheClearCmd())
	return cmd
}

func newCacheClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Drop cached listings for all servers",
		Long: `Drop cached listings for all servers.

After clearing, position numbers stop working until the next
"ohc conv list". ID and prefix references are unaffected.`,
		Args: cobra.NoArgs,
		RunE: RunE(func(cmd *cobra.Command, _ []string) error {
			dir := resolveCacheDir()
			if dir != "" {
				cache.ClearAll(dir)
			}
			if redisURL := os.Getenv("OHC_CACHE_REDIS_URL"); redisURL != "" {
				cache.ClearAllRedis(redisURL)
			}
			if isJSON(cmd) {
				return printJSON(cmd, map[string]any{"cleared": true})
			}
			printIfNotQuiet(cmd, "Cache cleared.\n")
			return nil
		}),
	}
}
