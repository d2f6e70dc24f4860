package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openhands/ohc/internal/config"
	"github.com/openhands/ohc/internal/validation"
)

func newServerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "server",
		Short: "Manage server connections",
	}

	cmd.AddCommand(newServerAddCmd())
	cmd.AddCommand(newServerListCmd())
	cmd.AddCommand(newServerRemoveCmd())
	cmd.AddCommand(newServerSetDefaultCmd())
	cmd.AddCommand(newServerTestCmd())

	return cmd
}

func newServerAddCmd() *cobra.Command {
	var (
		url        string
		apiKey     string
		setDefault bool
	)

	cmd := &cobra.Command{
		Use:   "add NAME",
		Short: "Add a server and store its API key in the system keyring",
		Args:  cobra.ExactArgs(1),
		RunE: RunE(func(cmd *cobra.Command, args []string) error {
			name := args[0]
			baseURL := config.NormalizeBaseURL(url)
			if err := validation.ValidateServerURL(baseURL); err != nil {
				return err
			}

			if err := config.SaveServer(config.Server{
				Name:    name,
				BaseURL: baseURL,
				APIKey:  apiKey,
			}); err != nil {
				return err
			}
			if setDefault {
				if err := config.SetDefaultServer(name); err != nil {
					return err
				}
			}

			if isJSON(cmd) {
				return printJSON(cmd, map[string]any{
					"name":    name,
					"url":     baseURL,
					"api_key": config.MaskKey(apiKey),
				})
			}
			printIfNotQuiet(cmd, "Added server %s (%s)\n", bold(name), baseURL)
			return nil
		}),
	}

	cmd.Flags().StringVar(&url, "url", "", "Server base URL (required)")
	cmd.Flags().StringVar(&apiKey, "api-key", "", "Long-lived API key (required)")
	cmd.Flags().BoolVar(&setDefault, "default", false, "Make this the default server")
	_ = cmd.MarkFlagRequired("url")
	_ = cmd.MarkFlagRequired("api-key")

	return cmd
}

func newServerListCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List configured servers",
		Args:    cobra.NoArgs,
		RunE: RunE(func(cmd *cobra.Command, _ []string) error {
			names, err := config.ListServers()
			if err != nil {
				return err
			}
			defaultName, _ := config.DefaultServerName()

			if isJSON(cmd) {
				servers := make([]map[string]any, 0, len(names))
				for _, name := range names {
					server, err := config.LoadNamedServer(name)
					if err != nil {
						continue
					}
					servers = append(servers, map[string]any{
						"name":    server.Name,
						"url":     server.BaseURL,
						"api_key": config.MaskKey(server.APIKey),
						"default": server.Name == defaultName,
					})
				}
				return printJSON(cmd, servers)
			}

			if len(names) == 0 {
				printIfNotQuiet(cmd, "No servers configured. Run: ohc server add\n")
				return nil
			}

			w := newTabWriterFromCmd(cmd)
			fmt.Fprintln(w, "NAME\tURL\tDEFAULT")
			for _, name := range names {
				server, err := config.LoadNamedServer(name)
				if err != nil {
					continue
				}
				marker := ""
				if name == defaultName {
					marker = "*"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\n", server.Name, server.BaseURL, marker)
			}
			return w.Flush()
		}),
	}
}

func newServerRemoveCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:     "remove NAME",
		Aliases: []string{"rm"},
		Short:   "Remove a server and its stored API key",
		Args:    cobra.ExactArgs(1),
		RunE: RunE(func(cmd *cobra.Command, args []string) error {
			name := args[0]
			ok, err := confirmAction(cmd, confirmOptions{
				Prompt:        fmt.Sprintf("Remove server %q and its API key? [y/N] ", name),
				CancelMessage: "Cancelled.",
				Force:         force,
			})
			if err != nil || !ok {
				return err
			}

			if err := config.DeleteServer(name); err != nil {
				return err
			}
			if isJSON(cmd) {
				return printJSON(cmd, map[string]any{"removed": name})
			}
			printIfNotQuiet(cmd, "Removed server %s\n", name)
			return nil
		}),
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Skip confirmation prompt")
	return cmd
}

func newServerSetDefaultCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-default NAME",
		Short: "Set the default server",
		Args:  cobra.ExactArgs(1),
		RunE: RunE(func(cmd *cobra.Command, args []string) error {
			name := args[0]
			if err := config.SetDefaultServer(name); err != nil {
				return err
			}
			if isJSON(cmd) {
				return printJSON(cmd, map[string]any{"default": name})
			}
			printIfNotQuiet(cmd, "Default server is now %s\n", name)
			return nil
		}),
	}
}

func newServerTestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "test [NAME]",
		Short: "Verify connectivity and credentials for a server",
		Args:  cobra.MaximumNArgs(1),
		RunE: RunE(func(cmd *cobra.Command, args []string) error {
			name := flags.Server
			if len(args) == 1 {
				name = args[0]
			}
			server, err := config.LoadServer(name)
			if err != nil {
				return err
			}

			client := newClientFactory().newClient(server)
			if err := client.Conversations().TestConnection(cmd.Context()); err != nil {
				return err
			}

			if isJSON(cmd) {
				return printJSON(cmd, map[string]any{
					"name": server.Name,
					"url":  server.BaseURL,
					"ok":   true,
				})
			}
			printIfNotQuiet(cmd, "%s Connection to %s OK\n", green("✓"), server.BaseURL)
			return nil
		}),
	}
}
