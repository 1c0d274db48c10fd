package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/emandor/lemme_search/internal/config"
	"github.com/emandor/lemme_search/internal/db"
	"github.com/emandor/lemme_search/internal/tokens"
)

func NewTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage API tokens",
	}
	cmd.AddCommand(newTokenCreateCmd())
	cmd.AddCommand(newTokenSetProviderCmd())
	return cmd
}

func tokenStore() (*tokens.Store, func(), error) {
	cfg := config.Load()
	conn, err := db.Connect(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		return nil, nil, err
	}
	return tokens.NewStore(conn, nil, 0), func() { _ = conn.Close() }, nil
}

func newTokenCreateCmd() *cobra.Command {
	var (
		name  string
		quota int
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a token and print it once",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, closeFn, err := tokenStore()
			if err != nil {
				return err
			}
			defer closeFn()

			plain, tok, err := store.Create(cmd.Context(), name, quota)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "id:    %d\nname:  %s\nquota: %d\ntoken: %s\n", tok.ID, tok.Name, tok.SearchQuota, plain)
			return nil
		},
	}
	cmd.Flags().StringVarP(&name, "name", "n", "", "token label")
	cmd.Flags().IntVarP(&quota, "quota", "q", 0, "search quota, 0 for unlimited")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func newTokenSetProviderCmd() *cobra.Command {
	var (
		token    string
		provider string
		rawCfg   string
		disabled bool
		order    int
	)
	cmd := &cobra.Command{
		Use:     "set-provider",
		Short:   "Store a provider config for a token",
		Example: `  lemme_search token set-provider --token lm_xxx --provider 万能题库 --config '{"token":"abc"}'`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var cfg map[string]any
			if rawCfg != "" {
				if err := json.Unmarshal([]byte(rawCfg), &cfg); err != nil {
					return fmt.Errorf("--config must be a JSON object: %w", err)
				}
			}
			store, closeFn, err := tokenStore()
			if err != nil {
				return err
			}
			defer closeFn()

			tok, err := store.Authenticate(cmd.Context(), token)
			if err != nil {
				return err
			}
			pc := tokens.ProviderConfig{Provider: provider, Config: cfg, Enabled: !disabled, SortOrder: order}
			if err := store.SetProviderConfig(cmd.Context(), tok.ID, pc); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "provider %s saved for token %d\n", provider, tok.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&token, "token", "", "plain API token")
	cmd.Flags().StringVar(&provider, "provider", "", "provider name")
	cmd.Flags().StringVar(&rawCfg, "config", "", "config as a JSON object")
	cmd.Flags().BoolVar(&disabled, "disabled", false, "store the config disabled")
	cmd.Flags().IntVar(&order, "order", 0, "sort order among the token's providers")
	_ = cmd.MarkFlagRequired("token")
	_ = cmd.MarkFlagRequired("provider")
	return cmd
}
