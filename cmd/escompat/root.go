package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kailas-cloud/escompat/internal/config"
	"github.com/kailas-cloud/escompat/internal/domain/alias"
	"github.com/kailas-cloud/escompat/internal/version"
)

// rootOptions holds global flags for all commands.
type rootOptions struct {
	Env string // config/<env>.yaml
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "escompat",
		Short:         "Compatibility layer between legacy query documents and current Elasticsearch",
		Version:       version.String(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.Env, "env", config.GetEnv(), "configuration environment (config/<env>.yaml)")

	cmd.AddCommand(newServeCommand(opts))
	cmd.AddCommand(newCompileCommand(opts))

	return cmd
}

// newCodec builds the field alias codec from the configured per-kind tables.
func newCodec(cfg config.AliasConfig) (*alias.Codec, error) {
	kinds := make(map[string]alias.Table, len(cfg.Kinds))
	for kind, t := range cfg.Kinds {
		kinds[kind] = alias.Table(t)
	}
	codec, err := alias.New(kinds)
	if err != nil {
		return nil, fmt.Errorf("alias tables: %w", err)
	}
	return codec, nil
}
