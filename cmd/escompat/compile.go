package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/kailas-cloud/escompat/internal/config"
	"github.com/kailas-cloud/escompat/internal/domain/query"
)

// compileOptions holds flags for the compile command.
type compileOptions struct {
	*rootOptions
	Type   string
	Pretty bool
}

func newCompileCommand(rootOpts *rootOptions) *cobra.Command {
	opts := &compileOptions{rootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile [query.json]",
		Short: "Compile a legacy query to its canonical bool form",
		Long: `Compile reads a legacy query document from a file or stdin and prints
the canonical query the engine receives. Field renames use the alias
tables of the selected configuration.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.Env)
			if err != nil {
				return err
			}
			codec, err := newCodec(cfg.Alias)
			if err != nil {
				return err
			}

			in := cmd.InOrStdin()
			if len(args) == 1 {
				f, err := os.Open(args[0])
				if err != nil {
					return fmt.Errorf("open query: %w", err)
				}
				defer f.Close()
				in = f
			}
			return compileQuery(in, cmd.OutOrStdout(), query.NewCompiler(codec), opts.Type, opts.Pretty)
		},
	}

	cmd.Flags().StringVarP(&opts.Type, "type", "t", "", "record type owning the query (selects field renames)")
	cmd.Flags().BoolVar(&opts.Pretty, "pretty", false, "indent the output")

	return cmd
}

type queryCompiler interface {
	Compile(input query.Node, ownerType string) (query.Canonical, error)
}

func compileQuery(in io.Reader, out io.Writer, c queryCompiler, kind string, pretty bool) error {
	var q query.Node
	if err := json.NewDecoder(in).Decode(&q); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode query: %w", err)
	}

	canonical, err := c.Compile(q, kind)
	if err != nil {
		return err
	}
	body, err := canonical.JSON()
	if err != nil {
		return err
	}
	if pretty {
		var buf bytes.Buffer
		if err := json.Indent(&buf, body, "", "  "); err != nil {
			return fmt.Errorf("indent: %w", err)
		}
		body = buf.Bytes()
	}
	if _, err := fmt.Fprintln(out, string(body)); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	return nil
}
