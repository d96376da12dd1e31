package main

import (
	"fmt"
	"os"

	"github.com/cuemby/cassnode/pkg/facts"
	"github.com/cuemby/cassnode/pkg/features"
	"github.com/cuemby/cassnode/pkg/params"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var renderCmd = &cobra.Command{
	Use:   "render -f PARAMS PATH",
	Short: "Print the content cassnode would write to a managed file",
	Long: `Print the rendered content of one managed file, exactly as apply would
write it.

Examples:
  cassnode render -f node.yaml /etc/cassandra/conf/cassandra.yaml
  cassnode render -f node.yaml /etc/cassandra/conf/jvm-server.options`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cat, err := loadCatalog(cmd)
		if err != nil {
			return err
		}
		content, err := cat.RenderedFile(args[0])
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(content)
		return err
	},
}

var factsCmd = &cobra.Command{
	Use:   "facts",
	Short: "Print the host facts cassnode gathers",
	Long: `Print the host facts cassnode gathers. With -f, overrides from the
parameter file are applied and the resulting feature set is printed too.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		root, _ := cmd.Flags().GetString("root")
		filename, _ := cmd.Flags().GetString("file")

		f, err := facts.NewGatherer(root).Gather()
		if err != nil {
			return fmt.Errorf("failed to gather facts: %w", err)
		}

		out := struct {
			Facts    facts.Facts `yaml:"facts"`
			Features []string    `yaml:"features,omitempty"`
		}{Facts: f}

		if filename != "" {
			p, err := params.Load(filename)
			if err != nil {
				return fmt.Errorf("failed to load parameters: %w", err)
			}
			out.Facts = f.Apply(p.Facts)
			for _, feature := range features.Compute(p, out.Facts).List() {
				out.Features = append(out.Features, string(feature))
			}
		}

		enc := yaml.NewEncoder(os.Stdout)
		enc.SetIndent(2)
		if err := enc.Encode(out); err != nil {
			return err
		}
		return enc.Close()
	},
}

func init() {
	renderCmd.Flags().StringP("file", "f", "", "Parameter file, YAML or TOML (required)")
	_ = renderCmd.MarkFlagRequired("file")

	factsCmd.Flags().StringP("file", "f", "", "Parameter file whose fact overrides and features to show")

	rootCmd.AddCommand(renderCmd)
	rootCmd.AddCommand(factsCmd)
}
