package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/vogtb/go-spreadsheet/packages/formula/internal/config"
	"gopkg.in/yaml.v3"
)

var errConfigExists = errors.New("config file already exists")

func newConfigCmd(opts *rootOptions) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   CmdConfig,
		Short: "Show or generate the configuration",
		Long: `Manage the formulactl configuration file.

Available subcommands:
  show     - Display the effective configuration (default)
  generate - Write the effective configuration to a file

Examples:
  # Show the configuration after --config and flag overrides
  formulactl config --config formulactl.yaml --log-level debug

  # Write the defaults to formulactl.yaml
  formulactl config generate`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return showConfig(cmd, opts)
		},
	}

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Display the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return showConfig(cmd, opts)
		},
	}

	var output string
	var overwrite bool
	generateCmd := &cobra.Command{
		Use:   "generate",
		Short: "Write the effective configuration to a file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if output == "" {
				output = config.DefaultConfigFile
			}
			if _, err := os.Stat(output); err == nil && !overwrite {
				return fmt.Errorf("%w: %s (use --%s)", errConfigExists, output, FlagOverwrite)
			}
			if err := config.Save(opts.config, output); err != nil {
				return err
			}
			opts.logger.Debug("wrote config", "path", output)
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", output)
			return nil
		},
	}
	generateCmd.Flags().StringVarP(&output, FlagOutput, "o", "", "Output file path (default: "+config.DefaultConfigFile+")")
	generateCmd.Flags().BoolVar(&overwrite, FlagOverwrite, false, "Overwrite an existing file")

	configCmd.AddCommand(showCmd, generateCmd)
	return configCmd
}

func showConfig(cmd *cobra.Command, opts *rootOptions) error {
	if opts.formatJSON {
		return writeJSON(cmd.OutOrStdout(), opts.config)
	}
	data, err := yaml.Marshal(opts.config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}
