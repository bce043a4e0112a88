package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/matsen/refy/internal/config"
)

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configPathCmd)
	configCmd.AddCommand(configSetCmd)
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or change refy settings",
	Long: `Settings are read from the config file, then overridden by REFY_<KEY>
environment variables (also read from a .env file in the working directory).`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !humanOutput {
			return outputJSON(cmd.OutOrStdout(), cfg)
		}
		data, err := cfg.YAML()
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	},
}

// ConfigPathResult is the response for config path.
type ConfigPathResult struct {
	Config  string `json:"config"`
	DataDir string `json:"data_dir"`
	Catalog string `json:"catalog"`
	Model   string `json:"model"`
	Index   string `json:"index"`
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show where refy reads and writes its files",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		result := ConfigPathResult{
			Config:  configFilePath(),
			DataDir: cfg.DataDir,
			Catalog: resolveCatalogPath(),
			Model:   cfg.ModelFilePath(),
			Index:   cfg.IndexFilePath(),
		}
		return writeResult(cmd.OutOrStdout(), result, func(w io.Writer) {
			fmt.Fprintf(w, "Config:  %s\n", result.Config)
			fmt.Fprintf(w, "Data:    %s\n", result.DataDir)
			fmt.Fprintf(w, "Catalog: %s\n", result.Catalog)
			fmt.Fprintf(w, "Model:   %s\n", result.Model)
			fmt.Fprintf(w, "Index:   %s\n", result.Index)
		})
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a key in the config file",
	Long: `Set a key in the config file. Environment overrides are not written
back; only the file's own values and the new key are saved.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configFilePath()
		fileCfg, err := config.Load(path)
		if err != nil {
			return fmt.Errorf("%w: %v", config.ErrInvalidConfig, err)
		}
		if err := fileCfg.Set(args[0], args[1]); err != nil {
			return err
		}
		if err := fileCfg.Validate(); err != nil {
			return err
		}
		if err := fileCfg.Save(path); err != nil {
			return err
		}
		return writeResult(cmd.OutOrStdout(), map[string]string{"status": "saved", "key": args[0], "path": path}, func(w io.Writer) {
			fmt.Fprintf(w, "Set %s in %s\n", args[0], path)
		})
	},
}

// configFilePath returns the --config flag or the default location.
func configFilePath() string {
	if configPath != "" {
		return configPath
	}
	return config.Path()
}
