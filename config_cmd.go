package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"github.com/HabrielStark/AirSync-Lite-sub000/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and manage configuration",
	}

	cmd.AddCommand(newConfigShowCmd(), newConfigValidateCmd(), newConfigExportCmd(), newConfigImportCmd())

	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Display the effective configuration after defaults and overrides",
		RunE:  runConfigShow,
	}
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())

	if flagJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		return enc.Encode(cc.Cfg)
	}

	return toml.NewEncoder(os.Stdout).Encode(cc.Cfg)
}

func newConfigValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the config file without loading it into a running command",
		RunE:  runConfigValidate,
	}
}

func runConfigValidate(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())

	if err := config.Validate(cc.Cfg); err != nil {
		return err
	}

	statusf(flagQuiet, "config is valid\n")

	return nil
}

func newConfigExportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export <path>",
		Short: "Copy the current config file to path",
		Args:  cobra.ExactArgs(1),
		RunE:  runConfigExport,
	}
}

func runConfigExport(cmd *cobra.Command, args []string) error {
	cc := mustCLIContext(cmd.Context())

	src, err := os.Open(cc.CfgPath)
	if err != nil {
		return fmt.Errorf("opening config: %w", err)
	}
	defer src.Close()

	dst, err := os.Create(args[0])
	if err != nil {
		return fmt.Errorf("creating export file: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("writing export file: %w", err)
	}

	statusf(flagQuiet, "exported config to %s\n", args[0])

	return nil
}

func newConfigImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <path>",
		Short: "Validate path and replace the active config file with it",
		Args:  cobra.ExactArgs(1),
		Annotations: map[string]string{
			skipConfigAnnotation: "true",
		},
		RunE: runConfigImport,
	}
}

func runConfigImport(cmd *cobra.Command, args []string) error {
	logger := buildLogger()

	imported, err := config.Load(args[0], logger)
	if err != nil {
		return fmt.Errorf("loading %s: %w", args[0], err)
	}

	if err := config.Validate(imported); err != nil {
		return fmt.Errorf("%s fails validation: %w", args[0], err)
	}

	env := config.ReadEnvOverrides()
	cfgPath := config.ResolveConfigPath(env, flagConfigPath, logger)

	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("reading %s: %w", args[0], err)
	}

	if err := os.WriteFile(cfgPath, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", cfgPath, err)
	}

	statusf(flagQuiet, "imported config from %s into %s\n", args[0], cfgPath)

	return nil
}
