package main

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/CTAG07/Laxpress/pkg/lax"
	"github.com/natefinch/atomic"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var renderCmd = &cobra.Command{
	Use:   "render <template>",
	Short: "Render one template file with a YAML or JSON context",
	Long: `Renders a single template file. Includes resolve against the template's own
directory. The context file may be YAML or JSON; its top level must be a mapping.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dataPath, _ := cmd.Flags().GetString("data")
		outPath, _ := cmd.Flags().GetString("out")
		tz, _ := cmd.Flags().GetString("tz")
		return renderFile(cmd, args[0], dataPath, outPath, tz)
	},
}

func init() {
	renderCmd.Flags().StringP("data", "d", "", "Context file (YAML or JSON)")
	renderCmd.Flags().StringP("out", "o", "", "Write the output to this file instead of stdout")
	renderCmd.Flags().String("tz", "UTC", "Time zone used by the ago function")
	rootCmd.AddCommand(renderCmd)
}

// loadContext reads a YAML (or JSON) mapping from path. An empty path is an
// empty context.
func loadContext(path string) (map[string]any, error) {
	data := map[string]any{}
	if path == "" {
		return data, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read context file: %w", err)
	}
	if err = yaml.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("failed to parse context file: %w", err)
	}
	if data == nil {
		data = map[string]any{}
	}
	return data, nil
}

func renderFile(cmd *cobra.Command, templatePath, dataPath, outPath, tz string) error {
	logger := newLogger(cmd, "warn")

	source, err := os.ReadFile(templatePath)
	if err != nil {
		return fmt.Errorf("failed to read template: %w", err)
	}
	data, err := loadContext(dataPath)
	if err != nil {
		return err
	}

	cfg := ServerConfig{TimeZone: tz}
	t := lax.New(string(source),
		lax.WithBaseDir(filepath.Dir(templatePath)),
		lax.WithName(filepath.Base(templatePath)),
		lax.WithLogger(logger),
	)
	if err = t.RegisterFunctions(hostFuncs(cfg.Location())); err != nil {
		return err
	}

	var buf bytes.Buffer
	if err = t.Execute(&buf, data); err != nil {
		return fmt.Errorf("failed to render %s: %w", templatePath, err)
	}

	if outPath == "" {
		_, err = io.Copy(cmd.OutOrStdout(), &buf)
		return err
	}
	if err = atomic.WriteFile(outPath, &buf); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	logger.Info("Rendered template", "template", templatePath, "out", outPath)
	return nil
}
