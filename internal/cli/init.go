package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/docmodel/pkg/docstore"
)

// exampleSchemaYAML is written by init when the schema file does not exist.
const exampleSchemaYAML = `# docmodel models
embedded:
  - name: Author
    properties:
      - {name: name, type: string}
      - {name: email, type: string}
documents:
  - name: Post
    properties:
      - {name: title, type: string}
      - {name: hits, type: integer, default: 0}
      - {name: tags, type: array, default: []}
      - {name: published, type: time}
      - {name: author, type: Author}
`

func (a *app) newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the configuration and initialize storage",
		Long: "Create the configuration directory with config.yaml and an example\n" +
			"schema.yaml when missing, then attach and detach the configured backend.",
		Args: userArgs(cobra.NoArgs),
		RunE: a.runInit,
	}
}

func (a *app) runInit(cmd *cobra.Command, args []string) error {
	if err := os.MkdirAll(a.cfg.ConfigDir, 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	configPath := filepath.Join(a.cfg.ConfigDir, "config.yaml")
	if err := writeIfMissing(configPath, defaultConfigYAML); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := writeIfMissing(a.cfg.SchemaPath, exampleSchemaYAML); err != nil {
		return fmt.Errorf("write schema: %w", err)
	}

	db, err := docstore.Open(a.cfg.storeConfig())
	if err != nil {
		return fmt.Errorf("initialize storage: %w", err)
	}
	if err := db.Detach(); err != nil {
		return fmt.Errorf("finalize storage: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "docmodel initialized (config: %s, backend: %s)\n", a.cfg.ConfigDir, a.cfg.Backend)
	return nil
}

// writeIfMissing creates path with content unless it already exists.
func writeIfMissing(path, content string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(content), 0o644)
}
