package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/syndy/cardscan/internal/config"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default config.yaml in the current directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		const path = "config.yaml"

		if _, err := os.Stat(path); err == nil && !initForce {
			return eris.Errorf("%s already exists (use --force to overwrite)", path)
		}

		out, err := yaml.Marshal(defaultConfigTree())
		if err != nil {
			return eris.Wrap(err, "marshal default config")
		}

		header := []byte("# cardscan configuration. Values can also be set via CARDSCAN_* env vars,\n# e.g. CARDSCAN_SCANIUM_KEY.\n")
		if err := os.WriteFile(path, append(header, out...), 0o644); err != nil {
			return eris.Wrapf(err, "write %s", path)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
		return nil
	},
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "overwrite an existing config.yaml")
	rootCmd.AddCommand(initCmd)
}

// defaultConfigTree nests the flat viper defaults so the emitted YAML matches
// the config file layout.
func defaultConfigTree() map[string]any {
	tree := map[string]any{}
	for key, val := range config.Defaults() {
		parts := strings.Split(key, ".")
		node := tree
		for _, p := range parts[:len(parts)-1] {
			child, ok := node[p].(map[string]any)
			if !ok {
				child = map[string]any{}
				node[p] = child
			}
			node = child
		}
		node[parts[len(parts)-1]] = val
	}
	return tree
}
