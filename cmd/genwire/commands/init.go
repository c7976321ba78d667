package commands

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"github.com/syssam/genwire/config"
	"github.com/syssam/genwire/generator"
)

var (
	initForce            bool
	initSchema           []string
	initDocuments        []string
	initPackage          string
	initOutput           string
	initPersistedQueries string
)

var initCmd = &cobra.Command{
	Use:   "init [file]",
	Short: "Write a starter project file",
	Long: `Write a starter genwire.yml project file.

The file names the schema and operation documents of the project and where
the generated code goes. An existing file is kept unless --force is given.

Examples:
  genwire init
  genwire init api/genwire.yml --schema "schema/*.graphqls" --package api`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := config.DefaultFile
		if len(args) > 0 {
			path = args[0]
		}
		if _, err := os.Stat(path); err == nil && !initForce {
			return fmt.Errorf("%s already exists (use --force to overwrite): %w", path, fs.ErrExist)
		} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}

		cfg := &config.Config{
			Schema:           initSchema,
			Documents:        initDocuments,
			Package:          initPackage,
			Output:           initOutput,
			PersistedQueries: initPersistedQueries,
		}
		if err := config.Save(path, cfg); err != nil {
			return err
		}
		cmd.Printf("genwire: wrote %s\n", path)
		return nil
	},
}

func init() {
	initCmd.Flags().BoolVarP(&initForce, "force", "f", false, "overwrite an existing file")
	initCmd.Flags().StringSliceVar(&initSchema, "schema", []string{"schema.graphqls"}, "schema files or patterns")
	initCmd.Flags().StringSliceVar(&initDocuments, "documents", []string{"queries/**/*.graphql"}, "operation documents or patterns")
	initCmd.Flags().StringVar(&initPackage, "package", generator.DefaultPackage, "generated package name")
	initCmd.Flags().StringVar(&initOutput, "output", generator.DefaultPackage, "output directory")
	initCmd.Flags().StringVar(&initPersistedQueries, "persisted-queries", "", "persisted query manifest directory")
	rootCmd.AddCommand(initCmd)
}
