package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Load an export document into the local store",
	Long:  "Replaces every collection present in the document. Use - to read from stdin.",
	Args:  cobra.ExactArgs(1),
	RunE:  runImport,
}

func runImport(cmd *cobra.Command, args []string) error {
	var (
		data []byte
		err  error
	)
	if args[0] == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(args[0])
	}
	if err != nil {
		return fmt.Errorf("read import: %w", err)
	}

	_, st, err := loadLocal()
	if err != nil {
		return err
	}
	defer st.Close()

	if !st.ImportData(cmd.Context(), data) {
		return errors.New("invalid export document")
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Import complete")
	return nil
}
