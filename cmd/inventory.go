package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/docprobe/internal/inventory"
	"github.com/JakeFAU/docprobe/internal/storage/local"
)

const uniqueFilenamesFile = "unique-filenames.json"

func newInventoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inventory",
		Short: "Inspect dataset listings",
	}
	cmd.AddCommand(newInventoryUniqueCmd())
	return cmd
}

func newInventoryUniqueCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "unique",
		Short: "Count and merge the filenames of every data-set-*.json listing",
		Args:  cobra.NoArgs,
		RunE:  runInventoryUnique,
	}
	cmd.Flags().String("dir", "", "directory holding the listings (default scan.inventory_dir)")
	cmd.Flags().String("output", "", "report path (default <dir>/unique-filenames.json)")
	return cmd
}

func runInventoryUnique(cmd *cobra.Command, _ []string) error {
	a, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	dir, _ := cmd.Flags().GetString("dir")
	if dir == "" {
		dir = a.Config.Scan.InventoryDir
	}
	output, _ := cmd.Flags().GetString("output")
	if output == "" {
		output = filepath.Join(dir, uniqueFilenamesFile)
	}
	w := cmd.OutOrStdout()
	report, err := inventory.UniqueFilenames(dir)
	if err != nil {
		return err
	}
	total := 0
	for _, fc := range report.Files {
		fmt.Fprintf(w, "%s: %d files\n", fc.File, fc.Count)
		total += fc.Count
	}
	fmt.Fprintf(w, "\nTotal entries: %d\n", total)
	fmt.Fprintf(w, "Unique filenames: %d\n", len(report.Filenames))
	if n := len(report.Filenames); n > 0 {
		fmt.Fprintln(w, "\nFirst files:")
		for _, name := range report.Filenames[:min(foundListLimit, n)] {
			fmt.Fprintf(w, "  %s\n", name)
		}
	}
	if err := local.WriteJSON(output, report); err != nil {
		return fmt.Errorf("write %s: %w", output, err)
	}
	fmt.Fprintf(w, "\nSaved to: %s\n", output)
	return nil
}
