package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/andresmejia3/facegate/internal/utils"
	"github.com/spf13/cobra"
)

var cleanYes bool

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove stale scratch files (probe, preview, abandoned staged enrollments)",
	Long:  "Clears everything under <root>/tmp. Enrolled identities are never touched.",
	Run: func(cmd *cobra.Command, args []string) {
		if !cleanYes && !confirm(bufio.NewReader(os.Stdin), os.Stdout, fmt.Sprintf("⚠️  Are you sure you want to delete everything under %s?", Gallery.ScratchDir())) {
			fmt.Println("Aborted.")
			return
		}

		fmt.Println("🗑️  Clearing scratch files...")
		n, err := Gallery.CleanScratch()
		if err != nil {
			utils.Die("Failed to clean scratch directory", err, nil)
		}
		fmt.Printf("✨ Clean complete (%d entries removed).\n", n)
	},
}

func init() {
	cleanCmd.Flags().BoolVarP(&cleanYes, "yes", "y", false, "Do not ask for confirmation")
	rootCmd.AddCommand(cleanCmd)
}

func confirm(r *bufio.Reader, out io.Writer, prompt string) bool {
	fmt.Fprintf(out, "%s [y/N]: ", prompt)
	res, _ := r.ReadString('\n')
	res = strings.TrimSpace(strings.ToLower(res))
	return res == "y" || res == "yes"
}
