package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/andresmejia3/facegate/internal/enroll"
	"github.com/andresmejia3/facegate/internal/gallery"
	"github.com/andresmejia3/facegate/internal/utils"
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all enrolled identities",
	Run: func(cmd *cobra.Command, args []string) {
		runList()
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
}

func runList() {
	identities, err := Gallery.Identities()
	if err != nil {
		utils.Die("Failed to list identities", err, nil)
	}

	if len(identities) == 0 {
		fmt.Printf("No identities found in %s.\n", Gallery.FacesDir())
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "NAME\tPOSES\tMISSING\tUPDATED")
	fmt.Fprintln(w, "----\t-----\t-------\t-------")

	for _, id := range identities {
		updated := "-"
		if info, err := os.Stat(Gallery.IdentityDir(id.Name)); err == nil {
			updated = info.ModTime().Local().Format("2006-01-02 15:04")
		}
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", id.Name, len(id.References), missingPoses(id), updated)
	}
	w.Flush()
}

// missingPoses names the enrollment poses without a reference image, e.g. after a
// canceled enrollment.
func missingPoses(id gallery.Identity) string {
	have := make(map[string]bool, len(id.References))
	for _, ref := range id.References {
		have[strings.TrimSuffix(filepath.Base(ref), filepath.Ext(ref))] = true
	}
	var missing []string
	for _, p := range enroll.Poses {
		if !have[p.Label] {
			missing = append(missing, p.Label)
		}
	}
	if len(missing) == 0 {
		return "-"
	}
	return strings.Join(missing, ",")
}
