package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/andresmejia3/facegate/internal/capture"
	"github.com/andresmejia3/facegate/internal/enroll"
	"github.com/andresmejia3/facegate/internal/utils"
	"github.com/andresmejia3/facegate/internal/worker"
	"github.com/spf13/cobra"
)

var enrollCmd = &cobra.Command{
	Use:   "enroll <name>",
	Short: "Register a user from five head poses",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runEnroll(cmd.Context(), args[0])
	},
}

func init() {
	rootCmd.AddCommand(enrollCmd)
}

func runEnroll(ctx context.Context, name string) {
	name, err := utils.NormalizeIdentityName(name)
	if err != nil {
		utils.Die("Invalid name", err, nil)
	}

	eng := startEngine(ctx)
	session, err := newSession(ctx, eng)
	if err != nil {
		utils.Die("Failed to set up capture", err, nil)
	}

	e := enroll.New(session, Gallery)
	e.Staged = Cfg.Staged

	fmt.Fprintf(os.Stderr, "👤 Enrolling %s (%d poses)\n", name, len(enroll.Poses))
	err = e.Enroll(ctx, name)
	switch {
	case err == nil:
	case errors.Is(err, capture.ErrCanceled), ctx.Err() != nil:
		fmt.Println("🚫 Enrollment canceled.")
		if !Cfg.Staged {
			// Poses accepted before the cancel are not rolled back.
			fmt.Printf("⚠️  Poses captured so far remain in %s\n", Gallery.IdentityDir(name))
		}
	case errors.Is(err, capture.ErrDeviceUnavailable):
		utils.Die("Camera unavailable", err, nil)
	case errors.Is(err, worker.ErrEngineDown):
		utils.Die("Face engine stopped", err, engineLogs())
	default:
		utils.Die("Enrollment failed", err, engineLogs())
	}
}
