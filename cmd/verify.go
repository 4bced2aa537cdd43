package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/andresmejia3/facegate/internal/capture"
	"github.com/andresmejia3/facegate/internal/utils"
	"github.com/andresmejia3/facegate/internal/verify"
	"github.com/andresmejia3/facegate/internal/worker"
	"github.com/spf13/cobra"
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify a live capture against every enrolled user",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		runVerify(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(verifyCmd)
}

func runVerify(ctx context.Context) {
	eng := startEngine(ctx)
	session, err := newSession(ctx, eng)
	if err != nil {
		utils.Die("Failed to set up capture", err, nil)
	}

	res, err := verify.New(session, eng, Gallery).Verify(ctx)
	switch {
	case err == nil:
	case errors.Is(err, capture.ErrCanceled), ctx.Err() != nil:
		fmt.Println("🚫 Verification canceled.")
		return
	case errors.Is(err, capture.ErrDeviceUnavailable):
		utils.Die("Camera unavailable", err, nil)
	case errors.Is(err, worker.ErrEngineDown):
		utils.Die("Face engine stopped", err, engineLogs())
	default:
		utils.Die("Verification failed", err, engineLogs())
	}

	if res.Failed > 0 {
		fmt.Fprintf(os.Stderr, "⚠️  %d of %d comparisons failed and were counted as no match.\n", res.Failed, res.Compared)
	}
	if res.Matched {
		fmt.Printf("✅ Match found: %s\n", res.Identity)
		return
	}
	fmt.Println("❌ No match found.")
}
