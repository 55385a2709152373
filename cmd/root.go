package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "photolink",
	Short: "Find photos of a person or a jersey number in shared albums",
	Long: `Photolink scans shared photo albums (Google Drive, OneDrive, PhotoPrism or a
local directory) for photos that contain a reference face or a piece of text
such as a name or a jersey number.

Face embeddings and recognized text are cached per image, so repeated scans of
the same album only pay for inference once.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error); overrides LOG_LEVEL")
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}
