// Command racerl trains driving agents on the obstacle track and rolls
// out trained models.
//
// Defaults for the run and video directories and the compute device
// may be set with RACERL_LOG_ROOT, RACERL_VOD_DIR, and RACERL_DEVICE,
// either in the environment or in a .env file.
package main

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	for _, envFile := range []string{".env", "../.env"} {
		if err := godotenv.Load(envFile); err == nil {
			break
		}
	}

	rootCmd := &cobra.Command{
		Use:          "racerl",
		Short:        "Train and roll out driving agents on the obstacle track",
		SilenceUsage: true,
	}
	rootCmd.AddCommand(TrainCommand(), RolloutCommand())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// envDefault returns the value of the environment variable key, or
// fallback if it is unset
func envDefault(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}
