package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"planbridge/internal/config"
	"planbridge/internal/domain"
	"planbridge/internal/remote"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostic checks on the bridge configuration",
		Long: `Verifies that the configuration, API key, and remote computation service
are correctly set up. Reports pass/fail for each check.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("Planbridge Doctor v%s\n", version)
			fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")

			passed := 0
			failed := 0

			// 1. Config loads and validates
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				printFail("Config", err.Error())
				fmt.Printf("\n%d passed, %d failed\n", passed, failed+1)
				return nil
			}
			printPass("Config", resolveConfigPath())
			passed++

			// 2. Credentials present and well-formed
			if err := config.ValidateCredentials(cfg); err != nil {
				printFail("Credentials", err.Error())
				failed++
				fmt.Printf("\n%d passed, %d failed\n", passed, failed)
				return nil
			}
			printPass("Credentials", "API key and base URL configured")
			passed++

			// 3. Remote reachable, key tier
			client := remote.New(remote.Config{
				BaseURL:     cfg.Remote.BaseURL,
				APIKey:      cfg.Remote.APIKey,
				ReadTimeout: time.Duration(cfg.Remote.ReadTimeoutSeconds) * time.Second,
				Logger:      logger,
			})
			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()

			tier, err := client.ProbeTier(ctx)
			switch {
			case err != nil:
				printFail("Remote service", err.Error())
				failed++
			case tier == domain.TierInvalid:
				printFail("API key", "remote service rejected the key")
				failed++
			default:
				printPass("Remote service", cfg.Remote.BaseURL)
				passed++
				printPass("API key tier", string(tier))
				passed++
			}

			fmt.Printf("\n%d passed, %d failed\n", passed, failed)
			return nil
		},
	}
}

func printPass(check, detail string) {
	fmt.Printf("  ✓ %-16s %s\n", check, detail)
}

func printFail(check, detail string) {
	fmt.Printf("  ✗ %-16s %s\n", check, detail)
}
