package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	analysis "github.com/zhouzirui/anchor-coach/backend/internal/analysis/stress"
	"github.com/zhouzirui/anchor-coach/backend/internal/service/sensing"
)

func init() {
	rootCmd.AddCommand(vitalsCmd)
	vitalsCmd.Flags().Float64("pulse", 72, "pulse in beats per minute")
	vitalsCmd.Flags().Float64("breathing", 14, "breaths per minute")
}

var vitalsCmd = &cobra.Command{
	Use:   "vitals",
	Short: "Convert raw vitals into a normalized reading and level",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		pulse, _ := cmd.Flags().GetFloat64("pulse")
		breathing, _ := cmd.Flags().GetFloat64("breathing")
		if pulse <= 0 || breathing <= 0 {
			return fmt.Errorf("pulse and breathing must be positive")
		}

		r := sensing.FromVitals(sensing.Vitals{
			Timestamp:        time.Now().UTC(),
			PulseBPM:         pulse,
			BreathsPerMinute: breathing,
		})
		level := analysis.Classify(r.Stress)
		fmt.Fprintf(cmd.OutOrStdout(), "stress=%.2f breathing=%.2f engagement=%.2f level=%s (%s)\n",
			r.Stress, r.Breathing, r.Engagement, level, level.Description())
		return nil
	},
}
