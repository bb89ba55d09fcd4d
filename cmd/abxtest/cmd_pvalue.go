package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/satindergrewal/abxtest/internal/abx"
)

func runPValue(cmd *cobra.Command, args []string) error {
	correct, err := strconv.ParseUint(args[0], 10, 32)
	if err != nil {
		return fmt.Errorf("correct: %w", err)
	}
	tries, err := strconv.ParseUint(args[1], 10, 32)
	if err != nil {
		return fmt.Errorf("tries: %w", err)
	}
	p, err := abx.BinomialTestGreater(uint(correct), uint(tries))
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d/%d p=%.3f (%g)\n", correct, tries, p, p)
	return nil
}
