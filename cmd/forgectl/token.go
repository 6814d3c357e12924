package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"foodforge/internal/meal"
	"foodforge/internal/token"
)

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Encode or decode QR scan payloads",
	}
	cmd.AddCommand(tokenEncodeCmd())
	cmd.AddCommand(tokenDecodeCmd())
	return cmd
}

func tokenEncodeCmd() *cobra.Command {
	var (
		at      string
		pngPath string
		size    int
	)
	cmd := &cobra.Command{
		Use:   "encode [user-id]",
		Short: "Print the QR payload for a user",
		Long: `Print the QR payload a student's code carries.

Examples:
  forgectl token encode 6f1c...
  forgectl token encode 6f1c... --png code.png --size 512`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			issued := time.Now()
			if at != "" {
				parsed, err := time.Parse(time.RFC3339, at)
				if err != nil {
					return fmt.Errorf("--at must be RFC3339: %w", err)
				}
				issued = parsed
			}
			payload, err := token.Encode(args[0], issued)
			if err != nil {
				return err
			}
			if pngPath != "" {
				png, err := token.QRPNG(payload, size)
				if err != nil {
					return err
				}
				if err := os.WriteFile(pngPath, png, 0o644); err != nil {
					return fmt.Errorf("write %s: %w", pngPath, err)
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), payload)
			return nil
		},
	}
	cmd.Flags().StringVar(&at, "at", "", "Issue time (RFC3339), default now")
	cmd.Flags().StringVar(&pngPath, "png", "", "Also write the QR code image to this file")
	cmd.Flags().IntVar(&size, "size", token.DefaultQRSize, "QR image edge in pixels")
	return cmd
}

func tokenDecodeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "decode [payload]",
		Short: "Decode a scanned QR payload",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tok, err := token.Decode(args[0])
			if err != nil {
				return err
			}
			out := struct {
				UserID   string     `json:"user_id"`
				IssuedAt *time.Time `json:"issued_at,omitempty"`
			}{UserID: tok.UserID}
			if !tok.IssuedAt.IsZero() {
				ts := tok.IssuedAt.UTC()
				out.IssuedAt = &ts
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}
}

func classifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "classify [hour]",
		Short: "Show which meal an hour of the day falls in",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hour, err := strconv.Atoi(args[0])
			if err != nil || hour < 0 || hour > 23 {
				return fmt.Errorf("hour must be an integer 0-23, got %q", args[0])
			}
			fmt.Fprintln(cmd.OutOrStdout(), meal.Classify(hour))
			return nil
		},
	}
}
