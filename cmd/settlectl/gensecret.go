package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"
)

const secretKeyBytesLen = 32

func gensecretCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "gensecret",
		Short: "Print a random hex secret for SECRET_KEY or WEBHOOK_SECRET",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			b := make([]byte, secretKeyBytesLen)
			if _, err := rand.Read(b); err != nil {
				return fmt.Errorf("error while generating secret key: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), hex.EncodeToString(b))
			return nil
		},
	}
}
