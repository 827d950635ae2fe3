package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var execCmd = &cobra.Command{
	Use:   "exec [prompt]",
	Short: "Run a single prompt and exit",
	Long: `Run one prompt through the full tool loop and exit when the
conversation settles. The prompt is taken from the arguments, or from stdin
when no arguments are given.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		prompt := strings.TrimSpace(strings.Join(args, " "))
		if prompt == "" {
			data, err := io.ReadAll(os.Stdin)
			if err != nil {
				return err
			}
			prompt = strings.TrimSpace(string(data))
		}
		if prompt == "" {
			return fmt.Errorf("no prompt given")
		}

		s, err := buildSession(cmd.Context())
		if err != nil {
			return err
		}
		defer s.close()

		return s.dialog.Ask(cmd.Context(), prompt)
	},
}
