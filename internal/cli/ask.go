package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var askSession string

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Answer a single question and print the result",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAsk,
}

func init() {
	askCmd.Flags().StringVar(&askSession, "session", "", "session id to continue (a new one is created when empty)")
}

func runAsk(cmd *cobra.Command, args []string) error {
	a, err := newApp(cfg, logger, true)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
	defer cancel()

	res, err := a.brain.Answer(ctx, strings.Join(args, " "), askSession)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, res.Answer)
	fmt.Fprintf(out, "\n(source: %s, session: %s)\n", res.Source, res.SessionID)
	return nil
}
