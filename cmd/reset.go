package cmd

import (
	"errors"
	"log"

	"github.com/psds-microservice/ticket-bridge/internal/application"
	"github.com/spf13/cobra"
)

var resetYes bool

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete every ticket and message (schema is kept)",
	RunE:  runReset,
}

func init() {
	resetCmd.Flags().BoolVar(&resetYes, "yes", false, "confirm deletion")
}

func runReset(cmd *cobra.Command, args []string) error {
	if !resetYes {
		return errors.New("reset deletes all tickets and messages; pass --yes to confirm")
	}
	cfg, err := loadDBConfig()
	if err != nil {
		return err
	}
	tickets, messages, err := application.Reset(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	log.Printf("reset: removed %d ticket(s), %d message(s)", tickets, messages)
	return nil
}
