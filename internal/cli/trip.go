package cli

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/pkordes/tripsync/backend/internal/domain"
)

func tripCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trip",
		Short: "Manage trips",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "create NAME",
		Short: "Create a trip owned by you",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := e.repo()
			if err != nil {
				return err
			}
			trip, err := repo.CreateTrip(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(e.out, "created trip %s %s\n", trip.ID, trip.Name)
			return nil
		},
	})
	return cmd
}

func memberCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "member",
		Short: "Manage who can see and edit the trip",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "set USER ROLE",
		Short: "Give USER a role on the trip (owner, admin or member)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			tripID, err := e.tripID()
			if err != nil {
				return err
			}
			userID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid user id %q: %w", args[0], err)
			}
			role, err := domain.ParseRole(args[1])
			if err != nil {
				return err
			}
			repo, err := e.repo()
			if err != nil {
				return err
			}
			if err := repo.PutMember(cmd.Context(), tripID, userID, role); err != nil {
				return err
			}
			fmt.Fprintf(e.out, "%s is now %s\n", userID, role)
			return nil
		},
	})
	return cmd
}
