// Package cli implements the tripsync command: a device-side client that
// keeps a local itinerary in sync with the API and edits it optimistically.
package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/pkordes/tripsync/backend/internal/client"
	"github.com/pkordes/tripsync/backend/internal/config"
	"github.com/pkordes/tripsync/backend/internal/feed"
	"github.com/pkordes/tripsync/backend/internal/itinerary"
	"github.com/pkordes/tripsync/backend/internal/middleware"
	"github.com/pkordes/tripsync/backend/internal/permission"
)

// env is shared by every subcommand. The root command fills it from the
// environment and persistent flags before any RunE runs.
type env struct {
	cfg    config.ClientConfig
	trip   string
	debug  bool
	out    io.Writer
	logger *slog.Logger
}

// RootCmd returns the tripsync command tree.
func RootCmd() *cobra.Command {
	e := &env{}

	cmd := &cobra.Command{
		Use:   "tripsync",
		Short: "Edit a shared trip itinerary from the terminal",
		Long: `tripsync keeps a local copy of a trip's itinerary in sync with the API.
Edits show up immediately and are confirmed, retried, or rolled back in the
background. Conflicts with other travellers are reported as they happen.

Configuration comes from TRIPSYNC_API_URL and TRIPSYNC_TOKEN, or the flags below.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadClient()
			if err != nil {
				return err
			}
			if f := cmd.Flags().Lookup("api"); f != nil && f.Changed {
				cfg.APIURL = f.Value.String()
			}
			if f := cmd.Flags().Lookup("token"); f != nil && f.Changed {
				cfg.Token = f.Value.String()
			}
			e.cfg = cfg
			e.out = cmd.OutOrStdout()

			level := slog.LevelWarn
			if e.debug {
				level = slog.LevelDebug
			}
			e.logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
			return nil
		},
	}

	cmd.PersistentFlags().String("api", "", "API base URL (default $TRIPSYNC_API_URL)")
	cmd.PersistentFlags().String("token", "", "bearer token (default $TRIPSYNC_TOKEN)")
	cmd.PersistentFlags().StringVar(&e.trip, "trip", os.Getenv("TRIPSYNC_TRIP"), "trip id (default $TRIPSYNC_TRIP)")
	cmd.PersistentFlags().BoolVar(&e.debug, "debug", false, "log sync activity to stderr")

	cmd.AddCommand(listCmd(e))
	cmd.AddCommand(watchCmd(e))
	cmd.AddCommand(addCmd(e))
	cmd.AddCommand(editCmd(e))
	cmd.AddCommand(rmCmd(e))
	cmd.AddCommand(tripCmd(e))
	cmd.AddCommand(memberCmd(e))

	return cmd
}

// repo returns an API client for the configured token.
func (e *env) repo() (*client.HTTPRepository, error) {
	if e.cfg.Token == "" {
		return nil, errors.New("no token: set TRIPSYNC_TOKEN or pass --token")
	}
	return client.New(e.cfg.APIURL, e.cfg.Token), nil
}

func (e *env) tripID() (uuid.UUID, error) {
	if e.trip == "" {
		return uuid.Nil, errors.New("no trip: set TRIPSYNC_TRIP or pass --trip")
	}
	id, err := uuid.Parse(e.trip)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid trip id %q: %w", e.trip, err)
	}
	return id, nil
}

// store assembles a Store for the configured trip and user.
func (e *env) store() (*itinerary.Store, error) {
	tripID, err := e.tripID()
	if err != nil {
		return nil, err
	}
	repo, err := e.repo()
	if err != nil {
		return nil, err
	}
	userID, err := middleware.SubjectUnverified(e.cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("read user from token: %w", err)
	}

	gate := permission.NewGate(repo, permission.NewMemoryCache(), e.cfg.RoleTTL,
		permission.WithLogger(e.logger))
	sub := feed.NewWSSubscriber(e.cfg.APIURL, e.cfg.Token, feed.WithWSLogger(e.logger))

	return itinerary.New(tripID, repo, sub, gate, itinerary.StaticSession(userID),
		itinerary.WithLogger(e.logger),
		itinerary.WithRetry(e.cfg.RetryAttempts, e.cfg.RetryBase),
	), nil
}
