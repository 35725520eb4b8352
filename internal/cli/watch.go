package cli

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/pkordes/tripsync/backend/internal/domain"
	"github.com/pkordes/tripsync/backend/internal/itinerary"
)

var (
	dayColor      = color.New(color.Bold)
	pendingColor  = color.New(color.FgCyan)
	conflictColor = color.New(color.FgYellow)
	failureColor  = color.New(color.FgRed)
	idColor       = color.New(color.Faint)
)

func watchCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Follow the itinerary live until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := e.store()
			if err != nil {
				return err
			}

			var mu sync.Mutex
			redraw := func() {
				mu.Lock()
				defer mu.Unlock()
				fmt.Fprintf(e.out, "\n--- %s ---\n", time.Now().Format(time.TimeOnly))
				printItinerary(e.out, s)
			}
			defer s.OnChange(redraw)()
			defer s.OnConflict(func(c domain.Conflict) {
				mu.Lock()
				defer mu.Unlock()
				fmt.Fprintln(e.out, conflictColor.Sprint(describeConflict(c)))
			})()
			defer s.OnSyncFailed(func(f domain.SyncFailure) {
				mu.Lock()
				defer mu.Unlock()
				fmt.Fprintln(e.out, failureColor.Sprintf("%s of %q was not saved: %v", f.Kind, f.Attempted.Title, f.Err))
			})()

			g, ctx := errgroup.WithContext(cmd.Context())
			g.Go(func() error { return s.Run(ctx) })
			return g.Wait()
		},
	}
}

func describeConflict(c domain.Conflict) string {
	switch c.Reason {
	case domain.ReasonDeleted:
		return fmt.Sprintf("%q was deleted by someone else; your %s was discarded", c.Attempted.Title, c.Kind)
	case domain.ReasonUnresolved:
		return fmt.Sprintf("your %s of %q was rejected; reloading the itinerary", c.Kind, c.Attempted.Title)
	}
	if c.Current != nil {
		return fmt.Sprintf("%q was changed by someone else; now showing %q (revision %d)", c.Attempted.Title, c.Current.Title, c.Current.Revision)
	}
	return fmt.Sprintf("%q was changed by someone else", c.Attempted.Title)
}

// printItinerary writes the store's items grouped by day, marking items
// whose local edits are not yet confirmed.
func printItinerary(w io.Writer, s *itinerary.Store) {
	groups := s.Groups()
	if len(groups) == 0 {
		fmt.Fprintln(w, "(no items)")
		return
	}
	for _, g := range groups {
		if g.Day == nil {
			fmt.Fprintln(w, dayColor.Sprint("Unscheduled"))
		} else {
			fmt.Fprintln(w, dayColor.Sprint(g.Day.Format("Mon 2 Jan 2006")))
		}
		for _, it := range g.Items {
			fmt.Fprintln(w, formatItem(it, s.State(it.ID)))
		}
	}
}

func formatItem(it domain.ItineraryItem, state itinerary.State) string {
	var b strings.Builder
	b.WriteString("  ")
	b.WriteString(idColor.Sprint(it.ID.String()[:8]))
	b.WriteString("  ")
	b.WriteString(span(it.StartsAt, it.EndsAt))
	b.WriteString(it.Title)
	if it.Location != "" {
		b.WriteString(" @ ")
		b.WriteString(it.Location)
	}
	switch state {
	case itinerary.StateOptimisticPending:
		b.WriteString(" ")
		b.WriteString(pendingColor.Sprint("(saving)"))
	case itinerary.StateConflictPending:
		b.WriteString(" ")
		b.WriteString(conflictColor.Sprint("(conflict)"))
	}
	return b.String()
}

func span(start, end *time.Time) string {
	const width = 13
	var s string
	switch {
	case start != nil && end != nil:
		s = start.Format("15:04") + "-" + end.Format("15:04")
	case start != nil:
		s = start.Format("15:04")
	}
	return s + strings.Repeat(" ", width-len(s))
}
