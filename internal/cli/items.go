package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/pkordes/tripsync/backend/internal/domain"
	"github.com/pkordes/tripsync/backend/internal/itinerary"
)

// none clears a date or time field in edit.
const none = "none"

func listCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Print the trip itinerary grouped by day",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := e.store()
			if err != nil {
				return err
			}
			if err := s.Load(cmd.Context()); err != nil {
				return fmt.Errorf("load itinerary: %w", err)
			}
			printItinerary(e.out, s)
			return nil
		},
	}
}

// itemFlags are the editable fields shared by add and edit.
type itemFlags struct {
	title       string
	description string
	location    string
	day         string
	start       string
	end         string
	sort        int
}

func (f *itemFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.title, "title", "", "title")
	cmd.Flags().StringVar(&f.description, "description", "", "free-form notes")
	cmd.Flags().StringVar(&f.location, "location", "", "where it happens")
	cmd.Flags().StringVar(&f.day, "day", "", "day as YYYY-MM-DD")
	cmd.Flags().StringVar(&f.start, "start", "", "start as HH:MM on --day, or RFC 3339")
	cmd.Flags().StringVar(&f.end, "end", "", "end as HH:MM on --day, or RFC 3339")
	cmd.Flags().IntVar(&f.sort, "sort", 0, "position within the day")
}

func addCmd(e *env) *cobra.Command {
	var f itemFlags

	cmd := &cobra.Command{
		Use:   "add TITLE",
		Short: "Add an item to the itinerary",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				f.title = args[0]
			}
			draft, err := f.draft(time.Local)
			if err != nil {
				return err
			}

			s, err := e.store()
			if err != nil {
				return err
			}
			m, err := s.Create(cmd.Context(), draft)
			if err != nil {
				return err
			}
			item, err := m.Wait(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(e.out, "added %s %s\n", item.ID, item.Title)
			return nil
		},
	}
	f.register(cmd)
	return cmd
}

func (f *itemFlags) draft(loc *time.Location) (domain.ItemDraft, error) {
	day, err := parseDay(f.day)
	if err != nil {
		return domain.ItemDraft{}, err
	}
	start, err := parseClock(day, f.start, loc)
	if err != nil {
		return domain.ItemDraft{}, err
	}
	end, err := parseClock(day, f.end, loc)
	if err != nil {
		return domain.ItemDraft{}, err
	}
	return domain.ItemDraft{
		Title:       f.title,
		Description: f.description,
		Location:    f.location,
		DayDate:     day,
		StartsAt:    start,
		EndsAt:      end,
		SortOrder:   f.sort,
	}, nil
}

func editCmd(e *env) *cobra.Command {
	var f itemFlags

	cmd := &cobra.Command{
		Use:   "edit ITEM",
		Short: "Change fields of an item",
		Long: `Change fields of an item. Only the flags given are sent; pass "none" to
--day, --start or --end to clear them. ITEM is an id or a unique id prefix.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := e.store()
			if err != nil {
				return err
			}
			if err := s.Load(cmd.Context()); err != nil {
				return fmt.Errorf("load itinerary: %w", err)
			}
			item, err := findItem(s, args[0])
			if err != nil {
				return err
			}
			patch, err := f.patch(cmd.Flags().Changed, item.DayDate, time.Local)
			if err != nil {
				return err
			}

			m, err := s.Update(cmd.Context(), item.ID, patch)
			if err != nil {
				return err
			}
			saved, err := m.Wait(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(e.out, "updated %s %s (revision %d)\n", saved.ID, saved.Title, saved.Revision)
			return nil
		},
	}
	f.register(cmd)
	return cmd
}

// patch builds a patch from the flags that were given. Times written as
// HH:MM are placed on the new --day if one was given, else on day.
func (f *itemFlags) patch(changed func(string) bool, day *time.Time, loc *time.Location) (domain.ItemPatch, error) {
	var p domain.ItemPatch
	if changed("title") {
		p.Title = domain.Set(f.title)
	}
	if changed("description") {
		p.Description = domain.Set(f.description)
	}
	if changed("location") {
		p.Location = domain.Set(f.location)
	}
	if changed("sort") {
		p.SortOrder = domain.Set(f.sort)
	}
	if changed("day") {
		if f.day == none {
			p.DayDate = domain.Clear[time.Time]()
		} else {
			d, err := parseDay(f.day)
			if err != nil {
				return p, err
			}
			p.DayDate = domain.Set(*d)
			day = d
		}
	}
	for _, tf := range []struct {
		name string
		raw  string
		dst  *domain.Optional[time.Time]
	}{
		{"start", f.start, &p.StartsAt},
		{"end", f.end, &p.EndsAt},
	} {
		if !changed(tf.name) {
			continue
		}
		if tf.raw == none {
			*tf.dst = domain.Clear[time.Time]()
			continue
		}
		t, err := parseClock(day, tf.raw, loc)
		if err != nil {
			return p, err
		}
		*tf.dst = domain.Set(*t)
	}
	if !p.HasChanges() {
		return p, fmt.Errorf("nothing to change: pass at least one field flag")
	}
	return p, nil
}

func rmCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:     "rm ITEM",
		Aliases: []string{"delete"},
		Short:   "Delete an item",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := e.store()
			if err != nil {
				return err
			}
			if err := s.Load(cmd.Context()); err != nil {
				return fmt.Errorf("load itinerary: %w", err)
			}
			item, err := findItem(s, args[0])
			if err != nil {
				return err
			}
			m, err := s.Delete(cmd.Context(), item.ID)
			if err != nil {
				return err
			}
			if _, err := m.Wait(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(e.out, "deleted %s %s\n", item.ID, item.Title)
			return nil
		},
	}
}

// findItem resolves a full id or a unique prefix of one.
func findItem(s *itinerary.Store, ref string) (domain.ItineraryItem, error) {
	if id, err := uuid.Parse(ref); err == nil {
		if item, ok := s.Get(id); ok {
			return item, nil
		}
		return domain.ItineraryItem{}, fmt.Errorf("item %s: %w", ref, domain.ErrNotFound)
	}

	var match []domain.ItineraryItem
	for _, it := range s.Items() {
		if strings.HasPrefix(it.ID.String(), strings.ToLower(ref)) {
			match = append(match, it)
		}
	}
	switch len(match) {
	case 0:
		return domain.ItineraryItem{}, fmt.Errorf("item %s: %w", ref, domain.ErrNotFound)
	case 1:
		return match[0], nil
	}
	return domain.ItineraryItem{}, fmt.Errorf("item prefix %q is ambiguous (%d matches)", ref, len(match))
}

func parseDay(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	d, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return nil, fmt.Errorf("invalid day %q: want YYYY-MM-DD", s)
	}
	return &d, nil
}

// parseClock accepts RFC 3339, or HH:MM on day in loc.
func parseClock(day *time.Time, s string, loc *time.Location) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return &t, nil
	}
	c, err := time.Parse("15:04", s)
	if err != nil {
		return nil, fmt.Errorf("invalid time %q: want HH:MM or RFC 3339", s)
	}
	if day == nil {
		return nil, fmt.Errorf("time %q needs a --day", s)
	}
	t := time.Date(day.Year(), day.Month(), day.Day(), c.Hour(), c.Minute(), 0, 0, loc)
	return &t, nil
}

