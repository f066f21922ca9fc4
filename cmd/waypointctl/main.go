// Package main provides waypointctl, a maintenance tool for a Waypoint data directory.
package main

import (
	"cmp"
	"context"
	"fmt"
	"os"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/waypointapp/waypoint-server/internal/auth"
	"github.com/waypointapp/waypoint-server/internal/calendar"
	"github.com/waypointapp/waypoint-server/internal/clock"
	"github.com/waypointapp/waypoint-server/internal/config"
	"github.com/waypointapp/waypoint-server/internal/di/providers"
	"github.com/waypointapp/waypoint-server/internal/domain"
	"github.com/waypointapp/waypoint-server/internal/logger"
	"github.com/waypointapp/waypoint-server/internal/service"
	"github.com/waypointapp/waypoint-server/internal/sse"
	"github.com/waypointapp/waypoint-server/internal/store"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var verbose bool

// ctl bundles what the commands need. The caller must defer Close.
type ctl struct {
	cfg   *config.Config
	log   *logger.Logger
	store *store.Client
}

// newCtl reads the environment and opens the configured store.
func newCtl() (*ctl, error) {
	cfg, err := config.FromEnvironment()
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	log := logger.Discard()
	if verbose {
		log = logger.New(logger.Config{Level: logger.ParseLevel("debug"), Writer: os.Stderr}).
			WithField("store", cfg.Store.Backend)
	}

	backend, _, err := providers.OpenBackend(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	client, err := store.NewClient(backend, log.Logger)
	if err != nil {
		backend.Close()
		return nil, fmt.Errorf("opening store: %w", err)
	}
	return &ctl{cfg: cfg, log: log, store: client}, nil
}

func (c *ctl) Close() error {
	return c.store.Close()
}

var rootCmd = &cobra.Command{
	Use:          "waypointctl",
	Short:        "Manage a Waypoint server's data",
	SilenceUsage: true,
}

// token command
var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint an access token for development",
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, _ := cmd.Flags().GetString("user")
		name, _ := cmd.Flags().GetString("name")
		ttl, _ := cmd.Flags().GetDuration("ttl")

		cfg, err := config.FromEnvironment()
		if err != nil {
			return fmt.Errorf("reading config: %w", err)
		}
		key, err := auth.ResolveKey(cfg.Auth.KeyHex, cfg.Data.BasePath)
		if err != nil {
			return fmt.Errorf("loading auth key: %w", err)
		}
		if ttl <= 0 {
			ttl = cfg.Auth.AccessTokenDuration
		}
		tokens, err := auth.NewTokenService(key, ttl)
		if err != nil {
			return err
		}

		token, expires, err := tokens.GenerateAccessToken(userID, name)
		if err != nil {
			return fmt.Errorf("generating token: %w", err)
		}
		fmt.Println(token)
		fmt.Fprintf(os.Stderr, "Expires: %s\n", expires.Format(time.RFC3339))
		return nil
	},
}

// trip command
var tripCmd = &cobra.Command{
	Use:   "trip",
	Short: "Manage trips",
}

var tripCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a trip",
	Long: "Create a trip. Participants are given as id:name, the first one owns the trip.\n" +
		"Example: waypointctl trip create --name Lisbon --days 4 --start 2026-06-01 -p u1:Ada -p u2:Grace",
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")
		days, _ := cmd.Flags().GetInt("days")
		start, _ := cmd.Flags().GetString("start")
		raw, _ := cmd.Flags().GetStringArray("participant")

		startDate, err := time.Parse(time.DateOnly, start)
		if err != nil {
			return fmt.Errorf("invalid start date %q: %w", start, err)
		}
		participants, err := parseParticipants(raw)
		if err != nil {
			return err
		}

		c, err := newCtl()
		if err != nil {
			return err
		}
		defer c.Close()

		trips := service.NewTripService(c.store, sse.NewManager(c.log.Logger), c.log.Logger)
		trip, err := trips.Create(cmd.Context(), service.CreateTripInput{
			Name:         name,
			NumberOfDays: days,
			StartDate:    startDate,
			Participants: participants,
		})
		if err != nil {
			return err
		}

		fmt.Printf("Created trip %s (%s, %d days from %s)\n",
			trip.ID, trip.Name, trip.NumberOfDays, trip.StartDate.Format(time.DateOnly))
		return nil
	},
}

// parseParticipants turns id:name pairs into participants.
func parseParticipants(raw []string) ([]domain.Participant, error) {
	out := make([]domain.Participant, 0, len(raw))
	for _, r := range raw {
		id, name, ok := strings.Cut(r, ":")
		id, name = strings.TrimSpace(id), strings.TrimSpace(name)
		if !ok || id == "" || name == "" {
			return nil, fmt.Errorf("invalid participant %q (want id:name)", r)
		}
		out = append(out, domain.Participant{ID: id, Name: name})
	}
	return out, nil
}

// events command
var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Inspect calendar events",
}

var eventsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the shared schedule, or a user's personal edits with --user",
	RunE: func(cmd *cobra.Command, args []string) error {
		tripID, _ := cmd.Flags().GetString("trip")
		userID, _ := cmd.Flags().GetString("user")

		c, err := newCtl()
		if err != nil {
			return err
		}
		defer c.Close()

		coll := store.SharedEvents
		if userID != "" {
			coll = store.PersonalEdits
		}
		rows, err := c.store.List(cmd.Context(), coll, store.Filter{TripID: tripID, UserID: userID})
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			fmt.Println("No events found.")
			return nil
		}

		slices.SortStableFunc(rows, func(a, b domain.CalendarEvent) int {
			return cmp.Or(
				cmp.Compare(a.DayIndex, b.DayIndex),
				cmp.Compare(clock.Minutes(a.Time), clock.Minutes(b.Time)),
			)
		})
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "DAY\tTIME\tEND\tACTIVITY\tID\tORIGIN")
		for _, ev := range rows {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n",
				ev.DayIndex, ev.Time, ev.EndTime, ev.Activity, ev.ID, ev.OriginalEventID)
		}
		return w.Flush()
	},
}

// dedupe command
var dedupeCmd = &cobra.Command{
	Use:   "dedupe",
	Short: "Remove duplicate personal copies of one user on one trip",
	RunE: func(cmd *cobra.Command, args []string) error {
		tripID, _ := cmd.Flags().GetString("trip")
		userID, _ := cmd.Flags().GetString("user")
		dryRun, _ := cmd.Flags().GetBool("dry-run")

		c, err := newCtl()
		if err != nil {
			return err
		}
		defer c.Close()

		ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
		defer cancel()

		var removed []string
		if dryRun {
			rows, err := c.store.List(ctx, store.PersonalEdits, store.Filter{TripID: tripID, UserID: userID})
			if err != nil {
				return err
			}
			removed = calendar.DuplicateCopies(rows)
		} else {
			removed, err = calendar.DeduplicateCopies(ctx, c.store, tripID, userID)
			if err != nil {
				return err
			}
		}

		if len(removed) == 0 {
			fmt.Println("No duplicate copies found.")
			return nil
		}
		verb := "Removed"
		if dryRun {
			verb = "Would remove"
		}
		for _, id := range removed {
			fmt.Printf("%s %s\n", verb, id)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log store activity to stderr")

	tokenCmd.Flags().String("user", "", "User ID")
	tokenCmd.Flags().String("name", "", "Display name")
	tokenCmd.Flags().Duration("ttl", 0, "Token lifetime (default: ACCESS_TOKEN_DURATION)")
	_ = tokenCmd.MarkFlagRequired("user")
	_ = tokenCmd.MarkFlagRequired("name")
	rootCmd.AddCommand(tokenCmd)

	tripCreateCmd.Flags().String("name", "", "Trip name")
	tripCreateCmd.Flags().Int("days", 1, "Number of days")
	tripCreateCmd.Flags().String("start", time.Now().Format(time.DateOnly), "First day (YYYY-MM-DD)")
	tripCreateCmd.Flags().StringArrayP("participant", "p", nil, "Participant as id:name, repeatable")
	_ = tripCreateCmd.MarkFlagRequired("name")
	_ = tripCreateCmd.MarkFlagRequired("participant")
	tripCmd.AddCommand(tripCreateCmd)
	rootCmd.AddCommand(tripCmd)

	eventsListCmd.Flags().String("trip", "", "Trip ID")
	eventsListCmd.Flags().String("user", "", "List this user's personal edits instead")
	_ = eventsListCmd.MarkFlagRequired("trip")
	eventsCmd.AddCommand(eventsListCmd)
	rootCmd.AddCommand(eventsCmd)

	dedupeCmd.Flags().String("trip", "", "Trip ID")
	dedupeCmd.Flags().String("user", "", "User ID")
	dedupeCmd.Flags().Bool("dry-run", false, "Only report duplicates")
	_ = dedupeCmd.MarkFlagRequired("trip")
	_ = dedupeCmd.MarkFlagRequired("user")
	rootCmd.AddCommand(dedupeCmd)
}
