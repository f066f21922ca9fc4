package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/lib/pq"

	"github.com/waypointapp/waypoint-server/internal/domain"
	"github.com/waypointapp/waypoint-server/internal/store"
)

const (
	baseColumns = `id, trip_id, day_index, activity, "time", end_time, location, coordinates,
		created_by_id, created_by_name, created_by_avatar, created_at`
	sharedColumns   = baseColumns + `, status`
	personalColumns = baseColumns + `, user_id, original_event_id, is_active`

	uniqueViolation = "23505"
)

func columnsFor(coll store.Collection) string {
	if coll == store.PersonalEdits {
		return personalColumns
	}
	return sharedColumns
}

func placeholders(from, n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = "$" + strconv.Itoa(from+i)
	}
	return strings.Join(parts, ", ")
}

func scanEvent(scanner interface{ Scan(dest ...any) error }, coll store.Collection) (*domain.CalendarEvent, error) {
	var (
		ev          domain.CalendarEvent
		location    sql.NullString
		coordinates []byte
		avatar      sql.NullString
		status      string
		originalID  sql.NullString
	)
	dest := []any{
		&ev.ID, &ev.TripID, &ev.DayIndex, &ev.Activity, &ev.Time, &ev.EndTime,
		&location, &coordinates, &ev.CreatedBy.ID, &ev.CreatedBy.Name, &avatar, &ev.CreatedAt,
	}
	if coll == store.PersonalEdits {
		dest = append(dest, &ev.UserID, &originalID, &ev.IsActive)
	} else {
		dest = append(dest, &status)
	}
	if err := scanner.Scan(dest...); err != nil {
		return nil, err
	}

	var err error
	if ev.Coordinates, err = decodeCoordinates(coordinates); err != nil {
		return nil, err
	}
	ev.Location = location.String
	ev.CreatedBy.Avatar = avatar.String
	if coll == store.PersonalEdits {
		ev.IsPersonalEdit = true
		ev.OriginalEventID = originalID.String
	} else {
		ev.Status = domain.EventStatus(status)
	}
	return &ev, nil
}

// ListEvents returns matching events ordered by day and time.
func (s *Store) ListEvents(ctx context.Context, coll store.Collection, f store.Filter) ([]domain.CalendarEvent, error) {
	var (
		where []string
		args  []any
	)
	if f.TripID != "" {
		args = append(args, f.TripID)
		where = append(where, "trip_id = $"+strconv.Itoa(len(args)))
	}
	if coll == store.PersonalEdits {
		if f.UserID != "" {
			args = append(args, f.UserID)
			where = append(where, "user_id = $"+strconv.Itoa(len(args)))
		}
		if f.ActiveOnly {
			where = append(where, "is_active")
		}
	}

	query := "SELECT " + columnsFor(coll) + " FROM " + string(coll)
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += ` ORDER BY day_index, "time", created_at`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := []domain.CalendarEvent{}
	for rows.Next() {
		ev, err := scanEvent(rows, coll)
		if err != nil {
			return nil, err
		}
		events = append(events, *ev)
	}
	return events, rows.Err()
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getEvent(ctx context.Context, q querier, coll store.Collection, id string, lock bool) (*domain.CalendarEvent, error) {
	query := "SELECT " + columnsFor(coll) + " FROM " + string(coll) + " WHERE id = $1"
	if lock {
		query += " FOR UPDATE"
	}
	ev, err := scanEvent(q.QueryRowContext(ctx, query, id), coll)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return ev, err
}

// GetEvent returns one event or store.ErrNotFound.
func (s *Store) GetEvent(ctx context.Context, coll store.Collection, id string) (*domain.CalendarEvent, error) {
	return getEvent(ctx, s.db, coll, id, false)
}

// InsertEvent stores a new event.
func (s *Store) InsertEvent(ctx context.Context, coll store.Collection, ev *domain.CalendarEvent) error {
	coords, err := encodeCoordinates(ev.Coordinates)
	if err != nil {
		return err
	}
	args := []any{
		ev.ID, ev.TripID, ev.DayIndex, ev.Activity, ev.Time, ev.EndTime,
		nullString(ev.Location), coords, ev.CreatedBy.ID, ev.CreatedBy.Name,
		nullString(ev.CreatedBy.Avatar), ev.CreatedAt.UTC(),
	}
	if coll == store.PersonalEdits {
		args = append(args, ev.UserID, nullString(ev.OriginalEventID), ev.IsActive)
	} else {
		status := ev.Status
		if status == "" {
			status = domain.StatusApproved
		}
		args = append(args, string(status))
	}

	_, err = s.db.ExecContext(ctx,
		"INSERT INTO "+string(coll)+" ("+columnsFor(coll)+") VALUES ("+placeholders(1, len(args))+")", args...)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return store.ErrAlreadyExists
	}
	return err
}

// UpdateEvent locks the row, applies p and writes it back.
func (s *Store) UpdateEvent(ctx context.Context, coll store.Collection, id string, p store.Patch) (*domain.CalendarEvent, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	ev, err := getEvent(ctx, tx, coll, id, true)
	if err != nil {
		return nil, err
	}
	p.Apply(ev)

	coords, err := encodeCoordinates(ev.Coordinates)
	if err != nil {
		return nil, err
	}

	query := `UPDATE ` + string(coll) + ` SET
		day_index = $1, activity = $2, "time" = $3, end_time = $4, location = $5, coordinates = $6`
	args := []any{ev.DayIndex, ev.Activity, ev.Time, ev.EndTime, nullString(ev.Location), coords}
	if coll == store.PersonalEdits {
		query += `, is_active = $7`
		args = append(args, ev.IsActive)
	} else {
		query += `, status = $7`
		args = append(args, string(ev.Status))
	}
	query += ` WHERE id = $8`
	args = append(args, id)

	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return ev, nil
}

// DeleteEvents removes ids and returns the rows that existed.
func (s *Store) DeleteEvents(ctx context.Context, coll store.Collection, ids []string) ([]domain.CalendarEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		"DELETE FROM "+string(coll)+" WHERE id = ANY($1) RETURNING "+columnsFor(coll), pq.Array(ids))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var deleted []domain.CalendarEvent
	for rows.Next() {
		ev, err := scanEvent(rows, coll)
		if err != nil {
			return nil, err
		}
		deleted = append(deleted, *ev)
	}
	return deleted, rows.Err()
}
