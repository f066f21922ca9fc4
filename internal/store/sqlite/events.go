package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/waypointapp/waypoint-server/internal/domain"
	"github.com/waypointapp/waypoint-server/internal/store"
)

// Column lists must match the scan order in scanEvent.
const (
	baseColumns = `id, trip_id, day_index, activity, time, end_time, location, coordinates,
		created_by_id, created_by_name, created_by_avatar, created_at`
	sharedColumns   = baseColumns + `, status`
	personalColumns = baseColumns + `, user_id, original_event_id, is_active`
)

func columnsFor(coll store.Collection) string {
	if coll == store.PersonalEdits {
		return personalColumns
	}
	return sharedColumns
}

// scanEvent scans a row selected with columnsFor(coll).
func scanEvent(scanner interface{ Scan(dest ...any) error }, coll store.Collection) (*domain.CalendarEvent, error) {
	var (
		ev          domain.CalendarEvent
		location    sql.NullString
		coordinates sql.NullString
		avatar      sql.NullString
		createdAt   string
	)
	dest := []any{
		&ev.ID, &ev.TripID, &ev.DayIndex, &ev.Activity, &ev.Time, &ev.EndTime,
		&location, &coordinates, &ev.CreatedBy.ID, &ev.CreatedBy.Name, &avatar, &createdAt,
	}

	var (
		status     string
		userID     string
		originalID sql.NullString
		active     int
	)
	if coll == store.PersonalEdits {
		dest = append(dest, &userID, &originalID, &active)
	} else {
		dest = append(dest, &status)
	}

	if err := scanner.Scan(dest...); err != nil {
		return nil, err
	}

	var err error
	ev.CreatedAt, err = parseTime(createdAt)
	if err != nil {
		return nil, err
	}
	ev.Coordinates, err = decodeCoordinates(coordinates)
	if err != nil {
		return nil, err
	}
	ev.Location = location.String
	ev.CreatedBy.Avatar = avatar.String

	if coll == store.PersonalEdits {
		ev.IsPersonalEdit = true
		ev.UserID = userID
		ev.OriginalEventID = originalID.String
		ev.IsActive = active != 0
	} else {
		ev.Status = domain.EventStatus(status)
	}
	return &ev, nil
}

// ListEvents returns the events of coll matching f ordered by day and time.
func (s *Store) ListEvents(ctx context.Context, coll store.Collection, f store.Filter) ([]domain.CalendarEvent, error) {
	var (
		where []string
		args  []any
	)
	if f.TripID != "" {
		where = append(where, "trip_id = ?")
		args = append(args, f.TripID)
	}
	if coll == store.PersonalEdits {
		if f.UserID != "" {
			where = append(where, "user_id = ?")
			args = append(args, f.UserID)
		}
		if f.ActiveOnly {
			where = append(where, "is_active = 1")
		}
	}

	query := "SELECT " + columnsFor(coll) + " FROM " + string(coll)
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY day_index, time, created_at"

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

// GetEvent returns one event or store.ErrNotFound.
func (s *Store) GetEvent(ctx context.Context, coll store.Collection, id string) (*domain.CalendarEvent, error) {
	return getEvent(ctx, s.db, coll, id)
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getEvent(ctx context.Context, q querier, coll store.Collection, id string) (*domain.CalendarEvent, error) {
	row := q.QueryRowContext(ctx,
		"SELECT "+columnsFor(coll)+" FROM "+string(coll)+" WHERE id = ?", id)
	ev, err := scanEvent(row, coll)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return ev, err
}

// InsertEvent stores a new event. Returns store.ErrAlreadyExists on duplicate ID.
func (s *Store) InsertEvent(ctx context.Context, coll store.Collection, ev *domain.CalendarEvent) error {
	coords, err := encodeCoordinates(ev.Coordinates)
	if err != nil {
		return err
	}

	args := []any{
		ev.ID, ev.TripID, ev.DayIndex, ev.Activity, ev.Time, ev.EndTime,
		nullString(ev.Location), coords, ev.CreatedBy.ID, ev.CreatedBy.Name,
		nullString(ev.CreatedBy.Avatar), formatTime(ev.CreatedAt),
	}
	if coll == store.PersonalEdits {
		args = append(args, ev.UserID, nullString(ev.OriginalEventID), boolInt(ev.IsActive))
	} else {
		status := ev.Status
		if status == "" {
			status = domain.StatusApproved
		}
		args = append(args, string(status))
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(args)), ", ")
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO "+string(coll)+" ("+columnsFor(coll)+") VALUES ("+placeholders+")", args...)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return store.ErrAlreadyExists
		}
		return err
	}
	return nil
}

// UpdateEvent applies p inside a transaction and returns the stored event.
func (s *Store) UpdateEvent(ctx context.Context, coll store.Collection, id string, p store.Patch) (*domain.CalendarEvent, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	ev, err := getEvent(ctx, tx, coll, id)
	if err != nil {
		return nil, err
	}
	p.Apply(ev)

	coords, err := encodeCoordinates(ev.Coordinates)
	if err != nil {
		return nil, err
	}

	query := `UPDATE ` + string(coll) + ` SET
		day_index = ?, activity = ?, time = ?, end_time = ?, location = ?, coordinates = ?`
	args := []any{ev.DayIndex, ev.Activity, ev.Time, ev.EndTime, nullString(ev.Location), coords}
	if coll == store.PersonalEdits {
		query += `, is_active = ?`
		args = append(args, boolInt(ev.IsActive))
	} else {
		query += `, status = ?`
		args = append(args, string(ev.Status))
	}
	query += ` WHERE id = ?`
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
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var deleted []domain.CalendarEvent
	for _, id := range ids {
		ev, err := getEvent(ctx, tx, coll, id)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+string(coll)+" WHERE id = ?", id); err != nil {
			return nil, err
		}
		deleted = append(deleted, *ev)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return deleted, nil
}
