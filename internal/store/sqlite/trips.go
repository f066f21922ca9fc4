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

// GetTrip returns a trip and its participants in join order.
func (s *Store) GetTrip(ctx context.Context, id string) (*domain.Trip, error) {
	var (
		trip      domain.Trip
		startDate string
		createdAt string
		public    int
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, start_date, number_of_days, is_public, created_at FROM trips WHERE id = ?`, id,
	).Scan(&trip.ID, &trip.Name, &startDate, &trip.NumberOfDays, &public, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	trip.IsPublic = public != 0
	if trip.StartDate, err = parseTime(startDate); err != nil {
		return nil, err
	}
	if trip.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, name, avatar, role FROM trip_participants WHERE trip_id = ? ORDER BY sort_order`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	trip.Participants = []domain.Participant{}
	for rows.Next() {
		var (
			p      domain.Participant
			avatar sql.NullString
			role   string
		)
		if err := rows.Scan(&p.ID, &p.Name, &avatar, &role); err != nil {
			return nil, err
		}
		p.Avatar = avatar.String
		p.Role = domain.Role(role)
		trip.Participants = append(trip.Participants, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &trip, nil
}

// CreateTrip inserts a trip and its participants.
func (s *Store) CreateTrip(ctx context.Context, trip *domain.Trip) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO trips (id, name, start_date, number_of_days, is_public, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		trip.ID, trip.Name, formatTime(trip.StartDate), trip.NumberOfDays, boolInt(trip.IsPublic), formatTime(trip.CreatedAt))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return store.ErrAlreadyExists
		}
		return err
	}

	for i, p := range trip.Participants {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO trip_participants (trip_id, user_id, name, avatar, role, sort_order) VALUES (?, ?, ?, ?, ?, ?)`,
			trip.ID, p.ID, p.Name, nullString(p.Avatar), string(p.Role), i)
		if err != nil {
			return fmt.Errorf("insert participant %s: %w", p.ID, err)
		}
	}

	return tx.Commit()
}

// SetTripPublic updates the public flag and returns the trip.
func (s *Store) SetTripPublic(ctx context.Context, id string, public bool) (*domain.Trip, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE trips SET is_public = ? WHERE id = ?`, boolInt(public), id)
	if err != nil {
		return nil, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, store.ErrNotFound
	}
	return s.GetTrip(ctx, id)
}
