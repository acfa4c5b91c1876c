package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"jordanella.com/regioncap/internal/events"
	"jordanella.com/regioncap/internal/geometry"
	"jordanella.com/regioncap/internal/scrolling"
)

// RegionCapture is one row of region_captures
type RegionCapture struct {
	ID                int64
	Region            string
	MonitorsRequested int
	MonitorsCaptured  int
	Duration          time.Duration
	ErrorMessage      *string
	CapturedAt        time.Time
}

// Failed reports whether the capture produced no image
func (r RegionCapture) Failed() bool {
	return r.ErrorMessage != nil
}

// ScrollSession is one row of scroll_sessions
type ScrollSession struct {
	ID             int64
	Region         geometry.PhysicalRect
	Method         string
	FramesCaptured int
	ImageWidth     int
	ImageHeight    int
	Status         string
	StopReason     string
	StartedAt      time.Time
	Duration       time.Duration
}

// RecordRegion inserts a region capture row and returns its ID
func (db *DB) RecordRegion(ctx context.Context, rc RegionCapture) (int64, error) {
	if rc.CapturedAt.IsZero() {
		rc.CapturedAt = time.Now()
	}

	result, err := db.conn.ExecContext(ctx, `
		INSERT INTO region_captures (
			region,
			monitors_requested,
			monitors_captured,
			duration_ms,
			error_message,
			captured_at
		) VALUES (?, ?, ?, ?, ?, ?)
	`, rc.Region, rc.MonitorsRequested, rc.MonitorsCaptured,
		rc.Duration.Milliseconds(), rc.ErrorMessage, rc.CapturedAt.UTC())

	if err != nil {
		return 0, fmt.Errorf("failed to record region capture: %w", err)
	}

	return result.LastInsertId()
}

// Prune deletes region captures and scroll sessions recorded before cutoff
// and returns how many rows were removed
func (db *DB) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	var removed int64
	err := db.ExecTx(func(tx *sql.Tx) error {
		for _, q := range []string{
			"DELETE FROM region_captures WHERE captured_at < ?",
			"DELETE FROM scroll_sessions WHERE started_at < ?",
		} {
			result, err := tx.ExecContext(ctx, q, cutoff.UTC())
			if err != nil {
				return err
			}
			n, err := result.RowsAffected()
			if err != nil {
				return err
			}
			removed += n
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to prune history: %w", err)
	}
	return removed, nil
}

// RecordSession stores a finished scrolling session
func (db *DB) RecordSession(ctx context.Context, s scrolling.Session) error {
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO scroll_sessions (
			region_x,
			region_y,
			region_width,
			region_height,
			method,
			frames_captured,
			image_width,
			image_height,
			status,
			stop_reason,
			started_at,
			duration_ms
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, s.Region.X, s.Region.Y, s.Region.Width, s.Region.Height,
		s.Method.String(), s.FramesCaptured, s.Width, s.Height,
		s.Status.String(), string(s.Reason), s.StartedAt.UTC(), s.Duration.Milliseconds())

	if err != nil {
		return fmt.Errorf("failed to record scroll session: %w", err)
	}
	return nil
}

// RecentRegions returns the latest region captures, newest first
func (db *DB) RecentRegions(ctx context.Context, limit int) ([]RegionCapture, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, region, monitors_requested, monitors_captured,
		       duration_ms, error_message, captured_at
		FROM region_captures
		ORDER BY captured_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query region captures: %w", err)
	}
	defer rows.Close()

	var out []RegionCapture
	for rows.Next() {
		var (
			rc         RegionCapture
			durationMs int64
			errMsg     sql.NullString
		)
		if err := rows.Scan(&rc.ID, &rc.Region, &rc.MonitorsRequested, &rc.MonitorsCaptured,
			&durationMs, &errMsg, &rc.CapturedAt); err != nil {
			return nil, fmt.Errorf("failed to scan region capture: %w", err)
		}
		rc.Duration = time.Duration(durationMs) * time.Millisecond
		if errMsg.Valid {
			rc.ErrorMessage = &errMsg.String
		}
		out = append(out, rc)
	}
	return out, rows.Err()
}

// RecentSessions returns the latest scrolling sessions, newest first
func (db *DB) RecentSessions(ctx context.Context, limit int) ([]ScrollSession, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, region_x, region_y, region_width, region_height, method,
		       frames_captured, image_width, image_height, status,
		       stop_reason, started_at, duration_ms
		FROM scroll_sessions
		ORDER BY started_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query scroll sessions: %w", err)
	}
	defer rows.Close()

	var out []ScrollSession
	for rows.Next() {
		var (
			s          ScrollSession
			reason     sql.NullString
			durationMs int64
		)
		if err := rows.Scan(&s.ID, &s.Region.X, &s.Region.Y, &s.Region.Width, &s.Region.Height,
			&s.Method, &s.FramesCaptured, &s.ImageWidth, &s.ImageHeight, &s.Status,
			&reason, &s.StartedAt, &durationMs); err != nil {
			return nil, fmt.Errorf("failed to scan scroll session: %w", err)
		}
		s.StopReason = reason.String
		s.Duration = time.Duration(durationMs) * time.Millisecond
		out = append(out, s)
	}
	return out, rows.Err()
}

// SubscribeCaptures records every completed or failed region capture
// published on bus
func (db *DB) SubscribeCaptures(bus events.EventBus) []events.SubscriptionID {
	handler := func(ev events.Event) {
		rc := RegionCapture{CapturedAt: ev.Timestamp}
		rc.Region, _ = ev.Data["region"].(string)

		switch ev.Type {
		case events.EventTypeCaptureCompleted:
			rc.MonitorsCaptured, _ = ev.Data["captured"].(int)
			rc.MonitorsRequested, _ = ev.Data["requested"].(int)
			if ms, ok := ev.Data["duration_ms"].(int64); ok {
				rc.Duration = time.Duration(ms) * time.Millisecond
			}
		case events.EventTypeCaptureFailed:
			msg, _ := ev.Data["error"].(string)
			rc.ErrorMessage = &msg
		}

		if _, err := db.RecordRegion(context.Background(), rc); err != nil {
			db.logger.Error("Failed to record capture event", err)
		}
	}

	return []events.SubscriptionID{
		bus.Subscribe(events.EventTypeCaptureCompleted, handler),
		bus.Subscribe(events.EventTypeCaptureFailed, handler),
	}
}
