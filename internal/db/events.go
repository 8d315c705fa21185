package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/chord-frb/sifter/internal/frb"
)

// EventRow is one grouped multi-beam event as stored in the event table.
type EventRow struct {
	EventID         int64     `json:"event_id"`
	UUID            string    `json:"uuid"`
	Timestamp       time.Time `json:"timestamp"`
	IsRFI           bool      `json:"is_rfi"`
	IsKnown         bool      `json:"is_known"`
	IsFRB           bool      `json:"is_frb"`
	BestBeam        int       `json:"best_beam"`
	NBeams          int       `json:"nbeams"`
	BestSNR         float64   `json:"best_snr"`
	TotalSNR        float64   `json:"total_snr"`
	DM              float64   `json:"dm"`
	DMError         float64   `json:"dm_error"`
	BeamActivity    int       `json:"beam_activity"`
	CohDMActivity   int       `json:"coh_dm_activity"`
	IncohDMActivity int       `json:"incoh_dm_activity"`
	AvgL1Grade      float64   `json:"avg_l1_grade"`
	DMStd           float64   `json:"dm_std"`
	MissingBeams    int       `json:"missing_beams"`
}

// EventBeamRow is one per-beam detection belonging to an event.
type EventBeamRow struct {
	ID           int64     `json:"id"`
	EventID      int64     `json:"event_id"`
	Beam         int       `json:"beam"`
	SNR          float64   `json:"snr"`
	Timestamp    time.Time `json:"timestamp"`
	FPGATime     uint64    `json:"fpga_time"`
	DM           float64   `json:"dm"`
	DMError      float64   `json:"dm_error"`
	RFIGrade     int       `json:"rfi_grade"`
	IsIncoherent bool      `json:"is_incoherent"`
}

// unixSeconds stores times as fractional Unix seconds with microsecond
// resolution.
func unixSeconds(t time.Time) float64 {
	return float64(t.UnixMicro()) / 1e6
}

func fromUnixSeconds(s float64) time.Time {
	return time.UnixMicro(int64(s*1e6 + 0.5)).UTC()
}

// InsertGroup writes one event row for g and one event_beam row per
// detection, and returns the new event id.
func (db *DB) InsertGroup(ctx context.Context, g *frb.Group) (int64, error) {
	p := g.Peak()
	if p < 0 {
		return 0, fmt.Errorf("group %s has no detections", g.ID)
	}
	peak := &g.Detections[p]

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO event (
			uuid, timestamp, best_beam, nbeams, best_snr, total_snr, dm, dm_error,
			beam_activity, coh_dm_activity, incoh_dm_activity, avg_l1_grade, dm_std,
			missing_beams
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		g.ID.String(), unixSeconds(peak.UTCTime), peak.BeamID, len(g.Beams()),
		peak.SNR, g.TotalSNR(), peak.DM, peak.DMError,
		g.Stats.BeamActivity, g.Stats.CohDMActivity, g.Stats.IncohDMActivity,
		g.Stats.AvgL1Grade, g.Stats.DMStd, len(g.MissingBeams),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert event %s: %w", g.ID, err)
	}
	eventID, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO event_beam (
			event_id, beam, snr, timestamp, fpga_time, dm, dm_error, rfi_grade, is_incoherent
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()
	for i := range g.Detections {
		d := &g.Detections[i]
		if _, err := stmt.ExecContext(ctx,
			eventID, d.BeamID, d.SNR, unixSeconds(d.UTCTime), int64(d.FPGATime),
			d.DM, d.DMError, int(d.RFIGradeL1), d.IsIncoherent,
		); err != nil {
			return 0, fmt.Errorf("failed to insert beam %d of event %s: %w", d.BeamID, g.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return eventID, nil
}

// WriteGroups stores every group of a frame. It stops at the first
// failure.
func (db *DB) WriteGroups(ctx context.Context, groups []frb.Group) error {
	for i := range groups {
		if _, err := db.InsertGroup(ctx, &groups[i]); err != nil {
			return err
		}
	}
	return nil
}

const eventColumns = `event_id, uuid, timestamp, is_rfi, is_known, is_frb, best_beam, nbeams,
	best_snr, total_snr, dm, dm_error, beam_activity, coh_dm_activity, incoh_dm_activity,
	avg_l1_grade, dm_std, missing_beams`

func scanEvent(row interface{ Scan(...any) error }) (EventRow, error) {
	var (
		e  EventRow
		ts float64
	)
	err := row.Scan(
		&e.EventID, &e.UUID, &ts, &e.IsRFI, &e.IsKnown, &e.IsFRB, &e.BestBeam, &e.NBeams,
		&e.BestSNR, &e.TotalSNR, &e.DM, &e.DMError, &e.BeamActivity, &e.CohDMActivity,
		&e.IncohDMActivity, &e.AvgL1Grade, &e.DMStd, &e.MissingBeams,
	)
	e.Timestamp = fromUnixSeconds(ts)
	return e, err
}

// RecentEvents returns up to limit events, newest first.
func (db *DB) RecentEvents(ctx context.Context, limit int) ([]EventRow, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.QueryContext(ctx,
		`SELECT `+eventColumns+` FROM event ORDER BY timestamp DESC, event_id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []EventRow
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

// EventByUUID returns the event with the given group id.
func (db *DB) EventByUUID(ctx context.Context, id string) (EventRow, error) {
	e, err := scanEvent(db.QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM event WHERE uuid = ?`, id))
	if err == sql.ErrNoRows {
		return EventRow{}, fmt.Errorf("event %s not found: %w", id, err)
	}
	return e, err
}

// EventBeams returns the per-beam rows of an event in insertion order.
func (db *DB) EventBeams(ctx context.Context, eventID int64) ([]EventBeamRow, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, event_id, beam, snr, timestamp, fpga_time, dm, dm_error, rfi_grade, is_incoherent
		 FROM event_beam WHERE event_id = ? ORDER BY id`, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var beams []EventBeamRow
	for rows.Next() {
		var (
			b    EventBeamRow
			ts   float64
			fpga int64
		)
		if err := rows.Scan(&b.ID, &b.EventID, &b.Beam, &b.SNR, &ts, &fpga,
			&b.DM, &b.DMError, &b.RFIGrade, &b.IsIncoherent); err != nil {
			return nil, err
		}
		b.Timestamp = fromUnixSeconds(ts)
		b.FPGATime = uint64(fpga)
		beams = append(beams, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return beams, nil
}

// TableCounts returns the number of rows in each event table.
func (db *DB) TableCounts(ctx context.Context) (map[string]int64, error) {
	counts := map[string]int64{}
	for _, table := range []string{"event", "event_beam"} {
		var n int64
		if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
			return nil, fmt.Errorf("failed to count %s: %w", table, err)
		}
		counts[table] = n
	}
	return counts, nil
}
