// Package audit is the append-only event log. Score edits, evaluation runs
// and bank sharing changes are recorded here, keyed by the entity they touch.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

const (
	TypeScoreEdited     = "score.edited"
	TypeScoreUndone     = "score.undone"
	TypeScoresImported  = "score.imported"
	TypeEvalStarted     = "evaluation.started"
	TypeEvalStopped     = "evaluation.stopped"
	TypeEvalFinished    = "evaluation.finished"
	TypeEvalPollFailed  = "evaluation.poll_failed"
	TypeBankShared      = "bank.shared"
	TypeBankUnshared    = "bank.unshared"
	TypeQuestionsImport = "bank.imported"
)

type Event struct {
	Seq       int64           `json:"seq"`
	SiteID    string          `json:"site_id"`
	Type      string          `json:"type"`
	Key       string          `json:"key"`
	Data      json.RawMessage `json:"data"`
	CreatedAt int64           `json:"created_at"`
}

type eventRow struct {
	Seq       int64  `db:"seq"`
	SiteID    string `db:"site_id"`
	Type      string `db:"typ"`
	Key       string `db:"key"`
	Data      string `db:"data"`
	CreatedAt int64  `db:"created_at"`
}

func (r eventRow) event() Event {
	return Event{Seq: r.Seq, SiteID: r.SiteID, Type: r.Type, Key: r.Key, Data: json.RawMessage(r.Data), CreatedAt: r.CreatedAt}
}

type Log struct {
	db   *sqlx.DB
	site string
	now  func() time.Time
}

func NewLog(dbh *sqlx.DB, site string) *Log {
	if site == "" {
		site = "local"
	}
	return &Log{db: dbh, site: site, now: time.Now}
}

func (l *Log) Append(ctx context.Context, e Event) error {
	if e.SiteID == "" {
		e.SiteID = l.site
	}
	data := string(e.Data)
	if data == "" {
		data = "{}"
	}
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO event_log (site_id, typ, key, data, created_at)
		 VALUES ($1,$2,$3,$4,$5)`,
		e.SiteID, e.Type, e.Key, data, l.now().Unix())
	return err
}

// Record marshals data and appends it under key.
func (l *Log) Record(ctx context.Context, typ, key string, data any) error {
	b, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("audit %s: %w", typ, err)
	}
	return l.Append(ctx, Event{Type: typ, Key: key, Data: b})
}

type Filter struct {
	Key   string
	After int64 // seq offset, exclusive
	Limit int
}

// List returns events in seq order.
func (l *Log) List(ctx context.Context, f Filter) ([]Event, error) {
	if f.Limit <= 0 || f.Limit > 500 {
		f.Limit = 100
	}
	q := `SELECT seq, site_id, typ, key, data, created_at FROM event_log WHERE seq > $1`
	args := []any{f.After}
	if f.Key != "" {
		q += ` AND key = $2 ORDER BY seq LIMIT $3`
		args = append(args, f.Key, f.Limit)
	} else {
		q += ` ORDER BY seq LIMIT $2`
		args = append(args, f.Limit)
	}
	var rows []eventRow
	if err := l.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, err
	}
	out := make([]Event, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.event())
	}
	return out, nil
}
