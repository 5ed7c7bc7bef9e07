package queries

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/OldStager01/elastic-orchestrator/pkg/models"
)

// EventRepository persists orchestrator events and policy actions.
type EventRepository struct {
	db *sql.DB
}

func NewEventRepository(db *sql.DB) *EventRepository {
	return &EventRepository{db: db}
}

func (r *EventRepository) InsertEvent(ctx context.Context, event *models.Event) error {
	var data []byte
	if event.Data != nil {
		encoded, err := json.Marshal(event.Data)
		if err != nil {
			return fmt.Errorf("encode event data: %w", err)
		}
		data = encoded
	}

	query := `
		INSERT INTO events (id, type, severity, service, message, data, trace_id, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING`

	_, err := r.db.ExecContext(ctx, query,
		event.ID, string(event.Type), string(event.Severity), event.Service,
		event.Message, nullableJSON(data), event.TraceID, event.Timestamp,
	)
	return err
}

func (r *EventRepository) InsertPolicyEvent(ctx context.Context, event *models.SLAPolicyEvent) error {
	var instanceID sql.NullInt64
	if event.Instance != nil {
		instanceID = sql.NullInt64{Int64: event.Instance.InstanceID, Valid: true}
	}

	query := `
		INSERT INTO policy_events (action, sla_id, opstring, element, service_bean_id, instance_id, reason, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.db.ExecContext(ctx, query,
		string(event.Action), event.SLAID, event.OpString, event.Element,
		event.ServiceBeanID, instanceID, event.Reason, event.Timestamp,
	)
	return err
}

// GetRecent returns the newest events first. An empty service matches all.
func (r *EventRepository) GetRecent(ctx context.Context, service string, limit int) ([]*models.Event, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, type, severity, service, message, data, trace_id, timestamp
		FROM events
		WHERE ($1 = '' OR service = $1)
		ORDER BY timestamp DESC
		LIMIT $2`

	rows, err := r.db.QueryContext(ctx, query, service, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*models.Event
	for rows.Next() {
		var (
			e        models.Event
			typ, sev string
			data     []byte
		)
		if err := rows.Scan(&e.ID, &typ, &sev, &e.Service, &e.Message, &data, &e.TraceID, &e.Timestamp); err != nil {
			return nil, err
		}
		e.Type = models.EventType(typ)
		e.Severity = models.EventSeverity(sev)
		if len(data) > 0 {
			e.Data = json.RawMessage(data)
		}
		events = append(events, &e)
	}

	return events, rows.Err()
}

type PolicyEventRecord struct {
	ID            int64     `json:"id"`
	Action        string    `json:"action"`
	SLAID         string    `json:"sla_id"`
	OpString      string    `json:"opstring"`
	Element       string    `json:"element"`
	ServiceBeanID string    `json:"service_bean_id,omitempty"`
	InstanceID    *int64    `json:"instance_id,omitempty"`
	Reason        string    `json:"reason,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

func (r *EventRepository) GetPolicyEvents(ctx context.Context, opstring, element string, limit int) ([]PolicyEventRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, action, sla_id, opstring, element, service_bean_id, instance_id, reason, timestamp
		FROM policy_events
		WHERE opstring = $1 AND element = $2
		ORDER BY timestamp DESC
		LIMIT $3`

	rows, err := r.db.QueryContext(ctx, query, opstring, element, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []PolicyEventRecord
	for rows.Next() {
		var rec PolicyEventRecord
		if err := rows.Scan(
			&rec.ID, &rec.Action, &rec.SLAID, &rec.OpString, &rec.Element,
			&rec.ServiceBeanID, &rec.InstanceID, &rec.Reason, &rec.Timestamp,
		); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	return records, rows.Err()
}

// CountActions tallies policy actions for an element since the given time.
func (r *EventRepository) CountActions(ctx context.Context, opstring, element string, since time.Time) (map[string]int, error) {
	query := `
		SELECT action, COUNT(*)
		FROM policy_events
		WHERE opstring = $1 AND element = $2 AND timestamp >= $3
		GROUP BY action`

	rows, err := r.db.QueryContext(ctx, query, opstring, element, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var action string
		var n int
		if err := rows.Scan(&action, &n); err != nil {
			return nil, err
		}
		counts[action] = n
	}

	return counts, rows.Err()
}

func nullableJSON(data []byte) interface{} {
	if data == nil {
		return nil
	}
	return string(data)
}
