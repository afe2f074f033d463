package translation

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresStore persists records in the translation_requests table.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, r *Record) (int64, error) {
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO translation_requests
		        (user_id, direction, input_type, output_type, status, input_text,
		         source_language, processing_mode, created_at, started_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now(), now())
		 RETURNING id`,
		r.UserID, r.Direction, r.InputType, r.OutputType, r.Status,
		nullable(r.InputText), r.SourceLanguage, r.ProcessingMode,
	).Scan(&r.ID)
	if err != nil {
		return 0, fmt.Errorf("create translation record: %w", err)
	}
	return r.ID, nil
}

func (s *PostgresStore) Complete(ctx context.Context, id int64, outputText, mediaURL string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE translation_requests
		    SET status = $1, output_text = $2, output_media_url = $3, completed_at = now()
		  WHERE id = $4`,
		StatusCompleted, nullable(outputText), nullable(mediaURL), id,
	)
	if err != nil {
		return fmt.Errorf("complete translation record %d: %w", id, err)
	}
	return nil
}

func (s *PostgresStore) Fail(ctx context.Context, id int64, errMsg string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE translation_requests
		    SET status = $1, error_message = $2, completed_at = now()
		  WHERE id = $3`,
		StatusFailed, errMsg, id,
	)
	if err != nil {
		return fmt.Errorf("fail translation record %d: %w", id, err)
	}
	return nil
}

func (s *PostgresStore) ListByUser(ctx context.Context, userID string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, direction, input_type, output_type, status,
		        COALESCE(input_text, ''), COALESCE(output_text, ''), COALESCE(output_media_url, ''),
		        source_language, processing_mode, created_at,
		        COALESCE(error_message, '')
		   FROM translation_requests
		  WHERE user_id = $1
		  ORDER BY created_at DESC
		  LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list translation records: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.ID, &r.UserID, &r.Direction, &r.InputType, &r.OutputType, &r.Status,
			&r.InputText, &r.OutputText, &r.OutputMediaURL,
			&r.SourceLanguage, &r.ProcessingMode, &r.CreatedAt, &r.ErrorMessage); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
