package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/PawPulse/PawPulse/internal/models"
	"github.com/PawPulse/PawPulse/internal/util"
)

// nilIfEmpty returns nil if s is empty, otherwise returns s.
// Used for nullable database columns.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// encodeAnswers marshals an ordered answer list for storage.
func encodeAnswers(answers []string) (string, error) {
	b, err := json.Marshal(answers)
	if err != nil {
		return "", fmt.Errorf("failed to encode answers: %w", err)
	}
	return string(b), nil
}

// decodeAnswers unmarshals a stored answer list, preserving order.
func decodeAnswers(raw string) ([]string, error) {
	var answers []string
	if err := json.Unmarshal([]byte(raw), &answers); err != nil {
		return nil, fmt.Errorf("failed to decode answers: %w", err)
	}
	return answers, nil
}

// scanUserRow scans the users-table columns shared by both SQL backends.
func scanUserRow(row *sql.Row, rec *models.UserRecord) error {
	var species, name, age sql.NullString
	err := row.Scan(&rec.ID, &rec.DisplayName, &species, &name, &age, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return err
	}
	if species.Valid || name.Valid || age.Valid {
		rec.Pet = &models.PetInfo{Species: species.String, Name: name.String, Age: age.String}
	}
	return nil
}

// scanSurveys reads ordered survey rows into records.
func scanSurveys(rows *sql.Rows) ([]models.SurveyRecord, error) {
	var surveys []models.SurveyRecord
	for rows.Next() {
		var s models.SurveyRecord
		var raw string
		if err := rows.Scan(&s.ID, &s.Timestamp, &raw); err != nil {
			return nil, fmt.Errorf("failed to scan survey row: %w", err)
		}
		answers, err := decodeAnswers(raw)
		if err != nil {
			return nil, err
		}
		s.Answers = answers
		surveys = append(surveys, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate survey rows: %w", err)
	}
	return surveys, nil
}

// ensureSurveyIDs fills in generated IDs and timestamps for surveys
// appended by a mutator that left them zero-valued.
func ensureSurveyIDs(rec *models.UserRecord, now time.Time) {
	for i := range rec.Surveys {
		if rec.Surveys[i].ID == "" {
			rec.Surveys[i].ID = util.GenerateSurveyID()
		}
		if rec.Surveys[i].Timestamp.IsZero() {
			rec.Surveys[i].Timestamp = now
		}
	}
}
