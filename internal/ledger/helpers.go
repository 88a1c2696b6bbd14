package ledger

import (
	"database/sql"
	"errors"
	"time"

	"layerforge/internal/services"
)

func scanRun(scanner interface{ Scan(dest ...any) error }) (*Run, error) {
	var (
		run         Run
		mode        sql.NullString
		model       sql.NullString
		status      string
		errMsg      sql.NullString
		startedRaw  string
		finishedRaw sql.NullString
	)
	if err := scanner.Scan(
		&run.ID,
		&run.Name,
		&run.StartLayer,
		&run.EndLayer,
		&mode,
		&model,
		&status,
		&errMsg,
		&run.LLMCalls,
		&run.Score,
		&startedRaw,
		&finishedRaw,
	); err != nil {
		return nil, err
	}
	run.Mode = mode.String
	run.Model = model.String
	run.Status = services.RunStatus(status)
	run.ErrorMessage = errMsg.String
	if started, err := parseTimeString(startedRaw); err == nil {
		run.StartedAt = started
	}
	run.FinishedAt = parseNullableTime(finishedRaw)
	return &run, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseNullableTime(value sql.NullString) *time.Time {
	if !value.Valid {
		return nil
	}
	t, err := parseTimeString(value.String)
	if err != nil {
		return nil
	}
	return &t
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}
