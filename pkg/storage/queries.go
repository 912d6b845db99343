package storage

import (
	"database/sql"
	"fmt"
	"time"
)

// ExchangeQuery represents query parameters for retrieving exchanges
type ExchangeQuery struct {
	Limit        int
	Offset       int
	Since        *time.Time
	Client       int
	FailuresOnly bool
}

// JournalStats represents journal statistics
type JournalStats struct {
	TotalExchanges int         `json:"total_exchanges"`
	TotalFailures  int         `json:"total_failures"`
	Stored         int         `json:"stored"`
	ByCode         map[int]int `json:"by_code"`
	LastCleanup    *time.Time  `json:"last_cleanup,omitempty"`
}

// GetExchanges retrieves exchanges, newest first
func (j *Journal) GetExchanges(query ExchangeQuery) ([]Exchange, error) {
	var args []interface{}
	sqlQuery := `
		SELECT id, timestamp, client, remote, request, response, code, duration_ms
		FROM exchanges
		WHERE 1=1`

	if query.Since != nil {
		sqlQuery += " AND timestamp >= ?"
		args = append(args, query.Since.UTC())
	}
	if query.Client > 0 {
		sqlQuery += " AND client = ?"
		args = append(args, query.Client)
	}
	if query.FailuresOnly {
		sqlQuery += " AND code != 0"
	}

	sqlQuery += " ORDER BY id DESC"

	if query.Limit > 0 {
		sqlQuery += " LIMIT ?"
		args = append(args, query.Limit)

		if query.Offset > 0 {
			sqlQuery += " OFFSET ?"
			args = append(args, query.Offset)
		}
	}

	rows, err := j.db.Query(sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query exchanges: %w", err)
	}
	defer rows.Close()

	exchanges := []Exchange{}
	for rows.Next() {
		var e Exchange
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.Client, &e.Remote, &e.Request, &e.Response, &e.Code, &e.Duration); err != nil {
			return nil, fmt.Errorf("failed to scan exchange: %w", err)
		}
		exchanges = append(exchanges, e)
	}
	return exchanges, rows.Err()
}

// GetStats returns journal statistics
func (j *Journal) GetStats() (*JournalStats, error) {
	stats := &JournalStats{ByCode: make(map[int]int)}

	var lastCleanup sql.NullTime
	err := j.db.QueryRow(`
		SELECT total_exchanges, total_failures, last_cleanup
		FROM journal_stats WHERE id = 1`).Scan(&stats.TotalExchanges, &stats.TotalFailures, &lastCleanup)
	if err != nil {
		return nil, fmt.Errorf("failed to get stats: %w", err)
	}
	if lastCleanup.Valid {
		stats.LastCleanup = &lastCleanup.Time
	}

	if err := j.db.QueryRow("SELECT COUNT(*) FROM exchanges").Scan(&stats.Stored); err != nil {
		return nil, fmt.Errorf("failed to count exchanges: %w", err)
	}

	rows, err := j.db.Query("SELECT code, COUNT(*) FROM exchanges GROUP BY code")
	if err != nil {
		return nil, fmt.Errorf("failed to count codes: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var code, count int
		if err := rows.Scan(&code, &count); err != nil {
			return nil, err
		}
		stats.ByCode[code] = count
	}
	return stats, rows.Err()
}
