package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/playbookhq/playbook-mcp/pkg/types"
)

// SQLiteStorage implements the Storage interface using SQLite
type SQLiteStorage struct {
	db *sql.DB
}

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// SQLite benefits from a single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// NewSQLiteStorage creates a new SQLite storage instance
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := ApplyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// querier is an interface that both *sql.DB and *sql.Tx implement
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Playbook operations

// UpsertPlaybook inserts or replaces a playbook row keyed by id.
func (s *SQLiteStorage) UpsertPlaybook(ctx context.Context, pb *types.Playbook) error {
	if err := pb.Validate(); err != nil {
		return fmt.Errorf("%w: %v", types.ErrValidation, err)
	}

	typeTags, err := json.Marshal(emptyIfNilMap(pb.TypeTags))
	if err != nil {
		return fmt.Errorf("marshal type_tags: %w", err)
	}
	tags, err := json.Marshal(emptyIfNil(pb.Tags))
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}
	stakeholders, err := json.Marshal(emptyIfNil(pb.Context.Stakeholders))
	if err != nil {
		return fmt.Errorf("marshal stakeholders: %w", err)
	}
	actions, err := json.Marshal(pb.Actions)
	if err != nil {
		return fmt.Errorf("marshal actions: %w", err)
	}
	learnings, err := json.Marshal(emptyIfNil(pb.SourceLearnings))
	if err != nil {
		return fmt.Errorf("marshal source_learnings: %w", err)
	}

	now := time.Now()
	if pb.CreatedAt.IsZero() {
		pb.CreatedAt = now
	}
	pb.UpdatedAt = now

	var lastUsed interface{}
	if !pb.Metrics.LastUsedAt.IsZero() {
		lastUsed = pb.Metrics.LastUsedAt
	}

	query := `
		INSERT INTO playbooks (
			id, name, description, version, status, type, type_tags, tags,
			domain, scenario, complexity, stakeholders, actions,
			source_learnings, parent_id, optimization_count,
			usage_count, success_rate, avg_outcome_score, avg_execution_time,
			last_used_at, user_satisfaction, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			version = excluded.version,
			status = excluded.status,
			type = excluded.type,
			type_tags = excluded.type_tags,
			tags = excluded.tags,
			domain = excluded.domain,
			scenario = excluded.scenario,
			complexity = excluded.complexity,
			stakeholders = excluded.stakeholders,
			actions = excluded.actions,
			source_learnings = excluded.source_learnings,
			parent_id = excluded.parent_id,
			optimization_count = excluded.optimization_count,
			usage_count = excluded.usage_count,
			success_rate = excluded.success_rate,
			avg_outcome_score = excluded.avg_outcome_score,
			avg_execution_time = excluded.avg_execution_time,
			last_used_at = excluded.last_used_at,
			user_satisfaction = excluded.user_satisfaction,
			updated_at = excluded.updated_at
	`
	_, err = s.db.ExecContext(ctx, query,
		pb.ID, pb.Name, pb.Description, pb.Version, string(pb.Status), string(pb.Type),
		string(typeTags), string(tags),
		pb.Context.Domain, pb.Context.Scenario, pb.Context.Complexity, string(stakeholders), string(actions),
		string(learnings), pb.ParentID, pb.OptimizationCount,
		pb.Metrics.UsageCount, pb.Metrics.SuccessRate, pb.Metrics.AvgOutcomeScore, pb.Metrics.AvgExecutionTime,
		lastUsed, pb.Metrics.UserSatisfaction, pb.CreatedAt, pb.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("%w: upsert playbook %s: %v", types.ErrProvider, pb.ID, err)
	}
	return nil
}

const playbookColumns = `
	id, name, description, version, status, type, type_tags, tags,
	domain, scenario, complexity, stakeholders, actions,
	source_learnings, parent_id, optimization_count,
	usage_count, success_rate, avg_outcome_score, avg_execution_time,
	last_used_at, user_satisfaction, created_at, updated_at
`

// GetPlaybook retrieves a playbook by id.
func (s *SQLiteStorage) GetPlaybook(ctx context.Context, id string) (*types.Playbook, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+playbookColumns+" FROM playbooks WHERE id = ?", id)

	pb, err := scanPlaybook(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: playbook %s", types.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get playbook %s: %w", id, err)
	}
	return pb, nil
}

// ListPlaybooks returns playbooks, optionally filtered by status.
func (s *SQLiteStorage) ListPlaybooks(ctx context.Context, statuses ...types.Status) ([]*types.Playbook, error) {
	query := "SELECT " + playbookColumns + " FROM playbooks"
	args := make([]interface{}, 0, len(statuses))
	if len(statuses) > 0 {
		query += " WHERE status IN (?" + strings.Repeat(",?", len(statuses)-1) + ")"
		for _, st := range statuses {
			args = append(args, string(st))
		}
	}
	query += " ORDER BY created_at"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list playbooks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var playbooks []*types.Playbook
	for rows.Next() {
		pb, err := scanPlaybook(rows)
		if err != nil {
			return nil, fmt.Errorf("scan playbook: %w", err)
		}
		playbooks = append(playbooks, pb)
	}
	return playbooks, rows.Err()
}

// DeletePlaybook removes a playbook row. Only the curator's merge path
// calls this; archival never deletes.
func (s *SQLiteStorage) DeletePlaybook(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM playbooks WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete playbook %s: %w", id, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: playbook %s", types.ErrNotFound, id)
	}
	return nil
}

// CountPlaybooks returns the total corpus size.
func (s *SQLiteStorage) CountPlaybooks(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM playbooks").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count playbooks: %w", err)
	}
	return count, nil
}

// Vocabulary operations

// UpsertTag inserts or replaces a vocabulary entry.
func (s *SQLiteStorage) UpsertTag(ctx context.Context, tag *types.TagVocabularyEntry) error {
	if err := tag.Validate(); err != nil {
		return fmt.Errorf("%w: %v", types.ErrValidation, err)
	}

	keywords, err := json.Marshal(emptyIfNil(tag.Keywords))
	if err != nil {
		return fmt.Errorf("marshal keywords: %w", err)
	}
	if tag.FirstIdentified.IsZero() {
		tag.FirstIdentified = time.Now()
	}

	query := `
		INSERT INTO tag_vocabulary (name, keywords, confidence, first_identified, playbook_count, auto_discovered)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			keywords = excluded.keywords,
			confidence = excluded.confidence,
			playbook_count = excluded.playbook_count,
			auto_discovered = excluded.auto_discovered
	`
	_, err = s.db.ExecContext(ctx, query,
		tag.Name, string(keywords), tag.Confidence, tag.FirstIdentified, tag.PlaybookCount, tag.AutoDiscovered)
	if err != nil {
		return fmt.Errorf("upsert tag %s: %w", tag.Name, err)
	}
	return nil
}

// GetTag retrieves a vocabulary entry by name.
func (s *SQLiteStorage) GetTag(ctx context.Context, name string) (*types.TagVocabularyEntry, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT name, keywords, confidence, first_identified, playbook_count, auto_discovered FROM tag_vocabulary WHERE name = ?",
		name)

	tag, err := scanTag(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: tag %s", types.ErrNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("get tag %s: %w", name, err)
	}
	return tag, nil
}

// ListTags returns the full tag vocabulary.
func (s *SQLiteStorage) ListTags(ctx context.Context) ([]*types.TagVocabularyEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT name, keywords, confidence, first_identified, playbook_count, auto_discovered FROM tag_vocabulary ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var tags []*types.TagVocabularyEntry
	for rows.Next() {
		tag, err := scanTag(rows)
		if err != nil {
			return nil, fmt.Errorf("scan tag: %w", err)
		}
		tags = append(tags, tag)
	}
	return tags, rows.Err()
}

// AdjustTagPlaybookCount shifts a tag's playbook count by delta, floored at 0.
func (s *SQLiteStorage) AdjustTagPlaybookCount(ctx context.Context, name string, delta int) error {
	result, err := s.db.ExecContext(ctx,
		"UPDATE tag_vocabulary SET playbook_count = MAX(0, playbook_count + ?) WHERE name = ?",
		delta, name)
	if err != nil {
		return fmt.Errorf("adjust tag count %s: %w", name, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: tag %s", types.ErrNotFound, name)
	}
	return nil
}

// Similarity operations

// GetSimilarity retrieves the similarity record for a canonicalized pair.
func (s *SQLiteStorage) GetSimilarity(ctx context.Context, tag1, tag2 string) (*types.SimilarityRecord, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT tag1, tag2, score, cooccurrence, updated_at FROM tag_similarity WHERE tag1 = ? AND tag2 = ?",
		tag1, tag2)

	var rec types.SimilarityRecord
	err := row.Scan(&rec.Tag1, &rec.Tag2, &rec.Score, &rec.CoOccurrence, &rec.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: similarity %s/%s", types.ErrNotFound, tag1, tag2)
	}
	if err != nil {
		return nil, fmt.Errorf("get similarity %s/%s: %w", tag1, tag2, err)
	}
	return &rec, nil
}

// UpsertSimilarityScore writes the similarity score for a pair, preserving
// any existing co-occurrence counter.
func (s *SQLiteStorage) UpsertSimilarityScore(ctx context.Context, tag1, tag2 string, score float64) error {
	return upsertSimilarityScore(ctx, s.db, tag1, tag2, score)
}

func upsertSimilarityScore(ctx context.Context, q querier, tag1, tag2 string, score float64) error {
	query := `
		INSERT INTO tag_similarity (tag1, tag2, score, cooccurrence, updated_at)
		VALUES (?, ?, ?, 0, ?)
		ON CONFLICT(tag1, tag2) DO UPDATE SET
			score = excluded.score,
			updated_at = excluded.updated_at
	`
	if _, err := q.ExecContext(ctx, query, tag1, tag2, score, time.Now()); err != nil {
		return fmt.Errorf("%w: upsert similarity %s/%s: %v", types.ErrProvider, tag1, tag2, err)
	}
	return nil
}

// ListSimilaritiesForTag returns all pairs involving tag with score >=
// minScore, descending by score.
func (s *SQLiteStorage) ListSimilaritiesForTag(ctx context.Context, tag string, minScore float64) ([]*types.SimilarityRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT tag1, tag2, score, cooccurrence, updated_at
		FROM tag_similarity
		WHERE (tag1 = ? OR tag2 = ?) AND score >= ?
		ORDER BY score DESC
	`, tag, tag, minScore)
	if err != nil {
		return nil, fmt.Errorf("list similarities for %s: %w", tag, err)
	}
	defer func() { _ = rows.Close() }()

	var records []*types.SimilarityRecord
	for rows.Next() {
		var rec types.SimilarityRecord
		if err := rows.Scan(&rec.Tag1, &rec.Tag2, &rec.Score, &rec.CoOccurrence, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan similarity: %w", err)
		}
		records = append(records, &rec)
	}
	return records, rows.Err()
}

// IncrementCoOccurrence bumps the co-occurrence counter for a pair,
// creating the row when it does not exist. Returns the new counter value
// and whether this call created the row.
func (s *SQLiteStorage) IncrementCoOccurrence(ctx context.Context, tag1, tag2 string) (int, bool, error) {
	query := `
		INSERT INTO tag_similarity (tag1, tag2, score, cooccurrence, updated_at)
		VALUES (?, ?, 0, 1, ?)
		ON CONFLICT(tag1, tag2) DO UPDATE SET
			cooccurrence = cooccurrence + 1,
			updated_at = excluded.updated_at
		RETURNING cooccurrence
	`
	var count int
	err := s.db.QueryRowContext(ctx, query, tag1, tag2, time.Now()).Scan(&count)
	if err != nil {
		return 0, false, fmt.Errorf("%w: increment cooccurrence %s/%s: %v", types.ErrProvider, tag1, tag2, err)
	}
	return count, count == 1, nil
}

// ReplaceSimilarityScores writes a full batch of similarity scores in one
// transaction, for the registry's atomic matrix rebuild.
func (s *SQLiteStorage) ReplaceSimilarityScores(ctx context.Context, records []*types.SimilarityRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin rebuild tx: %w", err)
	}

	for _, rec := range records {
		if err := upsertSimilarityScore(ctx, tx, rec.Tag1, rec.Tag2, rec.Score); err != nil {
			_ = tx.Rollback()
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit rebuild tx: %w", err)
	}
	return nil
}

// Scan helpers

// scannable covers *sql.Row and *sql.Rows.
type scannable interface {
	Scan(dest ...interface{}) error
}

func scanPlaybook(row scannable) (*types.Playbook, error) {
	var pb types.Playbook
	var status, pbType string
	var typeTags, tags, stakeholders, actions, learnings string
	var domain, scenario, complexity, parentID sql.NullString
	var lastUsed sql.NullTime

	err := row.Scan(
		&pb.ID, &pb.Name, &pb.Description, &pb.Version, &status, &pbType, &typeTags, &tags,
		&domain, &scenario, &complexity, &stakeholders, &actions,
		&learnings, &parentID, &pb.OptimizationCount,
		&pb.Metrics.UsageCount, &pb.Metrics.SuccessRate, &pb.Metrics.AvgOutcomeScore, &pb.Metrics.AvgExecutionTime,
		&lastUsed, &pb.Metrics.UserSatisfaction, &pb.CreatedAt, &pb.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	pb.Status = types.Status(status)
	pb.Type = types.PlaybookType(pbType)
	pb.Context.Domain = domain.String
	pb.Context.Scenario = scenario.String
	pb.Context.Complexity = complexity.String
	pb.ParentID = parentID.String
	if lastUsed.Valid {
		pb.Metrics.LastUsedAt = lastUsed.Time
	}

	if err := json.Unmarshal([]byte(typeTags), &pb.TypeTags); err != nil {
		return nil, fmt.Errorf("unmarshal type_tags: %w", err)
	}
	if err := json.Unmarshal([]byte(tags), &pb.Tags); err != nil {
		return nil, fmt.Errorf("unmarshal tags: %w", err)
	}
	if err := json.Unmarshal([]byte(stakeholders), &pb.Context.Stakeholders); err != nil {
		return nil, fmt.Errorf("unmarshal stakeholders: %w", err)
	}
	if err := json.Unmarshal([]byte(actions), &pb.Actions); err != nil {
		return nil, fmt.Errorf("unmarshal actions: %w", err)
	}
	if err := json.Unmarshal([]byte(learnings), &pb.SourceLearnings); err != nil {
		return nil, fmt.Errorf("unmarshal source_learnings: %w", err)
	}

	return &pb, nil
}

func scanTag(row scannable) (*types.TagVocabularyEntry, error) {
	var tag types.TagVocabularyEntry
	var keywords string

	err := row.Scan(&tag.Name, &keywords, &tag.Confidence, &tag.FirstIdentified, &tag.PlaybookCount, &tag.AutoDiscovered)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(keywords), &tag.Keywords); err != nil {
		return nil, fmt.Errorf("unmarshal keywords: %w", err)
	}
	return &tag, nil
}

func emptyIfNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func emptyIfNilMap(m map[string]float64) map[string]float64 {
	if m == nil {
		return map[string]float64{}
	}
	return m
}
