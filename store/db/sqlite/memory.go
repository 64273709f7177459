package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/mnemo-labs/mnemod/store"
)

func (d *DB) CreateMemory(ctx context.Context, create *store.Memory) (*store.Memory, error) {
	fields := []string{
		"type", "title", "content", "facts", "concepts", "source_files",
		"importance", "visibility", "phase", "session_id",
	}
	placeholderValues := []any{
		create.Type, create.Title, create.Content,
		marshalStringList(create.Facts), marshalStringList(create.Concepts), marshalStringList(create.SourceFiles),
		create.Importance, create.Visibility, create.Phase, create.SessionID,
	}

	// Add optional timestamps
	if create.CreatedTs != 0 {
		fields = append(fields, "created_ts")
		placeholderValues = append(placeholderValues, create.CreatedTs)
	}
	if create.UpdatedTs != 0 {
		fields = append(fields, "updated_ts")
		placeholderValues = append(placeholderValues, create.UpdatedTs)
	}

	stmt := `INSERT INTO memory (` + strings.Join(fields, ", ") + `)
		VALUES (` + placeholders(len(placeholderValues)) + `)
		RETURNING id, created_ts, updated_ts, accessed_ts, access_count`

	if err := d.db.QueryRowContext(ctx, stmt, placeholderValues...).Scan(
		&create.ID,
		&create.CreatedTs,
		&create.UpdatedTs,
		&create.AccessedTs,
		&create.AccessCount,
	); err != nil {
		return nil, errors.Wrap(err, "failed to create memory")
	}

	return create, nil
}

// buildMemoryWhere translates a FindMemory into a WHERE clause.
func buildMemoryWhere(find *store.FindMemory) ([]string, []any) {
	where, args := []string{"1 = 1"}, []any{}

	if v := find.ID; v != nil {
		where, args = append(where, "memory.id = "+placeholder(len(args)+1)), append(args, *v)
	}
	if len(find.Types) > 0 {
		list := make([]any, 0, len(find.Types))
		for _, t := range find.Types {
			list = append(list, string(t))
		}
		where, args = append(where, "memory.type IN ("+placeholders(len(list))+")"), append(args, list...)
	}
	if v := find.MinImportance; v != nil {
		where, args = append(where, "memory.importance >= "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := find.Visibility; v != nil {
		where, args = append(where, "memory.visibility = "+placeholder(len(args)+1)), append(args, string(*v))
	}
	if v := find.Phase; v != nil {
		where, args = append(where, "memory.phase = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := find.SessionID; v != nil {
		where, args = append(where, "memory.session_id = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := find.CreatedTsAfter; v != nil {
		where, args = append(where, "memory.created_ts > "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := find.CreatedTsBefore; v != nil {
		where, args = append(where, "memory.created_ts < "+placeholder(len(args)+1)), append(args, *v)
	}

	return where, args
}

const memoryColumns = `memory.id, memory.type, memory.title, memory.content,
		memory.facts, memory.concepts, memory.source_files,
		memory.importance, memory.visibility, memory.phase, memory.session_id,
		memory.created_ts, memory.updated_ts, memory.accessed_ts, memory.access_count`

func scanMemory(scan func(dest ...any) error) (*store.Memory, error) {
	var memory store.Memory
	var facts, concepts, sourceFiles string

	if err := scan(
		&memory.ID,
		&memory.Type,
		&memory.Title,
		&memory.Content,
		&facts,
		&concepts,
		&sourceFiles,
		&memory.Importance,
		&memory.Visibility,
		&memory.Phase,
		&memory.SessionID,
		&memory.CreatedTs,
		&memory.UpdatedTs,
		&memory.AccessedTs,
		&memory.AccessCount,
	); err != nil {
		return nil, errors.Wrap(err, "failed to scan memory")
	}

	memory.Facts = unmarshalStringList(facts)
	memory.Concepts = unmarshalStringList(concepts)
	memory.SourceFiles = unmarshalStringList(sourceFiles)
	return &memory, nil
}

func (d *DB) ListMemories(ctx context.Context, find *store.FindMemory) ([]*store.Memory, error) {
	where, args := buildMemoryWhere(find)

	query := `SELECT ` + memoryColumns + `
		FROM memory
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY memory.created_ts DESC, memory.id DESC`

	if find.Limit > 0 {
		query = fmt.Sprintf("%s LIMIT %d", query, find.Limit)
		if find.Offset > 0 {
			query = fmt.Sprintf("%s OFFSET %d", query, find.Offset)
		}
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query memories")
	}
	defer rows.Close()

	list := make([]*store.Memory, 0)
	for rows.Next() {
		memory, err := scanMemory(rows.Scan)
		if err != nil {
			return nil, err
		}
		list = append(list, memory)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return list, nil
}

func (d *DB) UpdateMemory(ctx context.Context, update *store.UpdateMemory) error {
	set, args := []string{}, []any{}

	if v := update.Type; v != nil {
		set, args = append(set, "type = "+placeholder(len(args)+1)), append(args, string(*v))
	}
	if v := update.Title; v != nil {
		set, args = append(set, "title = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := update.Content; v != nil {
		set, args = append(set, "content = "+placeholder(len(args)+1)), append(args, *v)
	}
	if update.Facts != nil {
		set, args = append(set, "facts = "+placeholder(len(args)+1)), append(args, marshalStringList(update.Facts))
	}
	if update.Concepts != nil {
		set, args = append(set, "concepts = "+placeholder(len(args)+1)), append(args, marshalStringList(update.Concepts))
	}
	if update.SourceFiles != nil {
		set, args = append(set, "source_files = "+placeholder(len(args)+1)), append(args, marshalStringList(update.SourceFiles))
	}
	if v := update.Importance; v != nil {
		set, args = append(set, "importance = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := update.Visibility; v != nil {
		set, args = append(set, "visibility = "+placeholder(len(args)+1)), append(args, string(*v))
	}
	if v := update.Phase; v != nil {
		set, args = append(set, "phase = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := update.SessionID; v != nil {
		set, args = append(set, "session_id = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := update.UpdatedTs; v != nil {
		set, args = append(set, "updated_ts = "+placeholder(len(args)+1)), append(args, *v)
	}

	if len(set) == 0 {
		return nil
	}
	args = append(args, update.ID)

	stmt := `UPDATE memory SET ` + strings.Join(set, ", ") + ` WHERE id = ` + placeholder(len(args))
	if _, err := d.db.ExecContext(ctx, stmt, args...); err != nil {
		return errors.Wrap(err, "failed to update memory")
	}

	return nil
}

func (d *DB) DeleteMemory(ctx context.Context, delete *store.DeleteMemory) (int64, error) {
	var stmt string
	var args []any

	switch {
	case delete.ID != nil:
		stmt = "DELETE FROM memory WHERE id = ?"
		args = []any{*delete.ID}
	case delete.CreatedTsBefore != nil:
		stmt = "DELETE FROM memory WHERE created_ts < ?"
		args = []any{*delete.CreatedTsBefore}
	case delete.KeepMostRecent != nil:
		stmt = `DELETE FROM memory WHERE id NOT IN (
			SELECT id FROM memory ORDER BY created_ts DESC, id DESC LIMIT ?
		)`
		args = []any{*delete.KeepMostRecent}
	default:
		return 0, errors.New("delete condition is required")
	}

	result, err := d.db.ExecContext(ctx, stmt, args...)
	if err != nil {
		return 0, errors.Wrap(err, "failed to delete memory")
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "failed to read affected rows")
	}
	return deleted, nil
}

func (d *DB) CountMemories(ctx context.Context, find *store.FindMemory) (int64, error) {
	where, args := buildMemoryWhere(find)

	query := `SELECT COUNT(*) FROM memory WHERE ` + strings.Join(where, " AND ")
	var count int64
	if err := d.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, errors.Wrap(err, "failed to count memories")
	}
	return count, nil
}

func (d *DB) GetMemoryStats(ctx context.Context) (*store.MemoryStats, error) {
	stats := &store.MemoryStats{
		CountByType: map[store.MemoryType]int64{},
	}

	rows, err := d.db.QueryContext(ctx, "SELECT type, COUNT(*) FROM memory GROUP BY type")
	if err != nil {
		return nil, errors.Wrap(err, "failed to query memory stats")
	}
	defer rows.Close()

	for rows.Next() {
		var memoryType store.MemoryType
		var count int64
		if err := rows.Scan(&memoryType, &count); err != nil {
			return nil, errors.Wrap(err, "failed to scan memory stats")
		}
		stats.CountByType[memoryType] = count
		stats.TotalCount += count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := d.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(created_ts), 0) FROM memory").Scan(&stats.LastCreatedTs); err != nil {
		return nil, errors.Wrap(err, "failed to query last created ts")
	}

	return stats, nil
}

func (d *DB) TouchMemories(ctx context.Context, ids []int64, accessedTs int64) error {
	if len(ids) == 0 {
		return nil
	}

	args := make([]any, 0, len(ids)+1)
	args = append(args, accessedTs)
	for _, id := range ids {
		args = append(args, id)
	}

	stmt := `UPDATE memory
		SET access_count = access_count + 1, accessed_ts = ?
		WHERE id IN (` + placeholders(len(ids)) + `)`
	if _, err := d.db.ExecContext(ctx, stmt, args...); err != nil {
		return errors.Wrap(err, "failed to touch memories")
	}
	return nil
}

// SearchMemories performs full-text search using FTS5, falling back to a
// LIKE scan when the match query cannot be parsed.
func (d *DB) SearchMemories(ctx context.Context, opts *store.SearchMemoriesOptions) ([]*store.MemoryWithScore, error) {
	matchQuery := sanitizeFTSQuery(opts.Query)
	if matchQuery == "" {
		return []*store.MemoryWithScore{}, nil
	}

	find := opts.Find
	if find == nil {
		find = &store.FindMemory{}
	}
	where, args := buildMemoryWhere(find)
	args = append(args, matchQuery)

	limit := opts.Limit
	if limit <= 0 {
		limit = 10
	}

	// bm25() scores are better when smaller; negate so higher means more
	// relevant and DESC ordering ranks correctly.
	query := `SELECT ` + memoryColumns + `,
			-bm25(memory_fts) AS score
		FROM memory
		JOIN memory_fts ON memory.id = memory_fts.rowid
		WHERE ` + strings.Join(where, " AND ") + `
			AND memory_fts MATCH ` + placeholder(len(args)) + `
		ORDER BY score DESC, memory.updated_ts DESC
		LIMIT ` + fmt.Sprintf("%d", limit)

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		// FTS5 query syntax errors land here; fall back to LIKE search.
		return d.searchMemoriesFallback(ctx, opts)
	}
	defer rows.Close()

	results := []*store.MemoryWithScore{}
	for rows.Next() {
		var memory store.Memory
		var facts, concepts, sourceFiles string
		var score float64

		if err := rows.Scan(
			&memory.ID,
			&memory.Type,
			&memory.Title,
			&memory.Content,
			&facts,
			&concepts,
			&sourceFiles,
			&memory.Importance,
			&memory.Visibility,
			&memory.Phase,
			&memory.SessionID,
			&memory.CreatedTs,
			&memory.UpdatedTs,
			&memory.AccessedTs,
			&memory.AccessCount,
			&score,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan search result")
		}

		memory.Facts = unmarshalStringList(facts)
		memory.Concepts = unmarshalStringList(concepts)
		memory.SourceFiles = unmarshalStringList(sourceFiles)
		results = append(results, &store.MemoryWithScore{Memory: &memory, Score: score})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return results, nil
}

// searchMemoriesFallback provides a simple LIKE-based search when the FTS
// query cannot be used.
func (d *DB) searchMemoriesFallback(ctx context.Context, opts *store.SearchMemoriesOptions) ([]*store.MemoryWithScore, error) {
	words := []string{}
	for _, word := range strings.Fields(opts.Query) {
		// Escape LIKE special characters to prevent pattern injection.
		escaped := strings.ReplaceAll(strings.ReplaceAll(word, "%", "\\%"), "_", "\\_")
		words = append(words, "%"+escaped+"%")
	}
	if len(words) == 0 {
		return []*store.MemoryWithScore{}, nil
	}

	find := opts.Find
	if find == nil {
		find = &store.FindMemory{}
	}
	where, args := buildMemoryWhere(find)
	for _, word := range words {
		where, args = append(where, "memory.content LIKE ? ESCAPE '\\'"), append(args, word)
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = 10
	}

	query := `SELECT ` + memoryColumns + `,
			1.0 AS score
		FROM memory
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY memory.updated_ts DESC
		LIMIT ` + fmt.Sprintf("%d", limit)

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to run fallback search")
	}
	defer rows.Close()

	results := []*store.MemoryWithScore{}
	for rows.Next() {
		var memory store.Memory
		var facts, concepts, sourceFiles string
		var score float64

		if err := rows.Scan(
			&memory.ID,
			&memory.Type,
			&memory.Title,
			&memory.Content,
			&facts,
			&concepts,
			&sourceFiles,
			&memory.Importance,
			&memory.Visibility,
			&memory.Phase,
			&memory.SessionID,
			&memory.CreatedTs,
			&memory.UpdatedTs,
			&memory.AccessedTs,
			&memory.AccessCount,
			&score,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan fallback result")
		}

		memory.Facts = unmarshalStringList(facts)
		memory.Concepts = unmarshalStringList(concepts)
		memory.SourceFiles = unmarshalStringList(sourceFiles)
		results = append(results, &store.MemoryWithScore{Memory: &memory, Score: score})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return results, nil
}

// sanitizeFTSQuery wraps every term in quotes so user input cannot inject
// FTS5 query syntax. Embedded quotes are doubled per SQLite rules.
func sanitizeFTSQuery(query string) string {
	words := strings.Fields(query)
	if len(words) == 0 {
		return ""
	}
	quoted := make([]string, 0, len(words))
	for _, word := range words {
		quoted = append(quoted, `"`+strings.ReplaceAll(word, `"`, `""`)+`"`)
	}
	return strings.Join(quoted, " ")
}
