package storage

import (
	"database/sql"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/twbeatles/navernews-tabsearch/internal/models"
	"github.com/twbeatles/navernews-tabsearch/internal/textutil"

	_ "github.com/mattn/go-sqlite3"
)

const (
	dbFileName     = "news.db"
	acquireTimeout = 10 * time.Second

	// Bounded backfill batch sizes keep startup latency predictable on
	// large legacy stores; remaining rows are picked up on later starts.
	hashBackfillLimit = 1000
	tsBackfillLimit   = 5000
)

// Store is the pooled, schema-managed persistence layer for news
// articles and their per-keyword associations.
type Store struct {
	pool *Pool
	path string
}

// New initializes the store file under dataDir, running the integrity
// check, schema creation/migration and legacy backfill before opening
// the connection pool.
func New(dataDir string, poolSize int) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %v", err)
	}

	dbPath := filepath.Join(dataDir, dbFileName)
	log.Printf("Initializing database at: %s", dbPath)

	if _, err := os.Stat(dbPath); err == nil {
		if !checkIntegrity(dbPath) {
			log.Printf("Database corruption detected, moving store aside and recreating")
			if err := quarantineCorrupt(dbPath); err != nil {
				return nil, fmt.Errorf("failed to quarantine corrupt database: %v", err)
			}
		}
	}

	if err := initSchema(dbPath); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %v", err)
	}

	pool, err := NewPool(dbPath, poolSize)
	if err != nil {
		return nil, err
	}

	return &Store{pool: pool, path: dbPath}, nil
}

// Pool exposes the underlying connection pool.
func (s *Store) Pool() *Pool {
	return s.pool
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func checkIntegrity(path string) bool {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		log.Printf("Failed to open database for integrity check: %v", err)
		return false
	}
	defer db.Close()

	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		log.Printf("Integrity check failed: %v", err)
		return false
	}
	return result == "ok"
}

// quarantineCorrupt renames the corrupt store file aside with a
// timestamp suffix so schema creation can start fresh. Falls back to
// copy-and-delete when the rename fails (e.g. file locked).
func quarantineCorrupt(path string) error {
	backup := fmt.Sprintf("%s.corrupt_%s", path, time.Now().Format("20060102_150405"))

	if err := os.Rename(path, backup); err == nil {
		log.Printf("Corrupt database moved to: %s", backup)
		return nil
	}

	src, err := os.Open(path)
	if err != nil {
		return err
	}
	dst, err := os.Create(backup)
	if err != nil {
		src.Close()
		return err
	}
	_, copyErr := io.Copy(dst, src)
	src.Close()
	dst.Close()
	if copyErr != nil {
		return copyErr
	}
	if err := os.Remove(path); err != nil {
		return err
	}
	log.Printf("Corrupt database copied to %s and removed", backup)
	return nil
}

func initSchema(path string) error {
	db, err := openConn(path)
	if err != nil {
		return err
	}
	defer db.Close()

	tables := []string{
		`CREATE TABLE IF NOT EXISTS news (
			link TEXT PRIMARY KEY,
			keyword TEXT,
			title TEXT,
			description TEXT,
			pubDate TEXT,
			publisher TEXT,
			is_read INTEGER DEFAULT 0,
			is_bookmarked INTEGER DEFAULT 0,
			pubDate_ts REAL,
			created_at REAL DEFAULT (strftime('%s', 'now')),
			notes TEXT,
			title_hash TEXT,
			is_duplicate INTEGER DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS news_keywords (
			link TEXT NOT NULL,
			keyword TEXT NOT NULL,
			is_duplicate INTEGER DEFAULT 0,
			PRIMARY KEY (link, keyword),
			FOREIGN KEY (link) REFERENCES news(link) ON DELETE CASCADE
		)`,
	}
	for _, table := range tables {
		if _, err := db.Exec(table); err != nil {
			return fmt.Errorf("failed to create table: %v", err)
		}
	}

	// Migration for stores created before these columns existed.
	// "duplicate column name" means the column is already there.
	migrations := []string{
		"ALTER TABLE news ADD COLUMN pubDate_ts REAL",
		"ALTER TABLE news ADD COLUMN publisher TEXT",
		"ALTER TABLE news ADD COLUMN is_read INTEGER DEFAULT 0",
		"ALTER TABLE news ADD COLUMN is_bookmarked INTEGER DEFAULT 0",
		"ALTER TABLE news ADD COLUMN created_at REAL DEFAULT (strftime('%s', 'now'))",
		"ALTER TABLE news ADD COLUMN notes TEXT",
		"ALTER TABLE news ADD COLUMN title_hash TEXT",
		"ALTER TABLE news ADD COLUMN is_duplicate INTEGER DEFAULT 0",
	}
	for _, migration := range migrations {
		if _, err := db.Exec(migration); err != nil && !isAlreadyExists(err) {
			return fmt.Errorf("migration failed (%s): %v", migration, err)
		}
	}

	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_keyword ON news(keyword)",
		"CREATE INDEX IF NOT EXISTS idx_bookmarked ON news(is_bookmarked)",
		"CREATE INDEX IF NOT EXISTS idx_ts ON news(pubDate_ts)",
		"CREATE INDEX IF NOT EXISTS idx_read ON news(is_read)",
		"CREATE INDEX IF NOT EXISTS idx_read_ts ON news(is_read, pubDate_ts DESC)",
		"CREATE INDEX IF NOT EXISTS idx_title_hash ON news(title_hash)",
		"CREATE INDEX IF NOT EXISTS idx_duplicate ON news(is_duplicate)",
		"CREATE INDEX IF NOT EXISTS idx_keyword_read ON news(keyword, is_read)",
		"CREATE INDEX IF NOT EXISTS idx_keyword_ts ON news(keyword, pubDate_ts DESC)",
		"CREATE INDEX IF NOT EXISTS idx_keyword_dup ON news(keyword, is_duplicate)",
		"CREATE INDEX IF NOT EXISTS idx_bookmarked_ts ON news(is_bookmarked, pubDate_ts DESC)",
		"CREATE INDEX IF NOT EXISTS idx_nk_keyword ON news_keywords(keyword)",
		"CREATE INDEX IF NOT EXISTS idx_nk_link ON news_keywords(link)",
		"CREATE INDEX IF NOT EXISTS idx_nk_keyword_link ON news_keywords(keyword, link)",
		"CREATE INDEX IF NOT EXISTS idx_nk_keyword_dup ON news_keywords(keyword, is_duplicate)",
	}
	for _, index := range indexes {
		if _, err := db.Exec(index); err != nil && !isAlreadyExists(err) {
			log.Printf("Index creation skipped: %v", err)
		}
	}

	if err := backfillLegacyRows(db); err != nil {
		return err
	}

	// Seed the association table from the legacy single-keyword column.
	_, err = db.Exec(`
		INSERT OR IGNORE INTO news_keywords (link, keyword, is_duplicate)
		SELECT link, keyword, COALESCE(is_duplicate, 0)
		FROM news
		WHERE keyword IS NOT NULL AND keyword != ''
	`)
	if err != nil {
		return fmt.Errorf("failed to seed keyword associations: %v", err)
	}

	return nil
}

// backfillLegacyRows computes fingerprints and timestamps for rows that
// predate those columns, in bounded batches.
func backfillLegacyRows(db *sql.DB) error {
	rows, err := db.Query("SELECT link, title FROM news WHERE title_hash IS NULL AND title IS NOT NULL LIMIT ?", hashBackfillLimit)
	if err != nil {
		return fmt.Errorf("failed to query rows for hash backfill: %v", err)
	}
	type hashUpdate struct{ link, hash string }
	var hashUpdates []hashUpdate
	for rows.Next() {
		var link, title string
		if err := rows.Scan(&link, &title); err != nil {
			rows.Close()
			return err
		}
		hashUpdates = append(hashUpdates, hashUpdate{link, Fingerprint(title)})
	}
	rows.Close()
	if len(hashUpdates) > 0 {
		log.Printf("Backfilling title fingerprints for %d legacy rows", len(hashUpdates))
		for _, u := range hashUpdates {
			if _, err := db.Exec("UPDATE news SET title_hash = ? WHERE link = ?", u.hash, u.link); err != nil {
				return err
			}
		}
	}

	rows, err = db.Query("SELECT link, pubDate FROM news WHERE pubDate_ts IS NULL LIMIT ?", tsBackfillLimit)
	if err != nil {
		return fmt.Errorf("failed to query rows for timestamp backfill: %v", err)
	}
	type tsUpdate struct {
		link string
		ts   float64
	}
	var tsUpdates []tsUpdate
	for rows.Next() {
		var link string
		var pubDate sql.NullString
		if err := rows.Scan(&link, &pubDate); err != nil {
			rows.Close()
			return err
		}
		tsUpdates = append(tsUpdates, tsUpdate{link, textutil.ParseDateToTS(pubDate.String)})
	}
	rows.Close()
	if len(tsUpdates) > 0 {
		log.Printf("Backfilling publish timestamps for %d legacy rows", len(tsUpdates))
		for _, u := range tsUpdates {
			if _, err := db.Exec("UPDATE news SET pubDate_ts = ? WHERE link = ?", u.ts, u.link); err != nil {
				return err
			}
		}
	}

	return nil
}

func isAlreadyExists(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "duplicate column name") || strings.Contains(msg, "already exists")
}

// UpsertNews inserts a batch of items under a keyword inside one
// transaction, classifying per-keyword duplicates against committed
// rows and against earlier items of the same batch. Re-ingesting a
// known link updates its mutable fields and never counts as added or
// duplicate.
func (s *Store) UpsertNews(items []models.NewsItem, keyword string) (int, int, error) {
	if len(items) == 0 {
		return 0, 0, nil
	}

	conn, err := s.pool.Acquire(acquireTimeout)
	if err != nil {
		return 0, 0, err
	}
	defer s.pool.Release(conn)

	hashes := make([]string, len(items))
	for i, item := range items {
		hashes[i] = Fingerprint(item.Title)
	}

	tx, err := conn.DB.Begin()
	if err != nil {
		return 0, 0, fmt.Errorf("failed to begin transaction: %v", err)
	}
	committed := false
	defer func() {
		if !committed {
			if err := tx.Rollback(); err != nil {
				log.Printf("Warning: failed to rollback upsert transaction: %v", err)
			}
		}
	}()

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(hashes)), ",")
	queryArgs := make([]interface{}, 0, len(hashes)+1)
	queryArgs = append(queryArgs, keyword)
	for _, hash := range hashes {
		queryArgs = append(queryArgs, hash)
	}

	rows, err := tx.Query(fmt.Sprintf(`
		SELECT n.title_hash
		FROM news n
		JOIN news_keywords nk ON nk.link = n.link
		WHERE nk.keyword = ? AND n.title_hash IN (%s)
	`, placeholders), queryArgs...)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to query existing fingerprints: %v", err)
	}
	seen := make(map[string]struct{})
	for rows.Next() {
		var hash string
		if err := rows.Scan(&hash); err != nil {
			rows.Close()
			return 0, 0, err
		}
		seen[hash] = struct{}{}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, 0, err
	}

	// Links already associated with this keyword are re-ingests: their
	// mutable fields get refreshed, but they are counted neither added
	// nor duplicate and their stored duplicate flag is left alone.
	linkArgs := make([]interface{}, 0, len(items)+1)
	linkArgs = append(linkArgs, keyword)
	for _, item := range items {
		linkArgs = append(linkArgs, item.Link)
	}
	linkPlaceholders := strings.TrimSuffix(strings.Repeat("?,", len(items)), ",")
	rows, err = tx.Query(fmt.Sprintf(
		"SELECT link FROM news_keywords WHERE keyword = ? AND link IN (%s)",
		linkPlaceholders), linkArgs...)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to query existing links: %v", err)
	}
	existingLinks := make(map[string]struct{})
	for rows.Next() {
		var link string
		if err := rows.Scan(&link); err != nil {
			rows.Close()
			return 0, 0, err
		}
		existingLinks[link] = struct{}{}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, 0, err
	}

	newsStmt, err := tx.Prepare(`
		INSERT INTO news
		(link, keyword, title, description, pubDate, publisher, pubDate_ts, title_hash)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(link) DO UPDATE SET
			keyword = CASE WHEN keyword IS NULL OR keyword = '' THEN excluded.keyword ELSE keyword END,
			title = excluded.title,
			description = excluded.description,
			pubDate = excluded.pubDate,
			publisher = excluded.publisher,
			pubDate_ts = CASE WHEN excluded.pubDate_ts > 0 THEN excluded.pubDate_ts ELSE pubDate_ts END,
			title_hash = excluded.title_hash
	`)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to prepare news upsert: %v", err)
	}
	defer newsStmt.Close()

	kwStmt, err := tx.Prepare(`
		INSERT INTO news_keywords (link, keyword, is_duplicate)
		VALUES (?, ?, ?)
		ON CONFLICT(link, keyword) DO NOTHING
	`)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to prepare association insert: %v", err)
	}
	defer kwStmt.Close()

	added, duplicates := 0, 0
	for i, item := range items {
		hash := hashes[i]
		ts := textutil.ParseDateToTS(item.PubDate)
		if _, err := newsStmt.Exec(item.Link, keyword, item.Title, item.Description, item.PubDate, item.Publisher, ts, hash); err != nil {
			return 0, 0, fmt.Errorf("failed to upsert article %s: %v", item.Link, err)
		}

		if _, known := existingLinks[item.Link]; known {
			// Re-ingest of an association we already hold. Mutable
			// fields were refreshed above; nothing to count and the
			// stored duplicate flag stays as is.
			seen[hash] = struct{}{}
			continue
		}
		existingLinks[item.Link] = struct{}{}

		_, isDup := seen[hash]
		if isDup {
			duplicates++
		} else {
			added++
		}
		seen[hash] = struct{}{}

		dupFlag := 0
		if isDup {
			dupFlag = 1
		}
		if _, err := kwStmt.Exec(item.Link, keyword, dupFlag); err != nil {
			return 0, 0, fmt.Errorf("failed to insert association %s/%s: %v", item.Link, keyword, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("failed to commit upsert: %v", err)
	}
	committed = true

	log.Printf("UpsertNews: keyword=%q items=%d added=%d duplicates=%d", keyword, len(items), added, duplicates)
	return added, duplicates, nil
}

// RecalculateDuplicates recomputes every duplicate flag for a keyword
// from scratch, walking associations in insertion order so the result
// matches what the incremental path would have produced. Idempotent.
func (s *Store) RecalculateDuplicates(keyword string) (int, error) {
	conn, err := s.pool.Acquire(acquireTimeout)
	if err != nil {
		return 0, err
	}
	defer s.pool.Release(conn)

	tx, err := conn.DB.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %v", err)
	}
	committed := false
	defer func() {
		if !committed {
			if err := tx.Rollback(); err != nil {
				log.Printf("Warning: failed to rollback recalculation: %v", err)
			}
		}
	}()

	rows, err := tx.Query(`
		SELECT nk.link, COALESCE(n.title_hash, '')
		FROM news_keywords nk
		JOIN news n ON n.link = nk.link
		WHERE nk.keyword = ?
		ORDER BY nk.rowid
	`, keyword)
	if err != nil {
		return 0, fmt.Errorf("failed to query associations: %v", err)
	}

	type flagUpdate struct {
		link string
		dup  int
	}
	var updates []flagUpdate
	seen := make(map[string]struct{})
	duplicates := 0
	for rows.Next() {
		var link, hash string
		if err := rows.Scan(&link, &hash); err != nil {
			rows.Close()
			return 0, err
		}
		dup := 0
		if _, ok := seen[hash]; ok && hash != "" {
			dup = 1
			duplicates++
		}
		seen[hash] = struct{}{}
		updates = append(updates, flagUpdate{link, dup})
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	stmt, err := tx.Prepare("UPDATE news_keywords SET is_duplicate = ? WHERE link = ? AND keyword = ?")
	if err != nil {
		return 0, err
	}
	defer stmt.Close()
	for _, u := range updates {
		if _, err := stmt.Exec(u.dup, u.link, keyword); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit recalculation: %v", err)
	}
	committed = true

	log.Printf("RecalculateDuplicates: keyword=%q rows=%d duplicates=%d", keyword, len(updates), duplicates)
	return duplicates, nil
}

// FetchNews returns stored articles matching the query options, sorted
// by publish timestamp.
func (s *Store) FetchNews(opts models.QueryOptions) ([]models.Article, error) {
	conn, err := s.pool.Acquire(acquireTimeout)
	if err != nil {
		return nil, err
	}
	defer s.pool.Release(conn)

	var query string
	var args []interface{}

	if opts.OnlyBookmarked {
		query = `
			SELECT
				n.link, n.title, n.description, n.pubDate, n.publisher,
				n.is_read, n.is_bookmarked, n.pubDate_ts, n.created_at,
				n.notes, n.title_hash,
				CASE WHEN EXISTS (
					SELECT 1 FROM news_keywords nk
					WHERE nk.link = n.link AND nk.is_duplicate = 1
				) THEN 1 ELSE 0 END AS is_duplicate
			FROM news n
			WHERE n.is_bookmarked = 1`
	} else {
		query = `
			SELECT
				n.link, n.title, n.description, n.pubDate, n.publisher,
				n.is_read, n.is_bookmarked, n.pubDate_ts, n.created_at,
				n.notes, n.title_hash,
				nk.is_duplicate AS is_duplicate
			FROM news n
			JOIN news_keywords nk ON nk.link = n.link
			WHERE nk.keyword = ?`
		args = append(args, opts.Keyword)
	}

	clause, clauseArgs := buildFilterClause(opts)
	query += clause
	args = append(args, clauseArgs...)

	if opts.SortAscending {
		query += " ORDER BY n.pubDate_ts ASC"
	} else {
		query += " ORDER BY n.pubDate_ts DESC"
	}

	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}
	if opts.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, opts.Limit, offset)
	} else if offset > 0 {
		query += " LIMIT -1 OFFSET ?"
		args = append(args, offset)
	}

	rows, err := conn.DB.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query articles: %v", err)
	}
	defer rows.Close()

	var articles []models.Article
	for rows.Next() {
		article, err := scanArticle(rows)
		if err != nil {
			return nil, err
		}
		articles = append(articles, article)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration: %v", err)
	}

	return articles, nil
}

// CountNews counts stored articles matching the query options
// (limit/offset ignored).
func (s *Store) CountNews(opts models.QueryOptions) (int, error) {
	conn, err := s.pool.Acquire(acquireTimeout)
	if err != nil {
		return 0, err
	}
	defer s.pool.Release(conn)

	var query string
	var args []interface{}
	if opts.OnlyBookmarked {
		query = "SELECT COUNT(*) FROM news n WHERE n.is_bookmarked = 1"
	} else {
		query = `SELECT COUNT(*) FROM news n
			JOIN news_keywords nk ON nk.link = n.link
			WHERE nk.keyword = ?`
		args = append(args, opts.Keyword)
	}

	clause, clauseArgs := buildFilterClause(opts)
	query += clause
	args = append(args, clauseArgs...)

	var count int
	if err := conn.DB.QueryRow(query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count articles: %v", err)
	}
	return count, nil
}

// buildFilterClause renders the shared filter conditions of FetchNews
// and CountNews.
func buildFilterClause(opts models.QueryOptions) (string, []interface{}) {
	var sb strings.Builder
	var args []interface{}

	if opts.OnlyUnread {
		sb.WriteString(" AND n.is_read = 0")
	}

	if opts.HideDuplicates {
		if opts.OnlyBookmarked {
			sb.WriteString(" AND NOT EXISTS (SELECT 1 FROM news_keywords nk WHERE nk.link = n.link AND nk.is_duplicate = 1)")
		} else {
			sb.WriteString(" AND nk.is_duplicate = 0")
		}
	}

	if opts.Filter != "" {
		sb.WriteString(" AND (n.title LIKE ? OR n.description LIKE ?)")
		wildcard := "%" + opts.Filter + "%"
		args = append(args, wildcard, wildcard)
	}

	for _, word := range opts.ExcludeWords {
		if word == "" {
			continue
		}
		sb.WriteString(" AND NOT (n.title LIKE ? OR n.description LIKE ?)")
		wildcard := "%" + word + "%"
		args = append(args, wildcard, wildcard)
	}

	if opts.StartDate != "" {
		if t, err := time.ParseInLocation("2006-01-02", opts.StartDate, time.Local); err == nil {
			sb.WriteString(" AND n.pubDate_ts >= ?")
			args = append(args, float64(t.Unix()))
		} else {
			log.Printf("Warning: invalid start_date format: %s", opts.StartDate)
		}
	}

	if opts.EndDate != "" {
		if t, err := time.ParseInLocation("2006-01-02", opts.EndDate, time.Local); err == nil {
			sb.WriteString(" AND n.pubDate_ts < ?")
			args = append(args, float64(t.Add(24*time.Hour).Unix()))
		} else {
			log.Printf("Warning: invalid end_date format: %s", opts.EndDate)
		}
	}

	return sb.String(), args
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanArticle(row rowScanner) (models.Article, error) {
	var article models.Article
	var description, pubDate, publisher, notes, titleHash sql.NullString
	var pubDateTS, createdAt sql.NullFloat64
	var isRead, isBookmarked, isDuplicate int

	err := row.Scan(
		&article.Link,
		&article.Title,
		&description,
		&pubDate,
		&publisher,
		&isRead,
		&isBookmarked,
		&pubDateTS,
		&createdAt,
		&notes,
		&titleHash,
		&isDuplicate,
	)
	if err != nil {
		return article, fmt.Errorf("failed to scan article: %v", err)
	}

	article.Description = description.String
	article.PubDate = pubDate.String
	article.Publisher = publisher.String
	article.Notes = notes.String
	article.TitleHash = titleHash.String
	article.PubDateTS = pubDateTS.Float64
	article.CreatedAt = createdAt.Float64
	article.IsRead = isRead != 0
	article.IsBookmarked = isBookmarked != 0
	article.IsDuplicate = isDuplicate != 0
	return article, nil
}

// GetCount returns the number of articles associated with a keyword.
func (s *Store) GetCount(keyword string) (int, error) {
	conn, err := s.pool.Acquire(acquireTimeout)
	if err != nil {
		return 0, err
	}
	defer s.pool.Release(conn)

	var count int
	if err := conn.DB.QueryRow("SELECT COUNT(*) FROM news_keywords WHERE keyword = ?", keyword).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count keyword articles: %v", err)
	}
	return count, nil
}

// UnreadCount returns the number of unread articles under a keyword.
func (s *Store) UnreadCount(keyword string) (int, error) {
	conn, err := s.pool.Acquire(acquireTimeout)
	if err != nil {
		return 0, err
	}
	defer s.pool.Release(conn)

	var count int
	err = conn.DB.QueryRow(`
		SELECT COUNT(*)
		FROM news n
		JOIN news_keywords nk ON nk.link = n.link
		WHERE nk.keyword = ? AND n.is_read = 0
	`, keyword).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count unread articles: %v", err)
	}
	return count, nil
}

// UnreadCountsByKeywords returns unread counts for several keywords in
// one query. Keywords without rows map to zero.
func (s *Store) UnreadCountsByKeywords(keywords []string) (map[string]int, error) {
	cleaned := make([]string, 0, len(keywords))
	for _, keyword := range keywords {
		if strings.TrimSpace(keyword) != "" {
			cleaned = append(cleaned, keyword)
		}
	}
	result := make(map[string]int, len(cleaned))
	if len(cleaned) == 0 {
		return result, nil
	}
	for _, keyword := range cleaned {
		result[keyword] = 0
	}

	conn, err := s.pool.Acquire(acquireTimeout)
	if err != nil {
		return nil, err
	}
	defer s.pool.Release(conn)

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(cleaned)), ",")
	args := make([]interface{}, len(cleaned))
	for i, keyword := range cleaned {
		args[i] = keyword
	}

	rows, err := conn.DB.Query(fmt.Sprintf(`
		SELECT nk.keyword, COUNT(*)
		FROM news_keywords nk
		JOIN news n ON n.link = nk.link
		WHERE nk.keyword IN (%s) AND n.is_read = 0
		GROUP BY nk.keyword
	`, placeholders), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to count unread by keywords: %v", err)
	}
	defer rows.Close()

	for rows.Next() {
		var keyword string
		var count int
		if err := rows.Scan(&keyword, &count); err != nil {
			return nil, err
		}
		result[keyword] = count
	}
	return result, rows.Err()
}

// allowedUpdateFields whitelists the mutable status columns.
var allowedUpdateFields = map[string]bool{
	"is_read":       true,
	"is_bookmarked": true,
	"notes":         true,
	"is_duplicate":  true,
}

// UpdateStatus mutates one whitelisted status field of an article.
func (s *Store) UpdateStatus(link, field string, value interface{}) error {
	if !allowedUpdateFields[field] {
		return fmt.Errorf("field not allowed for update: %s", field)
	}

	conn, err := s.pool.Acquire(acquireTimeout)
	if err != nil {
		return err
	}
	defer s.pool.Release(conn)

	if _, err := conn.DB.Exec(fmt.Sprintf("UPDATE news SET %s = ? WHERE link = ?", field), value, link); err != nil {
		return fmt.Errorf("failed to update %s: %v", field, err)
	}
	return nil
}

// SaveNote stores the free-text note of an article.
func (s *Store) SaveNote(link, note string) error {
	return s.UpdateStatus(link, "notes", note)
}

// GetNote returns the free-text note of an article, empty when unset.
func (s *Store) GetNote(link string) (string, error) {
	conn, err := s.pool.Acquire(acquireTimeout)
	if err != nil {
		return "", err
	}
	defer s.pool.Release(conn)

	var note sql.NullString
	err = conn.DB.QueryRow("SELECT notes FROM news WHERE link = ?", link).Scan(&note)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read note: %v", err)
	}
	return note.String, nil
}

// DeleteOldNews removes non-bookmarked articles older than the given
// number of days. Cascades to keyword associations.
func (s *Store) DeleteOldNews(days int) (int64, error) {
	conn, err := s.pool.Acquire(acquireTimeout)
	if err != nil {
		return 0, err
	}
	defer s.pool.Release(conn)

	cutoff := float64(time.Now().AddDate(0, 0, -days).Unix())
	result, err := conn.DB.Exec("DELETE FROM news WHERE is_bookmarked = 0 AND pubDate_ts < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old articles: %v", err)
	}
	deleted, _ := result.RowsAffected()
	if deleted > 0 {
		log.Printf("Deleted %d article(s) older than %d days", deleted, days)
	}
	return deleted, nil
}

// DeleteAllNews removes every non-bookmarked article.
func (s *Store) DeleteAllNews() (int64, error) {
	conn, err := s.pool.Acquire(acquireTimeout)
	if err != nil {
		return 0, err
	}
	defer s.pool.Release(conn)

	result, err := conn.DB.Exec("DELETE FROM news WHERE is_bookmarked = 0")
	if err != nil {
		return 0, fmt.Errorf("failed to clear articles: %v", err)
	}
	deleted, _ := result.RowsAffected()
	return deleted, nil
}

// MarkAllRead flags every unread article of a keyword (or of the
// bookmark view) as read and returns the number of rows changed.
func (s *Store) MarkAllRead(keyword string, onlyBookmark bool) (int64, error) {
	conn, err := s.pool.Acquire(acquireTimeout)
	if err != nil {
		return 0, err
	}
	defer s.pool.Release(conn)

	var result sql.Result
	if onlyBookmark {
		result, err = conn.DB.Exec("UPDATE news SET is_read = 1 WHERE is_bookmarked = 1 AND is_read = 0")
	} else {
		result, err = conn.DB.Exec(`
			UPDATE news
			SET is_read = 1
			WHERE is_read = 0
			  AND link IN (SELECT link FROM news_keywords WHERE keyword = ?)
		`, keyword)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to mark articles read: %v", err)
	}
	changed, _ := result.RowsAffected()
	return changed, nil
}

// Statistics returns store-wide counters.
func (s *Store) Statistics() (models.Statistics, error) {
	conn, err := s.pool.Acquire(acquireTimeout)
	if err != nil {
		return models.Statistics{}, err
	}
	defer s.pool.Release(conn)

	var stats models.Statistics
	queries := []struct {
		dest  *int
		query string
	}{
		{&stats.Total, "SELECT COUNT(*) FROM news"},
		{&stats.Unread, "SELECT COUNT(*) FROM news WHERE is_read = 0"},
		{&stats.Bookmarked, "SELECT COUNT(*) FROM news WHERE is_bookmarked = 1"},
		{&stats.WithNotes, "SELECT COUNT(*) FROM news WHERE notes IS NOT NULL AND notes != ''"},
		{&stats.Duplicates, "SELECT COUNT(*) FROM news_keywords WHERE is_duplicate = 1"},
	}
	for _, q := range queries {
		if err := conn.DB.QueryRow(q.query).Scan(q.dest); err != nil {
			return models.Statistics{}, fmt.Errorf("failed to compute statistics: %v", err)
		}
	}
	return stats, nil
}

// TopPublishers returns the most frequent publishers, optionally
// scoped to one keyword.
func (s *Store) TopPublishers(keyword string, limit int) ([]models.PublisherCount, error) {
	conn, err := s.pool.Acquire(acquireTimeout)
	if err != nil {
		return nil, err
	}
	defer s.pool.Release(conn)

	var rows *sql.Rows
	if keyword != "" {
		rows, err = conn.DB.Query(`
			SELECT COALESCE(n.publisher, ''), COUNT(*) AS count
			FROM news n
			JOIN news_keywords nk ON nk.link = n.link
			WHERE nk.keyword = ?
			GROUP BY n.publisher
			ORDER BY count DESC
			LIMIT ?
		`, keyword, limit)
	} else {
		rows, err = conn.DB.Query(`
			SELECT COALESCE(publisher, ''), COUNT(*) AS count
			FROM news
			GROUP BY publisher
			ORDER BY count DESC
			LIMIT ?
		`, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query top publishers: %v", err)
	}
	defer rows.Close()

	var result []models.PublisherCount
	for rows.Next() {
		var pc models.PublisherCount
		if err := rows.Scan(&pc.Publisher, &pc.Count); err != nil {
			return nil, err
		}
		result = append(result, pc)
	}
	return result, rows.Err()
}
