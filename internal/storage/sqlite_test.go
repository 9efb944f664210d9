package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/twbeatles/navernews-tabsearch/internal/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(t.TempDir(), 2)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func testItem(link, title string, age time.Duration) models.NewsItem {
	return models.NewsItem{
		Title:       title,
		Description: "description of " + title,
		Link:        link,
		PubDate:     time.Now().Add(-age).Format(time.RFC1123Z),
		Publisher:   "example.com",
	}
}

func TestUpsertIdempotent(t *testing.T) {
	store := newTestStore(t)
	items := []models.NewsItem{testItem("https://n.example/1", "First Article", time.Hour)}

	added, dup, err := store.UpsertNews(items, "economy")
	if err != nil {
		t.Fatalf("upsert failed: %v", err)
	}
	if added != 1 || dup != 0 {
		t.Errorf("first ingest: expected (1,0), got (%d,%d)", added, dup)
	}

	// Same link again: update in place, counted neither added nor duplicate.
	added, dup, err = store.UpsertNews(items, "economy")
	if err != nil {
		t.Fatalf("re-ingest failed: %v", err)
	}
	if added != 0 || dup != 0 {
		t.Errorf("re-ingest: expected (0,0), got (%d,%d)", added, dup)
	}

	count, err := store.GetCount("economy")
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 1 {
		t.Errorf("expected 1 stored row, got %d", count)
	}

	// The re-ingest must not have flipped the duplicate flag either.
	articles, err := store.FetchNews(models.QueryOptions{Keyword: "economy"})
	if err != nil {
		t.Fatal(err)
	}
	if len(articles) != 1 || articles[0].IsDuplicate {
		t.Errorf("re-ingested article should stay non-duplicate: %+v", articles)
	}
	dups, err := store.RecalculateDuplicates("economy")
	if err != nil {
		t.Fatal(err)
	}
	if dups != 0 {
		t.Errorf("recalculation should find no duplicates, got %d", dups)
	}
}

func TestReingestKeepsDuplicateFlags(t *testing.T) {
	store := newTestStore(t)

	first := testItem("https://n.example/1", "Same Story", time.Hour)
	second := testItem("https://n.example/2", "Same Story", 2*time.Hour)

	added, dup, err := store.UpsertNews([]models.NewsItem{first, second}, "economy")
	if err != nil {
		t.Fatal(err)
	}
	if added != 1 || dup != 1 {
		t.Fatalf("initial ingest: expected (1,1), got (%d,%d)", added, dup)
	}

	// Re-ingesting only the flagged article must count nothing and keep
	// both stored flags where they are.
	added, dup, err = store.UpsertNews([]models.NewsItem{second}, "economy")
	if err != nil {
		t.Fatal(err)
	}
	if added != 0 || dup != 0 {
		t.Errorf("re-ingest: expected (0,0), got (%d,%d)", added, dup)
	}

	articles, err := store.FetchNews(models.QueryOptions{Keyword: "economy"})
	if err != nil {
		t.Fatal(err)
	}
	flags := make(map[string]bool, len(articles))
	for _, a := range articles {
		flags[a.Link] = a.IsDuplicate
	}
	if flags["https://n.example/1"] {
		t.Error("original article should stay non-duplicate")
	}
	if !flags["https://n.example/2"] {
		t.Error("flagged article should keep its duplicate mark")
	}
}

func TestUpsertDuplicateTitleSameKeyword(t *testing.T) {
	store := newTestStore(t)

	_, _, err := store.UpsertNews([]models.NewsItem{
		testItem("https://n.example/a", "Breaking  News", time.Hour),
	}, "economy")
	if err != nil {
		t.Fatal(err)
	}

	// Same normalized title under a different link is a duplicate.
	added, dup, err := store.UpsertNews([]models.NewsItem{
		testItem("https://n.example/b", "breaking news", time.Hour),
	}, "economy")
	if err != nil {
		t.Fatal(err)
	}
	if added != 0 || dup != 1 {
		t.Errorf("expected (0,1), got (%d,%d)", added, dup)
	}

	articles, err := store.FetchNews(models.QueryOptions{Keyword: "economy"})
	if err != nil {
		t.Fatal(err)
	}
	dupCount := 0
	for _, a := range articles {
		if a.IsDuplicate {
			dupCount++
		}
	}
	if dupCount != 1 {
		t.Errorf("expected exactly 1 flagged duplicate, got %d", dupCount)
	}
}

func TestUpsertBatchInternalDuplicates(t *testing.T) {
	store := newTestStore(t)

	added, dup, err := store.UpsertNews([]models.NewsItem{
		testItem("https://n.example/1", "Same Story", time.Hour),
		testItem("https://n.example/2", "Same Story", 2*time.Hour),
		testItem("https://n.example/3", "Other Story", 3*time.Hour),
	}, "tech")
	if err != nil {
		t.Fatal(err)
	}
	if added != 2 || dup != 1 {
		t.Errorf("expected (2,1), got (%d,%d)", added, dup)
	}
}

func TestDuplicateScopingPerKeyword(t *testing.T) {
	store := newTestStore(t)

	added, dup, err := store.UpsertNews([]models.NewsItem{
		testItem("https://n.example/1", "Shared Title", time.Hour),
	}, "economy")
	if err != nil || added != 1 || dup != 0 {
		t.Fatalf("keyword 1: got (%d,%d,%v)", added, dup, err)
	}

	// Different keyword, different link, same title: not a duplicate there.
	added, dup, err = store.UpsertNews([]models.NewsItem{
		testItem("https://n.example/2", "Shared Title", time.Hour),
	}, "tech")
	if err != nil || added != 1 || dup != 0 {
		t.Fatalf("keyword 2: got (%d,%d,%v)", added, dup, err)
	}
}

func TestFetchNewsPagination(t *testing.T) {
	store := newTestStore(t)

	var items []models.NewsItem
	for i := 0; i < 5; i++ {
		items = append(items, testItem(
			fmt.Sprintf("https://n.example/%d", i),
			fmt.Sprintf("Article %d", i),
			time.Duration(i)*time.Hour,
		))
	}
	if _, _, err := store.UpsertNews(items, "economy"); err != nil {
		t.Fatal(err)
	}

	page, err := store.FetchNews(models.QueryOptions{Keyword: "economy", Limit: 2, Offset: 1})
	if err != nil {
		t.Fatal(err)
	}
	if len(page) != 2 {
		t.Fatalf("expected page of 2, got %d", len(page))
	}
	// Newest first: offset 1 skips Article 0.
	if page[0].Title != "Article 1" || page[1].Title != "Article 2" {
		t.Errorf("unexpected page contents: %q, %q", page[0].Title, page[1].Title)
	}

	asc, err := store.FetchNews(models.QueryOptions{Keyword: "economy", SortAscending: true, Limit: 1})
	if err != nil {
		t.Fatal(err)
	}
	if len(asc) != 1 || asc[0].Title != "Article 4" {
		t.Errorf("ascending order should start with the oldest article, got %v", asc)
	}
}

func TestFetchNewsFilters(t *testing.T) {
	store := newTestStore(t)

	if _, _, err := store.UpsertNews([]models.NewsItem{
		testItem("https://n.example/1", "Stock market rally", time.Hour),
		testItem("https://n.example/2", "Crypto crash deepens", 2*time.Hour),
		testItem("https://n.example/3", "Bond yields steady", 3*time.Hour),
	}, "economy"); err != nil {
		t.Fatal(err)
	}

	filtered, err := store.FetchNews(models.QueryOptions{Keyword: "economy", Filter: "market"})
	if err != nil {
		t.Fatal(err)
	}
	if len(filtered) != 1 || filtered[0].Title != "Stock market rally" {
		t.Errorf("text filter mismatch: %v", filtered)
	}

	excluded, err := store.FetchNews(models.QueryOptions{Keyword: "economy", ExcludeWords: []string{"Crypto"}})
	if err != nil {
		t.Fatal(err)
	}
	if len(excluded) != 2 {
		t.Errorf("expected 2 articles after exclusion, got %d", len(excluded))
	}

	if err := store.UpdateStatus("https://n.example/1", "is_read", 1); err != nil {
		t.Fatal(err)
	}
	unread, err := store.FetchNews(models.QueryOptions{Keyword: "economy", OnlyUnread: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(unread) != 2 {
		t.Errorf("expected 2 unread articles, got %d", len(unread))
	}

	n, err := store.CountNews(models.QueryOptions{Keyword: "economy", OnlyUnread: true})
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("count should agree with fetch, got %d", n)
	}
}

func TestBookmarkViewCrossKeyword(t *testing.T) {
	store := newTestStore(t)

	if _, _, err := store.UpsertNews([]models.NewsItem{
		testItem("https://n.example/1", "Bookmarked Story", time.Hour),
	}, "economy"); err != nil {
		t.Fatal(err)
	}
	if _, _, err := store.UpsertNews([]models.NewsItem{
		testItem("https://n.example/2", "Plain Story", time.Hour),
	}, "tech"); err != nil {
		t.Fatal(err)
	}
	if err := store.UpdateStatus("https://n.example/1", "is_bookmarked", 1); err != nil {
		t.Fatal(err)
	}

	marked, err := store.FetchNews(models.QueryOptions{OnlyBookmarked: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(marked) != 1 || marked[0].Link != "https://n.example/1" {
		t.Errorf("bookmark view mismatch: %v", marked)
	}
}

func TestRecalculateDuplicates(t *testing.T) {
	store := newTestStore(t)

	if _, _, err := store.UpsertNews([]models.NewsItem{
		testItem("https://n.example/1", "Repeated Headline", time.Hour),
		testItem("https://n.example/2", "Repeated Headline", 2*time.Hour),
		testItem("https://n.example/3", "Unique Headline", 3*time.Hour),
	}, "economy"); err != nil {
		t.Fatal(err)
	}

	// Corrupt the flags, then recalculation must restore them.
	for _, link := range []string{"https://n.example/1", "https://n.example/2", "https://n.example/3"} {
		conn, err := store.Pool().Acquire(time.Second)
		if err != nil {
			t.Fatal(err)
		}
		_, err = conn.DB.Exec("UPDATE news_keywords SET is_duplicate = 0 WHERE link = ?", link)
		store.Pool().Release(conn)
		if err != nil {
			t.Fatal(err)
		}
	}

	dups, err := store.RecalculateDuplicates("economy")
	if err != nil {
		t.Fatal(err)
	}
	if dups != 1 {
		t.Errorf("expected 1 duplicate after recalculation, got %d", dups)
	}

	articles, err := store.FetchNews(models.QueryOptions{Keyword: "economy", HideDuplicates: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(articles) != 2 {
		t.Errorf("expected 2 non-duplicate articles, got %d", len(articles))
	}
}

func TestUpdateStatusWhitelist(t *testing.T) {
	store := newTestStore(t)

	if err := store.UpdateStatus("https://n.example/1", "title", "evil"); err == nil {
		t.Error("non-whitelisted field must be rejected")
	}
	if err := store.UpdateStatus("https://n.example/1", "is_read; DROP TABLE news", 1); err == nil {
		t.Error("injection attempt must be rejected")
	}
}

func TestSaveAndGetNote(t *testing.T) {
	store := newTestStore(t)

	if _, _, err := store.UpsertNews([]models.NewsItem{
		testItem("https://n.example/1", "Noted Story", time.Hour),
	}, "economy"); err != nil {
		t.Fatal(err)
	}

	if err := store.SaveNote("https://n.example/1", "follow up tomorrow"); err != nil {
		t.Fatal(err)
	}
	note, err := store.GetNote("https://n.example/1")
	if err != nil {
		t.Fatal(err)
	}
	if note != "follow up tomorrow" {
		t.Errorf("unexpected note: %q", note)
	}

	// Unknown link reads as empty, not as an error.
	note, err = store.GetNote("https://n.example/missing")
	if err != nil {
		t.Fatal(err)
	}
	if note != "" {
		t.Errorf("expected empty note for unknown link, got %q", note)
	}
}

func TestDeleteOldNewsKeepsBookmarks(t *testing.T) {
	store := newTestStore(t)

	if _, _, err := store.UpsertNews([]models.NewsItem{
		testItem("https://n.example/old", "Old Story", 72*time.Hour),
		testItem("https://n.example/kept", "Old Bookmark", 72*time.Hour),
		testItem("https://n.example/new", "Fresh Story", time.Hour),
	}, "economy"); err != nil {
		t.Fatal(err)
	}
	if err := store.UpdateStatus("https://n.example/kept", "is_bookmarked", 1); err != nil {
		t.Fatal(err)
	}

	deleted, err := store.DeleteOldNews(2)
	if err != nil {
		t.Fatal(err)
	}
	if deleted != 1 {
		t.Errorf("expected 1 deleted row, got %d", deleted)
	}

	count, err := store.GetCount("economy")
	if err != nil {
		t.Fatal(err)
	}
	if count != 2 {
		t.Errorf("expected 2 surviving rows, got %d", count)
	}
}

func TestMarkAllRead(t *testing.T) {
	store := newTestStore(t)

	if _, _, err := store.UpsertNews([]models.NewsItem{
		testItem("https://n.example/1", "One", time.Hour),
		testItem("https://n.example/2", "Two", 2*time.Hour),
	}, "economy"); err != nil {
		t.Fatal(err)
	}

	changed, err := store.MarkAllRead("economy", false)
	if err != nil {
		t.Fatal(err)
	}
	if changed != 2 {
		t.Errorf("expected 2 rows marked read, got %d", changed)
	}

	unread, err := store.UnreadCount("economy")
	if err != nil {
		t.Fatal(err)
	}
	if unread != 0 {
		t.Errorf("expected 0 unread, got %d", unread)
	}
}

func TestUnreadCountsByKeywords(t *testing.T) {
	store := newTestStore(t)

	if _, _, err := store.UpsertNews([]models.NewsItem{
		testItem("https://n.example/1", "One", time.Hour),
		testItem("https://n.example/2", "Two", 2*time.Hour),
	}, "economy"); err != nil {
		t.Fatal(err)
	}

	counts, err := store.UnreadCountsByKeywords([]string{"economy", "tech", " "})
	if err != nil {
		t.Fatal(err)
	}
	if counts["economy"] != 2 {
		t.Errorf("expected 2 unread for economy, got %d", counts["economy"])
	}
	if n, ok := counts["tech"]; !ok || n != 0 {
		t.Errorf("keyword without rows should map to 0, got %v (present=%v)", n, ok)
	}
}

func TestStatisticsAndTopPublishers(t *testing.T) {
	store := newTestStore(t)

	items := []models.NewsItem{
		testItem("https://n.example/1", "One", time.Hour),
		testItem("https://n.example/2", "Two", 2*time.Hour),
	}
	items[1].Publisher = "other.org"
	if _, _, err := store.UpsertNews(items, "economy"); err != nil {
		t.Fatal(err)
	}
	if err := store.UpdateStatus("https://n.example/1", "is_bookmarked", 1); err != nil {
		t.Fatal(err)
	}
	if err := store.SaveNote("https://n.example/2", "note"); err != nil {
		t.Fatal(err)
	}

	stats, err := store.Statistics()
	if err != nil {
		t.Fatal(err)
	}
	if stats.Total != 2 || stats.Unread != 2 || stats.Bookmarked != 1 || stats.WithNotes != 1 {
		t.Errorf("unexpected statistics: %+v", stats)
	}

	publishers, err := store.TopPublishers("", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(publishers) != 2 {
		t.Errorf("expected 2 publishers, got %v", publishers)
	}
}

func TestReopenExistingStore(t *testing.T) {
	dir := t.TempDir()

	store, err := New(dir, 2)
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := store.UpsertNews([]models.NewsItem{
		testItem("https://n.example/1", "Persistent Story", time.Hour),
	}, "economy"); err != nil {
		t.Fatal(err)
	}
	store.Close()

	// Second startup on the same file must migrate cleanly and keep data.
	reopened, err := New(dir, 2)
	if err != nil {
		t.Fatalf("second startup failed: %v", err)
	}
	defer reopened.Close()

	count, err := reopened.GetCount("economy")
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("expected 1 row after reopen, got %d", count)
	}
}

func TestCorruptStoreQuarantined(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, dbFileName)
	if err := os.WriteFile(dbPath, []byte("this is not a database"), 0600); err != nil {
		t.Fatal(err)
	}

	store, err := New(dir, 1)
	if err != nil {
		t.Fatalf("startup on corrupt store should recover: %v", err)
	}
	defer store.Close()

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	quarantined := false
	for _, e := range entries {
		if strings.Contains(e.Name(), ".corrupt_") {
			quarantined = true
		}
	}
	if !quarantined {
		t.Error("expected corrupt file to be moved aside")
	}

	if _, _, err := store.UpsertNews([]models.NewsItem{
		testItem("https://n.example/1", "Recovered", time.Hour),
	}, "economy"); err != nil {
		t.Errorf("fresh store should accept writes: %v", err)
	}
}

func TestFingerprintNormalization(t *testing.T) {
	a := Fingerprint("Breaking  News\tToday")
	b := Fingerprint("breaking news today")
	if a != b {
		t.Error("fingerprints should ignore case and whitespace")
	}
	if Fingerprint("breaking news") == b {
		t.Error("different titles must not collide")
	}
}
