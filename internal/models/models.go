package models

// NewsItem is a single normalized item coming back from the search API,
// before persistence.
type NewsItem struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Link        string `json:"link"`
	PubDate     string `json:"pub_date"`
	Publisher   string `json:"publisher"`
}

// Article represents a stored news row, including per-keyword duplicate
// classification when loaded through a keyword view.
type Article struct {
	Link         string  `json:"link"`
	Title        string  `json:"title"`
	Description  string  `json:"description"`
	PubDate      string  `json:"pub_date"`
	PubDateTS    float64 `json:"pub_date_ts"`
	Publisher    string  `json:"publisher"`
	IsRead       bool    `json:"is_read"`
	IsBookmarked bool    `json:"is_bookmarked"`
	CreatedAt    float64 `json:"created_at"`
	Notes        string  `json:"notes"`
	TitleHash    string  `json:"title_hash"`
	IsDuplicate  bool    `json:"is_duplicate"`
}

// FetchResult is the single completion payload of a fetch worker.
type FetchResult struct {
	Items      []NewsItem `json:"items"`
	Total      int        `json:"total"`
	Filtered   int        `json:"filtered"`
	Added      int        `json:"added"`
	Duplicates int        `json:"duplicates"`
}

// QueryOptions selects and orders stored articles for the read API.
type QueryOptions struct {
	Keyword        string   `json:"keyword"`
	Filter         string   `json:"filter"`
	SortAscending  bool     `json:"sort_ascending"`
	OnlyBookmarked bool     `json:"only_bookmarked"`
	OnlyUnread     bool     `json:"only_unread"`
	HideDuplicates bool     `json:"hide_duplicates"`
	ExcludeWords   []string `json:"exclude_words"`
	StartDate      string   `json:"start_date"` // YYYY-MM-DD, inclusive
	EndDate        string   `json:"end_date"`   // YYYY-MM-DD, inclusive
	Limit          int      `json:"limit"`
	Offset         int      `json:"offset"`
}

// Statistics summarizes the whole store.
type Statistics struct {
	Total      int `json:"total"`
	Unread     int `json:"unread"`
	Bookmarked int `json:"bookmarked"`
	WithNotes  int `json:"with_notes"`
	Duplicates int `json:"duplicates"`
}

// PublisherCount is one row of the top-publishers report.
type PublisherCount struct {
	Publisher string `json:"publisher"`
	Count     int    `json:"count"`
}

// RefreshSummary is the single aggregate event emitted when a
// sequential refresh cycle finishes.
type RefreshSummary struct {
	Tabs       int `json:"tabs"`
	Added      int `json:"added"`
	Duplicates int `json:"duplicates"`
}
