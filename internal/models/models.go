package models

import "time"

// RawPost is a search hit as returned by the feed, before classification.
type RawPost struct {
	URI          string    `json:"uri"`
	CID          string    `json:"cid"`
	AuthorHandle string    `json:"author_handle"`
	AuthorDID    string    `json:"author_did"`
	Text         string    `json:"text"`
	CreatedAt    time.Time `json:"created_at"`
	IndexedAt    time.Time `json:"indexed_at"`
}

// StoredPost is a qualified post kept in the store so it is never reported twice.
type StoredPost struct {
	ID       string  `json:"id,omitempty"`
	URL      string  `json:"url"`
	Text     string  `json:"text"`
	Author   string  `json:"author"`
	WebURL   string  `json:"web_url"`
	PostedAt string  `json:"posted_at,omitempty"`
	AI       Verdict `json:"ai"`
}

// Link returns the browser URL when known and the AT-URI otherwise.
func (p StoredPost) Link() string {
	if p.WebURL != "" {
		return p.WebURL
	}
	return p.URL
}
