package posts

import (
	"context"
	"net/url"
	"strconv"
	"strings"
	"unicode/utf8"

	"messageboard/store"
)

const (
	DefaultPage    = 1
	DefaultLimit   = 5
	MaxLimit       = 100
	MinSearchChars = 3

	searchAuthor      = "author"
	searchAuthorExact = "author!"
)

var searchTypes = map[string]bool{
	"title":           true,
	"body":            true,
	searchAuthor:      true,
	searchAuthorExact: true,
}

// ListQuery is the parsed form of the /posts query string.
type ListQuery struct {
	Page  int
	Limit int
	// SearchType is the raw searchType parameter, echoed back to the form.
	SearchType  string
	SearchTypes []string
	SearchText  string
}

// ParseListQuery reads page, limit, searchType and searchText. Values that
// are missing or not numbers fall back to the defaults; both page and limit
// are clamped to at least 1 and limit to MaxLimit.
func ParseListQuery(v url.Values) ListQuery {
	q := ListQuery{
		Page:       positiveInt(v.Get("page"), DefaultPage),
		Limit:      positiveInt(v.Get("limit"), DefaultLimit),
		SearchType: v.Get("searchType"),
		SearchText: strings.TrimSpace(v.Get("searchText")),
	}
	if q.Limit > MaxLimit {
		q.Limit = MaxLimit
	}

	seen := map[string]bool{}
	for _, t := range strings.Split(q.SearchType, ",") {
		t = strings.ToLower(strings.TrimSpace(t))
		if searchTypes[t] && !seen[t] {
			seen[t] = true
			q.SearchTypes = append(q.SearchTypes, t)
		}
	}
	return q
}

func positiveInt(raw string, def int) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return def
	}
	if n < 1 {
		return 1
	}
	return n
}

func (q ListQuery) Skip() int {
	return (q.Page - 1) * q.Limit
}

// Searching reports whether the query filters posts at all.
func (q ListQuery) Searching() bool {
	return len(q.SearchTypes) > 0 && utf8.RuneCountInString(q.SearchText) >= MinSearchChars
}

func (q ListQuery) has(t string) bool {
	for _, s := range q.SearchTypes {
		if s == t {
			return true
		}
	}
	return false
}

// MaxPage is ceil(count/limit), and 0 when there is nothing to show.
func MaxPage(count int64, limit int) int {
	if limit < 1 {
		limit = 1
	}
	return int((count + int64(limit) - 1) / int64(limit))
}

// UserResolver maps a username search to user ids.
type UserResolver interface {
	FindUserIDs(ctx context.Context, username string, exact bool) ([]string, error)
}

// BuildFilter turns the search part of q into a store filter. Title and
// body become substring clauses; an author search resolves usernames first,
// exact for "author!" (which wins over "author"). A search that ends up with
// no clause at all matches nothing.
func BuildFilter(ctx context.Context, q ListQuery, users UserResolver) (store.PostFilter, error) {
	var filter store.PostFilter
	if !q.Searching() {
		return filter, nil
	}

	for _, t := range q.SearchTypes {
		if store.SearchFields[t] {
			filter.Fields = append(filter.Fields, t)
		}
	}
	if len(filter.Fields) > 0 {
		filter.Text = q.SearchText
	}

	if q.has(searchAuthorExact) || q.has(searchAuthor) {
		ids, err := users.FindUserIDs(ctx, q.SearchText, q.has(searchAuthorExact))
		if err != nil {
			return filter, err
		}
		filter.AuthorIDs = ids
	}

	if len(filter.Fields) == 0 && len(filter.AuthorIDs) == 0 {
		filter.Empty = true
	}
	return filter, nil
}
