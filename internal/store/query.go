package store

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/Adda-Baaj/khobor-topics/internal/domain"
)

const (
	DefaultLimit  = 10
	DefaultWindow = 7 * 24 * time.Hour
)

// Query selects a bounded, ordered set of articles.
type Query struct {
	Topics      []string
	From        time.Time
	To          time.Time
	Limit       int
	SortByMatch bool
}

// Params are the raw query parameters as received at the API boundary.
type Params struct {
	Topics      []string
	Limit       string
	FromDate    string
	ToDate      string
	SortByMatch string
}

// ParseQuery validates p and fills defaults relative to now. Every error wraps
// domain.ErrValidation.
func ParseQuery(p Params, now time.Time) (Query, error) {
	q := Query{
		Topics: normalizeTopics(p.Topics),
		From:   now.Add(-DefaultWindow),
		To:     now,
		Limit:  DefaultLimit,
	}

	if s := strings.TrimSpace(p.Limit); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			return Query{}, fmt.Errorf("%w: limit %q is not an integer", domain.ErrValidation, p.Limit)
		}
		q.Limit = n
	}

	if s := strings.TrimSpace(p.FromDate); s != "" {
		t, _, err := parseISO8601(s)
		if err != nil {
			return Query{}, fmt.Errorf("%w: from_date: %v", domain.ErrValidation, err)
		}
		q.From = t
	}

	if s := strings.TrimSpace(p.ToDate); s != "" {
		t, dateOnly, err := parseISO8601(s)
		if err != nil {
			return Query{}, fmt.Errorf("%w: to_date: %v", domain.ErrValidation, err)
		}
		if dateOnly {
			t = t.Add(24*time.Hour - time.Nanosecond)
		}
		q.To = t
	}

	if s := strings.TrimSpace(p.SortByMatch); s != "" {
		b, err := strconv.ParseBool(s)
		if err != nil {
			return Query{}, fmt.Errorf("%w: sort_by_match %q is not a boolean", domain.ErrValidation, p.SortByMatch)
		}
		q.SortByMatch = b
	}

	if err := q.Validate(); err != nil {
		return Query{}, err
	}
	return q, nil
}

// Validate checks the invariants every backend relies on.
func (q Query) Validate() error {
	if q.Limit <= 0 {
		return fmt.Errorf("%w: limit must be a positive integer, got %d", domain.ErrValidation, q.Limit)
	}
	if q.From.IsZero() || q.To.IsZero() {
		return fmt.Errorf("%w: date range is required", domain.ErrValidation)
	}
	if q.From.After(q.To) {
		return fmt.Errorf("%w: from_date %s is after to_date %s", domain.ErrValidation,
			q.From.Format(time.RFC3339), q.To.Format(time.RFC3339))
	}
	return nil
}

var isoLayouts = []struct {
	layout   string
	dateOnly bool
}{
	{time.RFC3339Nano, false},
	{time.RFC3339, false},
	{"2006-01-02T15:04:05.999999999", false},
	{"2006-01-02T15:04:05", false},
	{"2006-01-02T15:04", false},
	{"2006-01-02", true},
}

// parseISO8601 accepts the common ISO 8601 forms. Values without a zone are UTC.
func parseISO8601(s string) (time.Time, bool, error) {
	for _, l := range isoLayouts {
		if t, err := time.Parse(l.layout, s); err == nil {
			return t.UTC(), l.dateOnly, nil
		}
	}
	return time.Time{}, false, fmt.Errorf("%q is not an ISO 8601 timestamp", s)
}

// normalizeTopics splits comma-separated values, trims, lower-cases and
// de-duplicates topic names.
func normalizeTopics(in []string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, v := range in {
		for _, part := range strings.Split(v, ",") {
			t := strings.ToLower(strings.TrimSpace(part))
			if t == "" {
				continue
			}
			if _, ok := seen[t]; ok {
				continue
			}
			seen[t] = struct{}{}
			out = append(out, t)
		}
	}
	return out
}

// Select filters, orders and limits records according to q. It is shared by all
// backends; records may arrive in any order.
func Select(records []domain.Article, q Query) []domain.Article {
	wanted := make(map[string]struct{}, len(q.Topics))
	for _, t := range q.Topics {
		wanted[t] = struct{}{}
	}

	type candidate struct {
		art   domain.Article
		match int
	}

	candidates := make([]candidate, 0, len(records))
	for _, a := range records {
		if a.PublishedAt.Before(q.From) || a.PublishedAt.After(q.To) {
			continue
		}

		match := len(a.Topics)
		if len(wanted) > 0 {
			match = 0
			for _, t := range a.Topics {
				if _, ok := wanted[t]; ok {
					match++
				}
			}
			if match == 0 {
				continue
			}
		}
		candidates = append(candidates, candidate{art: a, match: match})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if q.SortByMatch && a.match != b.match {
			return a.match > b.match
		}
		if !a.art.PublishedAt.Equal(b.art.PublishedAt) {
			return a.art.PublishedAt.After(b.art.PublishedAt)
		}
		return a.art.Seq < b.art.Seq
	})

	n := min(len(candidates), max(q.Limit, 0))
	out := make([]domain.Article, n)
	for i := range n {
		out[i] = candidates[i].art
	}
	return out
}
