package store

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/Adda-Baaj/khobor-topics/internal/domain"
)

var (
	bucketArticles  = []byte("articles")
	bucketPublished = []byte("published")
	bucketTopics    = []byte("topics")
)

// BoltStore keeps one JSON document per article URL plus two secondary indexes:
// published time and per-topic published time. Index keys are the big-endian
// publication time followed by the insertion sequence.
type BoltStore struct {
	db *bolt.DB
}

// OpenBolt opens or creates the database file at path.
func OpenBolt(path string) (*BoltStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("%w: bolt database path is empty", domain.ErrConfiguration)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("%w: create database dir: %v", domain.ErrPersistence, err)
		}
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("%w: open bolt database: %v", domain.ErrPersistence, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketArticles, bucketPublished, bucketTopics} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("create bucket %s: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}

	return &BoltStore{db: db}, nil
}

// Close releases the database file.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// Save upserts articles in a single transaction. Re-saving a URL replaces the
// previous document and its index entries.
func (s *BoltStore) Save(ctx context.Context, articles ...domain.Article) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}
	if len(articles) == 0 {
		return nil
	}

	err := s.db.Update(func(tx *bolt.Tx) error {
		arts := tx.Bucket(bucketArticles)
		pub := tx.Bucket(bucketPublished)
		topics := tx.Bucket(bucketTopics)

		for _, a := range articles {
			if a.URL == "" {
				return errors.New("article url is empty")
			}
			if a.PublishedAt.IsZero() {
				return fmt.Errorf("article %s has no publication date", a.URL)
			}
			key := []byte(a.URL)

			if prev := arts.Get(key); prev != nil {
				var old domain.Article
				if err := json.Unmarshal(prev, &old); err != nil {
					return fmt.Errorf("decode stored article %s: %w", a.URL, err)
				}
				if err := removeIndexes(pub, topics, old); err != nil {
					return err
				}
			}

			seq, err := arts.NextSequence()
			if err != nil {
				return fmt.Errorf("next sequence: %w", err)
			}
			a.Seq = seq

			data, err := json.Marshal(a)
			if err != nil {
				return fmt.Errorf("encode article %s: %w", a.URL, err)
			}
			if err := arts.Put(key, data); err != nil {
				return fmt.Errorf("put article %s: %w", a.URL, err)
			}

			ik := indexKey(a.PublishedAt, seq)
			if err := pub.Put(ik, key); err != nil {
				return fmt.Errorf("index article %s: %w", a.URL, err)
			}
			for _, topic := range a.Topics {
				tb, err := topics.CreateBucketIfNotExists([]byte(topic))
				if err != nil {
					return fmt.Errorf("create topic bucket %s: %w", topic, err)
				}
				if err := tb.Put(ik, key); err != nil {
					return fmt.Errorf("index article %s under %s: %w", a.URL, topic, err)
				}
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}
	return nil
}

func removeIndexes(pub, topics *bolt.Bucket, old domain.Article) error {
	ik := indexKey(old.PublishedAt, old.Seq)
	if err := pub.Delete(ik); err != nil {
		return fmt.Errorf("drop index for %s: %w", old.URL, err)
	}
	for _, topic := range old.Topics {
		if tb := topics.Bucket([]byte(topic)); tb != nil {
			if err := tb.Delete(ik); err != nil {
				return fmt.Errorf("drop topic index for %s: %w", old.URL, err)
			}
		}
	}
	return nil
}

// Query scans the published index (or the requested topic indexes) over the
// date range and hands the loaded documents to Select.
func (s *BoltStore) Query(ctx context.Context, q Query) ([]domain.Article, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}

	lo := indexKey(q.From, 0)
	hi := indexKey(q.To, ^uint64(0))

	var records []domain.Article
	err := s.db.View(func(tx *bolt.Tx) error {
		arts := tx.Bucket(bucketArticles)

		var indexes []*bolt.Bucket
		if len(q.Topics) == 0 {
			indexes = append(indexes, tx.Bucket(bucketPublished))
		} else {
			topics := tx.Bucket(bucketTopics)
			for _, topic := range q.Topics {
				if tb := topics.Bucket([]byte(topic)); tb != nil {
					indexes = append(indexes, tb)
				}
			}
		}

		seen := make(map[string]struct{})
		for _, idx := range indexes {
			c := idx.Cursor()
			for k, v := c.Seek(lo); k != nil && bytes.Compare(k, hi) <= 0; k, v = c.Next() {
				url := string(v)
				if _, ok := seen[url]; ok {
					continue
				}
				seen[url] = struct{}{}

				data := arts.Get(v)
				if data == nil {
					continue
				}
				var a domain.Article
				if err := json.Unmarshal(data, &a); err != nil {
					return fmt.Errorf("decode article %s: %w", url, err)
				}
				records = append(records, a)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}

	return Select(records, q), nil
}

// Get loads the article stored under url.
func (s *BoltStore) Get(ctx context.Context, url string) (domain.Article, bool, error) {
	if err := ctx.Err(); err != nil {
		return domain.Article{}, false, fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}

	var (
		a     domain.Article
		found bool
	)
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketArticles).Get([]byte(url))
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, &a)
	})
	if err != nil {
		return domain.Article{}, false, fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}
	return a, found, nil
}

var (
	minIndexTime = time.Unix(0, math.MinInt64)
	maxIndexTime = time.Unix(0, math.MaxInt64)
)

// indexKey orders by publication time, then insertion sequence. The sign bit is
// flipped so pre-1970 times sort before later ones. Times outside the int64
// nanosecond range saturate to its ends.
func indexKey(t time.Time, seq uint64) []byte {
	var nanos int64
	switch {
	case t.Before(minIndexTime):
		nanos = math.MinInt64
	case t.After(maxIndexTime):
		nanos = math.MaxInt64
	default:
		nanos = t.UnixNano()
	}

	k := make([]byte, 16)
	binary.BigEndian.PutUint64(k[:8], uint64(nanos)^(1<<63))
	binary.BigEndian.PutUint64(k[8:], seq)
	return k
}
