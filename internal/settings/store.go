package settings

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Facet key segments shared with the facets package.
const (
	KeyLabels  = "labels"
	KeyZones   = "zones"
	KeyCameras = "cameras"
)

const (
	serverURLKey   = "eventfeed:server_url"
	firstLaunchKey = "eventfeed:first_launch"
)

// Store is the persisted key-value state: server address, user selections
// and the learned available-facet sets. Everything lives for the process
// lifetime and beyond; nothing here expires.
type Store struct {
	client *redis.Client
}

func NewStore(client *redis.Client) *Store {
	return &Store{client: client}
}

func selectedKey(facet string) string  { return fmt.Sprintf("eventfeed:selected:%s", facet) }
func availableKey(facet string) string { return fmt.Sprintf("eventfeed:available:%s", facet) }

func (s *Store) ServerURL(ctx context.Context) (string, error) {
	v, err := s.client.Get(ctx, serverURLKey).Result()
	if err == redis.Nil {
		return "", nil
	}
	return v, err
}

func (s *Store) SetServerURL(ctx context.Context, url string) error {
	return s.client.Set(ctx, serverURLKey, url, 0).Err()
}

func (s *Store) Selected(ctx context.Context, facet string) ([]string, error) {
	return s.client.SMembers(ctx, selectedKey(facet)).Result()
}

// SetSelected replaces the selection set atomically.
func (s *Store) SetSelected(ctx context.Context, facet string, values []string) error {
	pipe := s.client.Pipeline()
	pipe.Del(ctx, selectedKey(facet))
	if len(values) > 0 {
		members := make([]interface{}, len(values))
		for i, v := range values {
			members[i] = v
		}
		pipe.SAdd(ctx, selectedKey(facet), members...)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (s *Store) Available(ctx context.Context, facet string) ([]string, error) {
	return s.client.SMembers(ctx, availableKey(facet)).Result()
}

// AddAvailable grows the available set. Callers only invoke this with
// genuinely new values; the set never shrinks.
func (s *Store) AddAvailable(ctx context.Context, facet string, values ...string) error {
	if len(values) == 0 {
		return nil
	}
	members := make([]interface{}, len(values))
	for i, v := range values {
		members[i] = v
	}
	return s.client.SAdd(ctx, availableKey(facet), members...).Err()
}

// FirstLaunch reports whether the one-time configuration prompt has not
// been shown yet.
func (s *Store) FirstLaunch(ctx context.Context) (bool, error) {
	_, err := s.client.Get(ctx, firstLaunchKey).Result()
	if err == redis.Nil {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return false, nil
}

func (s *Store) MarkLaunched(ctx context.Context) error {
	return s.client.Set(ctx, firstLaunchKey, "done", 0).Err()
}
