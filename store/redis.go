package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/sessiongate"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisStore keeps each user as a JSON string with an email index and an id
// set for listing.
//
// Keys:
//
//	<prefix>:user:<id>      user JSON
//	<prefix>:email:<email>  owning user id
//	<prefix>:users          set of user ids
type RedisStore struct {
	client redis.UniversalClient
	prefix string
	now    func() time.Time
}

func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "sg"
	}
	return &RedisStore{client: client, prefix: prefix, now: time.Now}
}

func (s *RedisStore) userKey(id string) string {
	return s.prefix + ":user:" + id
}

func (s *RedisStore) emailKey(email string) string {
	return s.prefix + ":email:" + email
}

func (s *RedisStore) indexKey() string {
	return s.prefix + ":users"
}

func (s *RedisStore) FindIdentityByID(ctx context.Context, id string) (sessiongate.Identity, error) {
	u, err := s.Get(ctx, id)
	if err != nil {
		return sessiongate.Identity{}, err
	}
	return u.Identity(), nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (User, error) {
	raw, err := s.client.Get(ctx, s.userKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("redis get user: %w", err)
	}

	var u User
	if err := json.Unmarshal(raw, &u); err != nil {
		return User{}, fmt.Errorf("decode user %s: %w", id, err)
	}
	return u, nil
}

func (s *RedisStore) List(ctx context.Context, opts ListOptions) (Page, error) {
	opts = opts.normalized()

	ids, err := s.client.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return Page{}, fmt.Errorf("redis list users: %w", err)
	}
	if len(ids) == 0 {
		return newPage(opts, 0, nil), nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.userKey(id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return Page{}, fmt.Errorf("redis load users: %w", err)
	}

	matched := make([]User, 0, len(values))
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var u User
		if err := json.Unmarshal([]byte(raw), &u); err != nil {
			continue
		}
		if opts.matches(u) {
			matched = append(matched, u)
		}
	}

	sortUsers(matched)
	return newPage(opts, len(matched), paginate(matched, opts)), nil
}

func (s *RedisStore) Create(ctx context.Context, user User) (User, error) {
	user.Email = normalizeEmail(user.Email)
	if err := user.validate(); err != nil {
		return User{}, err
	}
	if user.ID == "" {
		user.ID = uuid.NewString()
	}

	claimed, err := s.client.SetNX(ctx, s.emailKey(user.Email), user.ID, 0).Result()
	if err != nil {
		return User{}, fmt.Errorf("redis claim email: %w", err)
	}
	if !claimed {
		return User{}, ErrEmailTaken
	}

	now := s.now().UTC()
	user.CreatedAt, user.UpdatedAt = now, now
	if err := s.save(ctx, user); err != nil {
		s.client.Del(ctx, s.emailKey(user.Email))
		return User{}, err
	}
	return user, nil
}

func (s *RedisStore) Update(ctx context.Context, id string, update UserUpdate) (User, error) {
	user, err := s.Get(ctx, id)
	if err != nil {
		return User{}, err
	}
	oldEmail := user.Email
	update.apply(&user)
	if err := user.validate(); err != nil {
		return User{}, err
	}

	if user.Email != oldEmail {
		claimed, err := s.client.SetNX(ctx, s.emailKey(user.Email), id, 0).Result()
		if err != nil {
			return User{}, fmt.Errorf("redis claim email: %w", err)
		}
		if !claimed {
			return User{}, ErrEmailTaken
		}
		if err := s.client.Del(ctx, s.emailKey(oldEmail)).Err(); err != nil {
			return User{}, fmt.Errorf("redis release email: %w", err)
		}
	}

	user.UpdatedAt = s.now().UTC()
	if err := s.save(ctx, user); err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	user, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.userKey(id))
		pipe.Del(ctx, s.emailKey(user.Email))
		pipe.SRem(ctx, s.indexKey(), id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis delete user: %w", err)
	}
	return nil
}

func (s *RedisStore) save(ctx context.Context, user User) error {
	raw, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("encode user: %w", err)
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.userKey(user.ID), raw, 0)
		pipe.SAdd(ctx, s.indexKey(), user.ID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis save user: %w", err)
	}
	return nil
}
