package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/MrEthical07/sessiongate"
	"github.com/google/uuid"
)

// MemoryStore is a process-local Directory.
type MemoryStore struct {
	mu      sync.RWMutex
	users   map[string]User
	byEmail map[string]string
	now     func() time.Time
}

func NewMemoryStore(seed ...User) *MemoryStore {
	s := &MemoryStore{
		users:   make(map[string]User, len(seed)),
		byEmail: make(map[string]string, len(seed)),
		now:     time.Now,
	}
	for _, u := range seed {
		_, _ = s.Create(context.Background(), u)
	}
	return s
}

func (s *MemoryStore) FindIdentityByID(ctx context.Context, id string) (sessiongate.Identity, error) {
	u, err := s.Get(ctx, id)
	if err != nil {
		return sessiongate.Identity{}, err
	}
	return u.Identity(), nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (User, error) {
	if err := ctx.Err(); err != nil {
		return User{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return User{}, ErrNotFound
	}
	return u, nil
}

func (s *MemoryStore) List(ctx context.Context, opts ListOptions) (Page, error) {
	if err := ctx.Err(); err != nil {
		return Page{}, err
	}
	opts = opts.normalized()

	s.mu.RLock()
	matched := make([]User, 0, len(s.users))
	for _, u := range s.users {
		if opts.matches(u) {
			matched = append(matched, u)
		}
	}
	s.mu.RUnlock()

	sortUsers(matched)
	return newPage(opts, len(matched), paginate(matched, opts)), nil
}

func (s *MemoryStore) Create(ctx context.Context, user User) (User, error) {
	if err := ctx.Err(); err != nil {
		return User{}, err
	}
	user.Email = normalizeEmail(user.Email)
	if err := user.validate(); err != nil {
		return User{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.byEmail[user.Email]; taken {
		return User{}, ErrEmailTaken
	}
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	now := s.now().UTC()
	user.CreatedAt, user.UpdatedAt = now, now

	s.users[user.ID] = user
	s.byEmail[user.Email] = user.ID
	return user, nil
}

func (s *MemoryStore) Update(ctx context.Context, id string, update UserUpdate) (User, error) {
	if err := ctx.Err(); err != nil {
		return User{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[id]
	if !ok {
		return User{}, ErrNotFound
	}
	oldEmail := user.Email
	update.apply(&user)
	if err := user.validate(); err != nil {
		return User{}, err
	}
	if user.Email != oldEmail {
		if owner, taken := s.byEmail[user.Email]; taken && owner != id {
			return User{}, ErrEmailTaken
		}
		delete(s.byEmail, oldEmail)
		s.byEmail[user.Email] = id
	}
	user.UpdatedAt = s.now().UTC()
	s.users[id] = user
	return user, nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[id]
	if !ok {
		return ErrNotFound
	}
	delete(s.users, id)
	delete(s.byEmail, user.Email)
	return nil
}

func sortUsers(users []User) {
	sort.Slice(users, func(i, j int) bool {
		if users[i].Name != users[j].Name {
			return users[i].Name < users[j].Name
		}
		return users[i].ID < users[j].ID
	})
}

func paginate(users []User, opts ListOptions) []User {
	start := (opts.Page - 1) * opts.Limit
	if start >= len(users) {
		return nil
	}
	end := start + opts.Limit
	if end > len(users) {
		end = len(users)
	}
	return users[start:end]
}
