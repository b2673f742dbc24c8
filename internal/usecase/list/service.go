package list

import (
	"context"
	"fmt"

	"github.com/avdivo/dev-organizer/internal/domain"
	domcol "github.com/avdivo/dev-organizer/internal/domain/collection"
)

// Service handles per-user lists. The default list always exists implicitly.
type Service struct {
	repo        Repository
	defaultList string
}

// New creates a list service.
func New(repo Repository, defaultList string) *Service {
	return &Service{repo: repo, defaultList: defaultList}
}

// DefaultList returns the implicit list name.
func (s *Service) DefaultList() string { return s.defaultList }

// EnsureUser registers the user on first contact.
func (s *Service) EnsureUser(ctx context.Context, tenant, name string) (domcol.User, error) {
	u, err := s.repo.EnsureUser(ctx, tenant, name)
	if err != nil {
		return domcol.User{}, fmt.Errorf("ensure user: %w", err)
	}
	return u, nil
}

// Create validates and stores a new list for the user.
func (s *Service) Create(ctx context.Context, tenant, name, config string) (domcol.List, error) {
	l, err := domcol.New(name, config)
	if err != nil {
		return domcol.List{}, fmt.Errorf("validate list: %w: %w", domain.ErrInvalidRequest, err)
	}
	if l.Name() == s.defaultList {
		return domcol.List{}, fmt.Errorf("list %q: %w", l.Name(), domain.ErrAlreadyExists)
	}

	if _, err := s.repo.EnsureUser(ctx, tenant, ""); err != nil {
		return domcol.List{}, fmt.Errorf("ensure user: %w", err)
	}
	if err := s.repo.CreateList(ctx, tenant, l); err != nil {
		return domcol.List{}, fmt.Errorf("create list: %w", err)
	}
	return l, nil
}

// List returns the user's own lists.
func (s *Service) List(ctx context.Context, tenant string) ([]domcol.List, error) {
	lists, err := s.repo.Lists(ctx, tenant)
	if err != nil {
		return nil, fmt.Errorf("list lists: %w", err)
	}
	return lists, nil
}

// Names returns the default list followed by the user's lists.
func (s *Service) Names(ctx context.Context, tenant string) ([]string, error) {
	lists, err := s.List(ctx, tenant)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(lists)+1)
	names = append(names, s.defaultList)
	for _, n := range domcol.Names(lists) {
		if n != s.defaultList {
			names = append(names, n)
		}
	}
	return names, nil
}

// Resolve maps an empty name to the default list and checks that the user owns the
// named one. Unknown lists yield domain.ErrListNotFound.
func (s *Service) Resolve(ctx context.Context, tenant, name string) (string, error) {
	if name == "" || name == s.defaultList {
		return s.defaultList, nil
	}
	names, err := s.Names(ctx, tenant)
	if err != nil {
		return "", err
	}
	for _, n := range names {
		if n == name {
			return n, nil
		}
	}
	return "", fmt.Errorf("list %q: %w", name, domain.ErrListNotFound)
}
