package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"boardroom/contexts/meeting-governance/role-registry/domain/entities"
	domainerrors "boardroom/contexts/meeting-governance/role-registry/domain/errors"
)

type roleKey struct {
	meetingID string
	userID    string
	roleTag   string
}

type Store struct {
	mu    sync.RWMutex
	roles map[roleKey]entities.MeetingRole
}

func NewStore(seed []entities.MeetingRole) *Store {
	roles := make(map[roleKey]entities.MeetingRole, len(seed))
	for _, role := range seed {
		roles[keyOf(role.MeetingID, role.UserID, role.RoleTag)] = role
	}
	return &Store{roles: roles}
}

func (s *Store) UpsertRole(_ context.Context, role entities.MeetingRole) error {
	if strings.TrimSpace(role.MeetingID) == "" || strings.TrimSpace(role.UserID) == "" {
		return domainerrors.ErrInvalidRoleInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if role.UpdatedAt.IsZero() {
		role.UpdatedAt = time.Now().UTC()
	}
	s.roles[keyOf(role.MeetingID, role.UserID, role.RoleTag)] = role
	return nil
}

func (s *Store) DeactivateRole(_ context.Context, meetingID string, userID string, roleTag string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := keyOf(meetingID, userID, roleTag)
	role, ok := s.roles[key]
	if !ok {
		return domainerrors.ErrRoleNotFound
	}
	role.Active = false
	role.UpdatedAt = time.Now().UTC()
	s.roles[key] = role
	return nil
}

func (s *Store) ListRolesByUser(_ context.Context, meetingID string, userID string) ([]entities.MeetingRole, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items := make([]entities.MeetingRole, 0)
	for _, role := range s.roles {
		if role.MeetingID == strings.TrimSpace(meetingID) && role.UserID == strings.TrimSpace(userID) {
			items = append(items, role)
		}
	}
	sortRoles(items)
	return items, nil
}

func (s *Store) ListRolesByMeeting(_ context.Context, meetingID string) ([]entities.MeetingRole, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items := make([]entities.MeetingRole, 0)
	for _, role := range s.roles {
		if role.MeetingID == strings.TrimSpace(meetingID) {
			items = append(items, role)
		}
	}
	sortRoles(items)
	return items, nil
}

func keyOf(meetingID string, userID string, roleTag string) roleKey {
	return roleKey{
		meetingID: strings.TrimSpace(meetingID),
		userID:    strings.TrimSpace(userID),
		roleTag:   strings.TrimSpace(roleTag),
	}
}

func sortRoles(items []entities.MeetingRole) {
	sort.Slice(items, func(i, j int) bool {
		if items[i].UserID == items[j].UserID {
			return items[i].RoleTag < items[j].RoleTag
		}
		return items[i].UserID < items[j].UserID
	})
}
