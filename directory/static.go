package directory

import (
	"context"
	"sync"

	"github.com/practiceline/handoff"
)

// Static is an in-memory directory.
type Static struct {
	mu      sync.RWMutex
	members map[string]map[string]bool
	domains map[string]string
}

func NewStatic() *Static {
	return &Static{
		members: map[string]map[string]bool{},
		domains: map[string]string{},
	}
}

// AddMember grants userID membership of tenantID.
func (s *Static) AddMember(userID, tenantID string) *Static {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.members[tenantID] == nil {
		s.members[tenantID] = map[string]bool{}
	}
	s.members[tenantID][userID] = true
	return s
}

func (s *Static) RemoveMember(userID, tenantID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.members[tenantID], userID)
}

// SetDomain sets the host for tenantID. An empty domain removes it.
func (s *Static) SetDomain(tenantID, domain string) *Static {
	s.mu.Lock()
	defer s.mu.Unlock()
	if domain == "" {
		delete(s.domains, tenantID)
	} else {
		s.domains[tenantID] = domain
	}
	return s
}

func (s *Static) IsMember(_ context.Context, userID, tenantID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.members[tenantID][userID], nil
}

func (s *Static) ResolveDomain(_ context.Context, tenantID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	domain, ok := s.domains[tenantID]
	if !ok {
		return "", handoff.ErrTenantDomainNotFound
	}
	return domain, nil
}
