package directory

import (
	"context"
	"errors"
	"testing"

	"github.com/practiceline/handoff"
)

func TestStatic(t *testing.T) {
	ctx := context.Background()
	s := NewStatic().AddMember("U1", "T1").SetDomain("T1", "clinic1")

	if ok, _ := s.IsMember(ctx, "U1", "T1"); !ok {
		t.Fatal("expected U1 in T1")
	}
	if ok, _ := s.IsMember(ctx, "U1", "T2"); ok {
		t.Fatal("expected U1 not in T2")
	}
	s.RemoveMember("U1", "T1")
	if ok, _ := s.IsMember(ctx, "U1", "T1"); ok {
		t.Fatal("expected membership removed")
	}

	if d, err := s.ResolveDomain(ctx, "T1"); err != nil || d != "clinic1" {
		t.Fatalf("expected clinic1, got %q %v", d, err)
	}
	s.SetDomain("T1", "")
	if _, err := s.ResolveDomain(ctx, "T1"); !errors.Is(err, handoff.ErrTenantDomainNotFound) {
		t.Fatalf("expected ErrTenantDomainNotFound, got %v", err)
	}
}
