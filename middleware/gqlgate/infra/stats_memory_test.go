package infra

import (
	"context"
	"testing"

	"graphql-gate/middleware/gqlgate/domain"
)

func TestMemoryStatsStore_CountsByOperation(t *testing.T) {
	s := NewMemoryStatsStore()

	_ = s.Record(context.Background(), domain.StatsEvent{Key: "k1", Allowed: true, Operation: "GetHero", Complexity: 8})
	_ = s.Record(context.Background(), domain.StatsEvent{Key: "k1", Allowed: false, Operation: "GetHero", Complexity: 22})
	_ = s.Record(context.Background(), domain.StatsEvent{Key: "k2", Allowed: true, Complexity: 2})

	total := s.Total()
	if total.Allowed != 2 || total.Denied != 1 {
		t.Fatalf("unexpected totals: %+v", total)
	}
	if total.ComplexitySum != 32 {
		t.Fatalf("expected complexity sum 32, got %d", total.ComplexitySum)
	}

	byOp := s.ByOperation()
	if c := byOp["GetHero"]; c.Allowed != 1 || c.Denied != 1 {
		t.Fatalf("unexpected GetHero counters: %+v", c)
	}
	if c := byOp["(anonymous)"]; c.Allowed != 1 {
		t.Fatalf("unexpected anonymous counters: %+v", c)
	}
}

func TestMemoryStatsStore_TracksKeysWhenEnabled(t *testing.T) {
	s := NewMemoryStatsStore(WithTrackKeys(true))

	_ = s.Record(context.Background(), domain.StatsEvent{Key: "k1", Allowed: true, Complexity: 3})
	_ = s.Record(context.Background(), domain.StatsEvent{Key: "k1", Allowed: false, Complexity: 5})

	byKey := s.ByKey()
	if c := byKey["k1"]; c.Allowed != 1 || c.Denied != 1 || c.ComplexitySum != 8 {
		t.Fatalf("unexpected k1 counters: %+v", c)
	}
}

func TestMemoryStatsStore_IgnoresKeysByDefault(t *testing.T) {
	s := NewMemoryStatsStore()

	_ = s.Record(context.Background(), domain.StatsEvent{Key: "k1", Allowed: true})

	if len(s.ByKey()) != 0 {
		t.Fatalf("expected no per-key tracking by default")
	}
}
