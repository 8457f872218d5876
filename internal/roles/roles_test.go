package roles

import (
	"encoding/json"
	"testing"
)

func TestFromIntRejectsUnknownDiscriminant(t *testing.T) {
	for _, v := range []int{4, 0x80, 0xFE, -1, 256} {
		if _, err := FromInt(v); err == nil {
			t.Fatalf("expected conversion error for %d", v)
		}
	}
	r, err := FromInt(0xFF)
	if err != nil {
		t.Fatalf("FromInt(0xFF): %v", err)
	}
	if r != Operator {
		t.Fatalf("expected Operator, got %v", r)
	}
}

func TestRoleJSONRoundTrip(t *testing.T) {
	data, err := json.Marshal(OrchestraCommittee)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `"ORCHESTRA_COMMITTEE"` {
		t.Fatalf("unexpected wire form: %s", data)
	}
	var back Role
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back != OrchestraCommittee {
		t.Fatalf("round trip mismatch: %v", back)
	}
}

func TestCompositionDeduplicates(t *testing.T) {
	c := NewComposition(Member, Director, Member, Director)
	if c.Len() != 2 {
		t.Fatalf("expected 2 distinct roles, got %d", c.Len())
	}
	if !c.Has(Member) || !c.Has(Director) {
		t.Fatalf("missing expected roles: %v", c.Slice())
	}
}

func TestCompositionIntersects(t *testing.T) {
	caller := NewComposition(Public, Member, OrchestraCommittee)
	required := NewComposition(Director)
	if caller.Intersects(required) {
		t.Fatal("unexpected intersection")
	}
	if !caller.Intersects(NewComposition(OrchestraCommittee, Operator)) {
		t.Fatal("expected intersection on OrchestraCommittee")
	}
}

func TestCompositionSliceSorted(t *testing.T) {
	c := NewComposition(Operator, Public, Director)
	got := c.Slice()
	want := []Role{Public, Director, Operator}
	if len(got) != len(want) {
		t.Fatalf("unexpected length: %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("unexpected order: %v", got)
		}
	}
}

func TestScanRejectsBadColumn(t *testing.T) {
	var r Role
	if err := r.Scan(int64(0x42)); err == nil {
		t.Fatal("expected scan failure for unknown discriminant")
	}
	if err := r.Scan(int64(3)); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if r != Director {
		t.Fatalf("expected Director, got %v", r)
	}
}
