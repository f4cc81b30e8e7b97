package ledger

import (
	"bytes"
	"regexp"
	"testing"
	"time"
)

func TestCanonicalBytes_KeyOrderIndependent(t *testing.T) {
	a := map[string]any{"name": "Dr. Lee", "role": "doctor", "active": true}
	b := map[string]any{"active": true, "role": "doctor", "name": "Dr. Lee"}

	if !bytes.Equal(CanonicalBytes(a), CanonicalBytes(b)) {
		t.Errorf("canonical bytes differ for logically identical maps:\n%s\n%s",
			CanonicalBytes(a), CanonicalBytes(b))
	}
}

func TestCanonicalBytes_NestedKeysSorted(t *testing.T) {
	a := map[string]any{"outer": map[string]any{"b": 2, "a": 1}}
	b := map[string]any{"outer": map[string]any{"a": 1, "b": 2}}

	if !bytes.Equal(CanonicalBytes(a), CanonicalBytes(b)) {
		t.Error("nested maps with different key insertion order canonicalise differently")
	}
}

func TestCanonicalBytes_IntAndIntegralFloatEqual(t *testing.T) {
	// JSON round-trips through jsonb turn every number into a float64;
	// the canonical form must not change when that happens.
	asInt := map[string]any{"dose": 1, "refills": int64(3)}
	asFloat := map[string]any{"dose": 1.0, "refills": 3.0}

	if !bytes.Equal(CanonicalBytes(asInt), CanonicalBytes(asFloat)) {
		t.Errorf("1 and 1.0 canonicalise differently:\n%s\n%s",
			CanonicalBytes(asInt), CanonicalBytes(asFloat))
	}
}

func TestCanonicalBytes_FractionalFloatPreserved(t *testing.T) {
	a := CanonicalBytes(map[string]any{"temp": 37.5})
	b := CanonicalBytes(map[string]any{"temp": 37.0})
	if bytes.Equal(a, b) {
		t.Error("37.5 and 37.0 must not canonicalise identically")
	}
}

func TestCanonicalBytes_TimeRendersUTC(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	local := time.Date(2026, 3, 1, 12, 0, 0, 0, loc)
	utc := local.UTC()

	a := CanonicalBytes(map[string]any{"at": local})
	b := CanonicalBytes(map[string]any{"at": utc})
	if !bytes.Equal(a, b) {
		t.Error("equal instants in different zones canonicalise differently")
	}
}

func TestDigest_Format(t *testing.T) {
	d := Digest([]byte("hello"))
	if len(d) != 64 {
		t.Fatalf("digest length: got %d, want 64", len(d))
	}
	if ok, _ := regexp.MatchString("^[0-9a-f]{64}$", d); !ok {
		t.Errorf("digest is not lowercase hex: %q", d)
	}
}

func TestComputeHash_SensitiveToEveryField(t *testing.T) {
	base := Entry{
		BlockNumber:       7,
		PreviousHash:      "abc",
		ActorID:           "u1",
		ActorEmail:        "u1@clinic.test",
		ActionType:        ActionUpdate,
		ActionDescription: "updated profile",
		EntityType:        "patient",
		EntityID:          "p1",
		DataAfter:         map[string]any{"phone": "555-0100"},
		IPAddress:         "10.0.0.1",
		UserAgent:         "curl/8.0",
		CreatedAt:         time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	original := base.ComputeHash()

	mutations := map[string]func(e *Entry){
		"block_number":  func(e *Entry) { e.BlockNumber++ },
		"previous_hash": func(e *Entry) { e.PreviousHash = "abd" },
		"actor_id":      func(e *Entry) { e.ActorID = "u2" },
		"description":   func(e *Entry) { e.ActionDescription = "updated profilf" },
		"data_after":    func(e *Entry) { e.DataAfter = map[string]any{"phone": "555-0101"} },
		"ip_address":    func(e *Entry) { e.IPAddress = "10.0.0.2" },
		"created_at":    func(e *Entry) { e.CreatedAt = e.CreatedAt.Add(time.Microsecond) },
	}
	for name, mutate := range mutations {
		e := base
		mutate(&e)
		if e.ComputeHash() == original {
			t.Errorf("mutating %s did not change the hash", name)
		}
	}
}

func TestComputeHash_Deterministic(t *testing.T) {
	e := Entry{
		BlockNumber: 1,
		ActionType:  ActionCreate,
		EntityType:  "appointment",
		Metadata:    map[string]any{"source": "api", "attempt": 1},
		CreatedAt:   time.Now().UTC().Truncate(time.Microsecond),
	}
	if e.ComputeHash() != e.ComputeHash() {
		t.Error("hash is not deterministic across recomputation")
	}
}
