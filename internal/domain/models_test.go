package domain

import (
	"encoding/json"
	"testing"
	"time"
)

func TestStatus_ValidAndRank(t *testing.T) {
	for _, s := range []Status{StatusNew, StatusActive, StatusBlocked, StatusDeleted} {
		if !s.Valid() {
			t.Fatalf("%q should be valid", s)
		}
	}
	if Status("archived").Valid() || Status("").Valid() {
		t.Fatalf("unknown statuses must be invalid")
	}
	if !(StatusNew.Rank() < StatusActive.Rank() &&
		StatusActive.Rank() < StatusBlocked.Rank() &&
		StatusBlocked.Rank() < StatusDeleted.Rank() &&
		StatusDeleted.Rank() < Status("x").Rank()) {
		t.Fatalf("lifecycle ranks out of order")
	}
}

func TestRecordIDs(t *testing.T) {
	recs := []Record{
		User{ID: "u"}, Enquiry{ID: "e"}, FollowUp{ID: "f"}, Contact{ID: "c"}, Service{ID: "s"},
	}
	want := []string{"u", "e", "f", "c", "s"}
	for i, r := range recs {
		if r.RecordID() != want[i] {
			t.Fatalf("RecordID()=%q want %q", r.RecordID(), want[i])
		}
	}
}

func TestEnquiry_JSONShape(t *testing.T) {
	raw := `{"id":"x","enqNo":"E100","fName":"Sam","status":"new","createdAt":"2024-01-01T00:00:00Z"}`
	var e Enquiry
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if e.ID != "x" || e.EnqNo != "E100" || e.FName != "Sam" || e.Status != StatusNew {
		t.Fatalf("unexpected decode: %+v", e)
	}
	if !e.CreatedAt.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("createdAt not decoded from embedded timestamps: %v", e.CreatedAt)
	}

	n := NotificationFromEnquiry(e)
	if n.ID != "x" || n.FName != "Sam" || n.EnqNo != "E100" || n.Read || !n.CreatedAt.Equal(e.CreatedAt) {
		t.Fatalf("unexpected notification: %+v", n)
	}
}
