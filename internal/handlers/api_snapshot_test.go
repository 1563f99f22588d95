package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ptdewey/shutter"
)

// TestAuditList_Snapshot pins the /api/audit response format
func TestAuditList_Snapshot(t *testing.T) {
	h, _, _ := newTestHandler(&fakeAuditSource{records: sampleRecords()})

	rec := httptest.NewRecorder()
	h.HandleAuditList(rec, httptest.NewRequest("GET", "/api/audit", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}

	shutter.SnapJSON(t, "audit_list", rec.Body.String(),
		shutter.ScrubTimestamp(),
		shutter.IgnoreKey("timestamp"),
	)
}

// TestGuardStatus_Snapshot pins the /api/guard/status response format
func TestGuardStatus_Snapshot(t *testing.T) {
	h, _, _ := newTestHandler(&fakeAuditSource{records: sampleRecords()})

	rec := httptest.NewRecorder()
	h.HandleGuardStatus(rec, httptest.NewRequest("GET", "/api/guard/status", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}

	shutter.SnapJSON(t, "guard_status", rec.Body.String())
}
