package store

import (
	"testing"
	"time"
)

func openTest(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestTaskRoundTrip(t *testing.T) {
	s := openTest(t)

	started := time.Now().UTC().Truncate(time.Second)
	row := &TaskRow{
		ID:        "t1",
		Name:      "read file",
		Priority:  "high",
		Status:    "running",
		Progress:  40,
		CreatedAt: started.Add(-time.Minute),
		StartedAt: &started,
		Payload:   `{"path":"/tmp/a.txt"}`,
	}
	if err := s.SaveTask(row); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetTask("t1")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil {
		t.Fatal("task not found")
	}
	if got.Name != "read file" || got.Priority != "high" || got.Progress != 40 {
		t.Errorf("row corrupted: %+v", got)
	}
	if got.StartedAt == nil || !got.StartedAt.Equal(started) {
		t.Errorf("started_at lost: %v", got.StartedAt)
	}
	if got.CompletedAt != nil {
		t.Error("completed_at should be nil")
	}

	if missing, err := s.GetTask("nope"); err != nil || missing != nil {
		t.Errorf("absent task should be nil,nil: %v %v", missing, err)
	}
}

func TestRequeueInterrupted(t *testing.T) {
	s := openTest(t)
	now := time.Now().UTC()

	for _, tc := range []struct{ id, status string }{
		{"a", "running"}, {"b", "paused"}, {"c", "completed"}, {"d", "queued"},
	} {
		if err := s.SaveTask(&TaskRow{ID: tc.id, Name: tc.id, Priority: "medium", Status: tc.status, RetryCount: 2, CreatedAt: now}); err != nil {
			t.Fatal(err)
		}
	}

	n, err := s.RequeueInterrupted()
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("expected 2 demoted rows, got %d", n)
	}

	queued, err := s.ListTasksByStatus("queued")
	if err != nil {
		t.Fatal(err)
	}
	if len(queued) != 3 {
		t.Errorf("expected 3 queued rows, got %d", len(queued))
	}
	for _, row := range queued {
		if row.ID == "a" && row.RetryCount != 2 {
			t.Errorf("retry count should survive the demotion, got %d", row.RetryCount)
		}
	}
}

func TestCleanupOldTasks(t *testing.T) {
	s := openTest(t)
	now := time.Now().UTC()
	old := now.AddDate(0, 0, -10)
	recent := now.Add(-time.Hour)

	save := func(id, status string, completedAt *time.Time) {
		if err := s.SaveTask(&TaskRow{ID: id, Name: id, Priority: "low", Status: status, CreatedAt: old, CompletedAt: completedAt}); err != nil {
			t.Fatal(err)
		}
	}
	save("old-done", "completed", &old)
	save("old-failed", "failed", &old)
	save("recent-done", "completed", &recent)
	save("still-queued", "queued", nil)

	n, err := s.CleanupOldTasks(7)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("expected 2 GC'd rows, got %d", n)
	}
	if got, _ := s.GetTask("recent-done"); got == nil {
		t.Error("recent terminal row should survive")
	}
	if got, _ := s.GetTask("still-queued"); got == nil {
		t.Error("queued row should survive regardless of age")
	}
}

func TestApprovalImmutability(t *testing.T) {
	s := openTest(t)

	row := &ApprovalRow{
		ID: "ap1", RequesterID: "task-1", Action: "shell_command", Risk: "high",
		Status: "pending", CreatedAt: time.Now().UTC(), TimeoutMinutes: 30,
	}
	if err := s.InsertApproval(row); err != nil {
		t.Fatal(err)
	}

	ok, err := s.DecideApproval("ap1", "approved", "approved", "", "admin")
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("first decision should apply")
	}

	// Second decision is a no-op.
	ok, err = s.DecideApproval("ap1", "rejected", "rejected", "changed my mind", "intruder")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("terminal rows must be immutable")
	}

	got, err := s.GetApproval("ap1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != "approved" || got.ReviewerID != "admin" {
		t.Errorf("decision was rewritten: %+v", got)
	}
}

func TestExpireApprovals(t *testing.T) {
	s := openTest(t)
	now := time.Now().UTC()

	stale := &ApprovalRow{ID: "stale", RequesterID: "t", Action: "a", Risk: "high", Status: "pending", CreatedAt: now.Add(-time.Hour), TimeoutMinutes: 30}
	fresh := &ApprovalRow{ID: "fresh", RequesterID: "t", Action: "a", Risk: "high", Status: "pending", CreatedAt: now, TimeoutMinutes: 30}
	for _, r := range []*ApprovalRow{stale, fresh} {
		if err := s.InsertApproval(r); err != nil {
			t.Fatal(err)
		}
	}

	expired, err := s.ExpireApprovals(now)
	if err != nil {
		t.Fatal(err)
	}
	if len(expired) != 1 || expired[0] != "stale" {
		t.Errorf("expected only stale to expire, got %v", expired)
	}

	got, _ := s.GetApproval("fresh")
	if got.Status != "pending" {
		t.Errorf("fresh request should stay pending, got %s", got.Status)
	}
}

func TestAuditAppendOnly(t *testing.T) {
	s := openTest(t)

	for i := 0; i < 3; i++ {
		if err := s.AppendAudit("policy", "approval_decided", "detail"); err != nil {
			t.Fatal(err)
		}
	}
	entries, err := s.RecentAudit(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 {
		t.Errorf("expected 3 audit entries, got %d", len(entries))
	}
	if entries[0].ID <= entries[2].ID {
		t.Error("entries should be newest first")
	}
}
