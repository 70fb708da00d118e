package job

import (
	"errors"
	"testing"
	"time"

	"github.com/newthinker/quantbt/internal/core"
)

func TestStore_CreateAndGet(t *testing.T) {
	s := NewStore(10, time.Hour)

	j := s.Create("backtest")
	if j.ID == "" {
		t.Fatal("expected non-empty job ID")
	}
	if j.Status != StatusPending {
		t.Errorf("status = %s, want pending", j.Status)
	}

	got, err := s.Get(j.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.ID != j.ID || got.Type != "backtest" {
		t.Errorf("got %+v, want id %s type backtest", got, j.ID)
	}
}

func TestStore_GetMissing(t *testing.T) {
	s := NewStore(10, time.Hour)

	_, err := s.Get("nope")
	if !errors.Is(err, core.ErrNoData) {
		t.Errorf("error = %v, want missing-data failure", err)
	}
}

func TestStore_Update(t *testing.T) {
	s := NewStore(10, time.Hour)
	j := s.Create("backtest")

	err := s.Update(j.ID, func(j *Job) {
		j.Status = StatusComplete
		j.Progress = 100
		j.Result = map[string]any{"final_value": 105000.0}
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	got, _ := s.Get(j.ID)
	if got.Status != StatusComplete || got.Progress != 100 {
		t.Errorf("got %+v after update", got)
	}
	if got.UpdatedAt.Before(got.CreatedAt) {
		t.Error("UpdatedAt not refreshed")
	}
}

func TestStore_GetReturnsCopy(t *testing.T) {
	s := NewStore(10, time.Hour)
	j := s.Create("backtest")

	got, _ := s.Get(j.ID)
	got.Status = StatusFailed

	again, _ := s.Get(j.ID)
	if again.Status != StatusPending {
		t.Error("mutation through Get copy leaked into store")
	}
}

func TestStore_EvictsOldestAtCapacity(t *testing.T) {
	s := NewStore(2, time.Hour)

	first := s.Create("backtest")
	s.Create("backtest")
	s.Create("backtest") // Evicts first

	if _, err := s.Get(first.ID); err == nil {
		t.Error("oldest job should have been evicted")
	}
	if len(s.List()) != 2 {
		t.Errorf("store holds %d jobs, want 2", len(s.List()))
	}
}

func TestStore_ExpiresFinishedJobs(t *testing.T) {
	s := NewStore(10, 10*time.Millisecond)

	done := s.Create("backtest")
	s.Update(done.ID, func(j *Job) { j.Status = StatusComplete })
	running := s.Create("backtest")
	s.Update(running.ID, func(j *Job) { j.Status = StatusRunning })

	time.Sleep(20 * time.Millisecond)

	jobs := s.List()
	if len(jobs) != 1 {
		t.Fatalf("got %d jobs after TTL, want 1", len(jobs))
	}
	if jobs[0].ID != running.ID {
		t.Error("running job must survive the TTL sweep")
	}
}

func TestStore_CountActive(t *testing.T) {
	s := NewStore(10, time.Hour)

	a := s.Create("backtest")
	b := s.Create("compare")
	s.Create("optimize")

	s.Update(a.ID, func(j *Job) { j.Status = StatusComplete })
	s.Update(b.ID, func(j *Job) { j.Status = StatusRunning })

	if got := s.CountActive(); got != 2 {
		t.Errorf("CountActive() = %d, want 2 (one running, one pending)", got)
	}
}
