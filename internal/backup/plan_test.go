package backup

import (
	"testing"
	"time"

	"github.com/qiuwenhuifx/pgbackrest/internal/info"
)

func TestResolveFirstBackupIsAlwaysFull(t *testing.T) {
	plan, err := Resolve(info.BackupIncremental, map[string]info.BackupRecord{})
	if err != nil {
		t.Fatal(err)
	}
	if plan.Type != info.BackupFull {
		t.Fatalf("got %v", plan.Type)
	}
}

func TestResolveDifferentialChainsToLatestFull(t *testing.T) {
	current := map[string]info.BackupRecord{
		"20240101-000000F": {Label: "20240101-000000F", Type: info.BackupFull, Timestamp: time.Unix(1, 0)},
		"20240102-000000F": {Label: "20240102-000000F", Type: info.BackupFull, Timestamp: time.Unix(2, 0)},
	}
	plan, err := Resolve(info.BackupDifferential, current)
	if err != nil {
		t.Fatal(err)
	}
	if plan.Type != info.BackupDifferential || plan.Prior != "20240102-000000F" {
		t.Fatalf("got %+v", plan)
	}
	if len(plan.References) != 1 || plan.References[0] != "20240102-000000F" {
		t.Fatalf("got %v", plan.References)
	}
}

func TestResolveIncrementalChainsThroughDifferential(t *testing.T) {
	current := map[string]info.BackupRecord{
		"20240101-000000F": {Label: "20240101-000000F", Type: info.BackupFull, Timestamp: time.Unix(1, 0)},
		"20240101-000000F_20240102-000000D": {
			Label: "20240101-000000F_20240102-000000D", Type: info.BackupDifferential,
			Prior: "20240101-000000F", Timestamp: time.Unix(2, 0),
		},
	}
	plan, err := Resolve(info.BackupIncremental, current)
	if err != nil {
		t.Fatal(err)
	}
	if plan.Prior != "20240101-000000F_20240102-000000D" {
		t.Fatalf("got %+v", plan)
	}
	if len(plan.References) != 2 || plan.References[0] != "20240101-000000F" || plan.References[1] != "20240101-000000F_20240102-000000D" {
		t.Fatalf("got %v", plan.References)
	}
}

func TestResolveWithoutAnyFullUpgradesToFull(t *testing.T) {
	current := map[string]info.BackupRecord{
		"lone": {Label: "lone", Type: info.BackupIncremental, Timestamp: time.Unix(1, 0)},
	}
	plan, err := Resolve(info.BackupDifferential, current)
	if err != nil {
		t.Fatal(err)
	}
	if plan.Type != info.BackupFull {
		t.Fatalf("got %v", plan.Type)
	}
}
