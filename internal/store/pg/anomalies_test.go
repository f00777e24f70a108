package pg

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"enerkpi.org/internal/anomaly"
)

func TestAnomalyInsertReportsDedup(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	finding := &anomaly.Anomaly{
		ID:            "an-1",
		SourceKind:    anomaly.SourceElectricity,
		SourceID:      "e-1",
		Year:          2026,
		Month:         3,
		AnomalyType:   anomaly.TypeConsumptionSpike,
		SeverityScore: 0.85,
		DetectedAt:    time.Now().UTC(),
	}

	mock.ExpectExec(`insert into anomalies(.+)on conflict \(source_kind, source_id\) do nothing`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	inserted, err := (&AnomalyStore{db: db}).Insert(context.Background(), finding)
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if !inserted {
		t.Fatal("first insert should report inserted=true")
	}

	// The conflict clause swallows the duplicate: zero rows, no error.
	mock.ExpectExec(`insert into anomalies(.+)on conflict \(source_kind, source_id\) do nothing`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	inserted, err = (&AnomalyStore{db: db}).Insert(context.Background(), finding)
	if err != nil {
		t.Fatalf("duplicate Insert: %v", err)
	}
	if inserted {
		t.Fatal("duplicate insert should report inserted=false")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestAnomalyLatestDetectionEmptyTable(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(`select max\(detected_at\) from anomalies where resolved=false`).
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(nil))

	last, err := (&AnomalyStore{db: db}).LatestDetection(context.Background())
	if err != nil {
		t.Fatalf("LatestDetection: %v", err)
	}
	if !last.IsZero() {
		t.Fatalf("last = %v, want zero time for an empty table", last)
	}
}

func TestAnomalyListWaterFilters(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	rows := sqlmock.NewRows([]string{
		"id", "source_kind", "source_id", "year", "month", "description",
		"anomaly_type", "severity_score", "detected_at", "resolved", "resolved_at", "resolved_by",
	}).AddRow("an-2", anomaly.SourceWater, "w-1", 2026, 2, "desc",
		anomaly.TypeWaterLeak, 0.75, time.Now().UTC(), false, nil, nil)

	mock.ExpectQuery(`select (.+) from anomalies`).
		WithArgs(anomaly.SourceWater, 2, 2026).
		WillReturnRows(rows)

	items, err := (&AnomalyStore{db: db}).ListWater(context.Background(), 2, 2026)
	if err != nil {
		t.Fatalf("ListWater: %v", err)
	}
	if len(items) != 1 || items[0].AnomalyType != anomaly.TypeWaterLeak {
		t.Fatalf("items = %+v", items)
	}
	if items[0].ResolvedAt != nil || items[0].ResolvedBy != "" {
		t.Fatal("null resolution fields should stay empty")
	}
}
