package logs

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository[entry], sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository[entry](db, Stream{Name: "audit", Cap: 10000}), mock, db
}

func TestPostgresAppend_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`(?s)^INSERT\s+INTO\s+log_entries\s*\(stream,\s*payload\)\s*VALUES\s*\(\$1,\s*\$2\)$`).
		WithArgs("audit", []byte(`{"n":7}`)).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`(?s)^DELETE\s+FROM\s+log_entries\s+WHERE\s+stream\s*=\s*\$1\s+AND\s+id\s+NOT\s+IN.*LIMIT\s+\$2`).
		WithArgs("audit", 10000).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	if err := repo.Append(context.Background(), entry{N: 7}); err != nil {
		t.Fatalf("Append error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresAppend_RollbackOnTrimError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`(?s)^INSERT`).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`(?s)^DELETE`).WillReturnError(errors.New("lock timeout"))
	mock.ExpectRollback()

	err := repo.Append(context.Background(), entry{N: 1})
	if err == nil || !regexp.MustCompile(`db error: .*lock timeout`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresTail_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"payload"}).
		AddRow([]byte(`{"n":1}`)).
		AddRow([]byte(`{"n":2}`))
	mock.ExpectQuery(`(?s)^SELECT\s+payload\s+FROM\s*\(.*ORDER\s+BY\s+id\s+DESC\s+LIMIT\s+\$2.*\)\s*newest\s+ORDER\s+BY\s+id\s+ASC$`).
		WithArgs("audit", 50).
		WillReturnRows(rows)

	got, err := repo.Tail(context.Background(), 50)
	if err != nil {
		t.Fatalf("Tail error: %v", err)
	}
	if len(got) != 2 || got[0].N != 1 || got[1].N != 2 {
		t.Fatalf("unexpected entries: %+v", got)
	}
}

func TestPostgresTail_LimitClampedToCap(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`(?s)^SELECT`).
		WithArgs("audit", 10000).
		WillReturnRows(sqlmock.NewRows([]string{"payload"}))

	if _, err := repo.Tail(context.Background(), 0); err != nil {
		t.Fatalf("Tail error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresTail_BadPayload(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`(?s)^SELECT`).
		WillReturnRows(sqlmock.NewRows([]string{"payload"}).AddRow([]byte(`not json`)))

	if _, err := repo.Tail(context.Background(), 5); err == nil {
		t.Fatalf("expected decode error")
	}
}
