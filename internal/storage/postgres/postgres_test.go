package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/zanzhit/securecam/internal/domain/errs"
)

func init() {
	RetryInterval = time.Millisecond
}

func TestRetryTransient(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), func() error {
		calls++
		return driver.ErrBadConn
	})

	if calls != maxRetries+1 {
		t.Errorf("calls = %d, want %d", calls, maxRetries+1)
	}
	if !errors.Is(err, errs.ErrServiceUnavailable) {
		t.Errorf("Retry() error = %v, want ErrServiceUnavailable", err)
	}
	if !errors.Is(err, driver.ErrBadConn) {
		t.Errorf("Retry() error = %v, want it to keep the cause", err)
	}
}

func TestRetryRecovers(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), func() error {
		calls++
		if calls < 3 {
			return &pq.Error{Code: "40001"}
		}
		return nil
	})

	if err != nil {
		t.Fatalf("Retry() error = %v, want nil", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestRetryPermanent(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), func() error {
		calls++
		return sql.ErrNoRows
	})

	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if !errors.Is(err, sql.ErrNoRows) || errors.Is(err, errs.ErrServiceUnavailable) {
		t.Errorf("Retry() error = %v, want sql.ErrNoRows unchanged", err)
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "bad conn", err: driver.ErrBadConn, want: true},
		{name: "connection exception", err: &pq.Error{Code: "08006"}, want: true},
		{name: "serialization failure", err: &pq.Error{Code: "40001"}, want: true},
		{name: "admin shutdown", err: &pq.Error{Code: "57P01"}, want: true},
		{name: "unique violation", err: &pq.Error{Code: "23505"}, want: false},
		{name: "no rows", err: sql.ErrNoRows, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransient(tt.err); got != tt.want {
				t.Errorf("IsTransient() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMapError(t *testing.T) {
	notFound := errors.New("thing not found")
	conflict := errors.New("thing exists")
	other := errors.New("boom")

	tests := []struct {
		name     string
		err      error
		notFound error
		conflict error
		want     error
	}{
		{name: "no rows", err: sql.ErrNoRows, notFound: notFound, want: notFound},
		{name: "unique", err: &pq.Error{Code: "23505"}, conflict: conflict, want: conflict},
		{name: "unique default", err: &pq.Error{Code: "23505"}, want: errs.ErrConflict},
		{name: "foreign key", err: &pq.Error{Code: "23503"}, notFound: notFound, want: notFound},
		{name: "foreign key default", err: &pq.Error{Code: "23503"}, want: errs.ErrNotFound},
		{name: "other", err: other, want: other},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MapError(tt.err, tt.notFound, tt.conflict); !errors.Is(got, tt.want) {
				t.Errorf("MapError() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestWhereAndAssignments(t *testing.T) {
	var where Where
	where.Add("id = ANY(?)", "ids")
	where.Add("(a = ? OR b = ?)", 1, 2)
	limit := where.Arg(10)

	if got, want := where.String(), " WHERE id = ANY($1) AND (a = $2 OR b = $3)"; got != want {
		t.Errorf("Where.String() = %q, want %q", got, want)
	}
	if limit != "$4" || len(where.Args()) != 4 {
		t.Errorf("Arg() = %q with %d args, want $4 with 4", limit, len(where.Args()))
	}

	var empty Where
	if empty.String() != "" {
		t.Errorf("empty Where.String() = %q, want empty", empty.String())
	}

	var set Assignments
	set.Set("name", "x")
	set.Set("email", "y")
	id := set.Arg(5)

	if got, want := set.String(), "name = $1, email = $2"; got != want {
		t.Errorf("Assignments.String() = %q, want %q", got, want)
	}
	if id != "$3" {
		t.Errorf("Arg() = %q, want $3", id)
	}
}

func TestLike(t *testing.T) {
	if got, want := Like(`50%_off\`), `%50\%\_off\\%`; got != want {
		t.Errorf("Like() = %q, want %q", got, want)
	}
}

func TestWithTx(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	sqlxDB := sqlx.NewDb(db, "postgres")
	boom := errors.New("boom")

	mock.ExpectBegin()
	mock.ExpectCommit()

	if err := WithTx(context.Background(), sqlxDB, func(tx *sqlx.Tx) error { return nil }); err != nil {
		t.Fatalf("WithTx() error = %v", err)
	}

	mock.ExpectBegin()
	mock.ExpectRollback()

	if err := WithTx(context.Background(), sqlxDB, func(tx *sqlx.Tx) error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("WithTx() error = %v, want boom", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}
