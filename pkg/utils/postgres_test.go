package utils

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"testing"
	"time"
)

func TestPostgresPoolConfig_Defaults(t *testing.T) {
	c := PostgresPoolConfig{}.withDefaults()
	if c.MaxOpenConns <= 0 || c.MaxIdleConns <= 0 {
		t.Fatalf("expected positive pool sizes, got %+v", c)
	}
	if c.PingTimeout <= 0 || c.ConnMaxLifetime <= 0 {
		t.Fatalf("expected positive timeouts, got %+v", c)
	}
}

func TestPostgresPoolConfig_ExplicitValuesKept(t *testing.T) {
	c := PostgresPoolConfig{MaxOpenConns: 5, PingTimeout: time.Second}.withDefaults()
	if c.MaxOpenConns != 5 {
		t.Fatalf("expected explicit MaxOpenConns kept, got %d", c.MaxOpenConns)
	}
	if c.PingTimeout != time.Second {
		t.Fatalf("expected explicit PingTimeout kept, got %v", c.PingTimeout)
	}
}

// txDriver is the smallest sql/driver implementation that lets WithTx run
// without a database: it only records transaction outcomes.
type txDriver struct{ conn *txConn }

func (d *txDriver) Open(string) (driver.Conn, error) { return d.conn, nil }

type txConn struct {
	commits   int
	rollbacks int
}

func (c *txConn) Prepare(string) (driver.Stmt, error) { return nil, errors.New("not supported") }
func (c *txConn) Close() error                        { return nil }
func (c *txConn) Begin() (driver.Tx, error)           { return &txRecorder{conn: c}, nil }

type txRecorder struct{ conn *txConn }

func (t *txRecorder) Commit() error   { t.conn.commits++; return nil }
func (t *txRecorder) Rollback() error { t.conn.rollbacks++; return nil }

var txTestConn = &txConn{}

func init() {
	sql.Register("withtx-test", &txDriver{conn: txTestConn})
}

func TestWithTx_CommitsOnSuccess(t *testing.T) {
	db, err := sql.Open("withtx-test", "")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	before := txTestConn.commits
	if err := WithTx(context.Background(), db, nil, func(ctx context.Context, tx *sql.Tx) error {
		return nil
	}); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if txTestConn.commits != before+1 {
		t.Fatalf("expected commit, commits=%d before=%d", txTestConn.commits, before)
	}
}

func TestWithTx_RollsBackOnError(t *testing.T) {
	db, err := sql.Open("withtx-test", "")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	boom := errors.New("boom")
	before := txTestConn.rollbacks
	if err := WithTx(context.Background(), db, nil, func(ctx context.Context, tx *sql.Tx) error {
		return boom
	}); !errors.Is(err, boom) {
		t.Fatalf("expected fn error returned, got %v", err)
	}
	if txTestConn.rollbacks != before+1 {
		t.Fatalf("expected rollback, rollbacks=%d before=%d", txTestConn.rollbacks, before)
	}
}

func TestWithTx_RollsBackOnPanic(t *testing.T) {
	db, err := sql.Open("withtx-test", "")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	before := txTestConn.rollbacks
	func() {
		defer func() {
			if recover() == nil {
				t.Fatalf("expected panic to propagate")
			}
		}()
		_ = WithTx(context.Background(), db, nil, func(ctx context.Context, tx *sql.Tx) error {
			panic("boom")
		})
	}()
	if txTestConn.rollbacks != before+1 {
		t.Fatalf("expected rollback on panic, rollbacks=%d before=%d", txTestConn.rollbacks, before)
	}
}
