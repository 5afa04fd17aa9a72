package vectorstore

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"strings"
	"sync"
	"testing"
)

// recorder guarda os comandos recebidos pelo driver fake.
type recorder struct {
	mu         sync.Mutex
	execs      []execCall
	commits    int
	rollbacks  int
	failOn     string
	commitFail bool
}

type execCall struct {
	query string
	args  []driver.Value
}

func (r *recorder) queries() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.execs))
	for i, e := range r.execs {
		out[i] = e.query
	}
	return out
}

var (
	fakeMu    sync.Mutex
	fakeStore = map[string]*recorder{}
)

func init() {
	sql.Register("fakepg", fakeDriver{})
}

// openFake registra um recorder para o teste e abre um *sql.DB em cima dele.
func openFake(t *testing.T) (*sql.DB, *recorder) {
	t.Helper()
	rec := &recorder{}
	fakeMu.Lock()
	fakeStore[t.Name()] = rec
	fakeMu.Unlock()

	db, err := sql.Open("fakepg", t.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db, rec
}

type fakeDriver struct{}

func (fakeDriver) Open(name string) (driver.Conn, error) {
	fakeMu.Lock()
	defer fakeMu.Unlock()
	rec, ok := fakeStore[name]
	if !ok {
		return nil, errors.New("unknown fake dsn")
	}
	return &fakeConn{rec: rec}, nil
}

type fakeConn struct{ rec *recorder }

func (c *fakeConn) Prepare(query string) (driver.Stmt, error) {
	return &fakeStmt{rec: c.rec, query: query}, nil
}
func (c *fakeConn) Close() error { return nil }
func (c *fakeConn) Begin() (driver.Tx, error) {
	return &fakeTx{rec: c.rec}, nil
}
func (c *fakeConn) BeginTx(context.Context, driver.TxOptions) (driver.Tx, error) {
	return &fakeTx{rec: c.rec}, nil
}

type fakeTx struct{ rec *recorder }

func (t *fakeTx) Commit() error {
	t.rec.mu.Lock()
	defer t.rec.mu.Unlock()
	if t.rec.commitFail {
		return errors.New("commit failed")
	}
	t.rec.commits++
	return nil
}

func (t *fakeTx) Rollback() error {
	t.rec.mu.Lock()
	defer t.rec.mu.Unlock()
	t.rec.rollbacks++
	return nil
}

type fakeStmt struct {
	rec   *recorder
	query string
}

func (s *fakeStmt) Close() error  { return nil }
func (s *fakeStmt) NumInput() int { return -1 }

func (s *fakeStmt) Exec(args []driver.Value) (driver.Result, error) {
	s.rec.mu.Lock()
	defer s.rec.mu.Unlock()
	if s.rec.failOn != "" && strings.Contains(s.query, s.rec.failOn) {
		return nil, errors.New("exec failed")
	}
	s.rec.execs = append(s.rec.execs, execCall{query: s.query, args: args})
	return driver.RowsAffected(1), nil
}

func (s *fakeStmt) Query([]driver.Value) (driver.Rows, error) {
	return nil, errors.New("query not supported")
}
