package store

import (
	"context"
	"database/sql"
	"net/url"
	"strconv"
	"strings"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"github.com/Vovarama1992/rental-intake-bot/internal/intake"
)

var ErrNotFound = errors.New("store: not found")

type Dialect string

const (
	SQLite   Dialect = "sqlite"
	Postgres Dialect = "postgres"
)

// Store — репозиторий клиентов, сообщений и интеграционных событий поверх
// database/sql. Запросы пишутся с `?`, для Postgres они переписываются в $n.
type Store struct {
	db      *sql.DB
	dialect Dialect
}

var _ intake.Store = (*Store)(nil)

// DialectOf picks the dialect from the DSN: postgres URLs go to lib/pq,
// everything else is a SQLite path.
func DialectOf(dsn string) Dialect {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return Postgres
	}
	return SQLite
}

// Open connects, pings and migrates.
func Open(ctx context.Context, dsn string) (*Store, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, errors.New("store: empty dsn")
	}

	dialect := DialectOf(dsn)
	var (
		db  *sql.DB
		err error
	)
	switch dialect {
	case Postgres:
		db, err = sql.Open("postgres", dsn)
	default:
		db, err = sql.Open("sqlite3", sqliteDSN(dsn))
		if err == nil {
			// один писатель, иначе SQLITE_BUSY под нагрузкой
			db.SetMaxOpenConns(1)
		}
	}
	if err != nil {
		return nil, errors.Wrap(err, "store: open")
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "store: ping")
	}

	s := New(db, dialect)
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an existing handle. The caller is responsible for the schema.
func New(db *sql.DB, dialect Dialect) *Store {
	return &Store{db: db, dialect: dialect}
}

func (s *Store) Dialect() Dialect { return s.dialect }

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return errors.Wrap(s.db.PingContext(ctx), "store: ping")
}

// Describe returns a label for health output without credentials.
func Describe(dsn string) string {
	dsn = strings.TrimSpace(dsn)
	if DialectOf(dsn) == SQLite {
		path := strings.TrimPrefix(dsn, "sqlite://")
		if i := strings.IndexByte(path, '?'); i >= 0 {
			path = path[:i]
		}
		return "sqlite:" + path
	}

	u, err := url.Parse(dsn)
	if err != nil {
		return "postgres"
	}
	return "postgres:" + u.Host + u.Path
}

func sqliteDSN(dsn string) string {
	dsn = strings.TrimPrefix(dsn, "sqlite://")
	if strings.Contains(dsn, "?") {
		return dsn
	}
	return dsn + "?_busy_timeout=5000"
}

func (s *Store) rebind(query string) string {
	if s.dialect != Postgres {
		return query
	}
	var (
		b strings.Builder
		n int
	)
	b.Grow(len(query) + 8)
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
