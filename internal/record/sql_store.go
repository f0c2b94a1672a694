package record

import (
	"context"
	"database/sql"
	stdErrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"ChatWallet/deploy/migrations"
	xerrors "ChatWallet/internal/errors"
	"ChatWallet/internal/ledger"
)

// Dialect selects the SQL flavour.
type Dialect string

const (
	DialectMySQL  Dialect = "mysql"
	DialectSQLite Dialect = "sqlite"
)

// SQLConfig configures an SQLStore.
type SQLConfig struct {
	Dialect         Dialect
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// SQLStore persists records in MySQL or SQLite.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
}

// NewSQLStore opens the database and creates the schema.
func NewSQLStore(ctx context.Context, cfg SQLConfig) (*SQLStore, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "record store DSN is required")
	}

	var driver string
	switch cfg.Dialect {
	case DialectMySQL:
		driver = "mysql"
	case DialectSQLite:
		driver = "sqlite"
		if dsn != ":memory:" && !strings.HasPrefix(dsn, "file:") {
			if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
				return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "create database directory")
			}
		}
	default:
		return nil, xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("unsupported sql dialect %q", cfg.Dialect))
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "open record database")
	}

	if cfg.Dialect == DialectSQLite {
		// A single connection serialises writers and keeps :memory: databases
		// shared across calls.
		db.SetMaxOpenConns(1)
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "enable WAL mode")
		}
	} else {
		maxOpen := cfg.MaxOpenConns
		if maxOpen <= 0 {
			maxOpen = 20
		}
		maxIdle := cfg.MaxIdleConns
		if maxIdle <= 0 {
			maxIdle = 10
		}
		lifetime := cfg.ConnMaxLifetime
		if lifetime <= 0 {
			lifetime = 10 * time.Minute
		}
		db.SetMaxOpenConns(maxOpen)
		db.SetMaxIdleConns(maxIdle)
		db.SetConnMaxLifetime(lifetime)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "connect to record database")
	}

	store := &SQLStore{db: db, dialect: cfg.Dialect}
	if err := store.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLStore) initSchema(ctx context.Context) error {
	statements, err := migrations.Statements(string(s.dialect))
	if err != nil {
		return xerrors.Wrap(xerrors.CodeInitializationFailure, err, "load record schema")
	}
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return xerrors.Wrap(xerrors.CodeStorageFailure, err, "initialise record schema")
		}
	}
	return nil
}

// Contacts implements Store.
func (s *SQLStore) Contacts(ctx context.Context) ([]Contact, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, address, created_at FROM wallet_contacts ORDER BY created_at, id`)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "list contacts")
	}
	defer rows.Close()

	var contacts []Contact
	for rows.Next() {
		contact, err := scanContact(rows)
		if err != nil {
			return nil, err
		}
		contacts = append(contacts, contact)
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "iterate contacts")
	}
	return contacts, nil
}

// AddContact implements Store.
func (s *SQLStore) AddContact(ctx context.Context, contact Contact) (Contact, error) {
	contact, err := validateContact(contact)
	if err != nil {
		return Contact{}, err
	}
	if contact.ID == "" {
		contact.ID = uuid.NewString()
	}
	if contact.CreatedAt.IsZero() {
		contact.CreatedAt = time.Now().UTC()
	}

	const stmt = `INSERT INTO wallet_contacts (id, name, name_key, address, created_at) VALUES (?, ?, ?, ?, ?)`
	_, err = s.db.ExecContext(ctx, stmt,
		contact.ID,
		contact.Name,
		NameKey(contact.Name),
		contact.Address,
		contact.CreatedAt.UnixMilli(),
	)
	if err != nil {
		if isDuplicate(err) {
			return Contact{}, ErrContactExists
		}
		return Contact{}, xerrors.Wrap(xerrors.CodeStorageFailure, err, "insert contact")
	}
	return contact, nil
}

// DeleteContact implements Store.
func (s *SQLStore) DeleteContact(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM wallet_contacts WHERE id = ?`, id)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "delete contact")
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return ErrContactNotFound
	}
	return nil
}

// FindContact implements Store.
func (s *SQLStore) FindContact(ctx context.Context, name string) (Contact, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, name, address, created_at FROM wallet_contacts WHERE name_key = ?`, NameKey(name))
	contact, err := scanContact(row)
	if err != nil {
		if stdErrors.Is(err, sql.ErrNoRows) {
			return Contact{}, ErrContactNotFound
		}
		return Contact{}, err
	}
	return contact, nil
}

// Transactions implements Store.
func (s *SQLStore) Transactions(ctx context.Context, limit int) ([]Transaction, error) {
	query := `SELECT signature, kind, amount, recipient, created_at FROM wallet_transactions ORDER BY seq DESC`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "list transactions")
	}
	defer rows.Close()

	var txs []Transaction
	for rows.Next() {
		var (
			tx        Transaction
			kind      string
			amount    string
			createdAt int64
		)
		if err := rows.Scan(&tx.Signature, &kind, &amount, &tx.Recipient, &createdAt); err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "scan transaction")
		}
		tx.Kind = ledger.Kind(kind)
		tx.Amount, err = decimal.NewFromString(amount)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "decode transaction amount")
		}
		tx.Timestamp = time.UnixMilli(createdAt).UTC()
		txs = append(txs, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "iterate transactions")
	}
	return txs, nil
}

// AddTransaction implements Store.
func (s *SQLStore) AddTransaction(ctx context.Context, tx Transaction) error {
	if err := validateTransaction(tx); err != nil {
		return err
	}
	if tx.Timestamp.IsZero() {
		tx.Timestamp = time.Now().UTC()
	}
	const stmt = `INSERT INTO wallet_transactions (signature, kind, amount, recipient, created_at) VALUES (?, ?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, stmt,
		tx.Signature,
		string(tx.Kind),
		tx.Amount.String(),
		tx.Recipient,
		tx.Timestamp.UnixMilli(),
	); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "insert transaction")
	}
	return nil
}

// TrimTransactions implements Store.
func (s *SQLStore) TrimTransactions(ctx context.Context, keep int) error {
	if keep <= 0 {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM wallet_transactions`); err != nil {
			return xerrors.Wrap(xerrors.CodeStorageFailure, err, "trim transactions")
		}
		return nil
	}

	var cutoff int64
	err := s.db.QueryRowContext(ctx,
		`SELECT seq FROM wallet_transactions ORDER BY seq DESC LIMIT 1 OFFSET ?`, keep-1,
	).Scan(&cutoff)
	if stdErrors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "find trim cutoff")
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM wallet_transactions WHERE seq < ?`, cutoff); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "trim transactions")
	}
	return nil
}

// Close releases the database handle.
func (s *SQLStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanContact(row rowScanner) (Contact, error) {
	var (
		contact   Contact
		createdAt int64
	)
	if err := row.Scan(&contact.ID, &contact.Name, &contact.Address, &createdAt); err != nil {
		if stdErrors.Is(err, sql.ErrNoRows) {
			return Contact{}, err
		}
		return Contact{}, xerrors.Wrap(xerrors.CodeStorageFailure, err, "scan contact")
	}
	contact.CreatedAt = time.UnixMilli(createdAt).UTC()
	return contact, nil
}

func isDuplicate(err error) bool {
	var mysqlErr *mysql.MySQLError
	if stdErrors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

var _ Store = (*SQLStore)(nil)
