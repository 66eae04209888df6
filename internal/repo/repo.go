package repo

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/lib/pq"
	"github.com/rs/zerolog"
	"github.com/wb-go/wbf/dbpg"

	"conftickets/internal/model"
)

var (
	ErrTicketNotFound = errors.New("ticket not found")
	ErrDuplicateEmail = errors.New("email already registered")
	ErrAPIKeyNotFound = errors.New("api key not found")
	ErrAdminNotFound  = errors.New("admin not found")
)

const uniqueViolation = "23505"

type Repository interface {
	EmailExists(ctx context.Context, email string) (bool, error)
	CreateUserWithTicketTx(ctx context.Context, u *model.User, amount int64) (*model.Ticket, error)
	SetPaymentPreference(ctx context.Context, ticketID int64, p model.PaymentPreference) error
	MarkPaymentEmailSent(ctx context.Context, ticketID int64) error
	GetTicketByUserID(ctx context.Context, userID string) (*model.TicketWithUser, error)
	GetTicketByID(ctx context.Context, ticketID int64) (*model.TicketWithUser, error)

	// UpdatePaymentTx locks the user's ticket and writes the update chosen by decide.
	// decide returning false leaves the row untouched.
	UpdatePaymentTx(ctx context.Context, userID string, decide func(model.Ticket) (*model.PaymentUpdate, bool)) (*model.TicketWithUser, bool, error)
	// SendTicketEmailOnceTx runs send under the ticket row lock and sets the
	// ticket email latch in the same transaction. It reports true when the
	// latch was already set and send was not called.
	SendTicketEmailOnceTx(ctx context.Context, userID string, send func(context.Context, *model.TicketWithUser) error) (bool, error)
	CheckInTx(ctx context.Context, ticketID int64, at time.Time) (*model.TicketWithUser, bool, error)
	ClaimReminderTx(ctx context.Context, ticketID int64) (*model.TicketWithUser, bool, error)

	UpsertEmailEvent(ctx context.Context, ev *model.EmailEvent) error
	GetEmailEvent(ctx context.Context, emailID string) (*model.EmailEvent, error)

	InsertAPIKeyIfMissing(ctx context.Context, k *model.APIKey) (bool, error)
	FindAPIKeyByType(ctx context.Context, keyType string) (*model.APIKey, error)
	ListAPIKeys(ctx context.Context) ([]model.APIKey, error)
	TouchAPIKey(ctx context.Context, id int64, at time.Time) error

	EnsureAdmin(ctx context.Context, a *model.Admin) (bool, error)
	GetAdminByEmail(ctx context.Context, email string) (*model.Admin, error)

	MigrateUp(migrationsDir string) error
	MigrateDown(migrationsDir string) error
}

type repository struct {
	db  *dbpg.DB
	log *zerolog.Logger
}

func NewRepository(db *dbpg.DB, log *zerolog.Logger) (Repository, error) {
	if db == nil {
		return nil, fmt.Errorf("db cannot be nil")
	}
	if err := db.Master.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping DB: %w", err)
	}
	return &repository{db: db, log: log}, nil
}

func (r *repository) MigrateUp(migrationsDir string) error {
	files, err := filepath.Glob(filepath.Join(migrationsDir, "*.up.sql"))
	if err != nil {
		return fmt.Errorf("failed to read migration files: %w", err)
	}
	sort.Strings(files)

	for _, file := range files {
		if err := r.execFile(file); err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", file, err)
		}
	}

	r.log.Info().Int("files", len(files)).Msgf("Migrations applied successfully from %s", migrationsDir)
	return nil
}

func (r *repository) MigrateDown(migrationsDir string) error {
	files, err := filepath.Glob(filepath.Join(migrationsDir, "*.down.sql"))
	if err != nil {
		return fmt.Errorf("failed to read rollback files: %w", err)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(files)))

	for _, file := range files {
		if err := r.execFile(file); err != nil {
			return fmt.Errorf("failed to rollback migration %s: %w", file, err)
		}
	}

	r.log.Info().Int("files", len(files)).Msgf("Migrations rolled back successfully from %s", migrationsDir)
	return nil
}

func (r *repository) execFile(file string) error {
	sqlBytes, err := os.ReadFile(file)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(context.Background(), string(sqlBytes))
	return err
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}
