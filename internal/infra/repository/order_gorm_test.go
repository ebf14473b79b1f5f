package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"marketpay/internal/domain/model"
	repo "marketpay/internal/repository"
)

func newTestDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()

	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	gdb, err := gorm.Open(postgres.New(postgres.Config{
		Conn:                 sqlDB,
		PreferSimpleProtocol: true,
	}), &gorm.Config{
		TranslateError:         true,
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)

	return gdb, mock
}

func TestOrderGorm_FindByID_NotFound(t *testing.T) {
	gdb, mock := newTestDB(t)
	r := NewOrderGormRepository(gdb)

	mock.ExpectQuery(`SELECT (.+) FROM "orders"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := r.FindByID(context.Background(), 99)

	assert.ErrorIs(t, err, repo.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderGorm_UpdateStatusVersioned_Success(t *testing.T) {
	gdb, mock := newTestDB(t)
	r := NewOrderGormRepository(gdb)

	mock.ExpectExec(`UPDATE "orders" SET`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	now := time.Now()
	err := r.UpdateStatusVersioned(context.Background(), model.Order{
		ID:          10,
		Status:      model.OrderStatusProcessing,
		ConfirmedAt: &now,
	}, 4)

	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderGorm_UpdateStatusVersioned_VersionConflict(t *testing.T) {
	gdb, mock := newTestDB(t)
	r := NewOrderGormRepository(gdb)

	//行は存在するがversionが合わない
	mock.ExpectExec(`UPDATE "orders" SET`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT count\(\*\) FROM "orders"`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	err := r.UpdateStatusVersioned(context.Background(), model.Order{
		ID:     10,
		Status: model.OrderStatusProcessing,
	}, 4)

	assert.ErrorIs(t, err, repo.ErrVersionConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderGorm_UpdateStatusVersioned_RowMissing(t *testing.T) {
	gdb, mock := newTestDB(t)
	r := NewOrderGormRepository(gdb)

	mock.ExpectExec(`UPDATE "orders" SET`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT count\(\*\) FROM "orders"`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	err := r.UpdateStatusVersioned(context.Background(), model.Order{
		ID:     99,
		Status: model.OrderStatusProcessing,
	}, 4)

	assert.ErrorIs(t, err, repo.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderGorm_FindByIdempotencyKey_NotFoundIsNotError(t *testing.T) {
	gdb, mock := newTestDB(t)
	r := NewOrderGormRepository(gdb)

	//照合は必ずbuyer単位
	mock.ExpectQuery(`SELECT (.+) FROM "orders" WHERE buyer_id = \$1 AND idempotency_key = \$2`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, found, err := r.FindByIdempotencyKey(context.Background(), 1, "key-1")

	assert.NoError(t, err)
	assert.False(t, found)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWebhookEventGorm_Insert_DuplicateMapped(t *testing.T) {
	gdb, mock := newTestDB(t)
	r := NewWebhookEventGormRepository(gdb)

	//unique violation (23505) はErrDuplicateEventに写す
	mock.ExpectQuery(`INSERT INTO "webhook_events"`).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	err := r.Insert(context.Background(), model.WebhookEvent{
		EventID:     "evt_1",
		EventType:   "payment.approved",
		OrderID:     10,
		ProcessedAt: time.Now(),
	})

	assert.ErrorIs(t, err, repo.ErrDuplicateEvent)
	assert.NoError(t, mock.ExpectationsWereMet())
}
