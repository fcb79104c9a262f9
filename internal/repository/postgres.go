// Package repository содержит реализации хранилища сервиса бронирования.
package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/sethvargo/go-retry"

	"github.com/mmeshcher/slotbook-system/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrUserExists возвращается при попытке создать пользователя с уже существующим логином.
var (
	ErrUserExists = errors.New("user already exists")
	// ErrUserNotFound возвращается, если пользователь не найден.
	ErrUserNotFound = errors.New("user not found")
	// ErrProviderNotFound возвращается, если заведение не найдено
	// или за владельцем не закреплено заведение.
	ErrProviderNotFound = errors.New("provider not found")
	// ErrServiceItemNotFound возвращается, если услуга отсутствует в каталоге заведения.
	ErrServiceItemNotFound = errors.New("service item not found")
	// ErrBookingNotFound возвращается, если бронирование не найдено.
	ErrBookingNotFound = errors.New("booking not found")
	// ErrEntryNotFound возвращается, если запись журнала транзакций не найдена.
	ErrEntryNotFound = errors.New("transaction entry not found")
)

// PostgresRepository предоставляет доступ к хранилищу данных в PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{pool: pool}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

// withRetry повторяет операцию при сбоях сериализации и дедлоках.
func (r *PostgresRepository) withRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	backoff := retry.WithMaxRetries(3, retry.NewExponential(250*time.Millisecond))

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := fn(ctx)
		if err == nil {
			return nil
		}

		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) &&
			(pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected) {
			return retry.RetryableError(err)
		}

		return err
	})
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// CreateUser создаёт нового пользователя.
func (r *PostgresRepository) CreateUser(ctx context.Context, login string, passwordHash []byte, role model.Role) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO users (login, password_hash, role) VALUES ($1, $2, $3) RETURNING id`,
		login, passwordHash, string(role),
	).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return 0, fmt.Errorf("%w: %s", ErrUserExists, login)
		}
		return 0, fmt.Errorf("create user: %w", err)
	}
	return id, nil
}

// GetUserByLogin возвращает пользователя по логину.
func (r *PostgresRepository) GetUserByLogin(ctx context.Context, login string) (*model.User, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, login, password_hash, role, created_at FROM users WHERE login = $1`,
		login,
	)

	var u model.User
	var role string
	err := row.Scan(&u.ID, &u.Login, &u.PasswordHash, &role, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	u.Role = model.Role(role)

	return &u, nil
}

// ProviderIDByOwner возвращает заведение, закреплённое за владельцем.
func (r *PostgresRepository) ProviderIDByOwner(ctx context.Context, ownerID int64) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`SELECT id FROM providers WHERE owner_id = $1`,
		ownerID,
	).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, fmt.Errorf("%w: owner %d", ErrProviderNotFound, ownerID)
		}
		return 0, fmt.Errorf("get provider by owner: %w", err)
	}
	return id, nil
}

func (r *PostgresRepository) providerSlots(ctx context.Context, providerID int64) ([]string, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT label FROM provider_slots WHERE provider_id = $1 ORDER BY position`,
		providerID,
	)
	if err != nil {
		return nil, fmt.Errorf("select provider slots: %w", err)
	}
	defer rows.Close()

	var labels []string
	for rows.Next() {
		var label string
		if err := rows.Scan(&label); err != nil {
			return nil, fmt.Errorf("scan slot label: %w", err)
		}
		labels = append(labels, label)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return labels, nil
}

// GetProvider возвращает заведение вместе с каталогом слотов.
func (r *PostgresRepository) GetProvider(ctx context.Context, id int64) (*model.Provider, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, name, address, is_open FROM providers WHERE id = $1`,
		id,
	)

	var p model.Provider
	err := row.Scan(&p.ID, &p.Name, &p.Address, &p.Open)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %d", ErrProviderNotFound, id)
		}
		return nil, fmt.Errorf("get provider: %w", err)
	}

	p.Slots, err = r.providerSlots(ctx, id)
	if err != nil {
		return nil, err
	}

	return &p, nil
}

// ListProviders возвращает все заведения с каталогами слотов.
func (r *PostgresRepository) ListProviders(ctx context.Context) ([]model.Provider, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, name, address, is_open FROM providers ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("select providers: %w", err)
	}
	defer rows.Close()

	var providers []model.Provider
	for rows.Next() {
		var p model.Provider
		if err := rows.Scan(&p.ID, &p.Name, &p.Address, &p.Open); err != nil {
			return nil, fmt.Errorf("scan provider: %w", err)
		}
		providers = append(providers, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	for i := range providers {
		providers[i].Slots, err = r.providerSlots(ctx, providers[i].ID)
		if err != nil {
			return nil, err
		}
	}

	return providers, nil
}

// SetProviderOpen переключает флаг открытости заведения.
func (r *PostgresRepository) SetProviderOpen(ctx context.Context, id int64, open bool) error {
	cmdTag, err := r.pool.Exec(ctx,
		`UPDATE providers SET is_open = $2 WHERE id = $1`,
		id, open,
	)
	if err != nil {
		return fmt.Errorf("update provider: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %d", ErrProviderNotFound, id)
	}
	return nil
}

// GetServiceItems возвращает услуги каталога заведения по идентификаторам,
// сохраняя порядок запроса. Отсутствие любой услуги — ошибка.
func (r *PostgresRepository) GetServiceItems(ctx context.Context, providerID int64, ids []string) ([]model.ServiceItem, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, provider_id, name, price, duration_min
		 FROM service_items
		 WHERE provider_id = $1 AND id = ANY($2)`,
		providerID, ids,
	)
	if err != nil {
		return nil, fmt.Errorf("select service items: %w", err)
	}
	defer rows.Close()

	found := make(map[string]model.ServiceItem, len(ids))
	for rows.Next() {
		var it model.ServiceItem
		if err := rows.Scan(&it.ID, &it.ProviderID, &it.Name, &it.Price, &it.DurationMin); err != nil {
			return nil, fmt.Errorf("scan service item: %w", err)
		}
		found[it.ID] = it
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	items := make([]model.ServiceItem, 0, len(ids))
	for _, id := range ids {
		it, ok := found[id]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrServiceItemNotFound, id)
		}
		items = append(items, it)
	}

	return items, nil
}

// SaveBooking сохраняет бронирование вместе с позициями услуг.
func (r *PostgresRepository) SaveBooking(ctx context.Context, b *model.Booking) error {
	return r.withRetry(ctx, func(ctx context.Context) error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		_, err = tx.Exec(ctx,
			`INSERT INTO bookings
			   (id, provider_id, slot_label, subtotal, platform_fee, provider_earnings, status, entry_id, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			b.ID, b.ProviderID, b.Slot, b.Subtotal, b.PlatformFee, b.ProviderEarnings,
			string(b.Status), b.EntryID, b.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert booking: %w", err)
		}

		for i, it := range b.Items {
			_, err = tx.Exec(ctx,
				`INSERT INTO booking_items (booking_id, item_id, name, price, duration_min, position)
				 VALUES ($1, $2, $3, $4, $5, $6)`,
				b.ID, it.ID, it.Name, it.Price, it.DurationMin, i,
			)
			if err != nil {
				return fmt.Errorf("insert booking item: %w", err)
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}

		return nil
	})
}

// UpdateBookingStatus обновляет состояние бронирования.
func (r *PostgresRepository) UpdateBookingStatus(ctx context.Context, id string, status model.BookingStatus) error {
	cmdTag, err := r.pool.Exec(ctx,
		`UPDATE bookings SET status = $2 WHERE id = $1`,
		id, string(status),
	)
	if err != nil {
		return fmt.Errorf("update booking: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrBookingNotFound, id)
	}
	return nil
}

// ListBookings возвращает все сохранённые бронирования с позициями услуг.
func (r *PostgresRepository) ListBookings(ctx context.Context) ([]model.Booking, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, provider_id, slot_label, subtotal, platform_fee, provider_earnings, status, entry_id, created_at
		 FROM bookings
		 ORDER BY created_at`,
	)
	if err != nil {
		return nil, fmt.Errorf("select bookings: %w", err)
	}
	defer rows.Close()

	var bookings []model.Booking
	index := make(map[string]int)
	for rows.Next() {
		var b model.Booking
		var status string
		if err := rows.Scan(&b.ID, &b.ProviderID, &b.Slot, &b.Subtotal, &b.PlatformFee,
			&b.ProviderEarnings, &status, &b.EntryID, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan booking: %w", err)
		}
		b.Status = model.BookingStatus(status)
		index[b.ID] = len(bookings)
		bookings = append(bookings, b)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	itemRows, err := r.pool.Query(ctx,
		`SELECT bi.booking_id, bi.item_id, b.provider_id, bi.name, bi.price, bi.duration_min
		 FROM booking_items bi
		 JOIN bookings b ON b.id = bi.booking_id
		 ORDER BY bi.booking_id, bi.position`,
	)
	if err != nil {
		return nil, fmt.Errorf("select booking items: %w", err)
	}
	defer itemRows.Close()

	for itemRows.Next() {
		var bookingID string
		var it model.ServiceItem
		if err := itemRows.Scan(&bookingID, &it.ID, &it.ProviderID, &it.Name, &it.Price, &it.DurationMin); err != nil {
			return nil, fmt.Errorf("scan booking item: %w", err)
		}
		if i, ok := index[bookingID]; ok {
			bookings[i].Items = append(bookings[i].Items, it)
		}
	}

	if err := itemRows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return bookings, nil
}

// AppendTransaction добавляет запись в журнал транзакций.
// Порядок вставки фиксируется последовательностью seq и является порядком аудита.
func (r *PostgresRepository) AppendTransaction(ctx context.Context, e *model.TransactionEntry) error {
	return r.withRetry(ctx, func(ctx context.Context) error {
		_, err := r.pool.Exec(ctx,
			`INSERT INTO transactions (id, provider_id, direction, amount, status, description, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			e.ID, e.ProviderID, string(e.Direction), e.Amount, string(e.Status), e.Description, e.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert transaction: %w", err)
		}
		return nil
	})
}

// UpdateTransactionStatus переводит статус одной записи журнала.
func (r *PostgresRepository) UpdateTransactionStatus(ctx context.Context, entryID string, status model.TxStatus) error {
	cmdTag, err := r.pool.Exec(ctx,
		`UPDATE transactions SET status = $2 WHERE id = $1`,
		entryID, string(status),
	)
	if err != nil {
		return fmt.Errorf("update transaction: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrEntryNotFound, entryID)
	}
	return nil
}

// UpdateTransactionStatuses переводит статус набора записей одним запросом.
func (r *PostgresRepository) UpdateTransactionStatuses(ctx context.Context, entryIDs []string, status model.TxStatus) error {
	if len(entryIDs) == 0 {
		return nil
	}

	return r.withRetry(ctx, func(ctx context.Context) error {
		_, err := r.pool.Exec(ctx,
			`UPDATE transactions SET status = $2 WHERE id = ANY($1)`,
			entryIDs, string(status),
		)
		if err != nil {
			return fmt.Errorf("update transactions: %w", err)
		}
		return nil
	})
}

// ListTransactions возвращает весь журнал транзакций в порядке вставки.
func (r *PostgresRepository) ListTransactions(ctx context.Context) ([]model.TransactionEntry, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, provider_id, direction, amount, status, description, created_at
		 FROM transactions
		 ORDER BY seq`,
	)
	if err != nil {
		return nil, fmt.Errorf("select transactions: %w", err)
	}
	defer rows.Close()

	var res []model.TransactionEntry
	for rows.Next() {
		var e model.TransactionEntry
		var direction, status string
		if err := rows.Scan(&e.ID, &e.ProviderID, &direction, &e.Amount, &status, &e.Description, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		e.Direction = model.TxDirection(direction)
		e.Status = model.TxStatus(status)
		res = append(res, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}
