package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"github.com/agrilink/fulfillment/core/model"
	"github.com/agrilink/fulfillment/core/storage"
)

const schema = `
CREATE TABLE IF NOT EXISTS allocation_requests (
    id TEXT PRIMARY KEY,
    code TEXT NOT NULL,
    requester_id TEXT,
    commodity TEXT NOT NULL,
    variety TEXT,
    quantity TEXT NOT NULL,
    unit TEXT NOT NULL,
    deadline TEXT,
    destination TEXT NOT NULL,
    price TEXT,
    notes TEXT,
    status TEXT NOT NULL,
    location_id TEXT,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS inventory_batches (
    id TEXT PRIMARY KEY,
    lot_code TEXT NOT NULL,
    commodity TEXT NOT NULL,
    variety TEXT,
    remaining_qty TEXT NOT NULL,
    unit TEXT NOT NULL,
    intake_date TEXT NOT NULL,
    shelf_life_days INTEGER NOT NULL DEFAULT 0,
    risk_score INTEGER NOT NULL DEFAULT 0,
    zone TEXT,
    location_id TEXT,
    status TEXT NOT NULL,
    dispatched_at TEXT
);
CREATE TABLE IF NOT EXISTS dispatches (
    id TEXT PRIMARY KEY,
    code TEXT NOT NULL,
    batch_id TEXT NOT NULL,
    request_id TEXT,
    destination TEXT NOT NULL,
    quantity TEXT NOT NULL,
    unit TEXT NOT NULL,
    status TEXT NOT NULL,
    dispatched_at TEXT NOT NULL,
    estimated_delivery TEXT NOT NULL
);`

// SQLiteStore persists records to a SQLite database. Quantities are stored as
// decimal strings and compared in Go; transactions are opened immediate so
// concurrent allocation commits serialize at the database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens or creates the database at path and ensures schema.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	dsn := fmt.Sprintf("file:%s?_txlock=immediate&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// Single writer; keeps commit serialization independent of pool size.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		if cerr := db.Close(); cerr != nil {
			return nil, fmt.Errorf("close db: %v (schema err: %w)", cerr, err)
		}
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

// Requests returns the request repository view.
func (s *SQLiteStore) Requests() storage.RequestRepository { return sqliteRequests{s.db} }

// Batches returns the batch repository view.
func (s *SQLiteStore) Batches() storage.BatchRepository { return sqliteBatches{s.db} }

// Dispatches returns the dispatch repository view.
func (s *SQLiteStore) Dispatches() storage.DispatchRepository { return sqliteDispatches{s.db} }

// Close closes the underlying database.
func (s *SQLiteStore) Close() error { return s.db.Close() }

// CommitAllocation re-checks the preconditions and applies the fulfillment
// mutation inside one immediate transaction.
func (s *SQLiteStore) CommitAllocation(ctx context.Context, c storage.AllocationCommit) (storage.AllocationResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storage.AllocationResult{}, err
	}
	defer func() { _ = tx.Rollback() }()

	r, err := scanRequest(tx.QueryRowContext(ctx, selectRequest+` WHERE id = ?`, c.RequestID))
	if err != nil {
		return storage.AllocationResult{}, err
	}
	if r.Status != model.RequestPending && r.Status != model.RequestReviewing {
		return storage.AllocationResult{}, storage.ErrInvalidState
	}
	b, err := scanBatch(tx.QueryRowContext(ctx, selectBatch+` WHERE id = ?`, c.BatchID))
	if err != nil {
		return storage.AllocationResult{}, err
	}
	if b.Status != model.BatchActive {
		return storage.AllocationResult{}, storage.ErrInvalidState
	}
	if b.Remaining.Cmp(c.Quantity) < 0 {
		return storage.AllocationResult{}, storage.ErrInsufficient
	}

	b.Remaining = b.Remaining.Sub(c.Quantity)
	if b.Remaining.IsZero() {
		b.Status = model.BatchDispatched
		ts := c.Now
		b.DispatchedAt = &ts
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE inventory_batches SET remaining_qty = ?, status = ?, dispatched_at = ? WHERE id = ?`,
		b.Remaining.String(), b.Status.String(), nullTime(b.DispatchedAt), b.ID); err != nil {
		return storage.AllocationResult{}, err
	}

	d := c.Dispatch
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO dispatches (id, code, batch_id, request_id, destination, quantity, unit, status, dispatched_at, estimated_delivery)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.Code, d.BatchID, d.RequestID, d.Destination, d.Quantity.String(), d.Unit,
		d.Status.String(), fmtTime(d.DispatchedAt), fmtTime(d.EstimatedDelivery)); err != nil {
		return storage.AllocationResult{}, err
	}

	r.Status = model.RequestAllocated
	r.UpdatedAt = c.Now
	if _, err := tx.ExecContext(ctx,
		`UPDATE allocation_requests SET status = ?, updated_at = ? WHERE id = ?`,
		r.Status.String(), fmtTime(r.UpdatedAt), r.ID); err != nil {
		return storage.AllocationResult{}, err
	}

	if err := tx.Commit(); err != nil {
		return storage.AllocationResult{}, err
	}
	return storage.AllocationResult{Request: r, Batch: b, Dispatch: d}, nil
}

const selectRequest = `SELECT id, code, requester_id, commodity, variety, quantity, unit, deadline,
    destination, price, notes, status, location_id, created_at, updated_at FROM allocation_requests`

const selectBatch = `SELECT id, lot_code, commodity, variety, remaining_qty, unit, intake_date,
    shelf_life_days, risk_score, zone, location_id, status, dispatched_at FROM inventory_batches`

const selectDispatch = `SELECT id, code, batch_id, request_id, destination, quantity, unit, status,
    dispatched_at, estimated_delivery FROM dispatches`

type sqliteRequests struct{ db *sql.DB }

func (r sqliteRequests) Insert(ctx context.Context, req model.AllocationRequest) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO allocation_requests (id, code, requester_id, commodity, variety, quantity, unit,
         deadline, destination, price, notes, status, location_id, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		req.ID, req.Code, req.RequesterID, req.Commodity, req.Variety, req.Quantity.String(), req.Unit,
		nullTime(req.Deadline), req.Destination, nullDecimal(req.Price), req.Notes,
		req.Status.String(), req.LocationID, fmtTime(req.CreatedAt), fmtTime(req.UpdatedAt))
	return err
}

func (r sqliteRequests) Get(ctx context.Context, id string) (model.AllocationRequest, error) {
	return scanRequest(r.db.QueryRowContext(ctx, selectRequest+` WHERE id = ?`, id))
}

func (r sqliteRequests) Update(ctx context.Context, req model.AllocationRequest) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE allocation_requests SET status = ?, notes = ?, updated_at = ? WHERE id = ?`,
		req.Status.String(), req.Notes, fmtTime(req.UpdatedAt), req.ID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r sqliteRequests) ListByStatus(ctx context.Context, status model.RequestStatus) ([]model.AllocationRequest, error) {
	rows, err := r.db.QueryContext(ctx, selectRequest+` WHERE status = ? ORDER BY created_at`, status.String())
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var res []model.AllocationRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, req)
	}
	return res, rows.Err()
}

type sqliteBatches struct{ db *sql.DB }

func (b sqliteBatches) Insert(ctx context.Context, batch model.InventoryBatch) error {
	_, err := b.db.ExecContext(ctx,
		`INSERT INTO inventory_batches (id, lot_code, commodity, variety, remaining_qty, unit,
         intake_date, shelf_life_days, risk_score, zone, location_id, status, dispatched_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		batch.ID, batch.LotCode, batch.Commodity, batch.Variety, batch.Remaining.String(), batch.Unit,
		fmtTime(batch.IntakeDate), batch.ShelfLifeDays, batch.RiskScore, batch.Zone,
		batch.LocationID, batch.Status.String(), nullTime(batch.DispatchedAt))
	return err
}

func (b sqliteBatches) Get(ctx context.Context, id string) (model.InventoryBatch, error) {
	return scanBatch(b.db.QueryRowContext(ctx, selectBatch+` WHERE id = ?`, id))
}

func (b sqliteBatches) ListActiveByCommodity(ctx context.Context, commodity string) ([]model.InventoryBatch, error) {
	rows, err := b.db.QueryContext(ctx,
		selectBatch+` WHERE status = 'active' AND commodity = ? COLLATE NOCASE ORDER BY intake_date`,
		commodity)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var res []model.InventoryBatch
	for rows.Next() {
		batch, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, batch)
	}
	return res, rows.Err()
}

type sqliteDispatches struct{ db *sql.DB }

func (d sqliteDispatches) Get(ctx context.Context, id string) (model.Dispatch, error) {
	return scanDispatch(d.db.QueryRowContext(ctx, selectDispatch+` WHERE id = ?`, id))
}

func (d sqliteDispatches) Update(ctx context.Context, dsp model.Dispatch) error {
	res, err := d.db.ExecContext(ctx,
		`UPDATE dispatches SET status = ?, estimated_delivery = ? WHERE id = ?`,
		dsp.Status.String(), fmtTime(dsp.EstimatedDelivery), dsp.ID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(row rowScanner) (model.AllocationRequest, error) {
	var (
		r                model.AllocationRequest
		qty, status      string
		deadline, price  sql.NullString
		created, updated string
	)
	err := row.Scan(&r.ID, &r.Code, &r.RequesterID, &r.Commodity, &r.Variety, &qty, &r.Unit,
		&deadline, &r.Destination, &price, &r.Notes, &status, &r.LocationID, &created, &updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.AllocationRequest{}, storage.ErrNotFound
		}
		return model.AllocationRequest{}, err
	}
	if r.Quantity, err = decimal.NewFromString(qty); err != nil {
		return model.AllocationRequest{}, fmt.Errorf("parse quantity: %w", err)
	}
	if r.Status, err = model.ParseRequestStatus(status); err != nil {
		return model.AllocationRequest{}, err
	}
	if deadline.Valid {
		t, err := parseTime(deadline.String)
		if err != nil {
			return model.AllocationRequest{}, err
		}
		r.Deadline = &t
	}
	if price.Valid {
		p, err := decimal.NewFromString(price.String)
		if err != nil {
			return model.AllocationRequest{}, fmt.Errorf("parse price: %w", err)
		}
		r.Price = &p
	}
	if r.CreatedAt, err = parseTime(created); err != nil {
		return model.AllocationRequest{}, err
	}
	if r.UpdatedAt, err = parseTime(updated); err != nil {
		return model.AllocationRequest{}, err
	}
	return r, nil
}

func scanBatch(row rowScanner) (model.InventoryBatch, error) {
	var (
		b            model.InventoryBatch
		qty, status  string
		intake       string
		dispatchedAt sql.NullString
	)
	err := row.Scan(&b.ID, &b.LotCode, &b.Commodity, &b.Variety, &qty, &b.Unit, &intake,
		&b.ShelfLifeDays, &b.RiskScore, &b.Zone, &b.LocationID, &status, &dispatchedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.InventoryBatch{}, storage.ErrNotFound
		}
		return model.InventoryBatch{}, err
	}
	if b.Remaining, err = decimal.NewFromString(qty); err != nil {
		return model.InventoryBatch{}, fmt.Errorf("parse remaining quantity: %w", err)
	}
	if b.Status, err = model.ParseBatchStatus(status); err != nil {
		return model.InventoryBatch{}, err
	}
	if b.IntakeDate, err = parseTime(intake); err != nil {
		return model.InventoryBatch{}, err
	}
	if dispatchedAt.Valid {
		t, err := parseTime(dispatchedAt.String)
		if err != nil {
			return model.InventoryBatch{}, err
		}
		b.DispatchedAt = &t
	}
	return b, nil
}

func scanDispatch(row rowScanner) (model.Dispatch, error) {
	var (
		d            model.Dispatch
		qty, status  string
		shipped, eta string
	)
	err := row.Scan(&d.ID, &d.Code, &d.BatchID, &d.RequestID, &d.Destination, &qty, &d.Unit,
		&status, &shipped, &eta)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Dispatch{}, storage.ErrNotFound
		}
		return model.Dispatch{}, err
	}
	if d.Quantity, err = decimal.NewFromString(qty); err != nil {
		return model.Dispatch{}, fmt.Errorf("parse quantity: %w", err)
	}
	if d.Status, err = model.ParseDispatchStatus(status); err != nil {
		return model.Dispatch{}, err
	}
	if d.DispatchedAt, err = parseTime(shipped); err != nil {
		return model.Dispatch{}, err
	}
	if d.EstimatedDelivery, err = parseTime(eta); err != nil {
		return model.Dispatch{}, err
	}
	return d, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func fmtTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func parseTime(s string) (time.Time, error) { return time.Parse(time.RFC3339Nano, s) }

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return fmtTime(*t)
}

func nullDecimal(d *decimal.Decimal) any {
	if d == nil {
		return nil
	}
	return d.String()
}
