package store

import (
	"context"
	"fmt"

	"commerce-ledger/internal/models"
	"commerce-ledger/internal/tenant"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

// unitCostScale is the precision kept for computed unit costs.
const unitCostScale = 4

// ErrInsufficientStock reports a FIFO reservation that cannot be satisfied.
// It is produced before any batch is touched.
type ErrInsufficientStock struct {
	ProductID string
	Requested int
	Available int
}

func (e *ErrInsufficientStock) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: requested=%d, available=%d",
		e.ProductID, e.Requested, e.Available)
}

// BatchTake is one (batch, quantity) consumption pair of a reservation.
type BatchTake struct {
	BatchID  string
	Quantity int
	UnitCost decimal.Decimal
}

// FIFOReservation is the consumption plan for one sale line: which batches to
// decrement and the quantity-weighted unit cost across every layer touched.
type FIFOReservation struct {
	ProductID string
	Quantity  int
	Takes     []BatchTake
	UnitCost  decimal.Decimal
}

// InsertBatch appends a new cost layer.
func (s *Store) InsertBatch(ctx context.Context, ext sqlx.ExtContext, tc tenant.Context, b *models.InventoryBatch) error {
	b.TenantID = tc.TenantID
	b.CreatedAt = now()
	if b.ReceivedAt.IsZero() {
		b.ReceivedAt = b.CreatedAt
	}

	query := s.rebind(`
		INSERT INTO inventory_batches (id, tenant_id, product_id, qty_in, qty_available, unit_cost, received_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)

	_, err := ext.ExecContext(ctx, query,
		b.ID, b.TenantID, b.ProductID, b.QtyIn, b.QtyAvailable, b.UnitCost, b.ReceivedAt, b.CreatedAt)
	return err
}

// BatchesForProduct returns the product's open cost layers oldest-first.
// Ties on received_at break on id, so consumption order is reproducible.
// When locked, the rows stay locked until the surrounding transaction ends.
func (s *Store) BatchesForProduct(ctx context.Context, ext sqlx.ExtContext, tc tenant.Context, productID string, locked bool) ([]models.InventoryBatch, error) {
	query := `
		SELECT * FROM inventory_batches
		WHERE tenant_id = ? AND product_id = ? AND qty_available > 0
		ORDER BY received_at, id`
	if locked {
		query += s.forUpdate()
	}

	var batches []models.InventoryBatch
	err := sqlx.SelectContext(ctx, ext, &batches, s.rebind(query), tc.TenantID, productID)
	return batches, err
}

// ProductStock returns the total available quantity across all cost layers.
func (s *Store) ProductStock(ctx context.Context, ext sqlx.ExtContext, tc tenant.Context, productID string) (int, error) {
	var stock int
	query := s.rebind(`
		SELECT COALESCE(SUM(qty_available), 0) FROM inventory_batches
		WHERE tenant_id = ? AND product_id = ?`)
	err := sqlx.GetContext(ctx, ext, &stock, query, tc.TenantID, productID)
	return stock, err
}

// ReserveFIFO computes the consumption plan for quantity units of a product
// without mutating anything. Total availability is checked before any batch
// would be touched, so a shortage never leaves partial decrements. The caller
// applies the plan with ApplyReservation inside the same transaction.
func (s *Store) ReserveFIFO(ctx context.Context, ext sqlx.ExtContext, tc tenant.Context, productID string, quantity int) (*FIFOReservation, error) {
	if quantity <= 0 {
		return nil, fmt.Errorf("reservation quantity must be positive, got %d", quantity)
	}

	batches, err := s.BatchesForProduct(ctx, ext, tc, productID, true)
	if err != nil {
		return nil, fmt.Errorf("failed to load cost layers: %w", err)
	}

	available := 0
	for _, b := range batches {
		available += b.QtyAvailable
	}
	if available < quantity {
		return nil, &ErrInsufficientStock{ProductID: productID, Requested: quantity, Available: available}
	}

	res := &FIFOReservation{ProductID: productID, Quantity: quantity}
	totalCost := decimal.Zero
	remaining := quantity
	for _, b := range batches {
		if remaining == 0 {
			break
		}
		take := remaining
		if b.QtyAvailable < take {
			take = b.QtyAvailable
		}
		res.Takes = append(res.Takes, BatchTake{BatchID: b.ID, Quantity: take, UnitCost: b.UnitCost})
		totalCost = totalCost.Add(b.UnitCost.Mul(decimal.NewFromInt(int64(take))))
		remaining -= take
	}

	res.UnitCost = totalCost.Div(decimal.NewFromInt(int64(quantity))).Round(unitCostScale)
	return res, nil
}

// ApplyReservation decrements every batch in the plan and appends the single
// InventoryMovement(OUT) row for the operation.
func (s *Store) ApplyReservation(ctx context.Context, ext sqlx.ExtContext, tc tenant.Context, res *FIFOReservation, refType, refID string) error {
	decrement := s.rebind(`
		UPDATE inventory_batches
		SET qty_available = qty_available - ?
		WHERE id = ? AND tenant_id = ? AND qty_available >= ?`)

	for _, take := range res.Takes {
		r, err := ext.ExecContext(ctx, decrement, take.Quantity, take.BatchID, tc.TenantID, take.Quantity)
		if err != nil {
			return fmt.Errorf("failed to decrement batch %s: %w", take.BatchID, err)
		}
		n, err := r.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			// The plan was computed under lock, so this only fires if the
			// reservation is applied outside its transaction.
			return fmt.Errorf("batch %s no longer has %d units available", take.BatchID, take.Quantity)
		}
	}

	return s.InsertInventoryMovement(ctx, ext, tc, &models.InventoryMovement{
		ID:            uuid.New().String(),
		ProductID:     res.ProductID,
		Direction:     models.MovementOut,
		Quantity:      res.Quantity,
		ReferenceType: refType,
		ReferenceID:   refID,
	})
}

// InsertInventoryMovement appends an inventory audit entry.
func (s *Store) InsertInventoryMovement(ctx context.Context, ext sqlx.ExtContext, tc tenant.Context, m *models.InventoryMovement) error {
	m.TenantID = tc.TenantID
	m.CreatedAt = now()

	query := s.rebind(`
		INSERT INTO inventory_movements (id, tenant_id, product_id, direction, quantity, reference_type, reference_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)

	_, err := ext.ExecContext(ctx, query,
		m.ID, m.TenantID, m.ProductID, m.Direction, m.Quantity, m.ReferenceType, m.ReferenceID, m.CreatedAt)
	return err
}

// ConsumeSupplyStock decrements a supply's running counter, floored at zero.
func (s *Store) ConsumeSupplyStock(ctx context.Context, ext sqlx.ExtContext, tc tenant.Context, supplyID string, quantity int) error {
	query := s.rebind(`
		UPDATE supplies
		SET stock = CASE WHEN stock - ? < 0 THEN 0 ELSE stock - ? END, updated_at = ?
		WHERE id = ? AND tenant_id = ?`)

	res, err := ext.ExecContext(ctx, query, quantity, quantity, now(), supplyID, tc.TenantID)
	if err != nil {
		return fmt.Errorf("failed to consume supply stock: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// InsertSupplyMovement appends a supply audit entry.
func (s *Store) InsertSupplyMovement(ctx context.Context, ext sqlx.ExtContext, tc tenant.Context, m *models.SupplyMovement) error {
	m.TenantID = tc.TenantID
	m.CreatedAt = now()

	query := s.rebind(`
		INSERT INTO supply_movements (id, tenant_id, supply_id, direction, quantity, reference_type, reference_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)

	_, err := ext.ExecContext(ctx, query,
		m.ID, m.TenantID, m.SupplyID, m.Direction, m.Quantity, m.ReferenceType, m.ReferenceID, m.CreatedAt)
	return err
}
