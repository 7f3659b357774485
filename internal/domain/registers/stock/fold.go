package stock

import (
	"fmt"

	"docflow/internal/core/types"
)

// Counters are the primitive fields rebuilt by Fold.
type Counters struct {
	Quantity types.Quantity `json:"quantity"`
	Reserved types.Quantity `json:"reserved_quantity"`
	Damaged  types.Quantity `json:"damaged_quantity"`
}

// Apply adds the effect of one movement.
//
//	IN, ADJUSTMENT      quantity
//	OUT                 quantity and reserved (shipment consumes its reservation)
//	TRANSFER, negative  quantity and reserved
//	TRANSFER, positive  quantity
//	RESERVE, RELEASE    reserved
//	DAMAGE              damaged
func (c *Counters) Apply(m Movement) error {
	switch m.Type {
	case MovementIn, MovementAdjustment:
		c.Quantity += m.QuantityChange
	case MovementOut:
		c.Quantity += m.QuantityChange
		c.Reserved += m.QuantityChange
	case MovementTransfer:
		c.Quantity += m.QuantityChange
		if m.QuantityChange < 0 {
			c.Reserved += m.QuantityChange
		}
	case MovementReserve, MovementRelease:
		c.Reserved += m.QuantityChange
	case MovementDamage:
		c.Damaged += m.QuantityChange
	default:
		return fmt.Errorf("unknown movement type %q", m.Type)
	}
	return nil
}

// Fold rebuilds counters from zero by replaying movements in order.
func Fold(movements []Movement) (Counters, error) {
	var c Counters
	for i, m := range movements {
		if err := c.Apply(m); err != nil {
			return Counters{}, fmt.Errorf("movement %d: %w", i, err)
		}
	}
	return c, nil
}

// Drift is the difference between a stored record and its movement log.
type Drift struct {
	Key       Key      `json:"-"`
	Stored    Counters `json:"stored"`
	Folded    Counters `json:"folded"`
	Movements int      `json:"movements"`
}

// Consistent reports whether the record equals the fold of its movements.
func (d Drift) Consistent() bool {
	return d.Stored == d.Folded
}

func countersOf(r Record) Counters {
	return Counters{Quantity: r.Quantity, Reserved: r.Reserved, Damaged: r.Damaged}
}
