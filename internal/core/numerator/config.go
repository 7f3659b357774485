// Package numerator mints human-readable document numbers of the form
// {PREFIX}-{seq:03d}/{WHCODE|GEN}/{MM-YYYY}.
//
// Each (document type, warehouse, year-month) key owns an independent
// counter starting at 1. The counter itself lives in storage behind the
// Sequencer contract; everything in this package is pure.
package numerator

import (
	"fmt"
	"regexp"
	"sort"
)

// DocumentType names a kind of business document.
type DocumentType string

const (
	Quotation         DocumentType = "QUOTATION"
	SalesOrder        DocumentType = "SALES_ORDER"
	DeliveryOrder     DocumentType = "DELIVERY_ORDER"
	Invoice           DocumentType = "INVOICE"
	PickingList       DocumentType = "PICKING_LIST"
	GoodsReceipt      DocumentType = "GOODS_RECEIPT"
	WarehouseTransfer DocumentType = "WAREHOUSE_TRANSFER"
	PurchaseOrder     DocumentType = "PURCHASE_ORDER"
)

// GeneralWarehouseCode is the reserved counter namespace for documents that
// are not bound to a warehouse. It is never a real warehouse code.
const GeneralWarehouseCode = "GEN"

// OverflowPolicy decides what happens once a sequence passes 999.
type OverflowPolicy string

const (
	// OverflowWiden keeps counting; the number simply gets a fourth digit.
	OverflowWiden OverflowPolicy = "widen"
	// OverflowFail rejects the allocation with SEQUENCE_EXHAUSTED.
	OverflowFail OverflowPolicy = "fail"
)

// MaxFixedWidth is the largest sequence value that fits the 3-digit field.
const MaxFixedWidth int64 = 999

var (
	prefixPattern        = regexp.MustCompile(`^[A-Z]{2,3}$`)
	warehouseCodePattern = regexp.MustCompile(`^[A-Z]{3,4}$`)
)

// Prefixes maps document types to number prefixes. The mapping must be 1:1.
type Prefixes map[DocumentType]string

// DefaultPrefixes returns the built-in mapping.
func DefaultPrefixes() Prefixes {
	return Prefixes{
		Quotation:         "PQ",
		SalesOrder:        "SO",
		DeliveryOrder:     "DO",
		Invoice:           "PI",
		PickingList:       "PL",
		GoodsReceipt:      "GR",
		WarehouseTransfer: "WT",
		PurchaseOrder:     "PO",
	}
}

// Merge returns a copy of p with overrides applied.
func (p Prefixes) Merge(overrides map[string]string) Prefixes {
	out := make(Prefixes, len(p)+len(overrides))
	for k, v := range p {
		out[k] = v
	}
	for k, v := range overrides {
		out[DocumentType(k)] = v
	}
	return out
}

// Validate checks prefix syntax and that no two document types share a prefix.
func (p Prefixes) Validate() error {
	seen := make(map[string]DocumentType, len(p))
	types := make([]string, 0, len(p))
	for t := range p {
		types = append(types, string(t))
	}
	sort.Strings(types)
	for _, t := range types {
		prefix := p[DocumentType(t)]
		if !prefixPattern.MatchString(prefix) {
			return fmt.Errorf("prefix %q for %s must be 2-3 uppercase letters", prefix, t)
		}
		if other, dup := seen[prefix]; dup {
			return fmt.Errorf("prefix %q is used by both %s and %s", prefix, other, t)
		}
		seen[prefix] = DocumentType(t)
	}
	return nil
}

// ValidWarehouseCode reports whether code may appear in a document number.
func ValidWarehouseCode(code string) bool {
	return code != GeneralWarehouseCode && warehouseCodePattern.MatchString(code)
}
