package utils

import (
	"fmt"

	"github.com/bwmarrin/snowflake"
)

const invoicePrefix = "INV-"

// InvoiceNumbers hands out "INV-<snowflake id>" numbers. Ids are unique per
// node and increase over time, so every process writing invoices needs its
// own node number.
type InvoiceNumbers struct {
	node *snowflake.Node
}

func NewInvoiceNumbers(node int64) (*InvoiceNumbers, error) {
	n, err := snowflake.NewNode(node)
	if err != nil {
		return nil, fmt.Errorf("invoice numbers: %w", err)
	}
	return &InvoiceNumbers{node: n}, nil
}

func (n *InvoiceNumbers) Next() string {
	return invoicePrefix + n.node.Generate().String()
}
