package models

import "github.com/google/uuid"

// ensureID assigns a fresh UUID when the caller did not provide one. Ids
// are generated client-side so sqlite and Postgres behave the same.
func ensureID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}

// All lists every persisted model, in dependency order, for AutoMigrate.
func All() []any {
	return []any{
		&Category{},
		&Attribute{},
		&AttributeValue{},
		&Product{},
		&ProductAttribute{},
		&ProductAttributeValue{},
		&StockMovement{},
		&Sale{},
		&SaleItem{},
		&Cart{},
		&CartItem{},
		&Order{},
		&OrderItem{},
	}
}
