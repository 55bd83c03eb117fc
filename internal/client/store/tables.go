package store

import (
	"github.com/dmitrijs2005/storekeeper/internal/client/models"
	"github.com/dmitrijs2005/storekeeper/internal/client/repositories/entities"
)

type (
	TableDef  = entities.TableDef
	Filter    = entities.Filter
	Condition = entities.Condition
)

var ErrNotIndexed = entities.ErrNotIndexed

// DefaultTables matches the embedded migrations.
var DefaultTables = []TableDef{
	{Name: models.EntityProducts, Indexes: []string{"sku", "category"}},
	{Name: models.EntityCustomers, Indexes: []string{"email"}},
	{Name: models.EntitySuppliers, Indexes: []string{"name"}},
	{Name: models.EntityOrders, Indexes: []string{"status", "customer_id"}},
	{Name: models.EntityInvoices, Indexes: []string{"status", "due_date"}},
	{Name: models.EntitySales, Indexes: []string{"customer_id", "sold_at"}},
	{Name: models.EntityExpenses, Indexes: []string{"due_date", "status"}},
	{Name: models.EntityBudgets, Indexes: []string{"status"}},
	{Name: models.EntityLoans, Indexes: []string{"due_date", "status"}},
	{Name: models.EntityEmployees, Indexes: []string{"email"}},
}
