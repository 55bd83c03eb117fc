package common

// Tables lists the entity tables both sides of the sync protocol know.
var Tables = []string{
	"products", "customers", "suppliers", "orders", "invoices",
	"sales", "expenses", "budgets", "loans", "employees",
}

// IsTable reports whether name is one of Tables.
func IsTable(name string) bool {
	for _, t := range Tables {
		if t == name {
			return true
		}
	}
	return false
}
