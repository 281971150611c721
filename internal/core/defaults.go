package core

// DefaultCategories returns the category set seeded for every new account.
// The slice is freshly allocated on each call so callers may mutate it.
func DefaultCategories() []Category {
	return []Category{
		{Name: "Food & Dining", Kind: CategoryExpense, Icon: "bi-cup-hot", Color: "#e74c3c", IsDefault: true},
		{Name: "Transportation", Kind: CategoryExpense, Icon: "bi-car-front", Color: "#3498db", IsDefault: true},
		{Name: "Shopping", Kind: CategoryExpense, Icon: "bi-bag", Color: "#9b59b6", IsDefault: true},
		{Name: "Entertainment", Kind: CategoryExpense, Icon: "bi-controller", Color: "#e67e22", IsDefault: true},
		{Name: "Healthcare", Kind: CategoryExpense, Icon: "bi-heart-pulse", Color: "#1abc9c", IsDefault: true},
		{Name: "Utilities", Kind: CategoryExpense, Icon: "bi-lightning", Color: "#f1c40f", IsDefault: true},
		{Name: "Housing", Kind: CategoryExpense, Icon: "bi-house", Color: "#e91e63", IsDefault: true},
		{Name: "Education", Kind: CategoryExpense, Icon: "bi-book", Color: "#00bcd4", IsDefault: true},
		{Name: "Salary", Kind: CategoryIncome, Icon: "bi-cash-stack", Color: "#27ae60", IsDefault: true},
		{Name: "Freelance", Kind: CategoryIncome, Icon: "bi-laptop", Color: "#2980b9", IsDefault: true},
		{Name: "Investment", Kind: CategoryIncome, Icon: "bi-graph-up-arrow", Color: "#8e44ad", IsDefault: true},
		{Name: "Other Income", Kind: CategoryIncome, Icon: "bi-plus-circle", Color: "#16a085", IsDefault: true},
	}
}
