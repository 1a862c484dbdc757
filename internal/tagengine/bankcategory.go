package tagengine

import "strings"

// mapBankCategoryToTagPath implements the bank-category mapping layer: a
// deterministic table from bank-provided category strings to dotted tag
// paths. Unmapped categories return ok=false so the pipeline falls through
// to AI classification.
func mapBankCategoryToTagPath(category string) (string, bool) {
	lower := strings.ToLower(category)

	switch {
	case strings.HasPrefix(lower, "transportation"):
		switch {
		case strings.Contains(lower, "fuel"), strings.Contains(lower, "gas"):
			return "Transport.Gas", true
		case strings.Contains(lower, "auto"), strings.Contains(lower, "service"):
			return "Transport.Auto", true
		case strings.Contains(lower, "parking"):
			return "Transport.Parking", true
		case strings.Contains(lower, "toll"):
			return "Transport.Tolls", true
		default:
			return "Transport", true
		}
	case strings.HasPrefix(lower, "restaurant"), strings.Contains(lower, "-restaurant"):
		return "Dining", true
	case strings.Contains(lower, "-groceries"), strings.Contains(lower, "supermarket"):
		return "Groceries", true
	case strings.HasPrefix(lower, "entertainment"):
		if strings.Contains(lower, "association") {
			return "Personal.Fitness", true
		}
		return "Entertainment", true
	case strings.HasPrefix(lower, "airlines"), strings.HasPrefix(lower, "lodging"),
		strings.HasPrefix(lower, "car rental"), strings.Contains(lower, "travel"):
		return "Travel", true
	case strings.HasPrefix(lower, "healthcare"), strings.HasPrefix(lower, "medical"),
		strings.HasPrefix(lower, "pharmacy"), strings.HasPrefix(lower, "drug"),
		strings.Contains(lower, "health care"):
		return "Healthcare", true
	case strings.HasPrefix(lower, "utilities"), strings.Contains(lower, "-utilities"),
		strings.HasPrefix(lower, "communications"):
		return "Utilities", true
	case strings.HasPrefix(lower, "financial"), strings.HasPrefix(lower, "insurance"),
		strings.Contains(lower, "bank"):
		return "Financial", true
	case strings.HasPrefix(lower, "fees"), strings.Contains(lower, "fee"), strings.Contains(lower, "interest"):
		return "Financial.Fees", true
	case strings.Contains(lower, "clothing"), strings.Contains(lower, "apparel"):
		return "Shopping.Clothing", true
	case strings.Contains(lower, "electronics store"), strings.Contains(lower, "computer"):
		return "Shopping.Electronics", true
	case strings.Contains(lower, "hardware store"), strings.Contains(lower, "hardware supplies"),
		strings.Contains(lower, "home improvement"), strings.Contains(lower, "garden"),
		strings.Contains(lower, "nursery"), strings.Contains(lower, "furniture"),
		strings.Contains(lower, "florist"):
		return "Shopping.Home & Garden", true
	case strings.Contains(lower, "auto parts"), strings.Contains(lower, "automotive parts"):
		return "Shopping.Auto Parts", true
	case strings.Contains(lower, "department store"), strings.Contains(lower, "discount store"),
		strings.Contains(lower, "sporting goods"), strings.Contains(lower, "office supplies"),
		strings.Contains(lower, "book store"), strings.Contains(lower, "jewelry"),
		strings.Contains(lower, "toy store"):
		return "Shopping.General", true
	case strings.HasPrefix(lower, "education"), strings.Contains(lower, "-education"):
		return "Education", true
	case strings.Contains(lower, "veterinary"), strings.Contains(lower, "pet "):
		return "Pets", true
	case strings.HasPrefix(lower, "government"):
		return "Financial", true
	case strings.Contains(lower, "charitable"), strings.Contains(lower, "donation"):
		return "Gifts", true
	case strings.Contains(lower, "beauty"), strings.Contains(lower, "salon"),
		strings.Contains(lower, "barber"), strings.Contains(lower, "spa"):
		return "Personal", true
	case strings.Contains(lower, "internet purchase"):
		return "Subscriptions.Software", true
	case strings.Contains(lower, "payment received"), strings.Contains(lower, "refund"):
		return "Income", true
	default:
		return "", false
	}
}
