package orchestrator

import (
	"regexp"
	"strings"
)

// Lookup is one structured-data query produced by the trigger predicate.
// An empty Source means "query every registered source".
type Lookup struct {
	Source string
	Query  string
}

var (
	orderIDPattern    = regexp.MustCompile(`(?i)\bORD\d{3,}\b`)
	productIDPattern  = regexp.MustCompile(`(?i)\bPROD\d{3,}\b`)
	customerIDPattern = regexp.MustCompile(`(?i)\bCUST\d{3,}\b`)
)

// catalogKeywords are terms that suggest the user is asking about orders,
// products or account data rather than making small talk.
var catalogKeywords = []string{
	"order", "product", "return", "refund", "cancel", "track", "tracking",
	"shipping", "delivery", "price", "stock", "recommend", "buy",
}

// dataLookups decides whether a user input should trigger structured-data
// retrieval and, if so, which sources to query. Identifier mentions map to
// their table; generic catalog language scans all sources.
func dataLookups(input string) []Lookup {
	var lookups []Lookup

	for _, id := range orderIDPattern.FindAllString(input, -1) {
		lookups = append(lookups, Lookup{Source: "orders", Query: strings.ToUpper(id)})
	}
	for _, id := range productIDPattern.FindAllString(input, -1) {
		lookups = append(lookups, Lookup{Source: "products", Query: strings.ToUpper(id)})
	}
	for _, id := range customerIDPattern.FindAllString(input, -1) {
		lookups = append(lookups, Lookup{Source: "customers", Query: strings.ToUpper(id)})
	}

	if len(lookups) > 0 {
		return lookups
	}

	lowered := strings.ToLower(input)
	for _, kw := range catalogKeywords {
		if strings.Contains(lowered, kw) {
			return []Lookup{{Query: input}}
		}
	}

	return nil
}
