package core

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

type keywordRule struct {
	category Category
	keywords []string
}

// classifierRules are evaluated in order; the first group with a matching
// keyword wins.
var classifierRules = []keywordRule{
	{Food, []string{"swiggy", "zomato", "restaurant", "cafe", "coffee", "pizza", "burger", "food", "grocery", "groceries", "bakery", "dinner", "lunch", "breakfast", "snack", "bigbasket", "blinkit", "dominos", "mcdonald", "kfc", "starbucks"}},
	{Travel, []string{"uber", "ola", "rapido", "taxi", "cab", "flight", "airline", "airways", "train", "irctc", "bus", "metro", "petrol", "diesel", "fuel", "toll", "parking", "hotel", "travel", "trip"}},
	{Shopping, []string{"amazon", "flipkart", "myntra", "ajio", "nykaa", "meesho", "mall", "shopping", "store", "mart", "clothes", "apparel", "shoes", "electronics"}},
	{Bills, []string{"electricity", "electric", "water bill", "gas", "internet", "broadband", "wifi", "recharge", "mobile", "phone", "postpaid", "prepaid", "dth", "rent", "bill", "maintenance", "insurance"}},
	{Entertainment, []string{"netflix", "spotify", "prime video", "hotstar", "youtube", "movie", "cinema", "pvr", "inox", "bookmyshow", "concert", "game", "gaming", "steam"}},
	{Health, []string{"pharmacy", "chemist", "medical", "medicine", "hospital", "clinic", "doctor", "dental", "apollo", "pharmeasy", "1mg", "lab test", "diagnostic", "gym", "fitness"}},
	{EMI, []string{"emi", "loan", "instalment", "installment"}},
}

// Classify maps a free-text description to a category using keyword
// heuristics. It is total and deterministic; unmatched input yields Other.
func Classify(description string) Category {
	d := strings.ToLower(description)
	if strings.TrimSpace(d) == "" {
		return Other
	}
	for _, rule := range classifierRules {
		for _, kw := range rule.keywords {
			if containsWord(d, kw) {
				return rule.category
			}
		}
	}
	return Other
}

// containsWord reports whether kw occurs in s as a whole word, so "ola" does
// not match "chocolate". A plural "s" after the keyword is allowed.
func containsWord(s, kw string) bool {
	for off := 0; off < len(s); {
		i := strings.Index(s[off:], kw)
		if i < 0 {
			return false
		}
		start := off + i
		end := start + len(kw)
		if wordBoundaryBefore(s, start) && wordBoundaryAfter(s, end) {
			return true
		}
		_, size := utf8.DecodeRuneInString(s[start:])
		off = start + size
	}
	return false
}

func wordBoundaryBefore(s string, i int) bool {
	if i == 0 {
		return true
	}
	r, _ := utf8.DecodeLastRuneInString(s[:i])
	return !isWordRune(r)
}

func wordBoundaryAfter(s string, i int) bool {
	if i < len(s) && s[i] == 's' {
		i++
	}
	if i >= len(s) {
		return true
	}
	r, _ := utf8.DecodeRuneInString(s[i:])
	return !isWordRune(r)
}

func isWordRune(r rune) bool { return unicode.IsLetter(r) || unicode.IsDigit(r) }
