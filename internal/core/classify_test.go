package core

import "testing"

func TestClassify(t *testing.T) {
	cases := []struct {
		desc string
		want Category
	}{
		{"Uber ride", Travel},
		{"SWIGGY order #123", Food},
		{"Amazon purchase", Shopping},
		{"Electricity bill June", Bills},
		{"Netflix subscription", Entertainment},
		{"Apollo Pharmacy", Health},
		{"Home loan EMI", EMI},
		{"", Other},
		{"transfer to savings", Other},
		// Food is tested before Travel
		{"hotel restaurant dinner", Food},
		// Travel is tested before Shopping
		{"uber to the mall", Travel},
		// keywords only match whole words
		{"Dark chocolate", Other},
		{"business lunch", Food},
		{"cable tv", Other},
		{"Premium plan", Other},
		{"premium Netflix", Entertainment},
		{"Ola cab", Travel},
		{"ola-cab", Travel},
		{"McDonald's", Food},
		{"movies", Entertainment},
		{"Café Coffee Day", Food},
	}
	for _, tc := range cases {
		if got := Classify(tc.desc); got != tc.want {
			t.Errorf("Classify(%q) = %q, want %q", tc.desc, got, tc.want)
		}
	}
}

func TestClassifyTotalAndDeterministic(t *testing.T) {
	inputs := []string{"", " ", "???", "Zomato", "petrol pump", "random 123", "日本語", "LOAN"}
	for _, in := range inputs {
		first := Classify(in)
		if !first.IsKnown() {
			t.Fatalf("Classify(%q) returned unknown category %q", in, first)
		}
		for i := 0; i < 3; i++ {
			if got := Classify(in); got != first {
				t.Fatalf("Classify(%q) not deterministic: %q vs %q", in, first, got)
			}
		}
	}
}

func TestEMIIsNotSelectable(t *testing.T) {
	if EMI.IsSelectable() {
		t.Fatalf("EMI must not be offered for manual entry")
	}
	if len(SelectableCategories()) != 8 {
		t.Fatalf("expected 8 selectable categories, got %d", len(SelectableCategories()))
	}
}

func TestContainsWord(t *testing.T) {
	cases := []struct {
		s, kw string
		want  bool
	}{
		{"ola", "ola", true},
		{"chocolate ola", "ola", true},
		{"chocolate", "ola", false},
		{"olas", "ola", true},
		{"olasx", "ola", false},
		{"emi.", "emi", true},
		{"café emi", "emi", true},
		{"éemi", "emi", false},
		{"", "ola", false},
	}
	for _, tc := range cases {
		if got := containsWord(tc.s, tc.kw); got != tc.want {
			t.Errorf("containsWord(%q, %q) = %v, want %v", tc.s, tc.kw, got, tc.want)
		}
	}
}
