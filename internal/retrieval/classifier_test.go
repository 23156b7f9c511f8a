package retrieval

import "testing"

func TestClassifyQuery(t *testing.T) {
	tests := []struct {
		query string
		want  QueryKind
	}{
		{`"findUserById"`, KindExact},
		{"UserService.getProfile null", KindExact},
		{"fix snake_case_parser crash in tokenizer.go", KindExact},
		{"how should we structure the caching layer for session data", KindConceptual},
		{"why does authentication fail after the token refresh happens", KindConceptual},
		{"db timeout", KindBalanced},
		{"", KindBalanced},
	}

	for _, tt := range tests {
		if got := ClassifyQuery(tt.query); got != tt.want {
			t.Errorf("ClassifyQuery(%q) = %s, want %s", tt.query, got, tt.want)
		}
	}
}

func TestQueryKindWeights(t *testing.T) {
	tests := []struct {
		kind       QueryKind
		wantDense  float64
		wantSparse float64
	}{
		{KindConceptual, 0.7, 0.3},
		{KindExact, 0.3, 0.7},
		{KindBalanced, 0.5, 0.5},
	}
	for _, tt := range tests {
		w := tt.kind.Weights()
		if w.Dense != tt.wantDense || w.Sparse != tt.wantSparse {
			t.Errorf("%s weights = %+v, want dense %v sparse %v",
				tt.kind, w, tt.wantDense, tt.wantSparse)
		}
	}
}

func TestIsCodeLike(t *testing.T) {
	codeLike := []string{"UserService.getProfile", "snake_case_name", "camelCaseToken", "pkg/types"}
	for _, w := range codeLike {
		if !isCodeLike(w) {
			t.Errorf("isCodeLike(%q) = false, want true", w)
		}
	}
	prose := []string{"the", "caching", "Authentication", "session"}
	for _, w := range prose {
		if isCodeLike(w) {
			t.Errorf("isCodeLike(%q) = true, want false", w)
		}
	}
}
