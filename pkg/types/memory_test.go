package types

import (
	"strings"
	"testing"
	"time"
)

func validErrorMemory() *Memory {
	return &Memory{
		ID:      "mem-a",
		Type:    MemoryTypeError,
		Content: "NullPointerException in UserService.getProfile when session is nil",
		Project: "backend",
		Source:  "hook",
		Detail: Detail{
			Error: &ErrorDetail{Message: "NullPointerException"},
		},
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
		LastAccessed: time.Now(),
		Tier:         TierEpisodic,
		Strength:     1.0,
	}
}

func TestMemoryValidate(t *testing.T) {
	m := validErrorMemory()
	if err := m.Validate(); err != nil {
		t.Fatalf("Validate() unexpected error: %v", err)
	}
}

func TestMemoryValidate_ShortContent(t *testing.T) {
	m := validErrorMemory()
	m.Content = "too short"
	if err := m.Validate(); err == nil {
		t.Fatal("Validate() expected error for short content")
	}

	m.Content = strings.Repeat(" ", 40)
	if err := m.Validate(); err == nil {
		t.Fatal("Validate() expected error for whitespace-only content")
	}
}

func TestMemoryValidate_InvalidType(t *testing.T) {
	m := validErrorMemory()
	m.Type = "feeling"
	if err := m.Validate(); err == nil {
		t.Fatal("Validate() expected error for unknown type")
	}
}

func TestMemoryValidate_StrengthRange(t *testing.T) {
	m := validErrorMemory()
	m.Strength = 1.2
	if err := m.Validate(); err == nil {
		t.Fatal("Validate() expected error for strength > 1")
	}
	m.Strength = -0.1
	if err := m.Validate(); err == nil {
		t.Fatal("Validate() expected error for strength < 0")
	}
}

func TestDetailValidate_VariantMatchesType(t *testing.T) {
	tests := []struct {
		name    string
		mType   MemoryType
		detail  Detail
		wantErr bool
	}{
		{
			name:    "error memory without error detail",
			mType:   MemoryTypeError,
			detail:  Detail{},
			wantErr: true,
		},
		{
			name:    "error memory with empty message",
			mType:   MemoryTypeError,
			detail:  Detail{Error: &ErrorDetail{Message: "  "}},
			wantErr: true,
		},
		{
			name:    "decision memory without decision detail",
			mType:   MemoryTypeDecision,
			detail:  Detail{},
			wantErr: true,
		},
		{
			name:    "decision memory with decision detail",
			mType:   MemoryTypeDecision,
			detail:  Detail{Decision: &DecisionDetail{Decision: "use sqlite"}},
			wantErr: false,
		},
		{
			name:    "context memory with error detail",
			mType:   MemoryTypeContext,
			detail:  Detail{Error: &ErrorDetail{Message: "boom"}},
			wantErr: true,
		},
		{
			name:    "learning memory with no detail",
			mType:   MemoryTypeLearning,
			detail:  Detail{},
			wantErr: false,
		},
		{
			name:  "multiple variants set",
			mType: MemoryTypeError,
			detail: Detail{
				Error:    &ErrorDetail{Message: "boom"},
				Decision: &DecisionDetail{Decision: "x"},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.detail.Validate(tt.mType)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate(%s) error = %v, wantErr %v", tt.mType, err, tt.wantErr)
			}
		})
	}
}

func TestHashContent_Deterministic(t *testing.T) {
	a := HashContent("some memory content")
	b := HashContent("some memory content")
	c := HashContent("different memory content")
	if a != b {
		t.Errorf("identical content produced different hashes: %s vs %s", a, b)
	}
	if a == c {
		t.Error("different content produced the same hash")
	}
	if len(a) != 64 {
		t.Errorf("hash length = %d, want 64 hex chars", len(a))
	}
}

func TestResolved(t *testing.T) {
	m := validErrorMemory()
	if m.Resolved() {
		t.Error("Resolved() = true for unresolved error")
	}
	m.Detail.Error.Resolved = true
	if !m.Resolved() {
		t.Error("Resolved() = false for resolved error")
	}

	d := &Memory{Type: MemoryTypeDecision}
	if d.Resolved() {
		t.Error("Resolved() = true for non-error memory")
	}
}
