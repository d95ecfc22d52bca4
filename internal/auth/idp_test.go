package auth

import (
	"errors"
	"testing"
)

func TestClaimsFromMap(t *testing.T) {
	tests := []struct {
		name    string
		raw     map[string]any
		want    IdentityClaims
		wantErr error
	}{
		{
			name: "preferred_username with at sign wins",
			raw: map[string]any{
				"oid": "oid-1", "sub": "sub-1",
				"preferred_username": "taro@corp.example.com",
				"email":              "taro@mail.example.com",
				"given_name":         "Taro", "family_name": "Yamada",
			},
			want: IdentityClaims{
				Email: "taro@corp.example.com", ExternalID: "oid-1",
				GivenName: "Taro", FamilyName: "Yamada", DisplayName: "Taro Yamada",
			},
		},
		{
			name: "preferred_username without at sign falls back to email",
			raw: map[string]any{
				"sub": "sub-2", "preferred_username": "hanako", "email": "hanako@example.com", "name": "Hanako S",
				"picture": "https://cdn.example.com/h.png",
			},
			want: IdentityClaims{
				Email: "hanako@example.com", ExternalID: "sub-2", DisplayName: "Hanako S",
				AvatarURL: "https://cdn.example.com/h.png",
			},
		},
		{
			name: "non string values are ignored",
			raw:  map[string]any{"sub": "sub-3", "email": "x@example.com", "given_name": 42},
			want: IdentityClaims{Email: "x@example.com", ExternalID: "sub-3"},
		},
		{
			name:    "missing email",
			raw:     map[string]any{"sub": "sub-4", "preferred_username": "nobody"},
			wantErr: ErrMissingEmailClaim,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := claimsFromMap(tt.raw)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if *got != tt.want {
				t.Errorf("claims = %+v, want %+v", *got, tt.want)
			}
		})
	}
}

func TestClaimsFromMap_MissingSubject(t *testing.T) {
	_, err := claimsFromMap(map[string]any{"email": "x@example.com"})
	if err == nil {
		t.Fatal("expected error for claims without subject")
	}
	if errors.Is(err, ErrMissingEmailClaim) {
		t.Error("missing subject must not be reported as missing email")
	}
}

func TestNewState_Unique(t *testing.T) {
	a, err := newState()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, _ := newState()
	if a == b {
		t.Error("state values should differ")
	}
	if len(a) != 32 {
		t.Errorf("state length = %d, want 32", len(a))
	}
}
