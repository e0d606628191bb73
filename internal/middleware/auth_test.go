package middleware

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/mmynk/batchsettle/internal/auth"
)

func TestBearerClaims(t *testing.T) {
	m := auth.NewJWTManager("test-secret-key-at-least-32-bytes!", time.Hour)
	alice := common.HexToAddress("0x1000000000000000000000000000000000000001")
	token, err := m.Generate(alice)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	claims, err := bearerClaims(m, "Bearer "+token)
	if err != nil {
		t.Fatalf("bearerClaims failed: %v", err)
	}
	if claims.Caller() != alice {
		t.Errorf("caller = %s, want %s", claims.Caller().Hex(), alice.Hex())
	}

	tests := []struct {
		name   string
		header string
		want   error
	}{
		{name: "missing", header: "", want: auth.ErrMissingToken},
		{name: "wrong scheme", header: "Basic " + token, want: auth.ErrInvalidToken},
		{name: "no scheme", header: token, want: auth.ErrInvalidToken},
		{name: "garbage token", header: "Bearer abc", want: auth.ErrInvalidToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := bearerClaims(m, tt.header); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestCallerContext(t *testing.T) {
	ctx := context.Background()
	if _, ok := GetCaller(ctx); ok {
		t.Error("expected no caller on a bare context")
	}

	alice := common.HexToAddress("0x1000000000000000000000000000000000000001")
	got, ok := GetCaller(WithCaller(ctx, alice))
	if !ok || got != alice {
		t.Errorf("GetCaller = (%s, %v), want (%s, true)", got.Hex(), ok, alice.Hex())
	}
}
