package auth

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestGenerateAndParseAccessToken(t *testing.T) {
	mgr := NewJWTManager("segredo-de-teste-com-32-caracteres!!", time.Minute)

	subject := uuid.NewString()
	orgID := uuid.NewString()
	roles := []string{"ADMIN", "GESTOR"}

	token, jti, err := mgr.GenerateAccessToken(subject, orgID, roles)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if jti == "" {
		t.Fatal("jti vazio")
	}

	claims, err := mgr.ParseAndValidate(token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.Subject != subject {
		t.Fatalf("subject: esperado %s, obtido %s", subject, claims.Subject)
	}
	if claims.OrgID != orgID {
		t.Fatalf("org: esperado %s, obtido %s", orgID, claims.OrgID)
	}
	if len(claims.Roles) != 2 || claims.Roles[0] != "ADMIN" {
		t.Fatalf("roles inesperadas: %v", claims.Roles)
	}
}

func TestParseRejectsWrongSecret(t *testing.T) {
	mgr := NewJWTManager("segredo-de-teste-com-32-caracteres!!", time.Minute)
	outro := NewJWTManager("outro-segredo-tambem-com-32-chars!!!", time.Minute)

	token, _, err := mgr.GenerateAccessToken(uuid.NewString(), uuid.NewString(), nil)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	if _, err := outro.ParseAndValidate(token); err == nil {
		t.Fatal("token assinado com outro segredo deveria falhar")
	}
}

func TestParseRejectsExpiredToken(t *testing.T) {
	mgr := NewJWTManager("segredo-de-teste-com-32-caracteres!!", -time.Minute)

	token, _, err := mgr.GenerateAccessToken(uuid.NewString(), uuid.NewString(), nil)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	if _, err := mgr.ParseAndValidate(token); err == nil {
		t.Fatal("token expirado deveria falhar")
	}
}
