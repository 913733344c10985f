package auth

import "testing"

func TestGenerateMagicToken(t *testing.T) {
	raw, hashed, err := GenerateMagicToken()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if raw == "" || hashed == "" {
		t.Fatal("token ou hash vazio")
	}
	if HashRefreshToken(raw) != hashed {
		t.Fatal("hash não corresponde ao token gerado")
	}

	outro, _, err := GenerateMagicToken()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if raw == outro {
		t.Fatal("tokens consecutivos não deveriam se repetir")
	}
}

func TestOTPCodeRoundtrip(t *testing.T) {
	code, hashed, err := GenerateOTPCode()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(code) != 6 {
		t.Fatalf("código deveria ter 6 dígitos: %q", code)
	}

	ok, err := VerifyOTPCode(code, hashed)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !ok {
		t.Fatal("código gerado deveria validar contra o próprio hash")
	}

	ok, err = VerifyOTPCode("000000", hashed)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if ok && code != "000000" {
		t.Fatal("código incorreto não deveria validar")
	}
}

func TestRedisKeysNormalizeEmail(t *testing.T) {
	if MagicEmailRedisKey(" Ana@Empresa.com ") != "magic:email:ana@empresa.com" {
		t.Fatal("chave de e-mail deveria normalizar caixa e espaços")
	}
	if MagicCooldownRedisKey("ana@empresa.com") != "magic:cooldown:ana@empresa.com" {
		t.Fatal("chave de cooldown inesperada")
	}
}
