package auth

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/alexedwards/argon2id"
)

var (
	// ErrInvalidMagicLink é retornado quando o token do link é inválido, expirado ou já consumido.
	ErrInvalidMagicLink = errors.New("link de acesso inválido ou expirado")
)

var otpParams = &argon2id.Params{
	Memory:      64 * 1024, // 64 MB
	Iterations:  3,
	Parallelism: 1,
	SaltLength:  16,
	KeyLength:   32,
}

// GenerateMagicToken cria o token de uso único do link e seu hash persistível.
func GenerateMagicToken() (raw string, hashed string, err error) {
	buf := make([]byte, 32)
	if _, err = rand.Read(buf); err != nil {
		return "", "", err
	}

	raw = base64.RawURLEncoding.EncodeToString(buf)
	hashed = HashRefreshToken(raw)
	return raw, hashed, nil
}

// GenerateOTPCode cria o código numérico de 6 dígitos enviado junto ao link.
// O código tem baixa entropia, então o hash usa Argon2id em vez de SHA-256.
func GenerateOTPCode() (code string, hashed string, err error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", "", err
	}
	code = fmt.Sprintf("%06d", n.Int64())

	hashed, err = argon2id.CreateHash(code, otpParams)
	if err != nil {
		return "", "", err
	}
	return code, hashed, nil
}

// VerifyOTPCode compara o código informado com o hash Argon2id armazenado.
func VerifyOTPCode(code, encodedHash string) (bool, error) {
	return argon2id.ComparePasswordAndHash(strings.TrimSpace(code), encodedHash)
}

// MagicTokenRedisKey monta chave do estado pendente indexado pelo hash do token.
func MagicTokenRedisKey(hash string) string {
	return fmt.Sprintf("magic:token:%s", hash)
}

// MagicEmailRedisKey aponta do e-mail para o hash do token pendente mais recente.
func MagicEmailRedisKey(email string) string {
	return fmt.Sprintf("magic:email:%s", strings.ToLower(strings.TrimSpace(email)))
}

// MagicCooldownRedisKey controla o intervalo mínimo entre envios por e-mail.
func MagicCooldownRedisKey(email string) string {
	return fmt.Sprintf("magic:cooldown:%s", strings.ToLower(strings.TrimSpace(email)))
}
