package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config centraliza a configuração carregada do ambiente.
type Config struct {
	Port            int
	DBDSN           string
	RedisURL        string
	JWTAccessTTL    time.Duration
	JWTRefreshTTL   time.Duration
	JWTSecret       string
	AllowOrigins    []string
	RateLimitPublic RateLimitConfig
	RateLimitAuth   RateLimitConfig
	MagicLink       MagicLinkConfig
	Supabase        SupabaseConfig
	Mail            MailConfig
	Alert           AlertConfig
	Cleanup         CleanupConfig
}

// RateLimitConfig representa limites simples para throttling.
type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
}

// MagicLinkConfig controla emissão dos links de acesso.
type MagicLinkConfig struct {
	// BaseURL é o endereço do frontend que recebe o token
	// (ex.: https://app.psicozen.com.br/auth/callback).
	BaseURL  string
	TTL      time.Duration
	Cooldown time.Duration
}

// SupabaseConfig guarda credenciais da Admin API do provedor de identidade.
type SupabaseConfig struct {
	URL        string
	ServiceKey string
}

// Enabled indica se o espelhamento de identidades está configurado.
func (c SupabaseConfig) Enabled() bool {
	return strings.TrimSpace(c.URL) != "" && strings.TrimSpace(c.ServiceKey) != ""
}

// MailConfig guarda credenciais do provedor de e-mail transacional.
type MailConfig struct {
	ResendAPIKey string
	From         string
}

// AlertConfig parametriza alertas do emociograma.
type AlertConfig struct {
	// NivelCritico e NivelAtencao definem os cortes na escala 1-5.
	NivelCritico int
	NivelAtencao int
	Throttle     time.Duration
}

// CleanupConfig parametriza o expurgo periódico.
type CleanupConfig struct {
	Enabled        bool
	Interval       time.Duration
	AuditRetention time.Duration
}

// Load carrega variáveis de ambiente e aplica defaults seguros.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}

	portStr := getEnv("PORT", "8080")
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 {
		return nil, errors.New("PORT inválida")
	}
	cfg.Port = port

	cfg.DBDSN = getEnv("DB_DSN", "")
	if cfg.DBDSN == "" {
		return nil, errors.New("DB_DSN obrigatório")
	}

	cfg.RedisURL = getEnv("REDIS_URL", "")
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL obrigatório")
	}

	cfg.JWTSecret = strings.TrimSpace(getEnv("JWT_SECRET", ""))
	if len(cfg.JWTSecret) < 32 {
		return nil, errors.New("JWT_SECRET deve ter pelo menos 32 caracteres")
	}

	accessTTL, err := parseDurationEnv("JWT_ACCESS_TTL", 15*time.Minute)
	if err != nil {
		return nil, err
	}
	cfg.JWTAccessTTL = accessTTL

	refreshTTL, err := parseDurationEnv("JWT_REFRESH_TTL", 30*24*time.Hour)
	if err != nil {
		return nil, err
	}
	cfg.JWTRefreshTTL = refreshTTL

	allowOrigins := strings.Split(getEnv("ALLOW_ORIGINS", ""), ",")
	cfg.AllowOrigins = nil
	for _, origin := range allowOrigins {
		origin = strings.TrimSpace(origin)
		if origin != "" {
			cfg.AllowOrigins = append(cfg.AllowOrigins, origin)
		}
	}

	cfg.RateLimitPublic = RateLimitConfig{RequestsPerSecond: 10, Burst: 20}
	cfg.RateLimitAuth = RateLimitConfig{RequestsPerSecond: 10, Burst: 40}

	cfg.MagicLink.BaseURL = strings.TrimRight(strings.TrimSpace(getEnv("MAGIC_LINK_BASE_URL", "")), "/")
	if cfg.MagicLink.BaseURL == "" {
		return nil, errors.New("MAGIC_LINK_BASE_URL obrigatório")
	}
	magicTTL, err := parseDurationEnv("MAGIC_LINK_TTL", 15*time.Minute)
	if err != nil {
		return nil, err
	}
	cfg.MagicLink.TTL = magicTTL

	cooldown, err := parseDurationEnv("MAGIC_LINK_COOLDOWN", time.Minute)
	if err != nil {
		return nil, err
	}
	cfg.MagicLink.Cooldown = cooldown

	cfg.Supabase.URL = strings.TrimRight(strings.TrimSpace(getEnv("SUPABASE_URL", "")), "/")
	cfg.Supabase.ServiceKey = strings.TrimSpace(getEnv("SUPABASE_SERVICE_KEY", ""))

	cfg.Mail.ResendAPIKey = strings.TrimSpace(getEnv("RESEND_API_KEY", ""))
	cfg.Mail.From = strings.TrimSpace(getEnv("MAIL_FROM", "PsicoZen <nao-responda@psicozen.com.br>"))

	cfg.Alert.NivelCritico = 1
	cfg.Alert.NivelAtencao = 2
	throttle, err := parseDurationEnv("ALERT_THROTTLE", 30*time.Minute)
	if err != nil {
		return nil, err
	}
	cfg.Alert.Throttle = throttle

	cfg.Cleanup.Enabled = getEnv("CLEANUP_ENABLED", "true") != "false"
	cleanupInterval, err := parseDurationEnv("CLEANUP_INTERVAL", time.Hour)
	if err != nil {
		return nil, err
	}
	cfg.Cleanup.Interval = cleanupInterval

	retention, err := parseDurationEnv("AUDIT_RETENTION", 5*365*24*time.Hour)
	if err != nil {
		return nil, err
	}
	cfg.Cleanup.AuditRetention = retention

	return cfg, nil
}

func getEnv(key, def string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return def
}

func parseDurationEnv(key string, def time.Duration) (time.Duration, error) {
	val := getEnv(key, "")
	if val == "" {
		return def, nil
	}
	dur, err := time.ParseDuration(val)
	if err != nil {
		return 0, errors.New(key + " inválido")
	}
	return dur, nil
}
