package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/psicozen/psicozen-backend-sub003/internal/db"
	"github.com/psicozen/psicozen-backend-sub003/internal/org"
	"github.com/psicozen/psicozen-backend-sub003/internal/repo"
	"github.com/psicozen/psicozen-backend-sub003/internal/util"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})

	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	_ = godotenv.Load()

	ctx := context.Background()

	dsn := strings.TrimSpace(os.Getenv("DB_DSN"))
	if dsn == "" {
		dsn = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	}
	if dsn == "" {
		log.Fatal().Msg("defina DB_DSN ou DATABASE_URL")
	}

	pool, err := db.NewPool(ctx, dsn)
	if err != nil {
		log.Fatal().Err(err).Msg("não foi possível conectar ao banco")
	}
	defer pool.Close()

	orgService := org.NewService(org.NewRepository(pool))
	queries := repo.New(pool)

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "org":
		if err := runCreateOrg(ctx, orgService, args); err != nil {
			log.Fatal().Err(err).Msg("falha ao criar organização")
		}
	case "admin":
		if err := runCreateAdmin(ctx, orgService, queries, args); err != nil {
			log.Fatal().Err(err).Msg("falha ao criar administrador")
		}
	case "list":
		if err := runList(ctx, orgService); err != nil {
			log.Fatal().Err(err).Msg("falha ao listar organizações")
		}
	default:
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "bootstrap CLI")
	fmt.Fprintln(os.Stderr, "uso:")
	fmt.Fprintln(os.Stderr, "  bootstrap org --slug acme --name \"Acme Ltda\" [--settings-file settings.json]")
	fmt.Fprintln(os.Stderr, "  bootstrap admin --org acme --email admin@acme.com.br --nome Ana [--sobrenome Souza]")
	fmt.Fprintln(os.Stderr, "  bootstrap list")
}

func runCreateOrg(ctx context.Context, service *org.Service, args []string) error {
	fs := flag.NewFlagSet("org", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var (
		slug         = fs.String("slug", "", "slug da organização (ex.: acme)")
		name         = fs.String("name", "", "nome exibido")
		settingsFile = fs.String("settings-file", "", "arquivo JSON com configurações")
		settingsJSON = fs.String("settings", "", "JSON literal com configurações")
	)

	if err := fs.Parse(args); err != nil {
		return err
	}

	if *slug == "" || *name == "" {
		return errors.New("slug e name são obrigatórios")
	}

	settings := map[string]any{}
	if *settingsFile != "" {
		raw, err := os.ReadFile(*settingsFile)
		if err != nil {
			return fmt.Errorf("ler settings-file: %w", err)
		}
		if err := json.Unmarshal(raw, &settings); err != nil {
			return fmt.Errorf("parse settings-file: %w", err)
		}
	} else if *settingsJSON != "" {
		if err := json.Unmarshal([]byte(*settingsJSON), &settings); err != nil {
			return fmt.Errorf("parse settings: %w", err)
		}
	}

	created, err := service.Create(ctx, org.CreateOrgInput{
		Slug:     *slug,
		Nome:     *name,
		Settings: settings,
	})
	if err != nil {
		return err
	}

	output, _ := json.MarshalIndent(created, "", "  ")
	fmt.Println(string(output))
	return nil
}

func runCreateAdmin(ctx context.Context, orgs *org.Service, queries *repo.Queries, args []string) error {
	fs := flag.NewFlagSet("admin", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var (
		orgSlug   = fs.String("org", "", "slug da organização")
		email     = fs.String("email", "", "e-mail do administrador")
		nome      = fs.String("nome", "", "primeiro nome")
		sobrenome = fs.String("sobrenome", "", "sobrenome")
	)

	if err := fs.Parse(args); err != nil {
		return err
	}

	if *orgSlug == "" || *nome == "" {
		return errors.New("org e nome são obrigatórios")
	}
	if err := util.ValidateEmail(*email); err != nil {
		return err
	}

	organizacao, err := orgs.Resolve(ctx, *orgSlug)
	if err != nil {
		return fmt.Errorf("organização %q: %w", *orgSlug, err)
	}

	user, err := queries.InsertUsuario(ctx, repo.InsertUsuarioParams{
		ID:        uuid.New(),
		OrgID:     organizacao.ID,
		Nome:      strings.TrimSpace(*nome),
		Sobrenome: strings.TrimSpace(*sobrenome),
		Email:     strings.ToLower(strings.TrimSpace(*email)),
		Papeis:    []string{repo.PapelAdmin},
		Ativo:     true,
	})
	if err != nil {
		return err
	}

	fmt.Printf("administrador criado: %s (%s)\n", user.Email, user.ID)
	fmt.Println("o primeiro acesso acontece via magic link no endereço acima")
	return nil
}

func runList(ctx context.Context, service *org.Service) error {
	orgs, err := service.List(ctx)
	if err != nil {
		return err
	}

	if len(orgs) == 0 {
		fmt.Println("nenhuma organização cadastrada")
		return nil
	}

	encoded, _ := json.MarshalIndent(orgs, "", "  ")
	fmt.Println(string(encoded))
	return nil
}
