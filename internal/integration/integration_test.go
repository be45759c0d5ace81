package integration

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"

	"live-quiz-service/internal/domain"
	pgloader "live-quiz-service/internal/infra/postgres"
	pgmigrations "live-quiz-service/internal/infra/postgres/migrations"
	infraredis "live-quiz-service/internal/infra/redis"
	"live-quiz-service/internal/live"
)

func TestLiveSessionEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	seedQuestionSet(t, ctx, pgURL, "philosophy", sampleQuestions())

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	defer redisClient.Close()

	questionRepo := infraredis.NewQuestionRepository(redisClient, pgloader.NewQuestionLoader(pool), 5*time.Minute)
	docStore := infraredis.NewDocumentStore(redisClient, clockwork.NewRealClock(), 5*time.Minute)
	service := live.NewService(docStore, clockwork.NewRealClock())
	defer service.Shutdown()

	questions, err := questionRepo.GetQuestionSet(ctx, "philosophy")
	if err != nil {
		t.Fatalf("load questions: %v", err)
	}
	if len(questions) != 2 {
		t.Fatalf("expected 2 questions, got %d", len(questions))
	}

	session, err := service.Create(ctx, "host-1", questions, 30)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	events, cancel, err := service.Subscribe(ctx, session.ID)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()
	<-events // initial snapshot

	if err := service.Join(ctx, session.ID, "user_1_x", "Alice"); err != nil {
		t.Fatalf("join alice: %v", err)
	}
	if err := service.Join(ctx, session.ID, "user_2_y", "Bob"); err != nil {
		t.Fatalf("join bob: %v", err)
	}
	if err := service.Start(ctx, session.ID); err != nil {
		t.Fatalf("start: %v", err)
	}

	// Alice answers the first question correctly; the client-side score write
	// follows the submission.
	if err := service.SubmitAnswer(ctx, session.ID, "user_1_x", 0, 0); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := service.UpdateScore(ctx, session.ID, "user_1_x", 1); err != nil {
		t.Fatalf("score: %v", err)
	}

	completed, err := service.ForceNextQuestion(ctx, session.ID)
	if err != nil || completed {
		t.Fatalf("advance: completed=%v err=%v", completed, err)
	}
	completed, err = service.ForceNextQuestion(ctx, session.ID)
	if err != nil || !completed {
		t.Fatalf("final advance: completed=%v err=%v", completed, err)
	}

	final, err := service.Get(ctx, session.ID)
	if err != nil {
		t.Fatalf("get final: %v", err)
	}
	if final.Status != domain.StatusCompleted {
		t.Fatalf("status = %q, want completed", final.Status)
	}
	alice := final.Participants["user_1_x"]
	if alice == nil || alice.Score != 1 || len(alice.Answers) != 1 {
		t.Fatalf("unexpected alice state: %+v", alice)
	}
	bob := final.Participants["user_2_y"]
	if bob == nil || bob.Score != 0 {
		t.Fatalf("unexpected bob state: %+v", bob)
	}

	// The subscription saw every committed version up to the final one.
	var lastVersion int64
	drain := time.After(5 * time.Second)
	for lastVersion < final.Version {
		select {
		case ev := <-events:
			if ev.Err != nil {
				t.Fatalf("event error: %v", ev.Err)
			}
			if ev.Session.Version <= lastVersion {
				t.Fatalf("version regressed on the stream: %d after %d", ev.Session.Version, lastVersion)
			}
			lastVersion = ev.Session.Version
		case <-drain:
			t.Fatalf("stream never reached version %d (got %d)", final.Version, lastVersion)
		}
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "quiz", "POSTGRES_PASSWORD": "quizpass", "POSTGRES_DB": "quizdb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://quiz:quizpass@%s:%s/quizdb?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(ctx)
	}
}

func seedQuestionSet(t *testing.T, ctx context.Context, dsn, setID string, questions []domain.Question) {
	t.Helper()
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	data, err := json.Marshal(questions)
	if err != nil {
		t.Fatalf("marshal questions: %v", err)
	}
	if _, err := db.ExecContext(ctx, `INSERT INTO question_sets (id, data) VALUES (?, ?::jsonb) ON CONFLICT (id) DO UPDATE SET data=EXCLUDED.data`, setID, string(data)); err != nil {
		t.Fatalf("insert question set: %v", err)
	}
}

func sampleQuestions() []domain.Question {
	return []domain.Question{
		{ID: "phil-1", Prompt: "Who wrote the Republic?", Options: []string{"Plato", "Kant", "Hume"}, CorrectOptionIndex: 0},
		{ID: "phil-2", Prompt: "Cogito ergo sum?", Options: []string{"Hume", "Descartes"}, CorrectOptionIndex: 1},
	}
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
