//go:build integration

package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/replypilot/replypilot/internal/account"
	"github.com/replypilot/replypilot/internal/api"
	"github.com/replypilot/replypilot/internal/audit"
	"github.com/replypilot/replypilot/internal/auth"
	"github.com/replypilot/replypilot/internal/billing"
	"github.com/replypilot/replypilot/internal/config"
	"github.com/replypilot/replypilot/internal/database"
	"github.com/replypilot/replypilot/internal/generation"
	mw "github.com/replypilot/replypilot/internal/middleware"
	"github.com/replypilot/replypilot/internal/plans"
	iredis "github.com/replypilot/replypilot/internal/redis"
	"github.com/replypilot/replypilot/internal/usage"
	"github.com/replypilot/replypilot/internal/users"
)

const webhookSecret = "whsec_integration"

type TestEnv struct {
	Pool        *pgxpool.Pool
	RedisClient *redis.Client
	Server      *httptest.Server
	UserSvc     *users.Service
	Ledger      *usage.Ledger
	AuditRepo   *audit.Repository
	OpenAI      *FakeOpenAI
}

var testEnv *TestEnv

// FakeOpenAI answers chat completions with a canned reply. Setting Status
// to a non-200 code makes every call fail with that code.
type FakeOpenAI struct {
	Server *httptest.Server
	Status atomic.Int32
	Calls  atomic.Int32
}

func newFakeOpenAI() *FakeOpenAI {
	f := &FakeOpenAI{}
	f.Status.Store(http.StatusOK)
	f.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.Calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		if code := int(f.Status.Load()); code != http.StatusOK {
			w.WriteHeader(code)
			_, _ = io.WriteString(w, `{"error":{"message":"upstream failure","type":"server_error"}}`)
			return
		}
		_, _ = io.WriteString(w, `{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"model": "gpt-4",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "Thank you for the kind words!"}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 60, "completion_tokens": 15, "total_tokens": 75}
		}`)
	}))
	return f
}

func startEnv(ctx context.Context) (*TestEnv, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	// Start PostgreSQL container
	pgContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "test",
				"POSTGRES_PASSWORD": "test",
				"POSTGRES_DB":       "replypilot_test",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		return nil, cleanup, fmt.Errorf("starting postgres container: %w", err)
	}
	closers = append(closers, func() { _ = pgContainer.Terminate(ctx) })

	pgHost, _ := pgContainer.Host(ctx)
	pgPort, _ := pgContainer.MappedPort(ctx, "5432")

	// Start Redis container
	redisContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		return nil, cleanup, fmt.Errorf("starting redis container: %w", err)
	}
	closers = append(closers, func() { _ = redisContainer.Terminate(ctx) })

	redisHost, _ := redisContainer.Host(ctx)
	redisPort, _ := redisContainer.MappedPort(ctx, "6379")

	dbCfg := config.DBConfig{
		Host:     pgHost,
		Port:     pgPort.Int(),
		User:     "test",
		Password: "test",
		Name:     "replypilot_test",
		SSLMode:  "disable",
		MaxConns: 20,
	}
	if err := database.RunMigrations(dbCfg.DSN()); err != nil {
		return nil, cleanup, err
	}

	pool, err := database.NewPostgresPool(ctx, dbCfg)
	if err != nil {
		return nil, cleanup, err
	}
	closers = append(closers, pool.Close)

	redisClient := redis.NewClient(&redis.Options{
		Addr: fmt.Sprintf("%s:%s", redisHost, redisPort.Port()),
	})
	closers = append(closers, func() { _ = redisClient.Close() })

	fake := newFakeOpenAI()
	closers = append(closers, fake.Server.Close)

	// Setup services
	registry := plans.Default(config.StripeConfig{
		BasicPriceID:      "price_basic",
		PremiumPriceID:    "price_premium",
		EnterprisePriceID: "price_enterprise",
	})

	auditRepo := audit.NewRepository(pool)
	recorder := audit.NewRecorder(nil, auditRepo)

	userSvc := users.NewService(users.NewRepository(pool), registry.FallbackID())
	jwtManager := auth.NewJWTManager("integration-secret-32-chars-long!!")
	authSvc := auth.NewService(jwtManager, userSvc, redisClient)
	authHandler := auth.NewHandler(authSvc, userSvc, recorder)

	ledger := usage.NewLedger(usage.NewRepository(pool))
	provider := generation.NewOpenAIProvider(config.OpenAIConfig{
		APIKey:  "sk-test",
		BaseURL: fake.Server.URL + "/v1",
		Timeout: 5 * time.Second,
	})
	genSvc := generation.NewService(provider, ledger, registry, generation.Options{
		DefaultModel: "gpt-4",
		MaxTokens:    250,
		Temperature:  0.7,
	})
	genHandler := generation.NewHandler(genSvc, registry)

	subSync := billing.NewSync(webhookSecret, registry, userSvc,
		billing.WithActivity(recorder),
		billing.WithReplayGuard(redisClient),
	)
	billingHandler := billing.NewHandler(subSync, nil, registry, userSvc, recorder, "http://localhost:3000/dashboard")

	accountHandler := account.NewHandler(registry, ledger)
	auditHandler := audit.NewHandler(auditRepo)

	router := api.NewRouter(api.RouterConfig{
		RateLimiter: mw.NewRateLimiter(redisClient, "api", 10000, time.Minute).Middleware,
		HealthChecks: map[string]api.HealthCheck{
			"database": func(ctx context.Context) error { return database.HealthCheck(ctx, pool) },
			"redis":    func(ctx context.Context) error { return iredis.HealthCheck(ctx, redisClient) },
		},
	}, api.HandlerSet{
		Register: authHandler.Register,
		Login:    authHandler.Login,
		Me:       authHandler.Me,
		Logout:   authHandler.Logout,

		GenerateResponse: genHandler.GenerateResponse,
		Usage:            genHandler.Usage,
		Models:           genHandler.Models,

		CheckoutSession: billingHandler.CheckoutSession,
		PortalSession:   billingHandler.PortalSession,
		Webhook:         billingHandler.Webhook,
		Plans:           billingHandler.Plans,

		Profile:      accountHandler.Profile,
		Subscription: accountHandler.Subscription,
		Activity:     auditHandler.ListActivity,

		AuthMiddleware:         auth.Middleware(authSvc),
		OptionalAuthMiddleware: auth.OptionalMiddleware(authSvc),
	})

	server := httptest.NewServer(router)
	closers = append(closers, server.Close)

	return &TestEnv{
		Pool:        pool,
		RedisClient: redisClient,
		Server:      server,
		UserSvc:     userSvc,
		Ledger:      ledger,
		AuditRepo:   auditRepo,
		OpenAI:      fake,
	}, cleanup, nil
}

func SetupTestEnv(t *testing.T) *TestEnv {
	t.Helper()
	if testEnv == nil {
		t.Skip("integration environment unavailable")
	}
	testEnv.OpenAI.Status.Store(http.StatusOK)
	return testEnv
}

// Helper functions

func UniqueEmail(prefix string) string {
	return fmt.Sprintf("%s-%s@example.com", prefix, uuid.NewString()[:8])
}

// RegisterUser creates an account and returns its id and bearer token.
func RegisterUser(t *testing.T, env *TestEnv, email, password string) (uuid.UUID, string) {
	t.Helper()
	body := map[string]string{"email": email, "password": password, "name": "Test Owner"}
	resp := DoRequest(t, env, http.MethodPost, "/api/auth/register", body, "")
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register failed: status %d", resp.StatusCode)
	}
	result := ParseResponse(t, resp)
	user := result["user"].(map[string]any)
	id, err := uuid.Parse(user["id"].(string))
	if err != nil {
		t.Fatalf("parsing user id: %v", err)
	}
	return id, result["token"].(string)
}

func LoginUser(t *testing.T, env *TestEnv, email, password string) string {
	t.Helper()
	body := map[string]string{"email": email, "password": password}
	resp := DoRequest(t, env, http.MethodPost, "/api/auth/login", body, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login failed: status %d", resp.StatusCode)
	}
	return ParseResponse(t, resp)["token"].(string)
}

func DoRequest(t *testing.T, env *TestEnv, method, path string, body any, token string) *http.Response {
	t.Helper()
	var bodyReader io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		bodyReader = bytes.NewReader(b)
	}
	return doRaw(t, env, method, path, bodyReader, token, nil)
}

func doRaw(t *testing.T, env *TestEnv, method, path string, body io.Reader, token string, headers map[string]string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, env.Server.URL+path, body)
	if err != nil {
		t.Fatalf("creating request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("doing request: %v", err)
	}
	return resp
}

func ParseResponse(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var result map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("parsing response: %v", err)
	}
	return result
}
