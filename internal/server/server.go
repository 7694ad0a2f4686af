package server

import (
	"context"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/cyphera/agent-delegation/internal/chain"
	"github.com/cyphera/agent-delegation/internal/constants"
	"github.com/cyphera/agent-delegation/internal/db"
	"github.com/cyphera/agent-delegation/internal/enforcer"
	"github.com/cyphera/agent-delegation/internal/handlers"
	"github.com/cyphera/agent-delegation/internal/logger"
	"github.com/cyphera/agent-delegation/internal/pkg/agentkey"
	"github.com/cyphera/agent-delegation/internal/services"
	"github.com/cyphera/agent-delegation/internal/signer"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Handler definitions
var (
	delegationHandler *handlers.DelegationHandler
	allowanceHandler  *handlers.AllowanceHandler
	diagnosisHandler  *handlers.DiagnosisHandler

	chainRegistry *chain.Registry
	store         *db.Store
)

// InitializeHandlers wires the service graph from environment configuration.
// Chain clients and the agent signer are constructed once here and injected;
// nothing is lazily created per request.
func InitializeHandlers() {
	// Get database connection string from environment
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		logger.Fatal("DATABASE_URL environment variable is required")
	}

	// Create a connection pool using pgxpool
	poolConfig, err := pgxpool.ParseConfig(dbURL)
	if err != nil {
		logger.Fatal("Unable to parse database connection string", zap.Error(err))
	}

	// Configure the connection pool
	poolConfig.MaxConns = 20
	poolConfig.MinConns = 5
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = time.Minute * 30

	// Create the connection pool
	connPool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		logger.Fatal("Unable to create connection pool", zap.Error(err))
	}

	store = db.NewStore(connPool, logger.Log)

	rpcAPIKey := os.Getenv("RPC_API_KEY")
	if rpcAPIKey == "" {
		logger.Fatal("RPC_API_KEY environment variable is required")
	}

	chainRegistry = chain.NewRegistry(rpcAPIKey, logger.Log)
	if err := chainRegistry.Initialize(context.Background(), defaultNetworks()); err != nil {
		logger.Fatal("Unable to initialize chain clients", zap.Error(err))
	}

	delegationManagerAddr := os.Getenv("DELEGATION_MANAGER_ADDRESS")
	if delegationManagerAddr == "" {
		logger.Fatal("DELEGATION_MANAGER_ADDRESS environment variable is required")
	}
	if !handlers.IsAddressValid(delegationManagerAddr) {
		logger.Fatal("DELEGATION_MANAGER_ADDRESS is not a valid address")
	}

	agentSigner := buildAgentSigner()

	enforcers := enforcer.DefaultRegistry()

	chainBuilder := services.NewChainBuilderService(logger.Log)
	allowances := services.NewAllowanceService(logger.Log, enforcers, chainRegistry, 10*time.Second)
	diagnoses := services.NewDiagnosisService(logger.Log)

	commonServices := handlers.NewCommonServices(
		store,
		chainBuilder,
		allowances,
		diagnoses,
		agentSigner,
		common.HexToAddress(delegationManagerAddr),
	)

	delegationHandler = handlers.NewDelegationHandler(commonServices)
	allowanceHandler = handlers.NewAllowanceHandler(commonServices)
	diagnosisHandler = handlers.NewDiagnosisHandler(commonServices)
}

// buildAgentSigner selects the signing backend: a remote custody service when
// configured, otherwise the in-process session key.
func buildAgentSigner() signer.Signer {
	if custodyURL := os.Getenv("KEY_CUSTODY_URL"); custodyURL != "" {
		custodyAddr := os.Getenv("KEY_CUSTODY_SIGNER_ADDRESS")
		if !handlers.IsAddressValid(custodyAddr) {
			logger.Fatal("KEY_CUSTODY_SIGNER_ADDRESS is required and must be a valid address when KEY_CUSTODY_URL is set")
		}
		client := agentkey.NewClient(custodyURL, os.Getenv("KEY_CUSTODY_API_KEY"))
		logger.Info("Using remote custody signer",
			zap.String("address", custodyAddr),
		)
		return client.SignerFor(common.HexToAddress(custodyAddr))
	}

	sessionKey := os.Getenv("AGENT_SESSION_KEY")
	if sessionKey == "" {
		logger.Fatal("AGENT_SESSION_KEY environment variable is required when no custody service is configured")
	}
	local, err := signer.FromHex(sessionKey)
	if err != nil {
		logger.Fatal("Unable to parse agent session key", zap.Error(err))
	}
	logger.Info("Using local session signer",
		zap.String("address", local.Address().Hex()),
	)
	return local
}

func defaultNetworks() []chain.Network {
	return []chain.Network{
		{ChainID: constants.EthereumMainnetChainID, Name: "Ethereum", RPCSubdomain: "mainnet"},
		{ChainID: constants.BaseChainID, Name: "Base", RPCSubdomain: "base-mainnet"},
		{ChainID: constants.SepoliaChainID, Name: "Sepolia", RPCSubdomain: "sepolia"},
	}
}

// SetupRouter builds the gin engine with middleware and routes.
func SetupRouter() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger())

	corsConfig := cors.DefaultConfig()
	allowedOrigins := os.Getenv("CORS_ALLOWED_ORIGINS")
	if allowedOrigins != "" {
		corsConfig.AllowOrigins = strings.Split(allowedOrigins, ",")
	} else {
		corsConfig.AllowOrigins = []string{"http://localhost:3000"}
	}
	corsConfig.AllowHeaders = append(corsConfig.AllowHeaders, "Authorization", "x-api-key")
	router.Use(cors.New(corsConfig))

	router.GET("/health", handlers.HealthCheck)

	v1 := router.Group("/api/v1")
	{
		v1.POST("/sub-delegations", delegationHandler.CreateSubDelegation)
		v1.GET("/sub-delegations/:owner", delegationHandler.ListSubDelegations)
		v1.GET("/sub-delegations/:owner/:schedule", delegationHandler.GetSubDelegation)
		v1.POST("/allowances/query", allowanceHandler.QueryAllowances)
		v1.POST("/diagnoses", diagnosisHandler.Diagnose)
	}

	return router
}

// requestLogger logs each request with method, path, status and latency.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}

// Start runs the HTTP server on the configured port.
func Start() error {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	router := SetupRouter()

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Starting server", zap.String("port", port))
	return srv.ListenAndServe()
}

// Shutdown releases shared clients.
func Shutdown() {
	if chainRegistry != nil {
		chainRegistry.Close()
	}
}
