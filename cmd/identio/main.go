package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/identio/identio-server-sub001/internal/authentication"
	"github.com/identio/identio-server-sub001/internal/authentication/ldap"
	"github.com/identio/identio-server-sub001/internal/authentication/local"
	"github.com/identio/identio-server-sub001/internal/authentication/samlproxy"
	"github.com/identio/identio-server-sub001/internal/authentication/x509"
	"github.com/identio/identio-server-sub001/internal/authorization"
	"github.com/identio/identio-server-sub001/internal/authpolicy"
	"github.com/identio/identio-server-sub001/internal/config"
	"github.com/identio/identio-server-sub001/internal/logging"
	"github.com/identio/identio-server-sub001/internal/metrics"
	"github.com/identio/identio-server-sub001/internal/model"
	"github.com/identio/identio-server-sub001/internal/oauth"
	"github.com/identio/identio-server-sub001/internal/orchestration"
	"github.com/identio/identio-server-sub001/internal/saml"
	"github.com/identio/identio-server-sub001/internal/secure"
	"github.com/identio/identio-server-sub001/internal/server"
	"github.com/identio/identio-server-sub001/internal/storage"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	configPath := flag.String("config", "configs/identio.yaml", "Path to configuration file")
	showVersion := flag.Bool("version", false, "Show version information")
	validateOnly := flag.Bool("validate", false, "Validate configuration and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("Ident.io Server %s (built %s)\n", version, buildTime)
		os.Exit(0)
	}

	loader := config.NewLoader()
	cfg, err := loader.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if *validateOnly {
		fmt.Println("Configuration is valid")
		os.Exit(0)
	}

	logger, err := logging.New(cfg.Logging.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	logging.SetGlobal(logger)

	logging.Info("Starting Ident.io Server",
		zap.String("version", version),
		zap.String("config", *configPath),
		zap.Int("serviceProviders", len(cfg.SAML.ServiceProviders)),
		zap.Int("oauthClients", len(cfg.OAuth.Clients)),
	)

	srv, err := buildServer(cfg)
	if err != nil {
		logging.Error("Failed to initialize server", zap.Error(err))
		os.Exit(1)
	}

	if err := srv.Run(); err != nil {
		logging.Error("Server error", zap.Error(err))
		os.Exit(1)
	}
}

func buildServer(cfg *config.Config) (*server.Server, error) {
	baseURL := strings.TrimSuffix(cfg.Global.PublicFQDN, "/")

	policy, err := authpolicy.New(cfg)
	if err != nil {
		return nil, err
	}

	signingCert, signingKey, err := secure.LoadKeyPair(cfg.Global.SigningCertPath, cfg.Global.SigningKeyPath)
	if err != nil {
		return nil, err
	}

	dispatch := authentication.NewService()
	byType := make(map[string][]*model.AuthMethod)
	for _, method := range policy.Methods() {
		byType[method.Type] = append(byType[method.Type], method)
	}

	if methods := byType[model.AuthMethodTypeLocal]; len(methods) > 0 {
		if _, err := local.New(methods, dispatch); err != nil {
			return nil, err
		}
	}
	if methods := byType[model.AuthMethodTypeLDAP]; len(methods) > 0 {
		if _, err := ldap.New(methods, dispatch); err != nil {
			return nil, err
		}
	}
	if methods := byType[model.AuthMethodTypeX509]; len(methods) > 0 {
		if _, err := x509.New(methods, dispatch); err != nil {
			return nil, err
		}
	}

	var proxy orchestration.ProxyInitiator
	if methods := byType[model.AuthMethodTypeSamlProxy]; len(methods) > 0 {
		provider, err := samlproxy.New(methods, policy, baseURL, signingCert, signingKey, dispatch)
		if err != nil {
			return nil, err
		}
		proxy = provider
	}

	sessions := storage.NewSessionStore(cfg.Sessions.MaxEntries, cfg.Sessions.Duration)
	transactions := storage.NewTransactionStore(cfg.Transactions.MaxEntries, cfg.Transactions.Duration)
	collector := metrics.New(sessions, transactions)

	scopes, err := authorization.New(cfg, policy)
	if err != nil {
		return nil, err
	}
	samlService, err := saml.New(cfg, policy, baseURL, signingCert, signingKey)
	if err != nil {
		return nil, err
	}
	oauthService := oauth.New(cfg, scopes, signingKey)

	orch := orchestration.New(policy, dispatch, sessions, transactions,
		samlService, oauthService, proxy, collector)

	return server.New(cfg, orch, samlService, oauthService, collector), nil
}
