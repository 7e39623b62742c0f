package authpolicy

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/identio/identio-server-sub001/internal/config"
	"github.com/identio/identio-server-sub001/internal/logging"
	"github.com/identio/identio-server-sub001/internal/model"
)

// Resolution errors. Unknown level names or URNs are configuration-time
// failures; unknown or disallowed methods are retryable request-time
// conditions surfaced as reason codes by the orchestration layer.
var (
	ErrUnknownAuthLevel     = errors.New("unknown authentication level")
	ErrUnknownAuthMethod    = errors.New("unknown authentication method")
	ErrAuthMethodNotAllowed = errors.New("authentication method not allowed for this transaction")
)

// Service ranks the configured authentication levels, resolves methods and
// per-application policies, and evaluates authentication outcomes against a
// transaction's requirements. All lookup structures are built once at startup
// and never mutated afterwards, so concurrent reads need no synchronization.
type Service struct {
	levels       []*model.AuthLevel
	levelsByURN  map[string]*model.AuthLevel
	levelsByName map[string]*model.AuthLevel

	appLevels    map[string]*model.AppAuthLevel
	defaultLevel *model.AppAuthLevel

	methods       []*model.AuthMethod
	methodsByName map[string]*model.AuthMethod
}

// New builds the registry from configuration. Levels get their strength from
// configuration order: first configured is the weakest.
func New(cfg *config.Config) (*Service, error) {
	s := &Service{
		levelsByURN:   make(map[string]*model.AuthLevel),
		levelsByName:  make(map[string]*model.AuthLevel),
		appLevels:     make(map[string]*model.AppAuthLevel),
		methodsByName: make(map[string]*model.AuthMethod),
	}

	for i, lc := range cfg.AuthPolicy.AuthLevels {
		level := &model.AuthLevel{Name: lc.Name, URN: lc.URN, Strength: i}
		s.levels = append(s.levels, level)
		s.levelsByURN[level.URN] = level
		s.levelsByName[level.Name] = level
	}

	defaultLevel, err := s.resolveAppLevel(cfg.AuthPolicy.DefaultAuthLevel)
	if err != nil {
		return nil, err
	}
	s.defaultLevel = defaultLevel

	for _, alc := range cfg.AuthPolicy.ApplicationLevels {
		appLevel, err := s.resolveAppLevel(alc)
		if err != nil {
			return nil, err
		}
		s.appLevels[alc.AppName] = appLevel
	}

	if err := s.buildMethods(cfg); err != nil {
		return nil, err
	}

	logging.Info("Initialized auth policy registry",
		zap.Int("levels", len(s.levels)),
		zap.Int("methods", len(s.methods)),
		zap.Int("app_overrides", len(s.appLevels)),
	)

	return s, nil
}

func (s *Service) resolveAppLevel(alc config.AppAuthLevelConfig) (*model.AppAuthLevel, error) {
	level, ok := s.levelsByName[alc.AuthLevel]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAuthLevel, alc.AuthLevel)
	}
	comparison := model.Comparison(alc.Comparison)
	if comparison == "" {
		comparison = model.ComparisonMinimum
	}
	return &model.AppAuthLevel{
		AppName:    alc.AppName,
		AuthLevel:  level,
		Comparison: comparison,
	}, nil
}

func (s *Service) buildMethods(cfg *config.Config) error {
	type pendingStepUp struct {
		method string
		cfg    *config.StepUpConfig
	}
	var stepUps []pendingStepUp

	add := func(m *model.AuthMethod, su *config.StepUpConfig) error {
		if _, exists := s.methodsByName[m.Name]; exists {
			return fmt.Errorf("duplicate authentication method name %q", m.Name)
		}
		s.methods = append(s.methods, m)
		s.methodsByName[m.Name] = m
		if su != nil {
			stepUps = append(stepUps, pendingStepUp{method: m.Name, cfg: su})
		}
		return nil
	}

	for _, mc := range cfg.AuthMethods.Local {
		m, err := s.newMethod(mc.MethodConfig, model.AuthMethodTypeLocal, true)
		if err != nil {
			return err
		}
		m.Local = &model.LocalMethod{UserFilePath: mc.UserFilePath}
		if err := add(m, mc.StepUp); err != nil {
			return err
		}
	}

	for _, mc := range cfg.AuthMethods.LDAP {
		m, err := s.newMethod(mc.MethodConfig, model.AuthMethodTypeLDAP, true)
		if err != nil {
			return err
		}
		m.LDAP = &model.LDAPMethod{
			URLs:           mc.URLs,
			BaseDN:         mc.BaseDN,
			UserSearchBase: mc.UserSearchBase,
			UserFilter:     mc.UserFilter,
			BindDN:         mc.BindDN,
			BindPassword:   mc.BindPassword,
			TrustCertPath:  mc.TrustCertPath,
		}
		if err := add(m, mc.StepUp); err != nil {
			return err
		}
	}

	for _, mc := range cfg.AuthMethods.SamlProxy {
		m, err := s.newMethod(mc.MethodConfig, model.AuthMethodTypeSamlProxy, true)
		if err != nil {
			return err
		}
		for levelName := range mc.AuthMap {
			if _, ok := s.levelsByName[levelName]; !ok {
				return fmt.Errorf("method %s: auth_map %w: %s", m.Name, ErrUnknownAuthLevel, levelName)
			}
		}
		m.SamlProxy = &model.SamlProxyMethod{
			EntityID:    mc.EntityID,
			MetadataURL: mc.MetadataURL,
			SSOEndpoint: mc.SSOEndpoint,
			CertPath:    mc.CertPath,
			OutMap:      mc.AuthMap,
		}
		if err := add(m, mc.StepUp); err != nil {
			return err
		}
	}

	for _, mc := range cfg.AuthMethods.X509 {
		m, err := s.newMethod(mc.MethodConfig, model.AuthMethodTypeX509, false)
		if err != nil {
			return err
		}
		m.X509 = &model.X509Method{
			TrustCertPath: mc.TrustCertPath,
			UserIDAttr:    mc.UserIDAttr,
		}
		if err := add(m, mc.StepUp); err != nil {
			return err
		}
	}

	// Step-up targets are resolved in a second pass so that forward
	// references between methods work regardless of configuration order.
	for _, su := range stepUps {
		method := s.methodsByName[su.method]
		target, ok := s.methodsByName[su.cfg.AuthMethod]
		if !ok {
			return fmt.Errorf("method %s: step_up %w: %s", su.method, ErrUnknownAuthMethod, su.cfg.AuthMethod)
		}
		level, ok := s.levelsByName[su.cfg.AuthLevel]
		if !ok {
			return fmt.Errorf("method %s: step_up %w: %s", su.method, ErrUnknownAuthLevel, su.cfg.AuthLevel)
		}
		method.StepUp = &model.StepUpAuthMethod{AuthMethod: target, AuthLevel: level}
	}

	return nil
}

func (s *Service) newMethod(mc config.MethodConfig, methodType string, explicit bool) (*model.AuthMethod, error) {
	level, ok := s.levelsByName[mc.AuthLevel]
	if !ok {
		return nil, fmt.Errorf("method %s: %w: %s", mc.Name, ErrUnknownAuthLevel, mc.AuthLevel)
	}
	return &model.AuthMethod{
		Name:      mc.Name,
		Type:      methodType,
		AuthLevel: level,
		Explicit:  explicit,
	}, nil
}

// Levels returns the configured levels in increasing strength order.
func (s *Service) Levels() []*model.AuthLevel {
	return s.levels
}

// LevelByURN resolves an authentication context URN to a configured level.
func (s *Service) LevelByURN(urn string) (*model.AuthLevel, error) {
	level, ok := s.levelsByURN[urn]
	if !ok {
		logging.Error("Unknown authentication level requested", zap.String("urn", urn))
		return nil, fmt.Errorf("%w: %s", ErrUnknownAuthLevel, urn)
	}
	return level, nil
}

// LevelByName resolves a level name to a configured level.
func (s *Service) LevelByName(name string) (*model.AuthLevel, error) {
	level, ok := s.levelsByName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAuthLevel, name)
	}
	return level, nil
}

// Methods returns every configured method in configuration order.
func (s *Service) Methods() []*model.AuthMethod {
	return s.methods
}

// MethodByName resolves a method name.
func (s *Service) MethodByName(name string) (*model.AuthMethod, error) {
	method, ok := s.methodsByName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAuthMethod, name)
	}
	return method, nil
}
