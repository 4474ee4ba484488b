package webapp

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

//go:embed securityFilterRules.yaml
var defaultSecurityRules []byte

// ErrInvalidSecurityConfig is returned for a rules file that does not match
// the rules schema.
var ErrInvalidSecurityConfig = errors.New("invalid security filter configuration")

// SecurityConfig is the parsed security rules file.
type SecurityConfig struct {
	Realm      string `json:"realm"`
	PathFilter struct {
		Rules []SecurityRule `json:"rules"`
	} `json:"pathFilter"`
}

// SecurityRule grants or restricts access to the paths matching Path. An
// empty Methods list matches every method.
type SecurityRule struct {
	Path          string   `json:"path"`
	Methods       []string `json:"methods,omitempty"`
	Authenticated bool     `json:"authenticated"`
}

func (r SecurityRule) matches(req *http.Request) bool {
	if len(r.Methods) > 0 && !slices.Contains(r.Methods, req.Method) && !slices.Contains(r.Methods, "*") {
		return false
	}
	return matchRule(r.Path, req.URL.Path)
}

// ParseSecurityConfig parses a YAML or JSON rules document and validates it
// against the rules schema.
func ParseSecurityConfig(data []byte) (*SecurityConfig, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSecurityConfig, err)
	}
	normalized, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSecurityConfig, err)
	}

	schema, err := compileSchema("security-rules.schema.json")
	if err != nil {
		return nil, err
	}
	if err := validateJSON(schema, normalized); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSecurityConfig, err)
	}

	var cfg SecurityConfig
	if err := json.Unmarshal(normalized, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSecurityConfig, err)
	}
	if cfg.Realm == "" {
		cfg.Realm = "showcase"
	}
	return &cfg, nil
}

// SecurityFilter rejects unauthenticated requests to paths whose first
// matching rule requires authentication.
type SecurityFilter struct {
	config *SecurityConfig
}

// Init loads the rules from the configFile init parameter, or the built-in
// rules when it is empty.
func (f *SecurityFilter) Init(params map[string]string) error {
	data := defaultSecurityRules
	if path := params["configFile"]; path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read security rules: %w", err)
		}
		data = b
	}
	cfg, err := ParseSecurityConfig(data)
	if err != nil {
		return err
	}
	f.config = cfg
	return nil
}

// Rules returns the loaded rules.
func (f *SecurityFilter) Rules() []SecurityRule {
	if f.config == nil {
		return nil
	}
	return f.config.PathFilter.Rules
}

// Wrap implements Filter.
func (f *SecurityFilter) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, rule := range f.Rules() {
			if !rule.matches(r) {
				continue
			}
			if _, ok := UserFromContext(r.Context()); rule.Authenticated && !ok {
				w.Header().Set("WWW-Authenticate", fmt.Sprintf("Basic realm=%q", f.config.Realm))
				writeError(w, http.StatusUnauthorized, "authentication required")
				return
			}
			break
		}
		next.ServeHTTP(w, r)
	})
}
