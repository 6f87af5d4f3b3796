package server

// ValidationServiceConfig lists the markets the gateway will serve.
// An empty list allows every symbol.
type ValidationServiceConfig struct {
	AllowedSymbols []string
}

type ValidationService struct {
	config *ValidationServiceConfig
}

func NewValidationService(config *ValidationServiceConfig) *ValidationService {
	return &ValidationService{
		config: config,
	}
}

func (s *ValidationService) IsAllowedSymbol(symbol string) bool {
	if len(s.config.AllowedSymbols) == 0 {
		return true
	}
	for _, allowed := range s.config.AllowedSymbols {
		if allowed == symbol {
			return true
		}
	}
	return false
}
