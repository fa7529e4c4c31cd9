package config

// Environment is the run mode of the process. It decides how much internal
// error detail a response may carry.
type Environment string

const (
	Development Environment = "development"
	Staging     Environment = "staging"
	Testing     Environment = "testing"
	Production  Environment = "production"
)

func (e Environment) String() string {
	return string(e)
}

func (e Environment) IsProduction() bool {
	return e == Production
}

// ExposesErrors reports whether internal error detail may be returned to clients.
func (e Environment) ExposesErrors() bool {
	return e == Development
}

// ParseEnvironment normalises v into one of the known environments. Unknown
// values fall back to Development.
func ParseEnvironment(v string) Environment {
	switch Environment(v) {
	case Production:
		return Production
	case Staging:
		return Staging
	case Testing:
		return Testing
	default:
		return Development
	}
}
