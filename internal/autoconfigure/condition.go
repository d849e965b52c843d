package autoconfigure

import (
	"fmt"
	"strings"

	"github.com/druidgo/druid-boot/internal/pool"
)

// Environment is the configuration a Condition reads. *viper.Viper
// satisfies it.
type Environment interface {
	IsSet(key string) bool
	GetString(key string) string
}

// Outcome is the result of evaluating a Condition. Message explains the
// decision and is logged when the auto-configuration stays inactive.
type Outcome struct {
	Match   bool
	Message string
}

// Condition is a predicate over the environment, evaluated once at startup.
type Condition func(env Environment) Outcome

// OnClass matches when the pool type name is known to this process.
func OnClass(typeName string) Condition {
	return OnClassFunc(typeName, pool.Registered)
}

// OnClassFunc is OnClass with an explicit lookup.
func OnClassFunc(typeName string, registered func(string) bool) Condition {
	return func(Environment) Outcome {
		if registered(typeName) {
			return Outcome{Match: true, Message: fmt.Sprintf("found type %s", typeName)}
		}
		return Outcome{Message: fmt.Sprintf("did not find type %s", typeName)}
	}
}

// OnProperty matches when key is set to havingValue (case-insensitive), or
// when key is absent and matchIfMissing is true.
func OnProperty(key, havingValue string, matchIfMissing bool) Condition {
	return func(env Environment) Outcome {
		if env == nil || !env.IsSet(key) {
			if matchIfMissing {
				return Outcome{Match: true, Message: fmt.Sprintf("property %s is missing, match if missing", key)}
			}
			return Outcome{Message: fmt.Sprintf("did not find property %s", key)}
		}
		value := env.GetString(key)
		if strings.EqualFold(value, havingValue) {
			return Outcome{Match: true, Message: fmt.Sprintf("property %s has expected value %s", key, havingValue)}
		}
		return Outcome{Message: fmt.Sprintf("found different value %q in property %s", value, key)}
	}
}

// AllOf matches when every condition matches. Evaluation stops at the first
// condition that does not, and its outcome is returned.
func AllOf(conditions ...Condition) Condition {
	return func(env Environment) Outcome {
		messages := make([]string, 0, len(conditions))
		for _, c := range conditions {
			o := c(env)
			if !o.Match {
				return o
			}
			messages = append(messages, o.Message)
		}
		return Outcome{Match: true, Message: strings.Join(messages, "; ")}
	}
}

// ActivationCondition gates the whole auto-configuration: the druid pool
// type must be known and spring.datasource.type must be absent or name it.
func ActivationCondition() Condition {
	return AllOf(
		OnClass(pool.TypeName),
		OnProperty(TypeProperty, pool.TypeName, true),
	)
}
