package redis

import (
	"errors"
	"strings"

	goredis "github.com/redis/go-redis/v9"

	"github.com/GriffinCanCode/poolguard/internal/infrastructure/resilience"
)

var unavailablePrefixes = []string{"LOADING", "READONLY", "MASTERDOWN", "CLUSTERDOWN", "TRYAGAIN", "BUSY"}

// Classify maps go-redis errors to resilience error kinds.
func Classify(err error) resilience.ErrorKind {
	switch {
	case err == nil, errors.Is(err, goredis.Nil):
		return resilience.KindUnknown
	case errors.Is(err, goredis.ErrPoolTimeout):
		return resilience.KindTimeout
	case errors.Is(err, goredis.ErrClosed):
		return resilience.KindUnavailable
	}

	var rerr goredis.Error
	if errors.As(err, &rerr) {
		msg := rerr.Error()
		for _, prefix := range unavailablePrefixes {
			if strings.HasPrefix(msg, prefix) {
				return resilience.KindUnavailable
			}
		}
		if strings.HasPrefix(msg, "WRONGTYPE") || strings.HasPrefix(msg, "ERR") {
			return resilience.KindValidation
		}
		return resilience.KindUnknown
	}
	return resilience.Classify(err)
}
