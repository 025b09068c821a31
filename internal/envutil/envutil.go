package envutil

import (
	"os"
	"strings"
)

// EnvVar selects the deployment environment.
const EnvVar = "AUTH_ENV"

// IsProduction reports whether AUTH_ENV names a production deployment.
// Cookies default to Secure only in production so local HTTP testing works.
func IsProduction() bool {
	env := strings.ToLower(os.Getenv(EnvVar))
	return env == "production" || env == "prod"
}
