package shield

import (
	"crypto/subtle"
	"net/http"

	"golang.org/x/crypto/bcrypt"
)

// BasicAuth returns middleware that protects the admin API with a single
// credential pair. The password is configured as a bcrypt hash so the
// config file never holds a cleartext secret. An empty user disables the
// check entirely, which is the default for localhost-only deployments.
func BasicAuth(realm, user, passwordHash string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if user == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u, p, ok := r.BasicAuth()
			if !ok || !credentialsMatch(u, p, user, passwordHash) {
				w.Header().Set("WWW-Authenticate", `Basic realm="`+realm+`"`)
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func credentialsMatch(gotUser, gotPass, wantUser, passwordHash string) bool {
	// Compare both factors unconditionally so a wrong username costs the
	// same as a wrong password.
	userOK := subtle.ConstantTimeCompare([]byte(gotUser), []byte(wantUser)) == 1
	passOK := bcrypt.CompareHashAndPassword([]byte(passwordHash), []byte(gotPass)) == nil
	return userOK && passOK
}

// HashPassword produces the bcrypt hash the config file expects.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
