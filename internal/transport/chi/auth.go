package chi

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// exemptPaths bypass authentication.
var exemptPaths = map[string]struct{}{
	"/health":  {},
	"/metrics": {},
}

// authSchemes are the accepted Authorization schemes. ApiKey matches the
// header form legacy engine clients already send.
var authSchemes = []string{"Bearer ", "ApiKey "}

// APIKeyMiddleware rejects requests without a configured API key. Keys are
// accepted with the Bearer or ApiKey scheme. An empty key list disables the
// check.
func APIKeyMiddleware(apiKeys []string) func(http.Handler) http.Handler {
	keys := make([][]byte, 0, len(apiKeys))
	for _, k := range apiKeys {
		if k != "" {
			keys = append(keys, []byte(k))
		}
	}

	return func(next http.Handler) http.Handler {
		if len(keys) == 0 {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := exemptPaths[r.URL.Path]; ok {
				next.ServeHTTP(w, r)
				return
			}

			auth := r.Header.Get("Authorization")
			if auth == "" {
				writeError(w, http.StatusUnauthorized, CodeUnauthorized, "missing authorization header")
				return
			}

			token, ok := credentials(auth)
			if !ok {
				writeError(w, http.StatusUnauthorized, CodeUnauthorized,
					"authorization header must use Bearer or ApiKey scheme")
				return
			}
			if !knownKey(keys, token) {
				writeError(w, http.StatusUnauthorized, CodeUnauthorized, "invalid api key")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func credentials(header string) (string, bool) {
	for _, scheme := range authSchemes {
		if strings.HasPrefix(header, scheme) {
			return header[len(scheme):], true
		}
	}
	return "", false
}

func knownKey(keys [][]byte, token string) bool {
	found := false
	for _, k := range keys {
		if subtle.ConstantTimeCompare(k, []byte(token)) == 1 {
			found = true
		}
	}
	return found
}
