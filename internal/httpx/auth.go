package httpx

import "strings"

// BearerToken extracts the credential of an "Authorization: Bearer" header.
// The scheme is matched case-insensitively.
func BearerToken(authz string) (string, bool) {
	scheme, tok, ok := strings.Cut(authz, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	tok = strings.TrimSpace(tok)
	return tok, tok != ""
}
