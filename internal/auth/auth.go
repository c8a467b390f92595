package auth

import "crypto/subtle"

// Authenticator validates webhook credentials. A request passes only if the
// shared secret matches and, when the transport supplies a source address,
// that address is allow-listed. An unset secret fails closed.
type Authenticator struct {
	secret     string
	allowedIPs map[string]struct{}
}

func New(secret string, allowedIPs []string) *Authenticator {
	ips := make(map[string]struct{}, len(allowedIPs))
	for _, ip := range allowedIPs {
		ips[ip] = struct{}{}
	}
	return &Authenticator{secret: secret, allowedIPs: ips}
}

// Authenticate reports whether the request may trade. sourceIP is empty
// when the transport did not supply one; the allowlist check is skipped in
// that case. Callers get a single bool so responses cannot reveal which
// check failed.
func (a *Authenticator) Authenticate(password, sourceIP string) bool {
	if a.secret == "" {
		return false
	}

	ok := subtle.ConstantTimeCompare([]byte(a.secret), []byte(password)) == 1

	if sourceIP != "" {
		if _, allowed := a.allowedIPs[sourceIP]; !allowed {
			ok = false
		}
	}
	return ok
}
