// Package linkparse extracts credential parameters from deep-link URIs.
package linkparse

import (
	"net/url"
	"strings"
)

const (
	KeyAccessToken      = "access_token"
	KeyRefreshToken     = "refresh_token"
	KeyError            = "error"
	KeyErrorDescription = "error_description"
)

// Tokens holds the credentials carried by a link. Missing values are "".
type Tokens struct {
	AccessToken  string
	RefreshToken string
}

// Empty reports whether the link carried neither token.
func (t Tokens) Empty() bool {
	return t.AccessToken == "" && t.RefreshToken == ""
}

// Parse returns the tokens found in the query string or fragment of raw.
// Malformed input yields the zero Tokens.
func Parse(raw string) Tokens {
	params := Params(raw)
	return Tokens{
		AccessToken:  params[KeyAccessToken],
		RefreshToken: params[KeyRefreshToken],
	}
}

// Params returns every parameter of raw with its first value.
// Query parameters shadow fragment parameters of the same name.
// Any parse failure yields an empty map.
func Params(raw string) map[string]string {
	out := map[string]string{}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return out
	}
	u, err := url.Parse(raw)
	if err != nil {
		return map[string]string{}
	}

	query, err := url.ParseQuery(u.RawQuery)
	if err != nil {
		return map[string]string{}
	}
	fragment, err := url.ParseQuery(fragmentQuery(u.EscapedFragment()))
	if err != nil {
		return map[string]string{}
	}

	for _, vals := range []url.Values{query, fragment} {
		for k, v := range vals {
			if _, seen := out[k]; seen || len(v) == 0 {
				continue
			}
			out[k] = v[0]
		}
	}
	return out
}

// fragmentQuery strips a hash-router path such as "/callback?" in front of the parameters.
func fragmentQuery(fragment string) string {
	if i := strings.IndexByte(fragment, '?'); i >= 0 {
		return fragment[i+1:]
	}
	if !strings.Contains(fragment, "=") {
		return ""
	}
	return fragment
}
