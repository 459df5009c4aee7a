package auth

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
)

// Default header names.
const (
	DefaultAuthHeader  = "Authorization"
	DefaultTokenHeader = "Authentication-Token"
)

const (
	basicPrefix  = "Basic "
	bearerPrefix = "Bearer "
)

// ExtractorConfig names the headers credentials are read from.
// An empty name disables that header.
type ExtractorConfig struct {
	AuthHeader  string
	TokenHeader string
}

// DefaultExtractorConfig returns the stock header names.
func DefaultExtractorConfig() ExtractorConfig {
	return ExtractorConfig{
		AuthHeader:  DefaultAuthHeader,
		TokenHeader: DefaultTokenHeader,
	}
}

// Extractor pulls credentials out of request headers.
type Extractor struct {
	config ExtractorConfig
}

// NewExtractor creates an extractor for the given header names.
func NewExtractor(cfg ExtractorConfig) *Extractor {
	return &Extractor{config: cfg}
}

// Extract reads the configured headers. It fails with ErrMissingCredentials
// when none of them is present.
//
// A Basic authorization value that does not decode is ignored: the subject
// and secret stay empty and extraction still succeeds. A Bearer
// authorization value fills Token when the token header is absent.
func (e *Extractor) Extract(r *http.Request) (Credentials, error) {
	var authHeader, token string
	if e.config.AuthHeader != "" {
		authHeader = r.Header.Get(e.config.AuthHeader)
	}
	if e.config.TokenHeader != "" {
		token = r.Header.Get(e.config.TokenHeader)
	}

	if authHeader == "" && token == "" {
		return Credentials{}, fmt.Errorf("%w: headers not found: %q, %q",
			ErrMissingCredentials, e.config.AuthHeader, e.config.TokenHeader)
	}

	creds := Credentials{Token: token}
	if authHeader == "" {
		return creds, nil
	}

	if strings.HasPrefix(authHeader, bearerPrefix) {
		if creds.Token == "" {
			creds.Token = strings.TrimSpace(strings.TrimPrefix(authHeader, bearerPrefix))
		}
		return creds, nil
	}

	creds.SubjectID, creds.Secret = decodeBasic(authHeader)
	return creds, nil
}

// decodeBasic decodes a Basic authorization value into its user and
// password parts. Malformed input yields empty strings.
func decodeBasic(header string) (user, password string) {
	encoded := strings.Replace(header, basicPrefix, "", 1)
	decoded, err := decodeBase64(encoded)
	if err != nil {
		return "", ""
	}
	user, password, _ = strings.Cut(string(decoded), ":")
	return user, password
}

// decodeBase64 accepts both padded and unpadded standard encoding.
func decodeBase64(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if b, err := base64.StdEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	return base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
}
