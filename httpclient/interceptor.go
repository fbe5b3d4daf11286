package httpclient

import (
	"fmt"
	"net/http"
)

// RequestInterceptor runs against a fully built request just before it is
// sent. Interceptors run in the order registered. A non-nil error aborts the
// send.
type RequestInterceptor func(req *http.Request) error

func applyInterceptors(req *http.Request, interceptors []RequestInterceptor) error {
	for i, interceptor := range interceptors {
		if interceptor == nil {
			continue
		}
		if err := interceptor(req); err != nil {
			return fmt.Errorf("httpclient: before-request hook %d: %w", i, err)
		}
	}
	return nil
}

// BearerToken sets a static Bearer token.
func BearerToken(token string) RequestInterceptor {
	return func(req *http.Request) error {
		req.Header.Set("Authorization", "Bearer "+token)
		return nil
	}
}

// BearerTokenFunc sets a Bearer token obtained per request, for tokens that
// refresh.
func BearerTokenFunc(tokenFunc func(req *http.Request) (string, error)) RequestInterceptor {
	return func(req *http.Request) error {
		token, err := tokenFunc(req)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+token)
		return nil
	}
}

// APIKey sets an API key header.
func APIKey(headerName, apiKey string) RequestInterceptor {
	return func(req *http.Request) error {
		req.Header.Set(headerName, apiKey)
		return nil
	}
}

// UserAgent sets the User-Agent header.
func UserAgent(userAgent string) RequestInterceptor {
	return func(req *http.Request) error {
		req.Header.Set("User-Agent", userAgent)
		return nil
	}
}
