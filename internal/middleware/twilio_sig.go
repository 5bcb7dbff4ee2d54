package middleware

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// ParamsKey is the echo context key holding the parsed webhook form.
const ParamsKey = "twilioParams"

// TwilioAuthConfig configures TwilioAuth.
type TwilioAuthConfig struct {
	// AuthToken returns the account auth token used as HMAC key.
	AuthToken func() string
	// PublicBaseURL is the URL Twilio was given for this server. When empty
	// the signed URL is rebuilt as https://<Host>.
	PublicBaseURL string
	// Validate turns signature checking on. Disabled, the form is still
	// parsed and stored under ParamsKey.
	Validate bool
	Logger   *zap.Logger
}

// validateTwilioSignature verifies Twilio request signatures.
func validateTwilioSignature(authToken, signature, fullURL string, params map[string]string) bool {
	if authToken == "" || signature == "" {
		return false
	}

	data := fullURL
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		data += k + params[k]
	}

	mac := hmac.New(sha1.New, []byte(authToken))
	mac.Write([]byte(data))
	expectedSignature := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(signature), []byte(expectedSignature))
}

// signedURL rebuilds the URL Twilio signed for r.
func signedURL(base string, r *http.Request) string {
	if base == "" {
		base = fmt.Sprintf("https://%s", r.Host)
	}
	u := strings.TrimRight(base, "/") + r.URL.Path
	if r.URL.RawQuery != "" {
		u += "?" + r.URL.RawQuery
	}
	return u
}

// TwilioAuth validates Twilio webhook POSTs under /twilio/ using the
// signature header and exposes the form values under ParamsKey.
func TwilioAuth(cfg TwilioAuthConfig) echo.MiddlewareFunc {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if req.Method != http.MethodPost || !strings.HasPrefix(req.URL.Path, "/twilio/") {
				return next(c)
			}

			bodyBytes, err := io.ReadAll(req.Body)
			if err != nil {
				return c.String(http.StatusBadRequest, "Failed to read request body")
			}

			formData, err := url.ParseQuery(string(bodyBytes))
			if err != nil {
				return c.String(http.StatusBadRequest, "Failed to parse form data")
			}

			params := make(map[string]string)
			for key, values := range formData {
				if len(values) > 0 {
					params[key] = values[0]
				}
			}

			if cfg.Validate {
				authToken := ""
				if cfg.AuthToken != nil {
					authToken = cfg.AuthToken()
				}
				if authToken == "" {
					return c.String(http.StatusInternalServerError, "TWILIO_AUTH_TOKEN not configured")
				}
				signature := req.Header.Get("X-Twilio-Signature")
				requestURL := signedURL(cfg.PublicBaseURL, req)
				if !validateTwilioSignature(authToken, signature, requestURL, params) {
					log.Warn("rejected webhook with invalid signature", zap.String("url", requestURL))
					return c.String(http.StatusUnauthorized, "Invalid Twilio signature")
				}
			}

			c.Set(ParamsKey, params)
			return next(c)
		}
	}
}

// Params returns the webhook form parsed by TwilioAuth.
func Params(c echo.Context) (map[string]string, bool) {
	params, ok := c.Get(ParamsKey).(map[string]string)
	return params, ok
}
