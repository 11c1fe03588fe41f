package middleware

import "github.com/gin-gonic/gin"

// ContentSecurityPolicy keeps panel pages same-origin while allowing the
// websocket connection the realtime alert channel runs over.
const ContentSecurityPolicy = "default-src 'self'; connect-src 'self' ws: wss:"

// SecurityHeaders hardens API responses against clickjacking, MIME
// sniffing, and basic XSS. The Permissions-Policy deliberately leaves
// geolocation and camera open to same-origin pages: the panic flow reads
// GPS coordinates and records video from the panel.
func SecurityHeaders() gin.HandlerFunc {
	headers := map[string]string{
		"X-Frame-Options":           "DENY",
		"X-Content-Type-Options":    "nosniff",
		"X-XSS-Protection":          "1; mode=block",
		"Strict-Transport-Security": "max-age=31536000; includeSubDomains",
		"Content-Security-Policy":   ContentSecurityPolicy,
		"Referrer-Policy":           "no-referrer",
		"Permissions-Policy":        "geolocation=(self), microphone=(self), camera=(self)",
	}

	return func(c *gin.Context) {
		for name, value := range headers {
			c.Header(name, value)
		}
		c.Next()
	}
}
