package middleware

import (
	"bytes"
	"io"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/huangang/dealflow/internal/services"
)

const auditBodyLimit = 2000

var auditedMethods = map[string]string{
	"POST":   "create",
	"PUT":    "update",
	"PATCH":  "update",
	"DELETE": "delete",
}

// AuditLog records write operations to system_logs. Upload bodies are never
// captured; JSON bodies are truncated and have contact details masked.
func AuditLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		method := c.Request.Method
		if _, ok := auditedMethods[method]; !ok {
			c.Next()
			return
		}

		var bodySnippet string
		if c.Request.Body != nil && strings.HasPrefix(c.ContentType(), "application/json") {
			bodyBytes, _ := io.ReadAll(c.Request.Body)
			c.Request.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
			bodySnippet = string(bodyBytes)
			if len(bodySnippet) > auditBodyLimit {
				bodySnippet = bodySnippet[:auditBodyLimit] + "...[truncated]"
			}
			bodySnippet = maskSensitiveFields(bodySnippet)
		}

		c.Next()

		status := c.Writer.Status()
		module, action := parseRouteInfo(c.FullPath(), c.Param("kind"), method)
		message := formatAuditMessage(GetUsername(c), method, c.Request.URL.Path, status)

		var uid *uint
		if userID := GetUserID(c); userID > 0 {
			uid = &userID
		}

		services.LogInfo(module, action, message, uid, c.ClientIP(), c.Request.UserAgent(), map[string]interface{}{
			"method": method,
			"path":   c.Request.URL.Path,
			"status": status,
			"body":   bodySnippet,
			"audit":  true,
		})
	}
}

// parseRouteInfo derives module and action from a gin route pattern.
// "/api/:kind/:id/convert" with kind "leads" gives ("leads", "convert").
func parseRouteInfo(fullPath, kind, method string) (module, action string) {
	path := strings.TrimPrefix(fullPath, "/api/")
	parts := strings.Split(path, "/")

	module = parts[0]
	if module == ":kind" {
		module = kind
	}
	if module == "" {
		module = "unknown"
	}

	action = auditedMethods[method]
	if last := parts[len(parts)-1]; len(parts) > 1 && !strings.HasPrefix(last, ":") {
		switch last {
		case "import", "convert", "reorder", "assign", "notes", "retention":
			action = last
		}
	}
	if action == "" {
		action = strings.ToLower(method)
	}
	return module, action
}

func formatAuditMessage(username, method, path string, status int) string {
	var b strings.Builder
	b.WriteString("[Audit] ")
	b.WriteString(username)
	b.WriteString(" ")
	b.WriteString(method)
	b.WriteString(" ")
	b.WriteString(path)
	b.WriteString(" -> ")
	if status >= 200 && status < 300 {
		b.WriteString("OK")
	} else {
		b.WriteString("Failed")
	}
	return b.String()
}

var sensitiveKeys = []string{"password", "secret", "token", "email", "phone"}

// maskSensitiveFields replaces string values of sensitive keys in a JSON body
func maskSensitiveFields(body string) string {
	for _, key := range sensitiveKeys {
		body = maskJSONValue(body, key)
	}
	return body
}

// maskJSONValue masks every "key": "value" occurrence, case-insensitively.
func maskJSONValue(body, key string) string {
	needle := "\"" + key + "\""
	from := 0
	for {
		idx := strings.Index(strings.ToLower(body[from:]), needle)
		if idx == -1 {
			return body
		}
		idx += from + len(needle)

		i := idx
		for i < len(body) && (body[i] == ' ' || body[i] == '\t') {
			i++
		}
		if i >= len(body) || body[i] != ':' {
			from = idx
			continue
		}
		i++
		for i < len(body) && (body[i] == ' ' || body[i] == '\t') {
			i++
		}
		if i >= len(body) || body[i] != '"' {
			from = idx
			continue
		}

		end := strings.Index(body[i+1:], "\"")
		if end == -1 {
			return body
		}
		body = body[:i+1] + "***" + body[i+1+end:]
		from = i + 1 + len("***") + 1
	}
}
