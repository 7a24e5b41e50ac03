// Package validation provides request validation middleware and helpers
// for transaction identifiers.
package validation

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
)

// MaxRequestSize is the largest request body the API accepts. Assessment
// requests carry bounded history slices and a bytecode snippet, so 1MB
// leaves plenty of headroom.
const MaxRequestSize = 1 << 20

var txHashPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)

// IsValidTxHash reports whether s looks like a 32-byte transaction hash.
func IsValidTxHash(s string) bool {
	return txHashPattern.MatchString(s)
}

// NormalizeTxHash lowercases a transaction hash for storage and lookup.
func NormalizeTxHash(s string) string {
	return strings.ToLower(s)
}

// RequestSizeMiddleware rejects request bodies larger than maxBytes.
func RequestSizeMiddleware(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > maxBytes {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{
				"error":   "request_too_large",
				"message": "Request body exceeds maximum size",
			})
			c.Abort()
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// TxHashParamMiddleware validates the :hash route parameter before the
// handler touches storage.
func TxHashParamMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		hash := c.Param("hash")
		if !IsValidTxHash(hash) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_tx_hash",
				"message": "Transaction hash must be 0x followed by 64 hex characters",
			})
			c.Abort()
			return
		}
		c.Next()
	}
}
