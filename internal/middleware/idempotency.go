package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"

	"github.com/aldertree/questline/internal/apperr"
	"github.com/aldertree/questline/internal/dto"
	"github.com/aldertree/questline/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const idempotencyKeyHeader = "Idempotency-Key"

// storedResult is the serialized response replayed for a retried request.
// The ETag header travels with the body so a replayed mutation hands back
// the same token it originally committed with.
type storedResult struct {
	Status int             `json:"status"`
	Etag   string          `json:"etag,omitempty"`
	Body   json.RawMessage `json:"body"`
}

// Idempotency deduplicates retried mutations. The first request bearing a
// key claims it and executes; a retry with the same key and an identical
// fingerprint (method+path+body hash) gets the committed response verbatim
// with no side effects; the same key with a different fingerprint is a
// conflict. Failed executions release the claim so the client can retry.
func Idempotency(idem service.IdempotencyService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodGet || c.Request.Method == http.MethodHead {
			c.Next()
			return
		}
		key := c.GetHeader(idempotencyKeyHeader)
		if key == "" {
			c.Next()
			return
		}

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, dto.ProblemResponse{
				Code:  apperr.CodeStorageFailure,
				Title: "Failed to read request body",
			})
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))

		fingerprint := service.Fingerprint(c.Request.Method, c.Request.URL.Path, body)
		begin, err := idem.Begin(key, fingerprint)
		if err != nil {
			abortWithProblem(c, err)
			return
		}
		if begin.Replay {
			var stored storedResult
			if err := json.Unmarshal([]byte(begin.ResultJSON), &stored); err != nil {
				log.Error().Err(err).Str("key", key).Msg("Idempotency: corrupt stored result")
				abortWithProblem(c, apperr.Runtime(apperr.CodeStorageFailure, err))
				return
			}
			if stored.Etag != "" {
				c.Header("ETag", stored.Etag)
			}
			c.Data(stored.Status, "application/json", stored.Body)
			c.Abort()
			return
		}

		capture := &captureWriter{ResponseWriter: c.Writer}
		c.Writer = capture
		c.Next()

		status := capture.Status()
		if status >= http.StatusBadRequest {
			idem.Release(key)
			return
		}
		result, err := json.Marshal(storedResult{
			Status: status,
			Etag:   capture.Header().Get("ETag"),
			Body:   capture.buf.Bytes(),
		})
		if err != nil {
			log.Error().Err(err).Str("key", key).Msg("Idempotency: failed to serialize result")
			idem.Release(key)
			return
		}
		if err := idem.Commit(key, string(result)); err != nil {
			log.Error().Err(err).Str("key", key).Msg("Idempotency: failed to commit result")
		}
	}
}

type captureWriter struct {
	gin.ResponseWriter
	buf bytes.Buffer
}

func (w *captureWriter) Write(b []byte) (int, error) {
	w.buf.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *captureWriter) WriteString(s string) (int, error) {
	w.buf.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

func abortWithProblem(c *gin.Context, err error) {
	if p, ok := apperr.As(err); ok {
		c.AbortWithStatusJSON(p.Status, dto.ProblemResponse{Code: p.Code, Title: p.Title, Detail: p.Detail})
		return
	}
	c.AbortWithStatusJSON(http.StatusInternalServerError, dto.ProblemResponse{
		Code:  apperr.CodeStorageFailure,
		Title: "Internal error",
	})
}
