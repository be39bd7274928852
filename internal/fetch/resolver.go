package fetch

import (
	"context"
	"strings"

	"derivflow/logger"
	"derivflow/models"
)

// Resolver walks an ordered list of base URLs for one provider: the
// origin endpoint first, mirrors and proxies after it. The first base
// that yields a valid JSON body wins; a mirror is never consulted before
// the origin has failed.
type Resolver struct {
	client *Client
	bases  []string
	log    *logger.Log
}

func NewResolver(client *Client, bases []string, log *logger.Log) *Resolver {
	trimmed := make([]string, 0, len(bases))
	for _, b := range bases {
		b = strings.TrimRight(strings.TrimSpace(b), "/")
		if b != "" {
			trimmed = append(trimmed, b)
		}
	}
	return &Resolver{client: client, bases: trimmed, log: log}
}

// GetJSON tries each base in order against path (a path plus encoded
// query). When every base fails it returns *models.BasesExhaustedError
// carrying the last observed error.
func (r *Resolver) GetJSON(ctx context.Context, path string) ([]byte, error) {
	var lastErr error
	for i, base := range r.bases {
		body, err := r.client.GetJSON(ctx, base+path)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
		if r.log != nil && i < len(r.bases)-1 {
			r.log.WithComponent("fetch").WithFields(logger.Fields{
				"base": base,
				"path": path,
			}).WithError(err).Debug("base failed, trying next")
		}
	}
	return nil, &models.BasesExhaustedError{Path: path, Attempts: len(r.bases), Last: lastErr}
}
