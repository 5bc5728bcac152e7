package gateway

import "github.com/mumblechat/mumble/internal/source"

func sourceOpts(after int64) source.ListOptions {
	return source.ListOptions{CreatedAfter: after}
}
