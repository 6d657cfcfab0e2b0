package httpserver

import (
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

var gzipPool = sync.Pool{
	New: func() any {
		w, _ := gzip.NewWriterLevel(io.Discard, gzip.BestSpeed)
		return w
	},
}

var zstdPool = sync.Pool{
	New: func() any {
		w, _ := zstd.NewWriter(io.Discard, zstd.WithEncoderLevel(zstd.SpeedFastest))
		return w
	},
}

// compressResponses negotiates zstd or gzip response encoding from the
// Accept-Encoding header. Responses without a negotiated encoding pass
// through untouched; content bytes are never altered, only re-encoded on
// the wire.
func compressResponses(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		accept := r.Header.Get("Accept-Encoding")

		switch {
		case strings.Contains(accept, "zstd"):
			zw := zstdPool.Get().(*zstd.Encoder)
			zw.Reset(w)
			defer func() {
				_ = zw.Close()
				zstdPool.Put(zw)
			}()

			w.Header().Set("Content-Encoding", "zstd")
			w.Header().Add("Vary", "Accept-Encoding")
			next.ServeHTTP(&compressWriter{ResponseWriter: w, w: zw}, r)

		case strings.Contains(accept, "gzip"):
			gw := gzipPool.Get().(*gzip.Writer)
			gw.Reset(w)
			defer func() {
				_ = gw.Close()
				gzipPool.Put(gw)
			}()

			w.Header().Set("Content-Encoding", "gzip")
			w.Header().Add("Vary", "Accept-Encoding")
			next.ServeHTTP(&compressWriter{ResponseWriter: w, w: gw}, r)

		default:
			next.ServeHTTP(w, r)
		}
	})
}

// compressWriter routes the response body through an encoder while headers
// and status go to the underlying writer.
type compressWriter struct {
	http.ResponseWriter
	w io.Writer
}

func (cw *compressWriter) Write(p []byte) (int, error) {
	return cw.w.Write(p)
}

// WriteHeader drops Content-Length, which refers to the uncompressed body.
func (cw *compressWriter) WriteHeader(status int) {
	cw.Header().Del("Content-Length")
	cw.ResponseWriter.WriteHeader(status)
}
