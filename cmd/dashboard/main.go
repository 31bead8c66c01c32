// Command dashboard serves a small UI over the analytics API: evaluation
// volume, fallback rate and score averages per embedder or per day.
package main

import (
	"bytes"
	"embed"
	"flag"
	"io/fs"
	"log"
	"net/http"
	"os"
)

//go:embed static
var staticFS embed.FS

func main() {
	addr := flag.String("addr", ":8081", "Listen address for dashboard")
	apiBase := flag.String("api", "http://localhost:8080", "Analytics API base URL (or DASHBOARD_API env)")
	flag.Parse()

	if v := os.Getenv("DASHBOARD_API"); v != "" && *apiBase == "http://localhost:8080" {
		*apiBase = v
	}

	strip, _ := fs.Sub(staticFS, "static")
	mux := http.NewServeMux()
	mux.HandleFunc("GET /", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		index, _ := fs.ReadFile(strip, "index.html")
		w.Write(bytes.ReplaceAll(index, []byte("__API_BASE__"), []byte(*apiBase)))
	})

	log.Printf("dashboard listening on %s (api=%s)", *addr, *apiBase)
	log.Fatal(http.ListenAndServe(*addr, mux))
}
