package db

import (
	"compress/gzip"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/tailscale/tailsql/server/tailsql"
	"tailscale.com/tsweb"

	"github.com/servo-cam/server/internal/httputil"
	"github.com/servo-cam/server/internal/monitoring"
)

// AttachAdminRoutes mounts live SQL, session listing and backup download
// under /debug/.
func (db *DB) AttachAdminRoutes(mux *http.ServeMux) error {
	debug := tsweb.Debugger(mux)

	tsql, err := tailsql.NewServer(tailsql.Options{RoutePrefix: "/debug/tailsql/"})
	if err != nil {
		return fmt.Errorf("failed to create tailsql server: %w", err)
	}
	tsql.SetDB("sqlite://"+db.path, db.DB, &tailsql.DBOptions{Label: "Servocam telemetry"})
	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())

	debug.HandleFunc("sessions", "tracker sessions", func(w http.ResponseWriter, r *http.Request) {
		sessions, err := db.Sessions()
		if err != nil {
			httputil.InternalServerError(w, fmt.Sprintf("Failed to list sessions: %v", err))
			return
		}
		httputil.WriteJSONOK(w, sessions)
	})

	debug.Handle("backup", "Create and download a backup of the database now", http.HandlerFunc(db.serveBackup))
	return nil
}

func (db *DB) serveBackup(w http.ResponseWriter, r *http.Request) {
	name := fmt.Sprintf("servocam-backup-%d.db", time.Now().Unix())
	path := filepath.Join(os.TempDir(), name)
	if _, err := db.Exec("VACUUM INTO ?", path); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to create backup: %v", err))
		return
	}
	defer func() {
		if err := os.Remove(path); err != nil {
			monitoring.Logf("[db] failed to remove backup file: %v", err)
		}
	}()

	f, err := os.Open(path)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("Failed to open backup file: %v", err))
		return
	}
	defer f.Close()

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s.gz", name))
	w.Header().Set("Content-Type", "application/gzip")
	gz := gzip.NewWriter(w)
	defer gz.Close()
	if _, err := io.Copy(gz, f); err != nil {
		monitoring.Logf("[db] backup download failed: %v", err)
	}
}
