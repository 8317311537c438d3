// Command servocam-report summarises a recorded tracking session and
// renders its servo angles as an HTML chart and a PNG plot.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/servo-cam/server/internal/db"
)

var (
	dbPath  = flag.String("db", "servocam.db", "Telemetry database")
	session = flag.String("session", "", "Session to report; the newest when empty")
	outDir  = flag.String("out", ".", "Directory for the chart files")
	list    = flag.Bool("list", false, "List sessions and exit")
	noPlots = flag.Bool("summary-only", false, "Print the summary without writing chart files")
)

func main() {
	flag.Parse()
	if err := run(os.Stdout); err != nil {
		log.Fatal(err)
	}
}

func run(out io.Writer) error {
	database, err := db.OpenDB(*dbPath)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", *dbPath, err)
	}
	defer database.Close()

	sessions, err := database.Sessions()
	if err != nil {
		return fmt.Errorf("failed to list sessions: %w", err)
	}
	if *list {
		listSessions(out, sessions)
		return nil
	}

	id, err := pickSession(sessions, *session)
	if err != nil {
		return err
	}
	cmds, err := database.Commands(id)
	if err != nil {
		return fmt.Errorf("failed to read commands: %w", err)
	}
	s := buildSeries(id, cmds)

	fmt.Fprintf(out, "session:      %s\n", id)
	summarize(s).write(out)
	if *noPlots || len(cmds) == 0 {
		return nil
	}

	if err := os.MkdirAll(*outDir, 0755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}
	base := filepath.Join(*outDir, "servocam-"+shortID(id))

	f, err := os.Create(base + ".html")
	if err != nil {
		return err
	}
	if err := renderHTML(f, s); err != nil {
		f.Close()
		return fmt.Errorf("failed to render chart: %w", err)
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := savePNG(base+".png", s); err != nil {
		return fmt.Errorf("failed to save plot: %w", err)
	}
	fmt.Fprintf(out, "wrote %s.html and %s.png\n", base, base)
	return nil
}

func listSessions(w io.Writer, sessions []db.SessionRecord) {
	for _, s := range sessions {
		fmt.Fprintf(w, "%s  %s  %-12s %d commands\n", s.ID, s.StartedAt.Format("2006-01-02 15:04:05"), s.Version, s.Commands)
	}
}

// pickSession returns want when it names a known session, otherwise the
// newest session.
func pickSession(sessions []db.SessionRecord, want string) (string, error) {
	if len(sessions) == 0 {
		return "", errors.New("no sessions recorded")
	}
	if want == "" {
		return sessions[0].ID, nil
	}
	for _, s := range sessions {
		if s.ID == want {
			return s.ID, nil
		}
	}
	return "", fmt.Errorf("unknown session %q", want)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
