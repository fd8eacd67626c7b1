package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/peterh/liner"
	"golang.org/x/term"

	"stackpool/internal/config"
	"stackpool/internal/forth"
	"stackpool/internal/pool"
	"stackpool/internal/session"
)

const (
	appName    = "stackpool"
	promptMain = "ok> "
	promptCont = "... "
)

var banner = fmt.Sprintf("%s REPL\nCtrl+C aborts the running program, Ctrl+D exits. Type :help for commands.", appName)

const helpText = `REPL commands:
  :stack    Show the data stack
  :words    List user-defined words
  :status   Show pool occupancy
  :reset    Clear all state and rebuild the worker pool
  :quit     Exit
`

func red(s string) string  { return "\x1b[31m" + s + "\x1b[0m" }
func dim(s string) string  { return "\x1b[2m" + s + "\x1b[0m" }
func blue(s string) string { return "\x1b[94m" + s + "\x1b[0m" }

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	workers := flag.Int("workers", 0, "worker pool size (0 = one per CPU)")
	timeout := flag.Duration("timeout", 0, "per-evaluation timeout (0 = unbounded)")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", appName, err)
			os.Exit(2)
		}
		cfg = loaded
	}
	if *workers > 0 {
		cfg.Workers = *workers
	}
	if *timeout > 0 {
		cfg.EvalTimeout = config.Duration(*timeout)
	}

	coord, err := pool.New(pool.Config{
		Workers: cfg.Workers,
		Factory: forth.Factory,
		Logger:  log.New(os.Stderr, appName+": ", 0),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", appName, err)
		os.Exit(1)
	}
	defer coord.Close()
	sess := session.New(coord, time.Duration(cfg.EvalTimeout))

	switch {
	case flag.NArg() > 0:
		os.Exit(runScripts(sess, flag.Args()))
	case term.IsTerminal(int(os.Stdin.Fd())):
		os.Exit(repl(coord, sess, cfg.HistoryFile))
	default:
		os.Exit(runPiped(sess))
	}
}

// runScripts evaluates each file as one program against the shared session,
// so later files see the definitions of earlier ones.
func runScripts(sess *session.Session, files []string) int {
	for _, file := range files {
		src, err := os.ReadFile(file)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: cannot read %s: %v\n", appName, file, err)
			return 1
		}
		res, err := sess.Eval(context.Background(), string(src))
		if err != nil {
			if errors.Is(err, pool.ErrEmptyProgram) {
				continue
			}
			fmt.Fprintf(os.Stderr, "%s: %s: %v\n", appName, file, err)
			return 1
		}
		if res.Status != pool.StatusOK {
			fmt.Fprintf(os.Stderr, "%s: %s: %s\n", appName, file, res.Output)
			return 1
		}
		if res.Output != "" {
			fmt.Print(res.Output)
			if !strings.HasSuffix(res.Output, "\n") {
				fmt.Println()
			}
		}
	}
	return 0
}

func runPiped(sess *session.Session) int {
	src, err := io.ReadAll(os.Stdin)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: reading stdin: %v\n", appName, err)
		return 1
	}
	res, err := sess.Eval(context.Background(), string(src))
	if err != nil {
		if errors.Is(err, pool.ErrEmptyProgram) {
			return 0
		}
		fmt.Fprintf(os.Stderr, "%s: %v\n", appName, err)
		return 1
	}
	if res.Status != pool.StatusOK {
		fmt.Fprintf(os.Stderr, "%s: %s\n", appName, res.Output)
		return 1
	}
	if res.Output != "" {
		fmt.Print(res.Output)
		if !strings.HasSuffix(res.Output, "\n") {
			fmt.Println()
		}
	}
	return 0
}

func repl(coord *pool.Coordinator, sess *session.Session, histPath string) int {
	fmt.Println(banner)

	ln := liner.NewLiner()
	defer ln.Close()
	ln.SetCtrlCAborts(true)

	if f, err := os.Open(histPath); err == nil {
		_, _ = ln.ReadHistory(f)
		_ = f.Close()
	}
	defer func() {
		if f, err := os.Create(histPath); err == nil {
			_, _ = ln.WriteHistory(f)
			_ = f.Close()
		}
	}()

	// Ctrl+C while a program runs aborts every in-flight evaluation; the
	// prompt itself handles Ctrl+C through liner.
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigc)
	go func() {
		for range sigc {
			coord.AbortAll()
		}
	}()

	for {
		code, ok := readProgram(ln)
		if !ok {
			fmt.Println()
			return 0
		}
		trimmed := strings.TrimSpace(code)
		if trimmed == "" {
			continue
		}
		if isCommand(trimmed) {
			if quit := command(coord, sess, trimmed); quit {
				return 0
			}
			continue
		}

		res, err := sess.Eval(context.Background(), code)
		if err != nil {
			switch {
			case errors.Is(err, pool.ErrAborted):
				fmt.Println(dim("aborted"))
			case errors.Is(err, pool.ErrEmptyProgram):
			default:
				fmt.Fprintln(os.Stderr, red(err.Error()))
			}
			continue
		}
		ln.AppendHistory(strings.ReplaceAll(code, "\n", " "))
		if res.Status != pool.StatusOK {
			fmt.Fprintln(os.Stderr, red(res.Output))
			continue
		}
		if res.Output != "" {
			fmt.Print(blue(res.Output))
			if !strings.HasSuffix(res.Output, "\n") {
				fmt.Println()
			}
		}
		fmt.Println(dim("ok"))
	}
}

// readProgram reads one program, continuing across lines while a definition
// is still open.
func readProgram(ln *liner.State) (string, bool) {
	var b strings.Builder
	for {
		prompt := promptMain
		if b.Len() > 0 {
			prompt = promptCont
		}
		line, err := ln.Prompt(prompt)
		if errors.Is(err, io.EOF) {
			return "", false
		}
		if errors.Is(err, liner.ErrPromptAborted) {
			return "", true
		}
		if err != nil {
			return "", false
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(line)
		if !forth.Incomplete(b.String()) {
			return b.String(), true
		}
	}
}

func isCommand(line string) bool {
	switch strings.Fields(line)[0] {
	case ":quit", ":help", ":stack", ":words", ":status", ":reset":
		return true
	default:
		return false
	}
}

func command(coord *pool.Coordinator, sess *session.Session, line string) (quit bool) {
	switch strings.Fields(line)[0] {
	case ":quit":
		return true
	case ":help":
		fmt.Print(helpText)
	case ":stack":
		snap := sess.Snapshot()
		if len(snap.Stack) == 0 {
			fmt.Println("<0>")
			return false
		}
		fmt.Printf("<%d> %s\n", len(snap.Stack), strings.Join(snap.Stack, " "))
	case ":words":
		snap := sess.Snapshot()
		if len(snap.Definitions) == 0 {
			fmt.Println("no user-defined words")
			return false
		}
		for _, d := range snap.Definitions {
			if d.Doc != "" {
				fmt.Printf(": %s %s ;  \\ %s\n", d.Name, d.Body, d.Doc)
			} else {
				fmt.Printf(": %s %s ;\n", d.Name, d.Body)
			}
		}
	case ":status":
		st := coord.Stats()
		fmt.Printf("workers %d  busy %d  queued %d\n", st.Workers, st.Busy, st.Queued)
	case ":reset":
		if err := sess.Reset(); err != nil {
			fmt.Fprintln(os.Stderr, red(err.Error()))
			return false
		}
		fmt.Println(dim("reset"))
	}
	return false
}
