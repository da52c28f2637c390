// Command pbufctl is a small line-oriented driver over the pagedbuf
// library: it loads a file into a buffer, applies edit instructions read
// from stdin, and prints whatever notifications the buffer emits. The
// "watch" subcommand instead watches a config file and prints its knobs
// every time it changes on disk.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/afero"

	"github.com/tuannm99/pagedbuf/buffer"
	"github.com/tuannm99/pagedbuf/internal/config"
	"github.com/tuannm99/pagedbuf/internal/notify"
	"github.com/tuannm99/pagedbuf/internal/pagestore"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "watch" {
		watchMain(os.Args[2:])
		return
	}

	var (
		cfgPath string
		file    string
	)
	flag.StringVar(&cfgPath, "config", "", "path to a pagedbuf.yaml or pagedbuf.toml config file")
	flag.StringVar(&file, "file", "", "file to load (omit to start with an empty buffer)")
	flag.Parse()

	cfg := config.Default()
	if cfgPath != "" {
		loaded, err := config.LoadConfig(cfgPath)
		if err != nil {
			log.Fatalf("load config: %v", err)
		}
		cfg = loaded
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, file); err != nil {
		log.Fatalf("pbufctl: %v", err)
	}
}

// watchMain implements the "pbufctl watch" subcommand: it prints the
// refreshed knobs every time the given YAML config file changes on disk,
// until interrupted. This is the CLI surface for config.Watch's
// fsnotify-backed reload.
func watchMain(args []string) {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	cfgPath := fs.String("config", "", "path to a pagedbuf.yaml config file to watch")
	if err := fs.Parse(args); err != nil {
		log.Fatalf("pbufctl watch: %v", err)
	}
	if *cfgPath == "" {
		log.Fatal("pbufctl watch: -config is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := runWatch(ctx, *cfgPath, os.Stdout); err != nil {
		log.Fatalf("pbufctl watch: %v", err)
	}
}

func runWatch(ctx context.Context, cfgPath string, out *os.File) error {
	stopWatch, err := config.Watch(cfgPath, func(cfg *config.Config) {
		fmt.Fprintf(out, "config reloaded: page_size=%d max_undo_levels=%d merge_time_window_ms=%d merge_position_window=%d\n",
			cfg.PageSize, cfg.MaxUndoLevels, cfg.MergeTimeWindowMS, cfg.MergePositionWindow)
	})
	if err != nil {
		return err
	}
	defer stopWatch()

	fmt.Fprintf(out, "watching %s for changes (ctrl-c to stop)\n", cfgPath)
	<-ctx.Done()
	return nil
}

func run(ctx context.Context, cfg *config.Config, file string) error {
	store := newStore(cfg)
	dispatcher := notify.NewDispatcher()
	dispatcher.Subscribe(func(n notify.Notification) {
		fmt.Printf("[%s] %s: %s\n", n.Severity, n.Type, n.Message)
	})

	b := buffer.New(cfg, store, dispatcher)

	if file != "" {
		if err := b.LoadFile(file); err != nil {
			return fmt.Errorf("load %s: %w", file, err)
		}
	} else if err := b.LoadContent(nil); err != nil {
		return fmt.Errorf("load empty content: %w", err)
	}

	return repl(ctx, b, os.Stdin, os.Stdout)
}

func newStore(cfg *config.Config) pagestore.Store {
	if cfg.Storage.Mode == "file" {
		dir := cfg.Storage.Dir
		if dir == "" {
			store, err := pagestore.NewTempFileStore("pbufctl")
			if err != nil {
				log.Fatalf("create temp store: %v", err)
			}
			return store
		}
		return pagestore.NewFileStore(afero.NewOsFs(), dir)
	}
	return pagestore.NewMemoryStore()
}

// repl reads one instruction per line from in and applies it to b until EOF,
// "quit", or ctx is cancelled. Recognized instructions:
//
//	insert <pos> <text>
//	delete <start> <end>
//	overwrite <pos> <text>
//	undo
//	redo
//	save
//	save-as <path>
//	info
func repl(ctx context.Context, b *buffer.Buffer, in *os.File, out *os.File) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if err := dispatch(b, out, line); err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
		}
	}
	return scanner.Err()
}

func dispatch(b *buffer.Buffer, out *os.File, line string) error {
	fields := strings.SplitN(line, " ", 3)
	switch fields[0] {
	case "quit", "exit":
		os.Exit(0)
		return nil

	case "insert":
		if len(fields) < 3 {
			return fmt.Errorf("usage: insert <pos> <text>")
		}
		pos, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			return fmt.Errorf("bad position %q: %w", fields[1], err)
		}
		_, err = b.InsertBytes(pos, []byte(fields[2]), nil)
		return err

	case "delete":
		if len(fields) < 3 {
			return fmt.Errorf("usage: delete <start> <end>")
		}
		start, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			return fmt.Errorf("bad start %q: %w", fields[1], err)
		}
		end, err := strconv.ParseInt(fields[2], 10, 64)
		if err != nil {
			return fmt.Errorf("bad end %q: %w", fields[2], err)
		}
		_, err = b.DeleteBytes(start, end)
		return err

	case "overwrite":
		if len(fields) < 3 {
			return fmt.Errorf("usage: overwrite <pos> <text>")
		}
		pos, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			return fmt.Errorf("bad position %q: %w", fields[1], err)
		}
		_, err = b.OverwriteBytes(pos, []byte(fields[2]), nil)
		return err

	case "undo":
		return b.Undo()
	case "redo":
		return b.Redo()

	case "save":
		return b.SaveFile(b.Filename(), false)
	case "save-as":
		if len(fields) < 2 {
			return fmt.Errorf("usage: save-as <path>")
		}
		return b.SaveAs(fields[1])

	case "info":
		fmt.Fprintf(out, "filename=%q size=%d integrity=%s unsavedChanges=%t lines=%d\n",
			b.Filename(), b.TotalSize(), b.Integrity(), b.UnsavedChanges(), b.GetLineCount())
		return nil

	default:
		return fmt.Errorf("unrecognized instruction %q", fields[0])
	}
}
