// stubkitchen is a stand-in for the kitchen service: the same wire
// contract, a keyword brain instead of a language model, and a chime
// instead of synthesized narration. It exists so the client is fully
// demoable offline.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hammamikhairi/souschef/internal/logger"
	"github.com/hammamikhairi/souschef/internal/recipe"
)

func main() {
	addr := flag.String("addr", ":8000", "listen address")
	recipesDir := flag.String("recipes-dir", "", "preload recipes from a YAML directory")
	silent := flag.Bool("silent", false, "send no audio body with voice responses")
	verbose := flag.Bool("verbose", false, "enable verbose/debug logging")
	quiet := flag.Bool("quiet", false, "disable all logging")
	flag.Parse()

	logLevel := logger.LevelNormal
	if *verbose {
		logLevel = logger.LevelVerbose
	}
	if *quiet {
		logLevel = logger.LevelOff
	}
	log := logger.New(logLevel, os.Stderr)

	source := recipe.NewMemorySource(log.Named("recipes"))
	if *recipesDir != "" {
		if err := preload(source, *recipesDir, log); err != nil {
			fmt.Fprintf(os.Stderr, "error: loading recipes from %s: %v\n", *recipesDir, err)
			os.Exit(1)
		}
	}

	var chime []byte
	if !*silent {
		chime = chimeWAV()
	}

	brain := newStub(source, log.Named("brain"))
	srv := newServer(source, brain, chime, log.Named("http"))

	httpServer := &http.Server{
		Addr:              *addr,
		Handler:           srv.router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		httpServer.Shutdown(shutdownCtx)
	}()

	log.Info("stub kitchen service listening on %s", *addr)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	log.Info("stub kitchen service stopped")
}

// preload copies every recipe from a YAML directory into the in-memory
// store.
func preload(source *recipe.MemorySource, dir string, log *logger.Logger) error {
	files, err := recipe.NewFileSource(dir, log.Named("files"))
	if err != nil {
		return err
	}

	ctx := context.Background()
	summaries, err := files.List(ctx)
	if err != nil {
		return err
	}
	for _, s := range summaries {
		r, err := files.Get(ctx, s.ID)
		if err != nil {
			return err
		}
		source.Add(r)
	}
	log.Info("preloaded %d recipe(s) from %s", len(summaries), dir)
	return nil
}
