package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"syndrdb-core/src/kvstore"
	"syndrdb-core/src/settings"
	"syndrdb-core/src/store"
)

func printUsage() {
	fmt.Println("SyndrDB core - embeddable document storage engine")
	fmt.Println("\nUsage:")
	fmt.Println("  syndrdb-core [options]")
	fmt.Println("\nOptions:")
	flag.PrintDefaults()
}

func main() {
	configFile := flag.String("config", "", "Path to a config file (optional)")
	flag.Parse()

	args, err := settings.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n\n", err)
		printUsage()
		os.Exit(1)
	}

	// Flags re-parsed against the config/env-resolved values so a flag,
	// when given, wins over both.
	flag.StringVar(&args.DataDir, "datadir", args.DataDir, "Path to the bbolt data file (ignored when backend=mem)")
	flag.StringVar(&args.Backend, "backend", args.Backend, "KV backend: \"mem\" or \"bolt\"")
	flag.IntVar(&args.MaxDocumentBytes, "maxdocumentbytes", args.MaxDocumentBytes, "Maximum serialized document size in bytes")
	flag.StringVar(&args.JournalPath, "journalpath", args.JournalPath, "Path to the advisory mutation journal (empty disables it)")
	flag.BoolVar(&args.Verbose, "verbose", args.Verbose, "Enable verbose logging")
	flag.CommandLine.Parse(os.Args[1:])

	var zcfg zap.Config
	if args.Verbose {
		zcfg = zap.NewDevelopmentConfig()
	} else {
		zcfg = zap.NewProductionConfig()
	}
	logger, err := zcfg.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	sugar := logger.Sugar()

	var kv kvstore.Store
	switch args.Backend {
	case "mem":
		kv = kvstore.NewMemStore()
	case "bolt":
		bolt, err := kvstore.OpenBoltStore(args.DataDir)
		if err != nil {
			sugar.Fatalw("failed to open bolt store", "path", args.DataDir, "error", err)
		}
		defer bolt.Close()
		kv = bolt
	default:
		sugar.Fatalw("unknown backend", "backend", args.Backend)
	}

	journal, err := store.OpenJournal(args.JournalPath)
	if err != nil {
		sugar.Fatalw("failed to open mutation journal", "path", args.JournalPath, "error", err)
	}
	defer journal.Close()

	docStore := store.New(kv, sugar, journal, args.MaxDocumentBytes)
	defer docStore.Close()

	sugar.Infow("syndrdb-core ready",
		"backend", args.Backend,
		"dataDir", args.DataDir,
		"maxDocumentBytes", args.MaxDocumentBytes,
	)

	shutdownSignal := make(chan os.Signal, 1)
	signal.Notify(shutdownSignal, syscall.SIGINT, syscall.SIGTERM)
	<-shutdownSignal
	sugar.Info("shutting down")
}
