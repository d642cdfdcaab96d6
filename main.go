package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zenfi/core/internal/activation"
	"github.com/zenfi/core/internal/activation/ln/mock"
	"github.com/zenfi/core/internal/activation/ln/nodeless"
	"github.com/zenfi/core/internal/activation/ln/zbd"
	"github.com/zenfi/core/internal/auth"
	"github.com/zenfi/core/internal/blobstore"
	"github.com/zenfi/core/internal/blobstore/filesystem"
	"github.com/zenfi/core/internal/blobstore/s3"
	"github.com/zenfi/core/internal/db"
	"github.com/zenfi/core/internal/notifier"
	"github.com/zenfi/core/internal/records"
)

var (
	commit    string
	buildDate string
)

func main() {
	ctx := context.Background()

	configPath := flag.String("config", "", "location of config file. If non is specified config will be loaded from the environment")
	flag.Parse()

	log.Printf("build info: commit: %v date: %v\n", commit, buildDate)

	var (
		cfg Config
		err error
	)
	if *configPath != "" {
		log.Printf("loading config from file %q\n", *configPath)
		err = cfg.Load(*configPath)
	} else {
		log.Println("loading config from env")
		err = cfg.LoadFromEnv()
	}
	if err != nil {
		log.Println(err)
		os.Exit(1)
	}

	// Record store
	repo, err := db.New(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		log.Printf("db err: %v\n", err)
		os.Exit(1)
	}
	defer repo.Close()

	for _, userID := range cfg.AdminUsers {
		if err := repo.SetRole(ctx, userID, records.RoleAdmin); err != nil {
			log.Printf("db err: grant admin %q: %v\n", userID, err)
			os.Exit(1)
		}
	}

	signer, err := auth.New([]byte(cfg.AuthSecret))
	if err != nil {
		log.Printf("auth err: %v\n", err)
		os.Exit(1)
	}

	// Receipt storage
	var (
		store blobstore.Store
		files *filesystem.Store
	)
	switch cfg.StorageBackend {
	case "s3":
		store, err = s3.New(ctx, cfg.S3Bucket, cfg.S3PublicBase)
		if err != nil {
			log.Printf("s3 err: %v\n", err)
			os.Exit(1)
		}
	case "filesystem":
		files, err = filesystem.New(cfg.FilesystemRoot, cfg.APIBase, []byte(cfg.AuthSecret))
		if err != nil {
			log.Printf("filesystem err: %v\n", err)
			os.Exit(1)
		}
		store = files
	}

	// Activation setup
	var lnProvider activation.LNProvider
	switch cfg.LightningProvider {
	case "nodeless":
		lnProvider, err = nodeless.New(cfg.NodelessAPIKey, cfg.NodelessStoreID, cfg.NodelessTestnet)
		if err != nil {
			log.Printf("nodeless err: %v\n", err)
			os.Exit(1)
		}
	case "zbd":
		chargeCallbackURL, err := url.JoinPath(cfg.APIBase, "/callback/zbd-charge")
		if err != nil {
			log.Printf("zbd chargeCallbackURL: %v\n", err)
			os.Exit(1)
		}

		lnProvider, err = zbd.New(cfg.ZBDAPIKey, chargeCallbackURL)
		if err != nil {
			log.Printf("zbd err: %v\n", err)
			os.Exit(1)
		}
	case "mock":
		log.Println("using mock lightning provider")
		lnProvider = mock.New()
	default:
		log.Printf("unknown lightning_provider %q. must be 'nodeless', 'zbd' or 'mock'", cfg.LightningProvider)
		os.Exit(1)
	}

	acts, err := activation.New(repo, lnProvider, cfg.LightningProvider)
	if err != nil {
		log.Printf("activation err: %v\n", err)
		os.Exit(1)
	}

	h := handlers{
		config:  cfg,
		records: repo,
		store:   store,
		files:   files,
		acts:    acts,
	}

	if cfg.NotifierNsec != "" {
		n, err := notifier.New(cfg.NotifierNsec, cfg.NotifierRelays)
		if err != nil {
			log.Printf("notifier err: %v\n", err)
			os.Exit(1)
		}
		h.notifier = n
	}

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Use(metricsMiddleware)

	h.routes(r, signer)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	port := fmt.Sprintf(":%d", cfg.Port)

	log.Printf("api listening on %v\n", port)

	if err := http.ListenAndServe(port, r); err != nil {
		log.Println(err)
		os.Exit(1)
	}
}
