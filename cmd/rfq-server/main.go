package main

import (
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"rfqmarket/db"
	"rfqmarket/db/migrations"
	"rfqmarket/internal/chain"
	"rfqmarket/internal/config"
	"rfqmarket/internal/docstore"
	"rfqmarket/internal/eval"
	"rfqmarket/internal/handlers"
	"rfqmarket/internal/llm"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if err := config.InitLogger(cfg.Log); err != nil {
		log.Fatalf("logger: %v", err)
	}
	logger := zap.L()
	defer logger.Sync()

	if cfg.Store.DatabaseURL == "" {
		logger.Fatal("store.database_url is not set")
	}
	dbConn, err := sqlx.Connect("postgres", cfg.Store.DatabaseURL)
	if err != nil {
		logger.Fatal("cannot connect to DB", zap.Error(err))
	}
	defer dbConn.Close()

	if err := migrations.Run(dbConn.DB); err != nil {
		logger.Fatal("migrations failed", zap.Error(err))
	}

	store := db.NewStorage(dbConn)
	docs := docstore.New(cfg.Uploads.Dir, cfg.Uploads.MaxFileSize)

	var gen llm.Generator
	if cfg.Model.AnthropicKey != "" {
		gen = llm.NewAnthropicGenerator(cfg.Model.AnthropicKey, cfg.Model.AnthropicModel,
			cfg.Model.MaxTokens, cfg.Model.Timeout)
	} else {
		logger.Warn("anthropic key not set, evaluation runs on heuristics only")
	}
	var emb llm.Embedder
	if cfg.Model.EmbedKey != "" {
		emb = llm.NewHTTPEmbedder(cfg.Model.EmbedBaseURL, cfg.Model.EmbedKey,
			cfg.Model.EmbedModel, cfg.Model.Timeout)
	}

	evalSvc := eval.NewService(gen, emb, eval.Params{
		PassThreshold:    cfg.Eval.PassThreshold,
		ClarifyThreshold: cfg.Eval.ClarifyThreshold,
		DefaultWeight:    cfg.Eval.DefaultWeight,
	}, logger)

	var anchor handlers.AnchorClient
	if cfg.Chain.RPCURL != "" {
		descriptor, err := chain.LoadDescriptor(cfg.Chain.DescriptorPath)
		if err != nil {
			logger.Fatal("chain descriptor", zap.Error(err))
		}
		client, err := chain.Dial(chain.Config{
			RPCURL:       cfg.Chain.RPCURL,
			PrivateKey:   cfg.Chain.PrivateKey,
			Descriptor:   descriptor,
			ChainID:      cfg.Chain.ChainID,
			GasLimit:     cfg.Chain.GasLimit,
			GasPriceGwei: cfg.Chain.GasPriceGwei,
			Timeout:      cfg.Chain.Timeout,
		}, logger)
		if err != nil {
			logger.Fatal("chain dial", zap.Error(err))
		}
		anchor = client
	} else {
		logger.Info("chain rpc url not set, anchoring disabled")
	}

	h := handlers.NewHandler(store, evalSvc, anchor, docs, cfg.Session.TTL, logger)
	if cfg.Eval.QualificationCap > 0 {
		h.QualificationCap = cfg.Eval.QualificationCap
	}

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Get("/ping", h.PingHandler)

		r.Post("/register", h.RegisterHandler)
		r.Post("/login", h.LoginHandler)
		r.Post("/logout", h.LogoutHandler)

		r.Group(func(r chi.Router) {
			r.Use(h.RequireAuth)

			r.Get("/me", h.MeHandler)
			r.Put("/me", h.UpdateProfileHandler)
			r.Get("/dashboard", h.DashboardHandler)

			r.Get("/rfqs", h.ListRFQsHandler)
			r.Get("/rfqs/{id}", h.GetRFQHandler)
			r.Get("/rfqs/{id}/files", h.ListRFQFilesHandler)
			r.Get("/rfqs/{id}/files/{fileID}", h.DownloadRFQFileHandler)
			r.Get("/rfqs/{id}/bids", h.ListRFQBidsHandler)

			r.Group(func(r chi.Router) {
				r.Use(h.RequireRole("owner"))
				r.Post("/rfqs", h.CreateRFQHandler)
				r.Post("/rfqs/{id}/files", h.UploadRFQFileHandler)
				r.Get("/rfqs/{id}/candidates", h.ListCandidatesHandler)
				r.Post("/bids/{id}/reject", h.RejectBidHandler)
				r.Post("/bids/{id}/clarify", h.RequestClarificationHandler)
				r.Post("/bids/{id}/select", h.SelectWinnerHandler)
			})

			r.Group(func(r chi.Router) {
				r.Use(h.RequireRole("bidder"))
				r.Post("/bids", h.CreateBidHandler)
				r.Get("/my-bids", h.MyBidsHandler)
				r.Post("/threads/{id}/reply", h.ReplyThreadHandler)
			})

			r.Get("/bids/{id}", h.GetBidHandler)
			r.Get("/bids/{id}/thread", h.GetBidThreadHandler)

			r.Get("/projects", h.ListProjectsHandler)
			r.Get("/projects/{id}", h.GetProjectHandler)
			r.Get("/projects/{id}/milestones", h.ListMilestonesHandler)
			r.With(h.RequireRole("bidder")).Post("/projects/{id}/milestones", h.CreateMilestoneHandler)
			r.With(h.RequireRole("bidder")).Post("/milestones/{milestoneID}/submit", h.SubmitMilestoneHandler)
			r.With(h.RequireRole("bidder")).Post("/milestones/{milestoneID}/resubmit", h.ResubmitMilestoneHandler)
			r.With(h.RequireRole("owner")).Post("/milestones/{milestoneID}/approve", h.ApproveMilestoneHandler)
			r.With(h.RequireRole("owner")).Post("/milestones/{milestoneID}/reject", h.RejectMilestoneHandler)

			r.Group(func(r chi.Router) {
				r.Use(h.RequireRole("admin"))
				r.Get("/users", h.ListUsersHandler)
				r.Delete("/users/{id}", h.DeleteUserHandler)
			})
		})
	})

	logger.Info("starting server", zap.String("address", cfg.Server.Address))
	if err := http.ListenAndServe(cfg.Server.Address, r); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}
