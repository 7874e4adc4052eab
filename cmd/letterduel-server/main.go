package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	appcfg "github.com/lexset/letterduel/internal/config"
	"github.com/lexset/letterduel/internal/directory"
	"github.com/lexset/letterduel/internal/gateway"
	"github.com/lexset/letterduel/internal/identity"
	"github.com/lexset/letterduel/internal/letters"
	"github.com/lexset/letterduel/internal/lobby"
	"github.com/lexset/letterduel/internal/match"
	"github.com/lexset/letterduel/internal/obslog"
	"github.com/lexset/letterduel/internal/words"
	"github.com/lexset/letterduel/pkg/gamedto"
	"go.uber.org/zap"
)

func main() {
	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("logger init error: %v", err)
	}

	dict, err := words.Load(cfg.DictionaryPath)
	if err != nil {
		log.Fatalf("dictionary load error: %v", err)
	}
	tree, err := letters.Load(cfg.LetterTreePath)
	if err != nil {
		log.Fatalf("letter tree load error: %v", err)
	}
	obslog.L().Info("resources_loaded",
		zap.Int("dictionary_words", dict.Len()),
		zap.String("letter_tree", cfg.LetterTreePath))

	var guests *identity.GuestStore
	if cfg.RedisURL != "" {
		guests, err = identity.NewGuestStore(cfg.RedisURL)
		if err != nil {
			log.Fatalf("guest store init error: %v", err)
		}
	}
	var users *identity.UserClient
	if cfg.UserServiceURL != "" {
		users = identity.NewUserClient(cfg.UserServiceURL)
	}
	ident := identity.NewService(guests, users)

	var repo match.Repository
	if cfg.DatabaseURL != "" {
		pg, err := match.NewPostgresRepository(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("match repo init error: %v", err)
		}
		defer pg.Close()
		repo = pg
	}

	codes := directory.NewCodes()
	presence := directory.NewPresence()

	gw := gateway.New()
	matches := match.NewManager(codes, presence, tree, dict, ident, repo, gw, match.Options{
		ReconnectGrace: cfg.ReconnectGrace,
		StartDelay:     cfg.StartDelay,
	})
	lobbies := lobby.NewManager(codes, matchStarter{matches}, ident, gw, lobby.Options{
		IdleLimit:  cfg.LobbyIdleLimit,
		SweepEvery: cfg.LobbySweepEvery,
	})
	gw.Attach(lobbies, matches)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	lobbies.StartReaper(ctx)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", gw.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	srv := &http.Server{Addr: cfg.ListenAddr, Handler: mux}

	go func() {
		obslog.L().Info("server_listen", zap.String("addr", cfg.ListenAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	obslog.L().Info("server_shutdown")

	cancel()
	sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer scancel()
	_ = srv.Shutdown(sctx)
	matches.Close()
	if guests != nil {
		_ = guests.Close()
	}
}

// matchStarter bridges the lobby manager to the match manager.
type matchStarter struct {
	matches *match.Manager
}

func (s matchStarter) StartMatch(ctx context.Context, roster []lobby.Participant, settings gamedto.Settings) (string, error) {
	ps := make([]match.Participant, 0, len(roster))
	for _, p := range roster {
		ps = append(ps, match.Participant{ID: p.ID, DisplayName: p.DisplayName})
	}
	return s.matches.CreateMatch(ctx, ps, settings)
}
