package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/rs/zerolog/log"
	"github.com/samber/do/v2"
	"github.com/vreid/duelist/internal/pkg/common"
	"github.com/vreid/duelist/internal/pkg/confidential"
	"github.com/vreid/duelist/internal/pkg/duel"
	"github.com/vreid/duelist/internal/pkg/keymanager"
	"github.com/vreid/duelist/internal/pkg/settlement"
	"github.com/vreid/duelist/internal/pkg/state"

	"github.com/urfave/cli/v3"
)

const shutdownTimeout = 10 * time.Second

var (
	ErrInvalidAddress = errors.New("invalid address")
	ErrInvalidWizard  = errors.New("invalid wizard id")
	ErrInvalidMoves   = errors.New("invalid move list")
)

type DuelistService struct {
	EchoService     *common.EchoService     `do:""`
	DatabaseService *common.DatabaseService `do:""`

	KeyManagerService *keymanager.KeyManagerService `do:""`
	DuelService       *duel.DuelService             `do:""`
	SettlementService *settlement.SettlementService `do:""`
}

func newInjector(cmd *cli.Command) (do.Injector, error) {
	err := common.SetupLogging(cmd.String("log-level"), cmd.String("log-format"))
	if err != nil {
		//nolint:wrapcheck
		return nil, err
	}

	i := do.New()

	do.ProvideNamedValue(i, "port", cmd.Int("port"))
	do.ProvideNamedValue(i, "data-dir", cmd.String("data-dir"))

	do.ProvideNamedValue(i, "state-backend", cmd.String("state-backend"))
	do.ProvideNamedValue(i, "valkey-addr", cmd.String("valkey-addr"))

	do.ProvideNamedValue(i, "eth-rpc-url", cmd.String("eth-rpc-url"))
	do.ProvideNamedValue(i, "eth-from", cmd.String("eth-from"))
	do.ProvideNamedValue(i, "settlement-gas", cmd.Int("settlement-gas"))
	do.ProvideNamedValue(i, "settlement-timeout", cmd.Duration("settlement-timeout"))

	do.ProvideNamedValue(i, "validate-moves", cmd.Bool("validate-moves"))
	do.ProvideNamedValue(i, "enforce-owners", cmd.Bool("enforce-owners"))

	settlementChan := make(chan settlement.ResolveDuel, 1000)
	var settlementSource <-chan settlement.ResolveDuel = settlementChan
	var settlementSink chan<- settlement.ResolveDuel = settlementChan

	do.ProvideNamedValue(i, "settlement-source", settlementSource)
	do.ProvideNamedValue(i, "settlement-sink", settlementSink)

	do.Provide(i, common.NewEchoService)
	do.Provide(i, common.NewDatabaseService)
	do.Provide(i, state.NewStore)

	do.Provide(i, keymanager.NewKeyManagerService)
	do.Provide(i, confidential.NewDecryptorService)
	do.Provide(i, duel.NewDuelService)
	do.Provide(i, settlement.NewSettlementService)

	do.Provide(i, do.InvokeStruct[DuelistService])

	return i, nil
}

func parseAddress(value string) (ethcommon.Address, error) {
	if !ethcommon.IsHexAddress(value) {
		return ethcommon.Address{}, fmt.Errorf("%w: %q", ErrInvalidAddress, value)
	}

	return ethcommon.HexToAddress(value), nil
}

func closeStore(i do.Injector) {
	store, err := do.Invoke[state.Store](i)
	if err != nil {
		return
	}

	shutdowner, ok := store.(interface{ Shutdown() error })
	if !ok {
		return
	}

	err = shutdowner.Shutdown()
	if err != nil {
		log.Error().Err(err).Msg("failed to close state store")
	}
}

func withKeyManager(cmd *cli.Command, fn func(i do.Injector, keyManager *keymanager.KeyManagerService) error) error {
	i, err := newInjector(cmd)
	if err != nil {
		return err
	}

	keyManager, err := do.Invoke[*keymanager.KeyManagerService](i)
	if err != nil {
		return fmt.Errorf("failed to create key manager: %w", err)
	}

	defer closeStore(i)

	if cmd.String("state-backend") == state.BackendBolt {
		defer func() {
			databaseService := do.MustInvoke[*common.DatabaseService](i)

			_ = databaseService.Shutdown()
		}()
	}

	return fn(i, keyManager)
}

//nolint:funlen
func runServer(ctx context.Context, cmd *cli.Command) error {
	i, err := newInjector(cmd)
	if err != nil {
		return err
	}

	duelistService, err := do.Invoke[DuelistService](i)
	if err != nil {
		return fmt.Errorf("failed to create duelist service: %w", err)
	}

	defer closeStore(i)

	defer func() {
		_ = duelistService.DatabaseService.Shutdown()
	}()

	initialized, err := duelistService.KeyManagerService.Initialized(ctx)
	if err != nil {
		//nolint:wrapcheck
		return err
	}

	if address := cmd.String("settlement-address"); !initialized && address != "" {
		settlementAddress, err := parseAddress(address)
		if err != nil {
			return err
		}

		err = duelistService.KeyManagerService.Initialize(ctx, settlementAddress)
		if err != nil {
			//nolint:wrapcheck
			return err
		}
	} else if !initialized {
		log.Warn().Msg("contract state is not initialized, run construct or pass --settlement-address")
	}

	duelistService.SettlementService.Start()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errChan := make(chan error, 1)

	go func() {
		errChan <- duelistService.EchoService.Start()
	}()

	var serverErr error

	select {
	case serverErr = <-errChan:
		if errors.Is(serverErr, http.ErrServerClosed) {
			serverErr = nil
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		serverErr = duelistService.EchoService.Shutdown(shutdownCtx)
		if serverErr != nil {
			// handlers may still be sending, so the queue stays open
			log.Error().Err(serverErr).Msg("http shutdown incomplete, queued settlements are not drained")

			//nolint:wrapcheck
			return serverErr
		}
	}

	drainSettlements(i, duelistService.SettlementService)

	//nolint:wrapcheck
	return serverErr
}

// drainSettlements closes the settlement queue and waits for the dispatcher
// before the deferred database shutdown runs. Only call it once no handler
// can send any more.
func drainSettlements(i do.Injector, settlementService *settlement.SettlementService) {
	close(do.MustInvokeNamed[chan<- settlement.ResolveDuel](i, "settlement-sink"))

	drainCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	err := settlementService.Wait(drainCtx)
	if err != nil {
		log.Error().Err(err).Msg("settlements still queued at shutdown")

		return
	}

	log.Info().Msg("settlement queue drained")
}

func runConstruct(ctx context.Context, cmd *cli.Command) error {
	settlementAddress, err := parseAddress(cmd.String("settlement-address"))
	if err != nil {
		return err
	}

	return withKeyManager(cmd, func(_ do.Injector, keyManager *keymanager.KeyManagerService) error {
		//nolint:wrapcheck
		return keyManager.Initialize(ctx, settlementAddress)
	})
}

func runPublicKey(ctx context.Context, cmd *cli.Command) error {
	return withKeyManager(cmd, func(_ do.Injector, keyManager *keymanager.KeyManagerService) error {
		publicKey, err := keyManager.PublicKey(ctx)
		if err != nil {
			//nolint:wrapcheck
			return err
		}

		_, err = fmt.Fprintln(os.Stdout, hexutil.Encode(publicKey))

		//nolint:wrapcheck
		return err
	})
}

func runRegisterOwner(ctx context.Context, cmd *cli.Command) error {
	wizard, ok := math.ParseBig256(cmd.String("wizard"))
	if !ok {
		return fmt.Errorf("%w: %q", ErrInvalidWizard, cmd.String("wizard"))
	}

	owner, err := parseAddress(cmd.String("owner"))
	if err != nil {
		return err
	}

	return withKeyManager(cmd, func(i do.Injector, _ *keymanager.KeyManagerService) error {
		registry := &duel.StoreOwnerRegistry{Store: do.MustInvoke[state.Store](i)}

		err := registry.SetOwner(ctx, wizard, owner)
		if err != nil {
			//nolint:wrapcheck
			return err
		}

		log.Info().Str("wizard", wizard.String()).Str("owner", owner.Hex()).Msg("owner registered")

		return nil
	})
}

func parseMoves(value string) ([]byte, error) {
	fields := strings.Split(value, ",")
	moves := make([]byte, 0, len(fields))

	for _, field := range fields {
		move, err := strconv.ParseUint(strings.TrimSpace(field), 10, 8)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidMoves, err)
		}

		moves = append(moves, byte(move))
	}

	return moves, nil
}

func runEncrypt(ctx context.Context, cmd *cli.Command) error {
	moves, err := parseMoves(cmd.String("moves"))
	if err != nil {
		return err
	}

	return withKeyManager(cmd, func(_ do.Injector, keyManager *keymanager.KeyManagerService) error {
		key, err := keyManager.SymmetricKey(ctx)
		if err != nil {
			//nolint:wrapcheck
			return err
		}

		ciphertext, err := confidential.Encrypt(moves, key)
		if err != nil {
			//nolint:wrapcheck
			return err
		}

		_, err = fmt.Fprintln(os.Stdout, hexutil.Encode(ciphertext))

		//nolint:wrapcheck
		return err
	})
}

//nolint:funlen
func main() {
	//nolint:exhaustruct
	cmd := &cli.Command{
		Name:  "duelist",
		Usage: "confidential duel resolution",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Value:   3000, //nolint:mnd
				Sources: cli.EnvVars("DUELIST_PORT"),
			},
			&cli.StringFlag{
				Name:    "data-dir",
				Value:   "./duelist/data",
				Sources: cli.EnvVars("DUELIST_DATA_DIR"),
			},
			&cli.StringFlag{
				Name:    "state-backend",
				Value:   state.BackendBolt,
				Usage:   "bolt, badger, valkey or memory",
				Sources: cli.EnvVars("DUELIST_STATE_BACKEND"),
			},
			&cli.StringFlag{
				Name:    "valkey-addr",
				Value:   "127.0.0.1:6379",
				Sources: cli.EnvVars("DUELIST_VALKEY_ADDR"),
			},
			&cli.StringFlag{
				Name:    "eth-rpc-url",
				Usage:   "JSON-RPC endpoint for settlements, empty logs them only",
				Sources: cli.EnvVars("DUELIST_ETH_RPC_URL"),
			},
			&cli.StringFlag{
				Name:    "eth-from",
				Usage:   "node-managed account that sends settlements",
				Sources: cli.EnvVars("DUELIST_ETH_FROM"),
			},
			&cli.IntFlag{
				Name:    "settlement-gas",
				Value:   0,
				Sources: cli.EnvVars("DUELIST_SETTLEMENT_GAS"),
			},
			&cli.DurationFlag{
				Name:    "settlement-timeout",
				Value:   30 * time.Second, //nolint:mnd
				Sources: cli.EnvVars("DUELIST_SETTLEMENT_TIMEOUT"),
			},
			&cli.StringFlag{
				Name:    "settlement-address",
				Sources: cli.EnvVars("DUELIST_SETTLEMENT_ADDRESS"),
			},
			&cli.BoolFlag{
				Name:    "validate-moves",
				Sources: cli.EnvVars("DUELIST_VALIDATE_MOVES"),
			},
			&cli.BoolFlag{
				Name:    "enforce-owners",
				Sources: cli.EnvVars("DUELIST_ENFORCE_OWNERS"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Value:   "info",
				Sources: cli.EnvVars("DUELIST_LOG_LEVEL"),
			},
			&cli.StringFlag{
				Name:    "log-format",
				Value:   "json",
				Usage:   "json or console",
				Sources: cli.EnvVars("DUELIST_LOG_FORMAT"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "server",
				Action: runServer,
			},
			{
				Name:   "construct",
				Usage:  "store the settlement address and rotate the encryption key (stop the server first with the bolt backend)",
				Action: runConstruct,
			},
			{
				Name:   "public-key",
				Action: runPublicKey,
			},
			{
				Name: "register-owner",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "wizard",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "owner",
						Required: true,
					},
				},
				Action: runRegisterOwner,
			},
			{
				Name:  "encrypt",
				Usage: "encrypt a comma separated move set under the stored key",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "moves",
						Required: true,
					},
				},
				Action: runEncrypt,
			},
		},
		DefaultCommand: "server",
	}

	err := cmd.Run(context.Background(), os.Args)
	if err != nil {
		log.Fatal().Err(err).Msg("duelist failed")
	}
}
